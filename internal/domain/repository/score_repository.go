package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"codenvibe/internal/common"
	"codenvibe/internal/domain/model"
)

// ScoreRepository owns TeamScoreState. ApplySubmission commits the ledger
// append and the new state together, and only if the stored version still
// equals expectedVersion; otherwise it returns common.ErrConcurrentUpdate.
type ScoreRepository interface {
	GetTeamScore(ctx context.Context, teamID string) (*model.TeamScoreState, error)
	ListScoresByCohort(ctx context.Context, year int) ([]model.TeamScoreState, error)
	ApplySubmission(ctx context.Context, rec *model.SubmissionRecord, next *model.TeamScoreState, expectedVersion int64) error
}

type pgScoreRepository struct {
	db          *sql.DB
	submissions SubmissionRepository
}

func NewPgScoreRepository(db *sql.DB, submissions SubmissionRepository) ScoreRepository {
	return &pgScoreRepository{db: db, submissions: submissions}
}

const scoreColumns = `team_id, year, cumulative_score, solved_question_ids, best_earned, best_passed, score_reached_at, version`

func scanScore(row rowScanner) (*model.TeamScoreState, error) {
	var (
		solved, earned, passed []byte
		reachedAt              sql.NullTime
	)
	s := &model.TeamScoreState{}
	if err := row.Scan(&s.TeamID, &s.Year, &s.CumulativeScore, &solved, &earned, &passed, &reachedAt, &s.Version); err != nil {
		return nil, err
	}
	var solvedIDs []string
	if err := json.Unmarshal(solved, &solvedIDs); err != nil {
		return nil, fmt.Errorf("decode solved questions of team %s: %w", s.TeamID, err)
	}
	s.SolvedQuestionIDs = make(map[string]bool, len(solvedIDs))
	for _, id := range solvedIDs {
		s.SolvedQuestionIDs[id] = true
	}
	if err := json.Unmarshal(earned, &s.BestEarned); err != nil {
		return nil, fmt.Errorf("decode best earned of team %s: %w", s.TeamID, err)
	}
	if err := json.Unmarshal(passed, &s.BestPassed); err != nil {
		return nil, fmt.Errorf("decode best passed of team %s: %w", s.TeamID, err)
	}
	if s.BestEarned == nil {
		s.BestEarned = make(map[string]int)
	}
	if s.BestPassed == nil {
		s.BestPassed = make(map[string]int)
	}
	if reachedAt.Valid {
		s.ScoreReachedAt = reachedAt.Time
	}
	return s, nil
}

func (r *pgScoreRepository) GetTeamScore(ctx context.Context, teamID string) (*model.TeamScoreState, error) {
	query := `SELECT ` + scoreColumns + ` FROM team_scores WHERE team_id = $1`
	s, err := scanScore(r.db.QueryRowContext(ctx, query, teamID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgScoreRepository.GetTeamScore: %w", err)
	}
	return s, nil
}

func (r *pgScoreRepository) ListScoresByCohort(ctx context.Context, year int) ([]model.TeamScoreState, error) {
	query := `SELECT ` + scoreColumns + ` FROM team_scores WHERE year = $1`
	rows, err := r.db.QueryContext(ctx, query, year)
	if err != nil {
		return nil, fmt.Errorf("pgScoreRepository.ListScoresByCohort: %w", err)
	}
	defer rows.Close()

	var states []model.TeamScoreState
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("pgScoreRepository.ListScoresByCohort scan: %w", err)
		}
		states = append(states, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgScoreRepository.ListScoresByCohort rows: %w", err)
	}
	return states, nil
}

func (r *pgScoreRepository) ApplySubmission(ctx context.Context, rec *model.SubmissionRecord, next *model.TeamScoreState, expectedVersion int64) error {
	solvedIDs := make([]string, 0, len(next.SolvedQuestionIDs))
	for id := range next.SolvedQuestionIDs {
		solvedIDs = append(solvedIDs, id)
	}
	solved, err := json.Marshal(solvedIDs)
	if err != nil {
		return fmt.Errorf("pgScoreRepository.ApplySubmission encode: %w", err)
	}
	earned, err := json.Marshal(next.BestEarned)
	if err != nil {
		return fmt.Errorf("pgScoreRepository.ApplySubmission encode: %w", err)
	}
	passed, err := json.Marshal(next.BestPassed)
	if err != nil {
		return fmt.Errorf("pgScoreRepository.ApplySubmission encode: %w", err)
	}
	var reachedAt sql.NullTime
	if !next.ScoreReachedAt.IsZero() {
		reachedAt = sql.NullTime{Time: next.ScoreReachedAt, Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgScoreRepository.ApplySubmission begin: %w", err)
	}
	defer tx.Rollback()

	var res sql.Result
	if expectedVersion == 0 {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO team_scores (`+scoreColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (team_id) DO NOTHING`,
			next.TeamID, next.Year, next.CumulativeScore, string(solved), string(earned), string(passed), reachedAt, next.Version)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE team_scores SET cumulative_score = $2, solved_question_ids = $3, best_earned = $4,
			       best_passed = $5, score_reached_at = $6, version = $7, updated_at = CURRENT_TIMESTAMP
			WHERE team_id = $1 AND version = $8`,
			next.TeamID, next.CumulativeScore, string(solved), string(earned), string(passed), reachedAt, next.Version, expectedVersion)
	}
	if err != nil {
		return fmt.Errorf("pgScoreRepository.ApplySubmission write score: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("pgScoreRepository.ApplySubmission rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("team %s at version %d: %w", next.TeamID, expectedVersion, common.ErrConcurrentUpdate)
	}

	if _, err := r.submissions.Append(ctx, tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgScoreRepository.ApplySubmission commit: %w", err)
	}
	return nil
}
