package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"codenvibe/internal/common"
	"codenvibe/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

// SubmissionRepository is the append-only submission ledger. Nothing on the
// judging path updates or deletes a record once Append has returned.
type SubmissionRepository interface {
	Append(ctx context.Context, tx *sql.Tx, rec *model.SubmissionRecord) (string, error)
	Exists(ctx context.Context, teamID, questionID string) (bool, error)
	ListByQuestion(ctx context.Context, questionID string) ([]model.SubmissionRecord, error)
	ListByTeamAndQuestion(ctx context.Context, teamID, questionID string) ([]model.SubmissionRecord, error)
}

type pgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &pgSubmissionRepository{db: db}
}

func (r *pgSubmissionRepository) Append(ctx context.Context, tx *sql.Tx, rec *model.SubmissionRecord) (string, error) {
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return "", fmt.Errorf("pgSubmissionRepository.Append encode results: %w", err)
	}
	query := `INSERT INTO submissions (id, team_id, question_id, year, code, results, passed_count, total_count,
	                                   score_delta, new_cumulative_score, status, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	args := []any{
		rec.ID, rec.TeamID, rec.QuestionID, rec.Year, rec.Code, string(results), rec.PassedCount, rec.TotalCount,
		rec.ScoreDelta, rec.NewCumulativeScore, string(rec.Status), rec.CreatedAt,
	}

	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", fmt.Errorf("submission %s already recorded: %w", rec.ID, common.ErrConflict)
		}
		return "", fmt.Errorf("pgSubmissionRepository.Append: %w", err)
	}
	return rec.ID, nil
}

func (r *pgSubmissionRepository) Exists(ctx context.Context, teamID, questionID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM submissions WHERE team_id = $1 AND question_id = $2)`
	if err := r.db.QueryRowContext(ctx, query, teamID, questionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("pgSubmissionRepository.Exists: %w", err)
	}
	return exists, nil
}

func (r *pgSubmissionRepository) ListByQuestion(ctx context.Context, questionID string) ([]model.SubmissionRecord, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE question_id = $1 ORDER BY created_at, id`
	return r.list(ctx, "ListByQuestion", query, questionID)
}

func (r *pgSubmissionRepository) ListByTeamAndQuestion(ctx context.Context, teamID, questionID string) ([]model.SubmissionRecord, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions
	          WHERE team_id = $1 AND question_id = $2 ORDER BY created_at, id`
	return r.list(ctx, "ListByTeamAndQuestion", query, teamID, questionID)
}

const submissionColumns = `id, team_id, question_id, year, code, results, passed_count, total_count,
	score_delta, new_cumulative_score, status, created_at`

func (r *pgSubmissionRepository) list(ctx context.Context, op, query string, args ...any) ([]model.SubmissionRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.%s: %w", op, err)
	}
	defer rows.Close()

	var records []model.SubmissionRecord
	for rows.Next() {
		var (
			rec     model.SubmissionRecord
			results []byte
			status  string
		)
		if err := rows.Scan(
			&rec.ID, &rec.TeamID, &rec.QuestionID, &rec.Year, &rec.Code, &results, &rec.PassedCount, &rec.TotalCount,
			&rec.ScoreDelta, &rec.NewCumulativeScore, &status, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.%s scan: %w", op, err)
		}
		if err := json.Unmarshal(results, &rec.Results); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.%s decode results: %w", op, err)
		}
		rec.Status = model.SubmissionStatus(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.%s rows: %w", op, err)
	}
	return records, nil
}
