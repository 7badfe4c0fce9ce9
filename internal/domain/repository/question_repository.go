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

// QuestionRepository is the read side the judge needs. Test cases are kept
// as an ordered JSON array so their positions stay stable.
type QuestionRepository interface {
	GetQuestion(ctx context.Context, id string) (*model.Question, error)
	GetQuestionsByCohort(ctx context.Context, year int) ([]model.Question, error)
}

type pgQuestionRepository struct {
	db *sql.DB
}

func NewPgQuestionRepository(db *sql.DB) QuestionRepository {
	return &pgQuestionRepository{db: db}
}

const questionColumns = `id, number, year, title, description, correct_code, incorrect_code,
	test_cases, points, time_limit_ms, language, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (*model.Question, error) {
	q := &model.Question{}
	var testCases []byte
	if err := row.Scan(
		&q.ID, &q.Number, &q.Year, &q.Title, &q.Description, &q.CorrectCode, &q.IncorrectCode,
		&testCases, &q.Points, &q.TimeLimitMs, &q.Language, &q.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(testCases, &q.TestCases); err != nil {
		return nil, fmt.Errorf("decode test cases of question %s: %w", q.ID, err)
	}
	return q, nil
}

func (r *pgQuestionRepository) GetQuestion(ctx context.Context, id string) (*model.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = $1`
	q, err := scanQuestion(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgQuestionRepository.GetQuestion: %w", err)
	}
	return q, nil
}

func (r *pgQuestionRepository) GetQuestionsByCohort(ctx context.Context, year int) ([]model.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE year = $1 ORDER BY number, id`
	rows, err := r.db.QueryContext(ctx, query, year)
	if err != nil {
		return nil, fmt.Errorf("pgQuestionRepository.GetQuestionsByCohort: %w", err)
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("pgQuestionRepository.GetQuestionsByCohort scan: %w", err)
		}
		questions = append(questions, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgQuestionRepository.GetQuestionsByCohort rows: %w", err)
	}
	return questions, nil
}
