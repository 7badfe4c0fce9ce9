package service

import (
	"context"
	"fmt"

	"codenvibe/internal/domain/model"
	"codenvibe/internal/domain/repository"
	"codenvibe/internal/judge/harness"
)

type QuestionService struct {
	questions repository.QuestionRepository
	harness   *harness.Harness
}

func NewQuestionService(questions repository.QuestionRepository, h *harness.Harness) *QuestionService {
	return &QuestionService{questions: questions, harness: h}
}

// QuestionView is what participants see: no reference code and no hidden
// test data.
type QuestionView struct {
	ID            string           `json:"_id"`
	Number        int              `json:"number"`
	Year          int              `json:"year"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	IncorrectCode string           `json:"incorrect_code"`
	TestCases     []model.TestCase `json:"test_cases"`
	Points        int              `json:"points"`
	Language      string           `json:"language,omitempty"`
}

func viewOf(q model.Question) QuestionView {
	visible := make([]model.TestCase, 0, len(q.TestCases))
	for _, tc := range q.TestCases {
		if !tc.Hidden {
			visible = append(visible, tc)
		}
	}
	return QuestionView{
		ID:            q.ID,
		Number:        q.Number,
		Year:          q.Year,
		Title:         q.Title,
		Description:   q.Description,
		IncorrectCode: q.IncorrectCode,
		TestCases:     visible,
		Points:        q.FullWeight(),
		Language:      q.Language,
	}
}

func (s *QuestionService) ListForCohort(ctx context.Context, year int) ([]QuestionView, error) {
	questions, err := s.questions.GetQuestionsByCohort(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("QuestionService.ListForCohort: %w", err)
	}
	views := make([]QuestionView, 0, len(questions))
	for _, q := range questions {
		views = append(views, viewOf(q))
	}
	return views, nil
}

func (s *QuestionService) Get(ctx context.Context, id string) (*model.Question, error) {
	q, err := s.questions.GetQuestion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("QuestionService.Get: %w", err)
	}
	return q, nil
}

func (s *QuestionService) View(ctx context.Context, id string) (*QuestionView, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	v := viewOf(*q)
	return &v, nil
}

// Check runs the question's reference solution against its own test cases.
// A failing reference is reported in the result, not as an error.
func (s *QuestionService) Check(ctx context.Context, id string) (*harness.CheckReport, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	report, err := s.harness.Check(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("QuestionService.Check: %w", err)
	}
	return report, nil
}
