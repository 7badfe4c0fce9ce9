package model

import (
	"fmt"
	"time"

	"codenvibe/internal/common"
)

const DefaultQuestionPoints = 100

type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	Hidden         bool   `json:"isHidden"`
	// Weight is the partial credit for passing this case alone. Questions
	// where every weight is zero are scored all-or-nothing.
	Weight int `json:"weight,omitempty"`
}

type Question struct {
	ID            string     `json:"_id"`
	Number        int        `json:"number"`
	Year          int        `json:"year"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	CorrectCode   string     `json:"correct_code,omitempty"`
	IncorrectCode string     `json:"incorrect_code"`
	TestCases     []TestCase `json:"test_cases"`
	Points        int        `json:"points"`
	TimeLimitMs   int        `json:"timeLimit,omitempty"`
	Language      string     `json:"language,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// FullWeight is the credit for passing every test case.
func (q *Question) FullWeight() int {
	if q.Points > 0 {
		return q.Points
	}
	return DefaultQuestionPoints
}

func (q *Question) HasPartialWeights() bool {
	for _, tc := range q.TestCases {
		if tc.Weight > 0 {
			return true
		}
	}
	return false
}

func (q *Question) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitMs) * time.Millisecond
}

func (q *Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("question id is required: %w", common.ErrValidation)
	}
	if len(q.TestCases) == 0 {
		return fmt.Errorf("question %s has no test cases: %w", q.ID, common.ErrQuestionIntegrity)
	}
	for i, tc := range q.TestCases {
		if tc.Weight < 0 {
			return fmt.Errorf("question %s test case %d has negative weight: %w", q.ID, i, common.ErrValidation)
		}
	}
	return nil
}
