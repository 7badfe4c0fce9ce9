package model

import "time"

type SubmissionStatus string

const (
	StatusAccepted SubmissionStatus = "accepted"
	StatusWrong    SubmissionStatus = "wrong"
)

// DisplayLabel is the wording the participant app shows in submission logs.
func (s SubmissionStatus) DisplayLabel() string {
	if s == StatusAccepted {
		return "accepted"
	}
	return "wrong submission"
}

func StatusFor(passedCount, totalCount int) SubmissionStatus {
	if totalCount > 0 && passedCount == totalCount {
		return StatusAccepted
	}
	return StatusWrong
}

// TestResult is the verdict for one test case. Error is set when the run
// itself failed (timeout, crash, non-zero exit); Passed is then false.
type TestResult struct {
	TestCaseIndex  int    `json:"testCaseIndex"`
	Passed         bool   `json:"passed"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	ActualOutput   string `json:"actualOutput"`
	Error          string `json:"error,omitempty"`
	Hidden         bool   `json:"hidden,omitempty"`
}

func CountPassed(results []TestResult) int {
	n := 0
	for _, r := range results {
		if r.Passed {
			n++
		}
	}
	return n
}

// SubmissionRecord is a ledger entry. It is immutable once appended.
type SubmissionRecord struct {
	ID                 string           `json:"_id"`
	TeamID             string           `json:"team_id"`
	QuestionID         string           `json:"question_id"`
	Year               int              `json:"year"`
	Code               string           `json:"-"`
	Results            []TestResult     `json:"results"`
	PassedCount        int              `json:"passedCount"`
	TotalCount         int              `json:"totalCount"`
	ScoreDelta         int              `json:"scoreDelta"`
	NewCumulativeScore int              `json:"newScore"`
	Status             SubmissionStatus `json:"status"`
	CreatedAt          time.Time        `json:"created_at"`
}

func (r SubmissionRecord) Clone() SubmissionRecord {
	out := r
	out.Results = append([]TestResult(nil), r.Results...)
	return out
}
