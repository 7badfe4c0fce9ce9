// Package harness judges code against a question's ordered test cases.
package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"codenvibe/internal/common"
	"codenvibe/internal/domain/model"
	"codenvibe/internal/judge/runner"
	"codenvibe/internal/platform/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Harness struct {
	runners     *runner.Registry
	parallelism int
}

func New(runners *runner.Registry, parallelism int) *Harness {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Harness{runners: runners, parallelism: parallelism}
}

type Options struct {
	Language  string
	TimeLimit time.Duration
}

func OptionsFor(q *model.Question) Options {
	return Options{Language: q.Language, TimeLimit: q.TimeLimit()}
}

// Evaluate runs every test case, even after failures, and returns exactly one
// result per case in input order. Execution failures are folded into the
// results; the error return is reserved for a misconfigured question.
func (h *Harness) Evaluate(ctx context.Context, code string, testCases []model.TestCase, opts Options) ([]model.TestResult, error) {
	if len(testCases) == 0 {
		return nil, fmt.Errorf("harness.Evaluate: no test cases: %w", common.ErrQuestionIntegrity)
	}
	rn, err := h.runners.Resolve(opts.Language)
	if err != nil {
		return nil, fmt.Errorf("harness.Evaluate: %w", err)
	}

	results := make([]model.TestResult, len(testCases))
	var g errgroup.Group
	g.SetLimit(h.parallelism)
	for i, tc := range testCases {
		g.Go(func() error {
			outcome := rn.Run(ctx, code, tc.Input, opts.TimeLimit)
			results[i] = judge(i, tc, outcome)
			return nil
		})
	}
	_ = g.Wait()

	logger.Debug(ctx, "evaluation finished",
		zap.String("component", "harness"),
		zap.Int("total", len(results)),
		zap.Int("passed", model.CountPassed(results)))
	return results, nil
}

func judge(index int, tc model.TestCase, outcome runner.Outcome) model.TestResult {
	res := model.TestResult{
		TestCaseIndex:  index,
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		ActualOutput:   outcome.Output,
		Hidden:         tc.Hidden,
	}
	if err := outcome.Err(); err != nil {
		res.Error = err.Error()
		return res
	}
	res.Passed = Normalize(outcome.Output) == Normalize(tc.ExpectedOutput)
	return res
}

// Normalize makes output comparison insensitive to line endings, trailing
// spaces on a line and trailing blank lines. Everything else must match.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// CheckReport is the admin view of running the reference solution.
type CheckReport struct {
	Passed           int                `json:"passed"`
	Total            int                `json:"total"`
	Results          []model.TestResult `json:"results"`
	IntegrityWarning string             `json:"integrityWarning,omitempty"`
}

// Healthy reports whether the reference solution passed every case.
func (r *CheckReport) Healthy() bool {
	return r.IntegrityWarning == ""
}

// Check runs the question's reference solution. A reference that fails its
// own tests is reported as an integrity warning on the report, not an error.
func (h *Harness) Check(ctx context.Context, q *model.Question) (*CheckReport, error) {
	if q.CorrectCode == "" {
		return &CheckReport{
			Total:            len(q.TestCases),
			Results:          []model.TestResult{},
			IntegrityWarning: fmt.Sprintf("%v: question %s has no reference solution", common.ErrQuestionIntegrity, q.ID),
		}, nil
	}
	results, err := h.Evaluate(ctx, q.CorrectCode, q.TestCases, OptionsFor(q))
	if err != nil {
		return nil, err
	}
	report := &CheckReport{
		Passed:  model.CountPassed(results),
		Total:   len(results),
		Results: results,
	}
	if report.Passed != report.Total {
		report.IntegrityWarning = fmt.Sprintf("%v: reference solution passed %d of %d test cases",
			common.ErrQuestionIntegrity, report.Passed, report.Total)
		logger.Warn(ctx, "reference solution fails its own tests",
			zap.String("component", "harness"),
			zap.String("question_id", q.ID),
			zap.Int("passed", report.Passed),
			zap.Int("total", report.Total))
	}
	return report, nil
}

// Redact strips inputs, expected and actual output, and diagnostics from
// hidden cases before results go back to a participant.
func Redact(results []model.TestResult) []model.TestResult {
	out := make([]model.TestResult, len(results))
	for i, r := range results {
		out[i] = r
		if !r.Hidden {
			continue
		}
		out[i].Input = ""
		out[i].ExpectedOutput = ""
		out[i].ActualOutput = ""
		if r.Error != "" {
			out[i].Error = redactedError(r.Error)
		}
	}
	return out
}

func redactedError(msg string) string {
	if strings.HasPrefix(msg, common.ErrExecutionTimeout.Error()) {
		return common.ErrExecutionTimeout.Error()
	}
	return common.ErrExecutionRuntime.Error()
}
