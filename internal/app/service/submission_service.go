package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"codenvibe/internal/common"
	"codenvibe/internal/domain/model"
	"codenvibe/internal/domain/repository"
	"codenvibe/internal/judge/harness"
	"codenvibe/internal/platform/events"
	"codenvibe/internal/platform/logger"

	"go.uber.org/zap"
)

const eventPublishTimeout = 5 * time.Second

// LeaderboardNotifier is told about cohorts whose ranking may have changed.
type LeaderboardNotifier interface {
	Notify(year int)
}

type SubmissionService struct {
	questions   repository.QuestionRepository
	teams       repository.TeamRepository
	submissions repository.SubmissionRepository
	harness     *harness.Harness
	scoring     *ScoringService
	notifier    LeaderboardNotifier
	events      events.SubmissionPublisher
	inflight    sync.WaitGroup
}

func NewSubmissionService(
	questions repository.QuestionRepository,
	teams repository.TeamRepository,
	submissions repository.SubmissionRepository,
	h *harness.Harness,
	scoring *ScoringService,
	notifier LeaderboardNotifier,
	publisher events.SubmissionPublisher,
) *SubmissionService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &SubmissionService{
		questions:   questions,
		teams:       teams,
		submissions: submissions,
		harness:     h,
		scoring:     scoring,
		notifier:    notifier,
		events:      publisher,
	}
}

type SubmitRequest struct {
	Code       string `json:"code"`
	QuestionID string `json:"questionid"`
}

type SubmitResponse struct {
	SubmissionID string             `json:"submissionid"`
	PassedCount  int                `json:"passedCount"`
	TotalCount   int                `json:"totalCount"`
	ScoreDelta   int                `json:"scoreDelta"`
	NewScore     int                `json:"newScore"`
	Status       string             `json:"status"`
	Results      []model.TestResult `json:"results"`
}

// Submit judges code against a question and records the attempt. Failing
// tests are a normal response; only infrastructure failures return an error.
// The judging run is detached from the caller's cancellation so a client
// that goes away still gets its attempt persisted.
func (s *SubmissionService) Submit(ctx context.Context, teamID string, req SubmitRequest) (*SubmitResponse, error) {
	if strings.TrimSpace(req.Code) == "" || req.QuestionID == "" {
		return nil, common.Errorf("code and questionid are required: %w", common.ErrBadRequest)
	}
	ctx = context.WithoutCancel(ctx)

	team, err := s.teams.GetTeam(ctx, teamID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.Errorf("team %s is not registered: %w", teamID, common.ErrUnauthorized)
		}
		return nil, fmt.Errorf("SubmissionService.Submit: %w", err)
	}
	q, err := s.questions.GetQuestion(ctx, req.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("SubmissionService.Submit: %w", err)
	}
	if q.Year != team.Year {
		return nil, common.Errorf("question belongs to another cohort: %w", common.ErrForbidden)
	}

	results, err := s.harness.Evaluate(ctx, req.Code, q.TestCases, harness.OptionsFor(q))
	if err != nil {
		return nil, fmt.Errorf("SubmissionService.Submit: %w", err)
	}

	outcome, err := s.scoring.Score(ctx, ScoreInput{
		TeamID:   team.ID,
		Year:     team.Year,
		Question: q,
		Code:     req.Code,
		Results:  results,
	})
	if err != nil {
		logger.Error(ctx, "failed to record submission",
			zap.String("component", "submission"),
			zap.String("team_id", team.ID),
			zap.String("question_id", q.ID),
			zap.Error(err))
		return nil, err
	}

	if outcome.ScoreDelta > 0 {
		s.notifier.Notify(team.Year)
	}
	s.inflight.Add(1)
	go func(rec model.SubmissionRecord) {
		defer s.inflight.Done()
		s.publish(rec)
	}(*outcome.Record)

	rec := outcome.Record
	return &SubmitResponse{
		SubmissionID: rec.ID,
		PassedCount:  rec.PassedCount,
		TotalCount:   rec.TotalCount,
		ScoreDelta:   outcome.ScoreDelta,
		NewScore:     outcome.NewCumulativeScore,
		Status:       rec.Status.DisplayLabel(),
		Results:      harness.Redact(results),
	}, nil
}

func (s *SubmissionService) publish(rec model.SubmissionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), eventPublishTimeout)
	defer cancel()
	if err := s.events.PublishSubmission(ctx, rec); err != nil {
		logger.Warn(ctx, "failed to publish submission event",
			zap.String("component", "submission"),
			zap.String("submission_id", rec.ID),
			zap.Error(err))
	}
}

// Drain waits for submission events still being published, or for ctx to end.
// Call it after the HTTP server has stopped and before closing the publisher.
func (s *SubmissionService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("SubmissionService.Drain: %w", ctx.Err())
	}
}

type SubmissionLog struct {
	ID           string    `json:"_id"`
	SubmissionID string    `json:"submissionid"`
	CreatedAt    time.Time `json:"created_at"`
	Status       string    `json:"status"`
	PassedCount  int       `json:"passedCount"`
	TotalCount   int       `json:"totalCount"`
	ScoreDelta   int       `json:"scoreDelta"`
}

// History lists the calling team's attempts at one question, oldest first.
func (s *SubmissionService) History(ctx context.Context, teamID, questionID string) ([]SubmissionLog, error) {
	records, err := s.submissions.ListByTeamAndQuestion(ctx, teamID, questionID)
	if err != nil {
		return nil, fmt.Errorf("SubmissionService.History: %w", err)
	}
	logs := make([]SubmissionLog, 0, len(records))
	for _, r := range records {
		logs = append(logs, SubmissionLog{
			ID:           r.ID,
			SubmissionID: r.ID,
			CreatedAt:    r.CreatedAt,
			Status:       r.Status.DisplayLabel(),
			PassedCount:  r.PassedCount,
			TotalCount:   r.TotalCount,
			ScoreDelta:   r.ScoreDelta,
		})
	}
	return logs, nil
}

func (s *SubmissionService) Exists(ctx context.Context, teamID, questionID string) (bool, error) {
	ok, err := s.submissions.Exists(ctx, teamID, questionID)
	if err != nil {
		return false, fmt.Errorf("SubmissionService.Exists: %w", err)
	}
	return ok, nil
}

// ListByQuestion is the admin view of every attempt at a question.
func (s *SubmissionService) ListByQuestion(ctx context.Context, questionID string) ([]model.SubmissionRecord, error) {
	records, err := s.submissions.ListByQuestion(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("SubmissionService.ListByQuestion: %w", err)
	}
	if records == nil {
		records = []model.SubmissionRecord{}
	}
	return records, nil
}
