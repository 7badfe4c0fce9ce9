package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codenvibe/internal/common"
	"codenvibe/internal/domain/model"
	"codenvibe/internal/domain/repository"
	"codenvibe/internal/platform/lock"
	"codenvibe/internal/platform/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ScoringService is the only writer of TeamScoreState. Each call holds the
// team's lock for the whole read-modify-write and commits with a version
// check, retrying internally when another writer got there first.
type ScoringService struct {
	scores     repository.ScoreRepository
	locker     lock.Locker
	retryLimit int
	now        func() time.Time
}

func NewScoringService(scores repository.ScoreRepository, locker lock.Locker, retryLimit int) *ScoringService {
	if retryLimit <= 0 {
		retryLimit = 1
	}
	return &ScoringService{scores: scores, locker: locker, retryLimit: retryLimit, now: time.Now}
}

type ScoreInput struct {
	TeamID   string
	Year     int
	Question *model.Question
	Code     string
	Results  []model.TestResult
}

type ScoreOutcome struct {
	Record             *model.SubmissionRecord
	ScoreDelta         int
	NewCumulativeScore int
}

// Award is the pure scoring decision for one submission.
type Award struct {
	Earned      int
	Delta       int
	NewlySolved bool
}

// EarnedCredit is the credit a result vector is worth on its own: full weight
// when everything passes, otherwise the capped sum of passed case weights
// (zero for all-or-nothing questions).
func EarnedCredit(q *model.Question, results []model.TestResult) int {
	full := q.FullWeight()
	passed := model.CountPassed(results)
	if len(results) > 0 && passed == len(results) {
		return full
	}
	if !q.HasPartialWeights() {
		return 0
	}
	sum := 0
	for _, r := range results {
		if r.Passed && r.TestCaseIndex >= 0 && r.TestCaseIndex < len(q.TestCases) {
			sum += q.TestCases[r.TestCaseIndex].Weight
		}
	}
	if sum > full {
		sum = full
	}
	return sum
}

// ApplyAward computes the marginal credit against the team's best prior
// attempt and mutates state accordingly. The score never goes down.
func ApplyAward(state *model.TeamScoreState, q *model.Question, results []model.TestResult, at time.Time) Award {
	award := Award{Earned: EarnedCredit(q, results)}
	passed := model.CountPassed(results)

	if passed > state.BestPassed[q.ID] {
		state.BestPassed[q.ID] = passed
	}
	if state.IsSolved(q.ID) {
		return award
	}

	if best := state.BestEarned[q.ID]; award.Earned > best {
		award.Delta = award.Earned - best
		state.BestEarned[q.ID] = award.Earned
		state.CumulativeScore += award.Delta
		state.ScoreReachedAt = at
	}
	if len(results) > 0 && passed == len(results) {
		state.SolvedQuestionIDs[q.ID] = true
		award.NewlySolved = true
	}
	return award
}

func (s *ScoringService) Score(ctx context.Context, in ScoreInput) (*ScoreOutcome, error) {
	release, err := s.locker.Lock(ctx, "team:"+in.TeamID)
	if err != nil {
		return nil, fmt.Errorf("ScoringService.Score: %w", err)
	}
	defer release()

	var lastErr error
	for attempt := 1; attempt <= s.retryLimit; attempt++ {
		outcome, err := s.scoreOnce(ctx, in)
		if err == nil {
			return outcome, nil
		}
		if !errors.Is(err, common.ErrConcurrentUpdate) {
			return nil, fmt.Errorf("ScoringService.Score: %w", err)
		}
		lastErr = err
		logger.Warn(ctx, "team score changed underneath, retrying",
			zap.String("component", "scoring"),
			zap.String("team_id", in.TeamID),
			zap.Int("attempt", attempt))
	}
	// The conflict itself stays internal.
	return nil, fmt.Errorf("ScoringService.Score: giving up after %d attempts (%v): %w",
		s.retryLimit, lastErr, common.ErrServiceUnavailable)
}

func (s *ScoringService) scoreOnce(ctx context.Context, in ScoreInput) (*ScoreOutcome, error) {
	current, err := s.scores.GetTeamScore(ctx, in.TeamID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		current = model.NewTeamScoreState(in.TeamID, in.Year)
	}

	now := s.now().UTC()
	next := current.Clone()
	next.Year = in.Year
	award := ApplyAward(next, in.Question, in.Results, now)
	next.Version = current.Version + 1

	passed := model.CountPassed(in.Results)
	rec := &model.SubmissionRecord{
		ID:                 uuid.NewString(),
		TeamID:             in.TeamID,
		QuestionID:         in.Question.ID,
		Year:               in.Year,
		Code:               in.Code,
		Results:            in.Results,
		PassedCount:        passed,
		TotalCount:         len(in.Results),
		ScoreDelta:         award.Delta,
		NewCumulativeScore: next.CumulativeScore,
		Status:             model.StatusFor(passed, len(in.Results)),
		CreatedAt:          now,
	}

	if err := s.scores.ApplySubmission(ctx, rec, next, current.Version); err != nil {
		return nil, err
	}

	logger.Info(ctx, "submission scored",
		zap.String("component", "scoring"),
		zap.String("team_id", in.TeamID),
		zap.String("question_id", in.Question.ID),
		zap.Int("passed", passed),
		zap.Int("total", len(in.Results)),
		zap.Int("delta", award.Delta),
		zap.Int("score", next.CumulativeScore))

	return &ScoreOutcome{Record: rec, ScoreDelta: award.Delta, NewCumulativeScore: next.CumulativeScore}, nil
}
