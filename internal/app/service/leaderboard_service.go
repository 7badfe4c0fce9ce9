package service

import (
	"context"
	"fmt"
	"sync"

	"codenvibe/internal/domain/model"
	"codenvibe/internal/domain/repository"
	"codenvibe/internal/platform/cache"
	"codenvibe/internal/platform/logger"

	"go.uber.org/zap"
)

// LeaderboardService derives per-cohort rankings from the authoritative team
// scores. Recomputes of one cohort are serialized; different cohorts run
// independently.
type LeaderboardService struct {
	scores    repository.ScoreRepository
	teams     repository.TeamRepository
	snapshots cache.SnapshotStore

	mu      sync.Mutex
	cohorts map[int]*sync.Mutex
}

func NewLeaderboardService(scores repository.ScoreRepository, teams repository.TeamRepository, snapshots cache.SnapshotStore) *LeaderboardService {
	return &LeaderboardService{
		scores:    scores,
		teams:     teams,
		snapshots: snapshots,
		cohorts:   make(map[int]*sync.Mutex),
	}
}

func (s *LeaderboardService) cohortLock(year int) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.cohorts[year]
	if !ok {
		m = &sync.Mutex{}
		s.cohorts[year] = m
	}
	return m
}

// Recompute rebuilds the ranking for one cohort and refreshes its snapshot.
// Teams without any scored submission appear with a zero score.
func (s *LeaderboardService) Recompute(ctx context.Context, year int) ([]model.LeaderboardEntry, error) {
	m := s.cohortLock(year)
	m.Lock()
	defer m.Unlock()

	teams, err := s.teams.ListTeamsByCohort(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("LeaderboardService.Recompute: %w", err)
	}
	states, err := s.scores.ListScoresByCohort(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("LeaderboardService.Recompute: %w", err)
	}

	byTeam := make(map[string]model.TeamScoreState, len(states))
	for _, st := range states {
		byTeam[st.TeamID] = st
	}

	entries := make([]model.LeaderboardEntry, 0, len(teams))
	seen := make(map[string]bool, len(teams))
	for _, t := range teams {
		seen[t.ID] = true
		e := model.LeaderboardEntry{TeamID: t.ID, TeamName: t.Name, Year: year}
		if st, ok := byTeam[t.ID]; ok {
			e.Score = st.CumulativeScore
			e.SolvedCount = st.SolvedCount()
			e.ReachedAt = st.ScoreReachedAt
		}
		entries = append(entries, e)
	}
	// Scores for teams the team store no longer lists still count.
	for _, st := range states {
		if seen[st.TeamID] {
			continue
		}
		entries = append(entries, model.LeaderboardEntry{
			TeamID:      st.TeamID,
			TeamName:    st.TeamID,
			Score:       st.CumulativeScore,
			SolvedCount: st.SolvedCount(),
			Year:        year,
			ReachedAt:   st.ScoreReachedAt,
		})
	}
	model.RankEntries(entries)

	if err := s.snapshots.Put(ctx, year, entries); err != nil {
		logger.Warn(ctx, "failed to store leaderboard snapshot",
			zap.String("component", "leaderboard"), zap.Int("year", year), zap.Error(err))
	}
	logger.Debug(ctx, "leaderboard recomputed",
		zap.String("component", "leaderboard"), zap.Int("year", year), zap.Int("teams", len(entries)))
	return entries, nil
}

// Leaderboard serves the cached snapshot for a cohort, recomputing on a miss.
func (s *LeaderboardService) Leaderboard(ctx context.Context, year int) ([]model.LeaderboardEntry, error) {
	entries, ok, err := s.snapshots.Get(ctx, year)
	if err != nil {
		logger.Warn(ctx, "leaderboard snapshot unavailable, recomputing",
			zap.String("component", "leaderboard"), zap.Int("year", year), zap.Error(err))
	}
	if ok && err == nil {
		return entries, nil
	}
	return s.Recompute(ctx, year)
}

// AllLeaderboards concatenates every cohort's ranking, oldest cohort first.
func (s *LeaderboardService) AllLeaderboards(ctx context.Context) ([]model.LeaderboardEntry, error) {
	years, err := s.teams.ListCohorts(ctx)
	if err != nil {
		return nil, fmt.Errorf("LeaderboardService.AllLeaderboards: %w", err)
	}
	all := []model.LeaderboardEntry{}
	for _, y := range years {
		entries, err := s.Leaderboard(ctx, y)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}
