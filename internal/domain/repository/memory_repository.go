package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"codenvibe/internal/common"
	"codenvibe/internal/domain/model"
)

// MemoryStore backs every repository interface with process memory. It is
// used by the "memory" store driver and by tests.
type MemoryStore struct {
	mu          sync.RWMutex
	questions   map[string]model.Question
	teams       map[string]model.Team
	scores      map[string]*model.TeamScoreState
	submissions []model.SubmissionRecord
	submitted   map[string]bool
}

var (
	_ QuestionRepository   = (*MemoryStore)(nil)
	_ TeamRepository       = (*MemoryStore)(nil)
	_ SubmissionRepository = (*MemoryStore)(nil)
	_ ScoreRepository      = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		questions: make(map[string]model.Question),
		teams:     make(map[string]model.Team),
		scores:    make(map[string]*model.TeamScoreState),
		submitted: make(map[string]bool),
	}
}

func (m *MemoryStore) PutQuestion(q model.Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.TestCases = append([]model.TestCase(nil), q.TestCases...)
	m.questions[q.ID] = q
}

func (m *MemoryStore) PutTeam(t model.Team) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[t.ID] = t
}

func (m *MemoryStore) GetQuestion(_ context.Context, id string) (*model.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	q.TestCases = append([]model.TestCase(nil), q.TestCases...)
	return &q, nil
}

func (m *MemoryStore) GetQuestionsByCohort(_ context.Context, year int) ([]model.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Question
	for _, q := range m.questions {
		if q.Year == year {
			q.TestCases = append([]model.TestCase(nil), q.TestCases...)
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetTeam(_ context.Context, id string) (*model.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &t, nil
}

func (m *MemoryStore) ListTeamsByCohort(_ context.Context, year int) ([]model.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Team
	for _, t := range m.teams {
		if t.Year == year {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ListCohorts(_ context.Context) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[int]bool)
	var years []int
	for _, t := range m.teams {
		if !seen[t.Year] {
			seen[t.Year] = true
			years = append(years, t.Year)
		}
	}
	sort.Ints(years)
	return years, nil
}

func (m *MemoryStore) Append(_ context.Context, _ *sql.Tx, rec *model.SubmissionRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(rec)
}

func (m *MemoryStore) appendLocked(rec *model.SubmissionRecord) (string, error) {
	for _, existing := range m.submissions {
		if existing.ID == rec.ID {
			return "", fmt.Errorf("submission %s already recorded: %w", rec.ID, common.ErrConflict)
		}
	}
	m.submissions = append(m.submissions, rec.Clone())
	m.submitted[rec.TeamID+"/"+rec.QuestionID] = true
	return rec.ID, nil
}

func (m *MemoryStore) Exists(_ context.Context, teamID, questionID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.submitted[teamID+"/"+questionID], nil
}

func (m *MemoryStore) ListByQuestion(_ context.Context, questionID string) ([]model.SubmissionRecord, error) {
	return m.filter(func(r model.SubmissionRecord) bool { return r.QuestionID == questionID }), nil
}

func (m *MemoryStore) ListByTeamAndQuestion(_ context.Context, teamID, questionID string) ([]model.SubmissionRecord, error) {
	return m.filter(func(r model.SubmissionRecord) bool {
		return r.TeamID == teamID && r.QuestionID == questionID
	}), nil
}

func (m *MemoryStore) filter(keep func(model.SubmissionRecord) bool) []model.SubmissionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.SubmissionRecord
	for _, r := range m.submissions {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) GetTeamScore(_ context.Context, teamID string) (*model.TeamScoreState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scores[teamID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) ListScoresByCohort(_ context.Context, year int) ([]model.TeamScoreState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.TeamScoreState
	for _, s := range m.scores {
		if s.Year == year {
			out = append(out, *s.Clone())
		}
	}
	return out, nil
}

func (m *MemoryStore) ApplySubmission(_ context.Context, rec *model.SubmissionRecord, next *model.TeamScoreState, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	if s, ok := m.scores[next.TeamID]; ok {
		current = s.Version
	}
	if current != expectedVersion {
		return fmt.Errorf("team %s at version %d, expected %d: %w", next.TeamID, current, expectedVersion, common.ErrConcurrentUpdate)
	}
	if _, err := m.appendLocked(rec); err != nil {
		return err
	}
	m.scores[next.TeamID] = next.Clone()
	return nil
}

// Seed is the JSON document accepted by LoadSeedFile.
type Seed struct {
	Teams     []model.Team     `json:"teams"`
	Questions []model.Question `json:"questions"`
}

// LoadSeedFile fills the store with teams and questions from a JSON file.
func (m *MemoryStore) LoadSeedFile(path string) (int, int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return 0, 0, fmt.Errorf("decode seed file: %w", err)
	}
	for _, q := range seed.Questions {
		if err := q.Validate(); err != nil {
			return 0, 0, fmt.Errorf("seed question: %w", err)
		}
	}
	for _, t := range seed.Teams {
		m.PutTeam(t)
	}
	for _, q := range seed.Questions {
		m.PutQuestion(q)
	}
	return len(seed.Teams), len(seed.Questions), nil
}
