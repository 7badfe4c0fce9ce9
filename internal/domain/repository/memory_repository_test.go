package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codenvibe/internal/common"
	"codenvibe/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreApplySubmissionVersionCheck(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	state := model.NewTeamScoreState("team-1", 1)
	state.CumulativeScore = 40
	state.Version = 1
	rec := &model.SubmissionRecord{ID: "s1", TeamID: "team-1", QuestionID: "q1", CreatedAt: time.Now()}
	require.NoError(t, store.ApplySubmission(ctx, rec, state, 0))

	stale := state.Clone()
	stale.Version = 2
	err := store.ApplySubmission(ctx, &model.SubmissionRecord{ID: "s2", TeamID: "team-1", QuestionID: "q1"}, stale, 0)
	require.ErrorIs(t, err, common.ErrConcurrentUpdate)

	records, err := store.ListByTeamAndQuestion(ctx, "team-1", "q1")
	require.NoError(t, err)
	require.Len(t, records, 1, "a rejected write must not append to the ledger")

	got, err := store.GetTeamScore(ctx, "team-1")
	require.NoError(t, err)
	assert.Equal(t, 40, got.CumulativeScore)
	assert.Equal(t, int64(1), got.Version)
}

func TestMemoryStoreLedgerOrderingAndExists(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"late", "early", "other"} {
		rec := &model.SubmissionRecord{ID: id, TeamID: "team-1", QuestionID: "q1", CreatedAt: base.Add(time.Duration(2-i) * time.Minute)}
		if id == "other" {
			rec.TeamID = "team-2"
		}
		_, err := store.Append(ctx, nil, rec)
		require.NoError(t, err)
	}

	_, err := store.Append(ctx, nil, &model.SubmissionRecord{ID: "late", TeamID: "team-1", QuestionID: "q1"})
	require.ErrorIs(t, err, common.ErrConflict)

	records, err := store.ListByTeamAndQuestion(ctx, "team-1", "q1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "early", records[0].ID)
	assert.Equal(t, "late", records[1].ID)

	all, err := store.ListByQuestion(ctx, "q1")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	exists, err := store.Exists(ctx, "team-2", "q1")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = store.Exists(ctx, "team-2", "q2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.PutQuestion(model.Question{ID: "q1", TestCases: []model.TestCase{{Input: "1", ExpectedOutput: "1"}}})

	q, err := store.GetQuestion(ctx, "q1")
	require.NoError(t, err)
	q.TestCases[0].ExpectedOutput = "mutated"

	again, err := store.GetQuestion(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "1", again.TestCases[0].ExpectedOutput)
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	doc := `{
	  "teams": [{"_id": "t1", "team_name": "Null Pointers", "year": 2}],
	  "questions": [{"_id": "q1", "year": 2, "title": "Sum", "test_cases": [{"input": "1 2", "expectedOutput": "3"}]}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	store := NewMemoryStore()
	teams, questions, err := store.LoadSeedFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, teams)
	assert.Equal(t, 1, questions)

	years, err := store.ListCohorts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2}, years)
}
