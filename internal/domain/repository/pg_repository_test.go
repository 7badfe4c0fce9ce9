package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"codenvibe/internal/common"
	"codenvibe/internal/domain/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*pgScoreRepository, *pgSubmissionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	submissions := &pgSubmissionRepository{db: db}
	return &pgScoreRepository{db: db, submissions: submissions}, submissions, mock
}

func scoredState(version int64, score int, passed int) *model.TeamScoreState {
	s := model.NewTeamScoreState("team-1", 1)
	s.CumulativeScore = score
	s.BestEarned["q1"] = score
	s.BestPassed["q1"] = passed
	if passed == 5 {
		s.SolvedQuestionIDs["q1"] = true
	}
	s.ScoreReachedAt = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s.Version = version
	return s
}

func ledgerRecord(id string) *model.SubmissionRecord {
	return &model.SubmissionRecord{
		ID: id, TeamID: "team-1", QuestionID: "q1", Year: 1, Code: "print(1)",
		Results:     []model.TestResult{{TestCaseIndex: 0, Passed: true}},
		PassedCount: 1, TotalCount: 1, Status: model.StatusAccepted,
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestPgApplySubmissionFirstWriteInsertsState(t *testing.T) {
	scores, _, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (team_id) DO NOTHING")).
		WithArgs("team-1", 1, 60, `[]`, `{"q1":60}`, `{"q1":3}`, sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submissions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := scores.ApplySubmission(context.Background(), ledgerRecord("s1"), scoredState(1, 60, 3), 0)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgApplySubmissionUpdatesAtExpectedVersion(t *testing.T) {
	scores, _, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE team_id = $1 AND version = $8")).
		WithArgs("team-1", 100, `["q1"]`, `{"q1":100}`, `{"q1":5}`, sqlmock.AnyArg(), int64(2), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submissions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := scores.ApplySubmission(context.Background(), ledgerRecord("s2"), scoredState(2, 100, 5), 1)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgApplySubmissionStaleVersionAppendsNothing(t *testing.T) {
	tests := []struct {
		name     string
		expected int64
		fragment string
	}{
		{name: "stale update", expected: 1, fragment: "UPDATE team_scores SET"},
		{name: "lost first insert", expected: 0, fragment: "ON CONFLICT (team_id) DO NOTHING"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores, _, mock := newMockDB(t)

			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta(tt.fragment)).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectRollback()

			err := scores.ApplySubmission(context.Background(), ledgerRecord("s3"), scoredState(tt.expected+1, 100, 5), tt.expected)
			require.ErrorIs(t, err, common.ErrConcurrentUpdate)
			assert.NoError(t, mock.ExpectationsWereMet(), "no ledger insert may follow a failed version check")
		})
	}
}

func TestPgApplySubmissionRollsBackWhenAppendFails(t *testing.T) {
	scores, _, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE team_scores SET")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submissions")).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := scores.ApplySubmission(context.Background(), ledgerRecord("s1"), scoredState(2, 100, 5), 1)
	require.ErrorIs(t, err, common.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var scoreRowColumns = []string{
	"team_id", "year", "cumulative_score", "solved_question_ids", "best_earned", "best_passed", "score_reached_at", "version",
}

func TestPgGetTeamScoreDecodesJSONB(t *testing.T) {
	scores, _, mock := newMockDB(t)
	reached := time.Date(2025, 3, 1, 10, 5, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM team_scores WHERE team_id = $1")).
		WithArgs("team-1").
		WillReturnRows(sqlmock.NewRows(scoreRowColumns).
			AddRow("team-1", int64(1), int64(140), []byte(`["q1","q2"]`), []byte(`{"q1":100,"q2":40}`), []byte(`{"q1":5,"q2":2}`), reached, int64(7)))

	got, err := scores.GetTeamScore(context.Background(), "team-1")
	require.NoError(t, err)
	assert.Equal(t, 140, got.CumulativeScore)
	assert.True(t, got.IsSolved("q1"))
	assert.Equal(t, 2, got.SolvedCount())
	assert.Equal(t, 40, got.BestEarned["q2"])
	assert.Equal(t, 2, got.BestPassed["q2"])
	assert.True(t, reached.Equal(got.ScoreReachedAt))
	assert.Equal(t, int64(7), got.Version)
}

func TestPgGetTeamScoreNullJSONAndMissingRow(t *testing.T) {
	scores, _, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM team_scores WHERE team_id = $1")).
		WithArgs("team-1").
		WillReturnRows(sqlmock.NewRows(scoreRowColumns).
			AddRow("team-1", int64(1), int64(0), []byte(`[]`), []byte(`null`), []byte(`null`), nil, int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM team_scores WHERE team_id = $1")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(scoreRowColumns))

	got, err := scores.GetTeamScore(context.Background(), "team-1")
	require.NoError(t, err)
	assert.NotNil(t, got.BestEarned)
	assert.NotNil(t, got.BestPassed)
	assert.True(t, got.ScoreReachedAt.IsZero())

	_, err = scores.GetTeamScore(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var submissionRowColumns = []string{
	"id", "team_id", "question_id", "year", "code", "results", "passed_count", "total_count",
	"score_delta", "new_cumulative_score", "status", "created_at",
}

func TestPgListByTeamAndQuestionIsOrderedByCreation(t *testing.T) {
	_, submissions, mock := newMockDB(t)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE team_id = $1 AND question_id = $2 ORDER BY created_at, id")).
		WithArgs("team-1", "q1").
		WillReturnRows(sqlmock.NewRows(submissionRowColumns).
			AddRow("early", "team-1", "q1", int64(1), "x", []byte(`[{"testCaseIndex":0,"passed":false}]`), int64(0), int64(1), int64(0), int64(0), "wrong", base).
			AddRow("late", "team-1", "q1", int64(1), "y", []byte(`[{"testCaseIndex":0,"passed":true}]`), int64(1), int64(1), int64(100), int64(100), "accepted", base.Add(time.Minute)))

	records, err := submissions.ListByTeamAndQuestion(context.Background(), "team-1", "q1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "early", records[0].ID)
	assert.Equal(t, model.StatusWrong, records[0].Status)
	assert.Equal(t, "late", records[1].ID)
	assert.True(t, records[1].Results[0].Passed)
	assert.Equal(t, 100, records[1].NewCumulativeScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgExists(t *testing.T) {
	_, submissions, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("team-1", "q1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := submissions.Exists(context.Background(), "team-1", "q1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgQuestionDecodesOrderedTestCases(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	questions := NewPgQuestionRepository(db)

	columns := []string{"id", "number", "year", "title", "description", "correct_code", "incorrect_code",
		"test_cases", "points", "time_limit_ms", "language", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM questions WHERE year = $1 ORDER BY number, id")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("q1", int64(1), int64(2), "Sum", "", "ok", "bug",
				[]byte(`[{"input":"1 2","expectedOutput":"3"},{"input":"5 5","expectedOutput":"10","isHidden":true,"weight":40}]`),
				int64(100), int64(1500), "python", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM questions WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(columns))

	got, err := questions.GetQuestionsByCohort(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].TestCases, 2)
	assert.Equal(t, "3", got[0].TestCases[0].ExpectedOutput)
	assert.True(t, got[0].TestCases[1].Hidden)
	assert.Equal(t, 40, got[0].TestCases[1].Weight)
	assert.Equal(t, 1500*time.Millisecond, got[0].TimeLimit())

	_, err = questions.GetQuestion(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgTeamCohorts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	teams := NewPgTeamRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT year FROM teams ORDER BY year")).
		WillReturnRows(sqlmock.NewRows([]string{"year"}).AddRow(int64(1)).AddRow(int64(3)))

	years, err := teams.ListCohorts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, years)
	assert.NoError(t, mock.ExpectationsWereMet())
}
