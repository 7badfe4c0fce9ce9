package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"codenvibe/internal/common"
	"codenvibe/internal/domain/model"
	"codenvibe/internal/domain/repository"
	"codenvibe/internal/judge/harness"
	"codenvibe/internal/judge/runner"
	"codenvibe/internal/platform/lock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selectiveRunner echoes the input when the code lists it after "pass:",
// ("pass:*" passes everything) and prints garbage otherwise. A cancelled
// context turns every run into a runtime error.
type selectiveRunner struct{}

func (selectiveRunner) Run(ctx context.Context, code, input string, _ time.Duration) runner.Outcome {
	if ctx.Err() != nil {
		return runner.Outcome{Kind: runner.KindRuntimeError, Diagnostic: "cancelled"}
	}
	allowed := strings.Split(strings.TrimPrefix(code, "pass:"), ",")
	for _, a := range allowed {
		if a == "*" || a == input {
			return runner.Outcome{Kind: runner.KindOutput, Output: input + "\n"}
		}
	}
	return runner.Outcome{Kind: runner.KindOutput, Output: "nope\n"}
}

type recordingNotifier struct {
	mu    sync.Mutex
	years []int
}

func (r *recordingNotifier) Notify(year int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.years = append(r.years, year)
}

func (r *recordingNotifier) notified() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.years...)
}

type channelPublisher struct {
	ch chan model.SubmissionRecord
}

func (c *channelPublisher) PublishSubmission(_ context.Context, rec model.SubmissionRecord) error {
	c.ch <- rec
	return nil
}

func (c *channelPublisher) Close() error { return nil }

type submissionFixture struct {
	store     *repository.MemoryStore
	svc       *SubmissionService
	notifier  *recordingNotifier
	published chan model.SubmissionRecord
}

func newSubmissionFixture(t *testing.T) *submissionFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	store.PutTeam(model.Team{ID: "t1", Name: "Null Pointers", Year: 1})
	store.PutTeam(model.Team{ID: "t2", Name: "Segfaults", Year: 2})

	q := model.Question{ID: "q1", Number: 1, Year: 1, Title: "Fix the loop", Points: 100, CorrectCode: "pass:*"}
	for _, in := range []string{"1", "2", "3", "4", "5"} {
		q.TestCases = append(q.TestCases, model.TestCase{Input: in, ExpectedOutput: in, Hidden: true, Weight: 20})
	}
	store.PutQuestion(q)

	h := harness.New(runner.NewRegistry("fake", map[string]runner.Runner{"fake": selectiveRunner{}}), 2)
	notifier := &recordingNotifier{}
	pub := &channelPublisher{ch: make(chan model.SubmissionRecord, 8)}
	scoring := NewScoringService(store, lock.NewLocalLocker(), 3)
	svc := NewSubmissionService(store, store, store, h, scoring, notifier, pub)
	return &submissionFixture{store: store, svc: svc, notifier: notifier, published: pub.ch}
}

func TestSubmitPartialThenFull(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, "t1", SubmitRequest{QuestionID: "q1", Code: "pass:1,2,3"})
	require.NoError(t, err)
	assert.Equal(t, 3, first.PassedCount)
	assert.Equal(t, 5, first.TotalCount)
	assert.Equal(t, 60, first.NewScore)
	assert.Equal(t, "wrong submission", first.Status)
	require.Len(t, first.Results, 5)

	second, err := f.svc.Submit(ctx, "t1", SubmitRequest{QuestionID: "q1", Code: "pass:*"})
	require.NoError(t, err)
	assert.Equal(t, 5, second.PassedCount)
	assert.Equal(t, 100, second.NewScore)
	assert.Equal(t, 40, second.ScoreDelta)
	assert.Equal(t, "accepted", second.Status)

	third, err := f.svc.Submit(ctx, "t1", SubmitRequest{QuestionID: "q1", Code: "pass:*"})
	require.NoError(t, err)
	assert.Equal(t, 0, third.ScoreDelta)
	assert.Equal(t, 100, third.NewScore)

	assert.Equal(t, []int{1, 1}, f.notifier.notified(), "only score changes trigger a refresh")
}

func TestSubmitRedactsHiddenCases(t *testing.T) {
	f := newSubmissionFixture(t)
	resp, err := f.svc.Submit(context.Background(), "t1", SubmitRequest{QuestionID: "q1", Code: "pass:1"})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.True(t, r.Hidden)
		assert.Empty(t, r.Input)
		assert.Empty(t, r.ExpectedOutput)
		assert.Empty(t, r.ActualOutput)
	}
	assert.True(t, resp.Results[0].Passed)
	assert.False(t, resp.Results[1].Passed)
}

func TestSubmitSurvivesClientCancellation(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := f.svc.Submit(ctx, "t1", SubmitRequest{QuestionID: "q1", Code: "pass:*"})
	require.NoError(t, err)
	assert.Equal(t, 5, resp.PassedCount)

	exists, err := f.svc.Exists(context.Background(), "t1", "q1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSubmitRejectsOtherCohort(t *testing.T) {
	f := newSubmissionFixture(t)
	_, err := f.svc.Submit(context.Background(), "t2", SubmitRequest{QuestionID: "q1", Code: "pass:*"})
	require.ErrorIs(t, err, common.ErrForbidden)

	exists, err := f.svc.Exists(context.Background(), "t2", "q1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSubmitValidation(t *testing.T) {
	f := newSubmissionFixture(t)
	tests := []struct {
		name   string
		teamID string
		req    SubmitRequest
		want   error
	}{
		{name: "empty code", teamID: "t1", req: SubmitRequest{QuestionID: "q1", Code: "  "}, want: common.ErrBadRequest},
		{name: "missing question id", teamID: "t1", req: SubmitRequest{Code: "pass:*"}, want: common.ErrBadRequest},
		{name: "unknown question", teamID: "t1", req: SubmitRequest{QuestionID: "nope", Code: "pass:*"}, want: common.ErrNotFound},
		{name: "unknown team", teamID: "ghost", req: SubmitRequest{QuestionID: "q1", Code: "pass:*"}, want: common.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), tt.teamID, tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSubmitPublishesEventWithoutBlocking(t *testing.T) {
	f := newSubmissionFixture(t)
	resp, err := f.svc.Submit(context.Background(), "t1", SubmitRequest{QuestionID: "q1", Code: "pass:*"})
	require.NoError(t, err)

	select {
	case rec := <-f.published:
		assert.Equal(t, resp.SubmissionID, rec.ID)
		assert.Equal(t, "t1", rec.TeamID)
	case <-time.After(2 * time.Second):
		t.Fatal("submission event was not published")
	}
}

func TestHistoryIsOrderedAndLabelled(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()
	_, err := f.svc.Submit(ctx, "t1", SubmitRequest{QuestionID: "q1", Code: "pass:2"})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, "t1", SubmitRequest{QuestionID: "q1", Code: "pass:*"})
	require.NoError(t, err)

	logs, err := f.svc.History(ctx, "t1", "q1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "wrong submission", logs[0].Status)
	assert.Equal(t, "accepted", logs[1].Status)
	assert.Equal(t, logs[0].ID, logs[0].SubmissionID)

	all, err := f.svc.ListByQuestion(ctx, "q1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := f.svc.ListByQuestion(ctx, "q404")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

type gatedPublisher struct {
	release chan struct{}
	mu      sync.Mutex
	ids     []string
}

func (g *gatedPublisher) PublishSubmission(_ context.Context, rec model.SubmissionRecord) error {
	<-g.release
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ids = append(g.ids, rec.ID)
	return nil
}

func (g *gatedPublisher) Close() error { return nil }

func (g *gatedPublisher) published() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.ids...)
}

func TestDrainWaitsForInFlightEvents(t *testing.T) {
	f := newSubmissionFixture(t)
	pub := &gatedPublisher{release: make(chan struct{})}
	f.svc.events = pub

	resp, err := f.svc.Submit(context.Background(), "t1", SubmitRequest{QuestionID: "q1", Code: "pass:1"})
	require.NoError(t, err)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.svc.Drain(short), context.DeadlineExceeded)
	assert.Empty(t, pub.published())

	close(pub.release)
	require.NoError(t, f.svc.Drain(context.Background()))
	assert.Equal(t, []string{resp.SubmissionID}, pub.published())
}
