package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"codenvibe/internal/domain/model"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisherEncodesWithoutCode(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	err := p.PublishSubmission(context.Background(), model.SubmissionRecord{
		ID: "s1", TeamID: "t1", QuestionID: "q1", Year: 2, Code: "print('secret')",
		PassedCount: 3, TotalCount: 5, ScoreDelta: 60, NewCumulativeScore: 60,
		Status: model.StatusWrong, CreatedAt: created,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, []byte("t1"), msg.Key)
	assert.NotContains(t, string(msg.Value), "secret")

	var ev SubmissionEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, "s1", ev.SubmissionID)
	assert.Equal(t, 60, ev.ScoreDelta)
	assert.Equal(t, "wrong", ev.Status)
	assert.Equal(t, CodeDigest("print('secret')"), ev.CodeDigest)
	assert.Len(t, ev.CodeDigest, 64)
}

func TestCodeDigest(t *testing.T) {
	assert.Equal(t, CodeDigest("x = 1\n"), CodeDigest("x = 1\n"))
	assert.NotEqual(t, CodeDigest("x = 1\n"), CodeDigest("x = 2\n"))
	assert.Empty(t, CodeDigest(""))
}

func TestKafkaPublisherWrapsWriterError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker down")}}
	err := p.PublishSubmission(context.Background(), model.SubmissionRecord{ID: "s9"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s9")
}
