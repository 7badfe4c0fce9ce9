package events

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"codenvibe/internal/domain/model"

	"github.com/segmentio/kafka-go"
	"golang.org/x/crypto/blake2b"
)

// SubmissionPublisher streams appended ledger records to downstream
// consumers. Publishing is best effort and never affects judging.
type SubmissionPublisher interface {
	PublishSubmission(ctx context.Context, rec model.SubmissionRecord) error
	Close() error
}

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SubmissionEvent is the wire form. Source code is never published, only its
// digest, so consumers can spot identical resubmissions.
type SubmissionEvent struct {
	SubmissionID       string    `json:"submission_id"`
	TeamID             string    `json:"team_id"`
	QuestionID         string    `json:"question_id"`
	Year               int       `json:"year"`
	PassedCount        int       `json:"passed_count"`
	TotalCount         int       `json:"total_count"`
	ScoreDelta         int       `json:"score_delta"`
	NewCumulativeScore int       `json:"new_cumulative_score"`
	Status             string    `json:"status"`
	CodeDigest         string    `json:"code_digest,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// CodeDigest is the hex BLAKE2b-256 of the submitted source.
func CodeDigest(code string) string {
	if code == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

type KafkaPublisher struct {
	writer kafkaMessageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (p *KafkaPublisher) PublishSubmission(ctx context.Context, rec model.SubmissionRecord) error {
	payload, err := json.Marshal(SubmissionEvent{
		SubmissionID:       rec.ID,
		TeamID:             rec.TeamID,
		QuestionID:         rec.QuestionID,
		Year:               rec.Year,
		PassedCount:        rec.PassedCount,
		TotalCount:         rec.TotalCount,
		ScoreDelta:         rec.ScoreDelta,
		NewCumulativeScore: rec.NewCumulativeScore,
		Status:             string(rec.Status),
		CodeDigest:         CodeDigest(rec.Code),
		CreatedAt:          rec.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode submission event: %w", err)
	}
	// Keyed by team so one team's events stay ordered within a partition.
	msg := kafka.Message{Key: []byte(rec.TeamID), Value: payload, Time: rec.CreatedAt}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish submission %s: %w", rec.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type NoopPublisher struct{}

func (NoopPublisher) PublishSubmission(context.Context, model.SubmissionRecord) error { return nil }
func (NoopPublisher) Close() error                                                    { return nil }
