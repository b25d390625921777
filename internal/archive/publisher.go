// Package archive publishes the search results of finished research runs to
// Kafka, where the worker picks them up for indexing.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/news-provenance/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes SourceMessages keyed by task ID.
type Publisher struct {
	writer messageWriter
	log    *slog.Logger
	now    func() time.Time
}

// NewPublisher creates a publisher for topic on brokers.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     brokers,
		Topic:       topic,
		Balancer:    &kafka.Hash{},
		MaxAttempts: 3,
	})
	return newPublisher(w, logger)
}

func newPublisher(w messageWriter, logger *slog.Logger) *Publisher {
	return &Publisher{writer: w, log: logger, now: time.Now}
}

// PublishState sends one message per search result in state. It returns the
// number of messages written.
func (p *Publisher) PublishState(ctx context.Context, taskID, query string, state models.ResearchState) (int, error) {
	results := state.SearchResults()
	if len(results) == 0 {
		return 0, nil
	}

	collected := p.now().UTC()
	msgs := make([]kafka.Message, 0, len(results))
	for _, r := range results {
		if r.Query == "" {
			r.Query = query
		}
		value, err := json.Marshal(models.SourceMessage{
			TaskID:      taskID,
			Query:       query,
			Result:      r,
			CollectedAt: collected,
		})
		if err != nil {
			return 0, fmt.Errorf("marshal source: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(taskID), Value: value})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("write sources: %w", err)
	}
	p.log.Info("sources published", slog.String("task_id", taskID), slog.Int("count", len(msgs)))
	return len(msgs), nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
