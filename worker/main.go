package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/news-provenance/internal/config"
	"github.com/DeafMist/news-provenance/internal/dedupe"
	"github.com/DeafMist/news-provenance/internal/elasticsearch"
	"github.com/DeafMist/news-provenance/internal/logger"
	"github.com/DeafMist/news-provenance/internal/models"
	"github.com/DeafMist/news-provenance/internal/processing"
	"github.com/DeafMist/news-provenance/internal/timeline"
)

const (
	titleWords   = 12
	dlqAttempts  = 5
	dlqTopicTail = "_dlq"
)

type sourceIndexer interface {
	IndexSource(ctx context.Context, doc models.SourceDocument) error
}

type dlqWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// archiver turns SourceMessages into indexed SourceDocuments.
type archiver struct {
	log        *slog.Logger
	index      sourceIndexer
	cache      *dedupe.Cache
	normalizer *timeline.Normalizer
	cfg        *config.Worker
	now        func() time.Time
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	a := &archiver{
		log:        log,
		index:      esClient,
		cache:      dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL),
		normalizer: timeline.NewNormalizer(timeline.RFC1123Parsers()...),
		cfg:        cfg,
		now:        time.Now,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqTopic := cfg.KafkaTopic + dlqTopicTail
	dlq := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       dlqTopic,
		MaxAttempts: 3,
	})
	defer dlq.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := a.process(ctx, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
			if !sendToDLQ(ctx, log, dlq, msg, err, time.Second) {
				if ctx.Err() != nil {
					return
				}
				// left uncommitted so it is redelivered after a restart
				log.Error("DLQ write exhausted retries",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// sendToDLQ writes msg with its failure context, backing off exponentially
// from baseBackoff. It reports whether the write succeeded.
func sendToDLQ(ctx context.Context, log *slog.Logger, w dlqWriter, msg kafka.Message, cause error, baseBackoff time.Duration) bool {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := 0; attempt < dlqAttempts; attempt++ {
		err := w.WriteMessages(ctx, dlqMsg)
		if err == nil {
			log.Info("message sent to DLQ",
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		backoff := baseBackoff << uint(attempt)
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}
	return false
}

// process indexes one archived search result. Duplicates are skipped without
// error.
func (a *archiver) process(ctx context.Context, msg kafka.Message) error {
	var payload models.SourceMessage
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return fmt.Errorf("decode source message: %w", err)
	}

	doc, err := a.document(payload)
	if err != nil {
		return err
	}

	if a.cache.IsSeen(doc.ID) {
		a.log.Debug("duplicate source", slog.String("id", doc.ID))
		return nil
	}

	if err := a.index.IndexSource(ctx, doc); err != nil {
		return err
	}

	a.cache.MarkSeen(doc.ID)
	a.log.Info("indexed source",
		slog.String("id", doc.ID),
		slog.String("task_id", doc.TaskID),
		slog.String("title", doc.Title),
	)
	return nil
}

func (a *archiver) document(payload models.SourceMessage) (models.SourceDocument, error) {
	r := payload.Result
	title := strings.TrimSpace(r.Title)
	content := strings.TrimSpace(r.Content)
	url := strings.TrimSpace(r.URL)
	if title == "" && content == "" && url == "" {
		return models.SourceDocument{}, errors.New("empty search result")
	}

	if title == "" {
		title = processing.TitleFromText(content, titleWords)
	}

	query := strings.TrimSpace(r.Query)
	if query == "" {
		query = payload.Query
	}

	doc := models.SourceDocument{
		ID:          processing.SourceID(url, title, content),
		TaskID:      payload.TaskID,
		Query:       query,
		Title:       title,
		URL:         url,
		Content:     content,
		WebsiteName: strings.TrimSpace(r.WebsiteName),
		Keywords:    processing.ExtractKeywords(title+" "+content, a.cfg.KeywordLimit, a.cfg.KeywordMinLength),
		IndexedAt:   a.now().UTC(),
	}
	if r.Score != nil {
		doc.Score = *r.Score
	}
	if ts, ok := a.normalizer.NormalizeResult(r.PublishedDate, r.Timestamp).Time(); ok {
		doc.PublishedAt = &ts
	}
	if doc.Keywords == nil {
		doc.Keywords = []string{}
	}
	return doc, nil
}
