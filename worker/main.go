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

	"github.com/DeafMist/issue-harvester/internal/config"
	"github.com/DeafMist/issue-harvester/internal/dedupe"
	"github.com/DeafMist/issue-harvester/internal/elasticsearch"
	"github.com/DeafMist/issue-harvester/internal/logger"
	"github.com/DeafMist/issue-harvester/internal/models"
)

type issueIndexer interface {
	IndexIssue(ctx context.Context, doc models.CleanedIssue) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

const dlqAttempts = 5

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := elasticsearch.Connect(ctx, cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log, elasticsearch.ConnectOptions{})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	cache := dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)

	if err := esClient.EnsureIndex(ctx); err != nil {
		log.Error("ensure index", slog.Any("err", err))
		os.Exit(1)
	}

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

	dlqTopic := cfg.KafkaTopic + "_dlq"
	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       dlqTopic,
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

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

		if err := processMessage(ctx, log, esClient, cache, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			sent, dlqErr := sendToDLQ(ctx, log, dlqWriter, msg, err, sleepBackoff)
			if errors.Is(dlqErr, context.Canceled) {
				log.Info("context canceled during DLQ retry")
				return
			}
			// Without a DLQ copy the message stays uncommitted and is redelivered after restart.
			if !sent {
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
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

// processMessage indexes one cleaned issue. Redeliveries of the same issue
// version inside the cache window are acknowledged without indexing.
func processMessage(ctx context.Context, log *slog.Logger, idx issueIndexer, cache *dedupe.Cache, msg kafka.Message) error {
	var doc models.CleanedIssue
	if err := json.Unmarshal(msg.Value, &doc); err != nil {
		return fmt.Errorf("decode issue: %w", err)
	}

	doc.IssueID = strings.TrimSpace(doc.IssueID)
	if doc.IssueID == "" {
		doc.IssueID = strings.TrimSpace(string(msg.Key))
	}
	if doc.IssueID == "" {
		return errors.New("issue without id")
	}

	key := cacheKey(doc)
	if cache.IsSeen(key) {
		log.Debug("duplicate issue", slog.String("id", doc.IssueID))
		return nil
	}

	if err := idx.IndexIssue(ctx, doc); err != nil {
		return err
	}

	cache.MarkSeen(key)
	log.Info("indexed issue",
		slog.String("id", doc.IssueID),
		slog.String("classification", doc.Derived.Classification))
	return nil
}

func cacheKey(doc models.CleanedIssue) string {
	return doc.IssueID + "@" + doc.Updated
}

type sleeper func(ctx context.Context, attempt int) error

func sleepBackoff(ctx context.Context, attempt int) error {
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	select {
	case <-time.After(backoff):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendToDLQ writes msg with its failure context to the dead letter topic,
// retrying with exponential backoff. It reports whether the write landed.
func sendToDLQ(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message, cause error, sleep sleeper) (bool, error) {
	headers := make([]kafka.Header, 0, len(msg.Headers)+4)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
		kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
		kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
	)
	dlqMsg := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}

	for attempt := 0; attempt < dlqAttempts; attempt++ {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true, nil
		}

		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
		)
		if attempt == dlqAttempts-1 {
			break
		}
		if err := sleep(ctx, attempt); err != nil {
			return false, err
		}
	}
	return false, nil
}
