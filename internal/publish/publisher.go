// Package publish streams the cleaned log into a Kafka topic, resuming from a
// persisted line offset.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/issue-harvester/internal/jsonl"
	"github.com/DeafMist/issue-harvester/internal/state"
)

// Partition is the checkpoint entry holding the number of cleaned log lines
// already published.
const Partition = "cleaned-log"

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter creates a writer that keys messages by issue id.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:     brokers,
		Topic:       topic,
		Balancer:    &kafka.Hash{},
		MaxAttempts: 3,
	})
}

// Stats counts published and skipped lines of one run.
type Stats struct {
	StartLine int64
	Published int
	Skipped   int
	Batches   int
}

// Publisher copies cleaned records to a MessageWriter.
type Publisher struct {
	w         MessageWriter
	store     *state.CheckpointStore
	batchSize int
	log       *slog.Logger
}

// New creates a Publisher. store must track Partition.
func New(w MessageWriter, store *state.CheckpointStore, batchSize int, logger *slog.Logger) *Publisher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Publisher{w: w, store: store, batchSize: batchSize, log: logger}
}

type envelope struct {
	IssueID string `json:"issue_id"`
}

// Run publishes every line of in past the checkpointed offset. The offset is
// saved after each successful batch, so a failed run repeats at most the
// batch in flight.
func (p *Publisher) Run(ctx context.Context, in io.Reader) (Stats, error) {
	cp := p.store.Load()
	start := cp.Offset(Partition)
	stats := Stats{StartLine: start}

	var (
		batch   []kafka.Message
		pending int
	)
	flush := func() error {
		if len(batch) > 0 {
			if err := p.w.WriteMessages(ctx, batch...); err != nil {
				return fmt.Errorf("write %d messages: %w", len(batch), err)
			}
			stats.Published += len(batch)
			stats.Batches++
		}
		if pending == 0 {
			return nil
		}
		offset := cp.Advance(Partition, pending)
		if err := p.store.Save(cp); err != nil {
			return err
		}
		p.log.Debug("publish checkpoint", slog.Int64("line", offset), slog.Int("messages", len(batch)))
		batch = batch[:0]
		pending = 0
		return nil
	}

	r := jsonl.NewReader(in)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		line, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read cleaned log: %w", err)
		}
		if int64(r.Line()) <= start {
			continue
		}
		pending++

		if len(line) == 0 {
			continue
		}
		var env envelope
		if err := json.Unmarshal(line, &env); err != nil || env.IssueID == "" {
			stats.Skipped++
			p.log.Warn("skipping unpublishable line", slog.Int("line", r.Line()))
			continue
		}

		batch = append(batch, kafka.Message{
			Key:   []byte(env.IssueID),
			Value: append([]byte(nil), line...),
		})
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}

	p.log.Info("publish finished",
		slog.Int64("from_line", start),
		slog.Int64("to_line", cp.Offset(Partition)),
		slog.Int("published", stats.Published),
		slog.Int("skipped", stats.Skipped))
	return stats, nil
}
