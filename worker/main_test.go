package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/issue-harvester/internal/dedupe"
	"github.com/DeafMist/issue-harvester/internal/models"
)

type stubIndexer struct {
	docs []models.CleanedIssue
	err  error
}

func (s *stubIndexer) IndexIssue(_ context.Context, doc models.CleanedIssue) error {
	if s.err != nil {
		return s.err
	}
	s.docs = append(s.docs, doc)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func issueMessage(t *testing.T, doc models.CleanedIssue) kafka.Message {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(doc.IssueID), Value: data}
}

func TestProcessMessageIndexesIssue(t *testing.T) {
	cache := dedupe.NewCache(100, time.Hour)
	idx := &stubIndexer{}

	msg := issueMessage(t, models.CleanedIssue{
		IssueID: "HADOOP-1",
		Title:   "NPE on startup",
		Updated: "2020-01-02T00:00:00.000+0000",
		Derived: models.Derived{Classification: "Bug"},
	})

	require.NoError(t, processMessage(context.Background(), discardLogger(), idx, cache, msg))
	require.Len(t, idx.docs, 1)
	require.Equal(t, "NPE on startup", idx.docs[0].Title)

	require.NoError(t, processMessage(context.Background(), discardLogger(), idx, cache, msg))
	require.Len(t, idx.docs, 1)
}

func TestProcessMessageReindexesNewVersion(t *testing.T) {
	cache := dedupe.NewCache(100, time.Hour)
	idx := &stubIndexer{}

	first := issueMessage(t, models.CleanedIssue{IssueID: "HADOOP-1", Updated: "2020-01-02"})
	second := issueMessage(t, models.CleanedIssue{IssueID: "HADOOP-1", Updated: "2020-03-04"})

	require.NoError(t, processMessage(context.Background(), discardLogger(), idx, cache, first))
	require.NoError(t, processMessage(context.Background(), discardLogger(), idx, cache, second))
	require.Len(t, idx.docs, 2)
}

func TestProcessMessageFallsBackToKey(t *testing.T) {
	idx := &stubIndexer{}
	msg := kafka.Message{Key: []byte("SPARK-3"), Value: []byte(`{"title":"no id"}`)}

	require.NoError(t, processMessage(context.Background(), discardLogger(), idx, dedupe.NewCache(10, time.Hour), msg))
	require.Equal(t, "SPARK-3", idx.docs[0].IssueID)
}

func TestProcessMessageRejectsBadPayloads(t *testing.T) {
	cache := dedupe.NewCache(10, time.Hour)
	idx := &stubIndexer{}

	require.Error(t, processMessage(context.Background(), discardLogger(), idx, cache, kafka.Message{Value: []byte("{")}))
	require.Error(t, processMessage(context.Background(), discardLogger(), idx, cache, kafka.Message{Value: []byte(`{"title":"x"}`)}))
	require.Empty(t, idx.docs)
}

func TestProcessMessageDoesNotCacheFailures(t *testing.T) {
	cache := dedupe.NewCache(10, time.Hour)
	idx := &stubIndexer{err: errors.New("es down")}
	msg := issueMessage(t, models.CleanedIssue{IssueID: "KAFKA-9"})

	require.Error(t, processMessage(context.Background(), discardLogger(), idx, cache, msg))

	idx.err = nil
	require.NoError(t, processMessage(context.Background(), discardLogger(), idx, cache, msg))
	require.Len(t, idx.docs, 1)
}

type flakyWriter struct {
	failures int
	msgs     []kafka.Message
}

func (w *flakyWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.failures > 0 {
		w.failures--
		return errors.New("broker unavailable")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func noSleep(context.Context, int) error { return nil }

func TestSendToDLQRetriesAndAddsHeaders(t *testing.T) {
	w := &flakyWriter{failures: 2}
	msg := kafka.Message{Key: []byte("A-1"), Value: []byte("{}"), Partition: 3, Offset: 42}

	sent, err := sendToDLQ(context.Background(), discardLogger(), w, msg, errors.New("boom"), noSleep)
	require.NoError(t, err)
	require.True(t, sent)
	require.Len(t, w.msgs, 1)

	headers := map[string]string{}
	for _, h := range w.msgs[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, "3", headers["original_partition"])
	require.Equal(t, "42", headers["original_offset"])
	require.Equal(t, "boom", headers["error"])
	require.Equal(t, "A-1", string(w.msgs[0].Key))
}

func TestSendToDLQGivesUp(t *testing.T) {
	w := &flakyWriter{failures: dlqAttempts}
	sleeps := 0
	sleep := func(context.Context, int) error {
		sleeps++
		return nil
	}

	sent, err := sendToDLQ(context.Background(), discardLogger(), w, kafka.Message{}, errors.New("boom"), sleep)
	require.NoError(t, err)
	require.False(t, sent)
	require.Equal(t, dlqAttempts-1, sleeps)
}

func TestSendToDLQStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &flakyWriter{failures: 1}
	_, err := sendToDLQ(ctx, discardLogger(), w, kafka.Message{}, errors.New("boom"), sleepBackoff)
	require.ErrorIs(t, err, context.Canceled)
}
