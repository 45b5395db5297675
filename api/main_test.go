package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/issue-harvester/internal/config"
	"github.com/DeafMist/issue-harvester/internal/elasticsearch"
	"github.com/DeafMist/issue-harvester/internal/models"
)

type stubStore struct {
	healthErr error
	params    elasticsearch.SearchParams
	issues    map[string]models.CleanedIssue
}

func (s *stubStore) Health(context.Context) error { return s.healthErr }

func (s *stubStore) SearchIssues(_ context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error) {
	s.params = params
	res := &elasticsearch.SearchResult{}
	for _, issue := range s.issues {
		res.Items = append(res.Items, issue)
	}
	res.Total = int64(len(res.Items))
	return res, nil
}

func (s *stubStore) GetIssue(_ context.Context, id string) (*models.CleanedIssue, error) {
	issue, ok := s.issues[id]
	if !ok {
		return nil, elasticsearch.ErrNotFound
	}
	return &issue, nil
}

func testServer(t *testing.T, store *stubStore) (*httptest.Server, *config.API) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.API{
		DefaultPage: 20,
		MaxPage:     50,
		Paths: config.Paths{
			CheckpointFile:        filepath.Join(dir, "last_checkpoint.json"),
			SeenFile:              filepath.Join(dir, "seen_hashes.json"),
			PublishCheckpointFile: filepath.Join(dir, "publish_checkpoint.json"),
		},
	}
	srv := httptest.NewServer(newServer(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg, store).routes())
	t.Cleanup(srv.Close)
	return srv, cfg
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	return res.StatusCode
}

func TestHandleSearchPassesFilters(t *testing.T) {
	store := &stubStore{issues: map[string]models.CleanedIssue{"SPARK-1": {IssueID: "SPARK-1"}}}
	srv, _ := testServer(t, store)

	var res elasticsearch.SearchResult
	status := getJSON(t, srv.URL+"/issues?q=crash&project=spark&classification=Bug&size=500&from=10&labels=a,%20b", &res)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, int64(1), res.Total)

	require.Equal(t, "crash", store.params.Query)
	require.Equal(t, "SPARK", store.params.Project)
	require.Equal(t, "Bug", store.params.Classification)
	require.Equal(t, 50, store.params.Size)
	require.Equal(t, 10, store.params.From)
	require.Equal(t, []string{"a", "b"}, store.params.Labels)
}

func TestHandleGet(t *testing.T) {
	store := &stubStore{issues: map[string]models.CleanedIssue{"KAFKA-5": {IssueID: "KAFKA-5", Title: "Lag"}}}
	srv, _ := testServer(t, store)

	var issue models.CleanedIssue
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/issues/KAFKA-5", &issue))
	require.Equal(t, "Lag", issue.Title)

	var errRes errorResponse
	require.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/issues/KAFKA-6", &errRes))
}

func TestHandleHealth(t *testing.T) {
	store := &stubStore{}
	srv, _ := testServer(t, store)

	var body map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	require.Equal(t, "ok", body["status"])

	store.healthErr = errors.New("red")
	var errRes errorResponse
	require.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/health", &errRes))
	require.Equal(t, "red", errRes.Error)
}

func TestHandleProgress(t *testing.T) {
	srv, cfg := testServer(t, &stubStore{})
	require.NoError(t, os.WriteFile(cfg.CheckpointFile, []byte(`{"HADOOP":100,"SPARK":50}`), 0o644))
	require.NoError(t, os.WriteFile(cfg.SeenFile, []byte(`["a","b","c"]`), 0o644))
	require.NoError(t, os.WriteFile(cfg.PublishCheckpointFile, []byte(`{"cleaned-log":3}`), 0o644))

	var res progressResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/progress", &res))
	require.Equal(t, int64(100), res.Checkpoint.Offset("HADOOP"))
	require.Equal(t, int64(50), res.Checkpoint.Offset("SPARK"))
	require.Equal(t, 3, res.SeenHashes)
	require.Equal(t, int64(3), res.PublishedLines)
}
