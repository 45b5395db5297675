package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/issue-harvester/internal/config"
	"github.com/DeafMist/issue-harvester/internal/elasticsearch"
	"github.com/DeafMist/issue-harvester/internal/logger"
	"github.com/DeafMist/issue-harvester/internal/models"
	"github.com/DeafMist/issue-harvester/internal/publish"
	"github.com/DeafMist/issue-harvester/internal/state"
)

type issueStore interface {
	Health(ctx context.Context) error
	SearchIssues(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
	GetIssue(ctx context.Context, id string) (*models.CleanedIssue, error)
}

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	srv := newServer(log, cfg, esClient)

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type server struct {
	log        *slog.Logger
	cfg        *config.API
	es         issueStore
	checkpoint *state.CheckpointStore
	published  *state.CheckpointStore
	seen       *state.SeenStore
}

func newServer(log *slog.Logger, cfg *config.API, es issueStore) *server {
	return &server{
		log:        log,
		cfg:        cfg,
		es:         es,
		checkpoint: state.NewCheckpointStore(cfg.CheckpointFile, nil, log),
		published:  state.NewCheckpointStore(cfg.PublishCheckpointFile, []string{publish.Partition}, log),
		seen:       state.NewSeenStore(cfg.SeenFile, log),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/issues", s.handleSearch)
	r.Get("/issues/{id}", s.handleGet)
	r.Get("/progress", s.handleProgress)
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type progressResponse struct {
	Checkpoint     state.Checkpoint `json:"checkpoint"`
	SeenHashes     int              `json:"seen_hashes"`
	PublishedLines int64            `json:"published_lines"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.es.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.SearchParams{
		Query:          strings.TrimSpace(q.Get("q")),
		Project:        strings.ToUpper(strings.TrimSpace(q.Get("project"))),
		Classification: strings.TrimSpace(q.Get("classification")),
		Status:         strings.TrimSpace(q.Get("status")),
		Labels:         parseCSV(q.Get("labels")),
		From:           clampInt(q.Get("from"), 0, 10_000),
		Size:           clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Sort:           strings.TrimSpace(q.Get("sort")),
	}

	result, err := s.es.SearchIssues(ctx, params)
	if err != nil {
		s.log.Error("search issues", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := strings.TrimSpace(chi.URLParam(r, "id"))
	issue, err := s.es.GetIssue(ctx, id)
	if errors.Is(err, elasticsearch.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "issue not found"})
		return
	}
	if err != nil {
		s.log.Error("get issue", slog.String("id", id), slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, issue)
}

func (s *server) handleProgress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, progressResponse{
		Checkpoint:     s.checkpoint.Load(),
		SeenHashes:     s.seen.Load().Len(),
		PublishedLines: s.published.Load().Offset(publish.Partition),
	})
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
