package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/issue-harvester/internal/models"
)

// ErrNotFound is returned by GetIssue for unknown ids.
var ErrNotFound = errors.New("issue not found")

// Client wraps go-elasticsearch with helpers for the issue index.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// SearchParams narrow the search endpoint query.
type SearchParams struct {
	Query          string
	Project        string
	Classification string
	Status         string
	Labels         []string
	From           int
	Size           int
	Sort           string
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64                 `json:"total"`
	Items []models.CleanedIssue `json:"items"`
}

// indexMapping keeps filterable fields as keywords and the prose as text.
// Timestamps stay opaque keyword strings, which still sort correctly for a
// single Jira instance.
var indexMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"issue_id":    map[string]any{"type": "keyword"},
			"project":     map[string]any{"type": "keyword"},
			"title":       map[string]any{"type": "text"},
			"description": map[string]any{"type": "text"},
			"status":      map[string]any{"type": "keyword"},
			"priority":    map[string]any{"type": "keyword"},
			"reporter":    map[string]any{"type": "keyword"},
			"assignee":    map[string]any{"type": "keyword"},
			"labels":      map[string]any{"type": "keyword"},
			"comments":    map[string]any{"type": "text"},
			"created":     map[string]any{"type": "keyword"},
			"updated":     map[string]any{"type": "keyword"},
			"derived": map[string]any{
				"properties": map[string]any{
					"summary":        map[string]any{"type": "text"},
					"classification": map[string]any{"type": "keyword"},
					"qa": map[string]any{
						"properties": map[string]any{
							"question": map[string]any{"type": "text"},
							"answer":   map[string]any{"type": "text"},
						},
					},
				},
			},
		},
	},
}

// New instantiates the Elasticsearch client.
func New(addr, index string, logger *slog.Logger) (*Client, error) {
	return NewWithConfig(elasticsearch.Config{Addresses: []string{addr}}, index, logger)
}

// NewWithConfig instantiates the client from a full go-elasticsearch config.
func NewWithConfig(cfg elasticsearch.Config, index string, logger *slog.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, index: index, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// EnsureIndex creates the issue index with its mapping unless it exists.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index failed: %s", res.Status())
	}

	payload, err := json.Marshal(indexMapping)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		// Another worker may have won the race.
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(body)))
	}

	c.log.Info("index created", slog.String("index", c.index))
	return nil
}

// IndexIssue writes an issue keyed by its id, replacing any older version.
func (c *Client) IndexIssue(ctx context.Context, doc models.CleanedIssue) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: doc.IssueID,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index doc: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index doc failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// GetIssue fetches one issue by id.
func (c *Client) GetIssue(ctx context.Context, id string) (*models.CleanedIssue, error) {
	res, err := c.es.Get(c.index, id, c.es.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get doc: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("get doc failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Found  bool                `json:"found"`
		Source models.CleanedIssue `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode get response: %w", err)
	}
	if !parsed.Found {
		return nil, ErrNotFound
	}
	return &parsed.Source, nil
}

// SearchQuery builds the request body for params.
func SearchQuery(params SearchParams) map[string]any {
	if params.Size <= 0 {
		params.Size = 20
	}
	if params.Size > 200 {
		params.Size = 200
	}
	if params.From < 0 {
		params.From = 0
	}

	must := make([]map[string]any, 0, 1)
	filters := make([]map[string]any, 0, 4)

	if params.Query != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  params.Query,
				"fields": []string{"title^2", "description", "derived.summary", "comments"},
			},
		})
	}

	terms := []struct{ field, value string }{
		{"project", params.Project},
		{"derived.classification", params.Classification},
		{"status", params.Status},
	}
	for _, t := range terms {
		if t.value != "" {
			filters = append(filters, map[string]any{
				"term": map[string]any{t.field: t.value},
			})
		}
	}

	if len(params.Labels) > 0 {
		filters = append(filters, map[string]any{
			"terms": map[string]any{"labels": params.Labels},
		})
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if len(must) == 0 && len(filters) == 0 {
		boolQuery["must"] = []map[string]any{
			{"match_all": map[string]any{}},
		}
	}

	body := map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query": map[string]any{
			"bool": boolQuery,
		},
	}

	sortField := params.Sort
	if sortField == "" {
		sortField = "updated:desc"
	}

	parts := strings.Split(sortField, ":")
	order := "desc"
	field := parts[0]
	if field == "" {
		field = "updated"
	}
	if len(parts) > 1 && parts[1] != "" {
		order = parts[1]
	}
	body["sort"] = []map[string]any{
		{field: map[string]any{"order": order}},
	}

	return body
}

// SearchIssues executes a bool query with optional filters.
func (c *Client) SearchIssues(ctx context.Context, params SearchParams) (*SearchResult, error) {
	payload, err := json.Marshal(SearchQuery(params))
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.CleanedIssue `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.CleanedIssue, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}

	return &SearchResult{
		Total: parsed.Hits.Total.Value,
		Items: items,
	}, nil
}

// Health pings Elasticsearch to ensure connectivity.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}
