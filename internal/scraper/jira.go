package scraper

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/DeafMist/issue-harvester/internal/fetch"
)

// JiraSource pages through the Jira REST search endpoint, one project per
// partition.
type JiraSource struct {
	client    *fetch.Client
	searchURL string
	fields    string
}

// NewJiraSource builds a source for the Jira instance at baseURL.
func NewJiraSource(client *fetch.Client, baseURL, searchPath string, fields []string) *JiraSource {
	return &JiraSource{
		client:    client,
		searchURL: strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(searchPath, "/"),
		fields:    strings.Join(fields, ","),
	}
}

type searchResponse struct {
	Issues []json.RawMessage `json:"issues"`
}

// FetchPage returns up to limit issues of project starting at offset.
func (j *JiraSource) FetchPage(ctx context.Context, project string, offset int64, limit int) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("jql", "project="+project)
	params.Set("startAt", strconv.FormatInt(offset, 10))
	params.Set("maxResults", strconv.Itoa(limit))
	if j.fields != "" {
		params.Set("fields", j.fields)
	}

	var resp searchResponse
	headers := map[string]string{"Accept": "application/json"}
	if err := j.client.GetJSON(ctx, j.searchURL, headers, params, &resp); err != nil {
		return nil, err
	}
	return resp.Issues, nil
}
