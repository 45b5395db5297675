package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/DeafMist/issue-harvester/internal/models"
	"github.com/DeafMist/issue-harvester/internal/processing"
)

// ErrMissingKey is returned by Clean for records without an issue key.
var ErrMissingKey = errors.New("transform: record has no key")

// Decode parses one raw log line. It fails when the line is not a JSON object
// of the expected shape.
func Decode(line []byte) (models.RawIssue, error) {
	var raw models.RawIssue
	if err := json.Unmarshal(line, &raw); err != nil {
		return models.RawIssue{}, fmt.Errorf("decode record: %w", err)
	}
	return raw, nil
}

// Hash is the content hash of a raw record.
func Hash(raw models.RawIssue) string {
	return processing.ContentHash(raw.Key, raw.Fields.DescriptionKey())
}

// Clean builds the normalized record for raw.
func Clean(raw models.RawIssue) (models.CleanedIssue, error) {
	key := strings.TrimSpace(raw.Key)
	if key == "" {
		return models.CleanedIssue{}, ErrMissingKey
	}

	f := raw.Fields
	if f == nil {
		f = &models.RawIssueFields{}
	}

	description, err := f.DescriptionText()
	if err != nil {
		return models.CleanedIssue{}, fmt.Errorf("%s: description: %w", key, err)
	}

	comments := []string{}
	if f.Comment != nil {
		for i, c := range f.Comment.Comments {
			body, err := models.RichText(c.Body)
			if err != nil {
				return models.CleanedIssue{}, fmt.Errorf("%s: comment %d: %w", key, i, err)
			}
			comments = append(comments, processing.CleanText(body))
		}
	}

	labels := f.Labels
	if labels == nil {
		labels = []string{}
	}

	project := ""
	if i := strings.Index(key, "-"); i >= 0 {
		project = key[:i]
	}

	title := processing.CleanText(f.Summary)
	body := processing.CleanText(description)
	summary := processing.Summarize(body, comments)

	return models.CleanedIssue{
		IssueID:     key,
		Project:     project,
		Title:       title,
		Description: body,
		Status:      nameOf(f.Status),
		Priority:    nameOf(f.Priority),
		Reporter:    displayName(f.Reporter),
		Assignee:    displayName(f.Assignee),
		Labels:      labels,
		Comments:    comments,
		Created:     f.Created,
		Updated:     f.Updated,
		Derived: models.Derived{
			Summary:        summary,
			Classification: processing.Classify(title, body, labels),
			QA:             processing.BuildQA(title, summary),
		},
	}, nil
}

func nameOf(v *models.NamedValue) string {
	if v == nil {
		return ""
	}
	return v.Name
}

func displayName(p *models.Person) string {
	if p == nil {
		return ""
	}
	return p.DisplayName
}
