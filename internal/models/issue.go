package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RawIssue is the subset of a Jira search result item the transformer reads.
// The raw log keeps the full item verbatim; this type is only a decoding view.
type RawIssue struct {
	Key    string          `json:"key"`
	Fields *RawIssueFields `json:"fields"`
}

// RawIssueFields mirrors the requested Jira field list.
type RawIssueFields struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description"`
	Status      *NamedValue     `json:"status"`
	Priority    *NamedValue     `json:"priority"`
	Reporter    *Person         `json:"reporter"`
	Assignee    *Person         `json:"assignee"`
	Comment     *CommentPage    `json:"comment"`
	Labels      []string        `json:"labels"`
	Created     string          `json:"created"`
	Updated     string          `json:"updated"`
}

// NamedValue covers status and priority objects.
type NamedValue struct {
	Name string `json:"name"`
}

// Person is a Jira user reference.
type Person struct {
	DisplayName string `json:"displayName"`
}

// CommentPage is the embedded comment listing of an issue.
type CommentPage struct {
	Comments []Comment `json:"comments"`
}

// Comment is a single issue comment. Body is a string on API v2 and an
// Atlassian Document Format tree on v3.
type Comment struct {
	Body json.RawMessage `json:"body"`
}

// DescriptionText returns the description as plain text. API v2 sends a
// string, v3 sends an ADF document which is flattened.
func (f *RawIssueFields) DescriptionText() (string, error) {
	if f == nil {
		return "", nil
	}
	return RichText(f.Description)
}

// DescriptionKey is the description as it takes part in the content hash: the
// string value when the field is a plain string, the raw JSON otherwise.
func (f *RawIssueFields) DescriptionKey() string {
	if f == nil {
		return ""
	}
	trimmed := strings.TrimSpace(string(f.Description))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.Description, &s); err == nil {
		return s
	}
	return trimmed
}

// RichText decodes a Jira text field that is either null, a JSON string or an
// ADF node tree.
func RichText(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decode text: %w", err)
		}
		return s, nil
	case '{':
		var node adfNode
		if err := json.Unmarshal(raw, &node); err != nil {
			return "", fmt.Errorf("decode adf: %w", err)
		}
		var b strings.Builder
		node.appendText(&b)
		return strings.TrimSpace(b.String()), nil
	default:
		return "", fmt.Errorf("unsupported text value %.20q", trimmed)
	}
}

type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text"`
	Content []adfNode `json:"content"`
}

func (n adfNode) appendText(b *strings.Builder) {
	if n.Type == "text" {
		b.WriteString(n.Text)
		return
	}
	if n.Type == "hardBreak" {
		b.WriteByte('\n')
		return
	}
	for _, child := range n.Content {
		child.appendText(b)
	}
	switch n.Type {
	case "paragraph", "heading", "listItem", "codeBlock", "blockquote":
		b.WriteByte('\n')
	}
}

// CleanedIssue is one normalized record of the cleaned log.
type CleanedIssue struct {
	IssueID     string   `json:"issue_id"`
	Project     string   `json:"project"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	Reporter    string   `json:"reporter"`
	Assignee    string   `json:"assignee"`
	Labels      []string `json:"labels"`
	Comments    []string `json:"comments"`
	Created     string   `json:"created"`
	Updated     string   `json:"updated"`
	Derived     Derived  `json:"derived"`
}

// Derived holds the text annotations computed from an issue.
type Derived struct {
	Summary        string `json:"summary"`
	Classification string `json:"classification"`
	QA             QA     `json:"qa"`
}

// QA is a templated question/answer pair.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
