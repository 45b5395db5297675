package export

import (
	"strings"

	"github.com/DeafMist/issue-harvester/internal/models"
)

// ListSeparator joins multi-valued fields in a single cell.
const ListSeparator = " || "

// MaxComments caps how many comments are exported per issue.
const MaxComments = 5

// Columns is the fixed header of every export.
var Columns = []string{
	"issue_id",
	"project",
	"title",
	"description",
	"status",
	"priority",
	"reporter",
	"assignee",
	"labels",
	"comments",
	"created",
	"updated",
	"derived_summary",
	"derived_classification",
	"derived_qa_question",
	"derived_qa_answer",
}

// Row is one flattened issue. Field order follows Columns.
type Row struct {
	IssueID               string `parquet:"name=issue_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Project               string `parquet:"name=project, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Title                 string `parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8"`
	Description           string `parquet:"name=description, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status                string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Priority              string `parquet:"name=priority, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Reporter              string `parquet:"name=reporter, type=BYTE_ARRAY, convertedtype=UTF8"`
	Assignee              string `parquet:"name=assignee, type=BYTE_ARRAY, convertedtype=UTF8"`
	Labels                string `parquet:"name=labels, type=BYTE_ARRAY, convertedtype=UTF8"`
	Comments              string `parquet:"name=comments, type=BYTE_ARRAY, convertedtype=UTF8"`
	Created               string `parquet:"name=created, type=BYTE_ARRAY, convertedtype=UTF8"`
	Updated               string `parquet:"name=updated, type=BYTE_ARRAY, convertedtype=UTF8"`
	DerivedSummary        string `parquet:"name=derived_summary, type=BYTE_ARRAY, convertedtype=UTF8"`
	DerivedClassification string `parquet:"name=derived_classification, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	DerivedQAQuestion     string `parquet:"name=derived_qa_question, type=BYTE_ARRAY, convertedtype=UTF8"`
	DerivedQAAnswer       string `parquet:"name=derived_qa_answer, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// NewRow flattens rec.
func NewRow(rec models.CleanedIssue) Row {
	return Row{
		IssueID:               rec.IssueID,
		Project:               rec.Project,
		Title:                 rec.Title,
		Description:           rec.Description,
		Status:                rec.Status,
		Priority:              rec.Priority,
		Reporter:              rec.Reporter,
		Assignee:              rec.Assignee,
		Labels:                JoinList(rec.Labels, 0),
		Comments:              JoinList(rec.Comments, MaxComments),
		Created:               rec.Created,
		Updated:               rec.Updated,
		DerivedSummary:        rec.Derived.Summary,
		DerivedClassification: rec.Derived.Classification,
		DerivedQAQuestion:     rec.Derived.QA.Question,
		DerivedQAAnswer:       rec.Derived.QA.Answer,
	}
}

// Values returns the cells in Columns order.
func (r Row) Values() []string {
	return []string{
		r.IssueID,
		r.Project,
		r.Title,
		r.Description,
		r.Status,
		r.Priority,
		r.Reporter,
		r.Assignee,
		r.Labels,
		r.Comments,
		r.Created,
		r.Updated,
		r.DerivedSummary,
		r.DerivedClassification,
		r.DerivedQAQuestion,
		r.DerivedQAAnswer,
	}
}

// JoinList flattens items into one cell. Newlines inside an item become
// spaces and items are trimmed. A positive limit keeps only the first limit
// items.
func JoinList(items []string, limit int) string {
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = strings.TrimSpace(strings.ReplaceAll(item, "\n", " "))
	}
	return strings.Join(parts, ListSeparator)
}
