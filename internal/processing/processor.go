package processing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/DeafMist/issue-harvester/internal/models"
)

// Classification labels.
const (
	LabelBug           = "Bug"
	LabelFeature       = "Feature"
	LabelDocumentation = "Documentation"
	LabelPerformance   = "Performance"
	LabelOther         = "Other"
)

// NoSummaryAnswer is the QA answer used when no summary could be derived.
const NoSummaryAnswer = "No concise summary available."

// Category pairs a label with the lowercase keywords that select it.
type Category struct {
	Label    string
	Keywords []string
}

// Categories are evaluated in order; the first category with a matching
// keyword wins.
var Categories = []Category{
	{Label: LabelBug, Keywords: []string{"bug", "error", "exception", "nullpointer", "stacktrace"}},
	{Label: LabelFeature, Keywords: []string{"feature", "enhancement", "add", "support"}},
	{Label: LabelDocumentation, Keywords: []string{"doc", "documentation", "readme"}},
	{Label: LabelPerformance, Keywords: []string{"performance", "slow", "optimiz", "latency"}},
}

// CleanText strips HTML tags, decodes entities and squeezes whitespace.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	return squeeze(StripHTML(input))
}

// StripHTML decodes entities, then replaces every complete tag, comment and
// doctype with a space. A markup token cut off by the end of input is kept as
// text, so "i<n" survives.
func StripHTML(input string) string {
	z := html.NewTokenizer(strings.NewReader(html.UnescapeString(input)))
	var b strings.Builder
	for {
		tt := z.Next()
		raw := z.Raw()
		switch {
		case tt == html.ErrorToken:
			b.Write(raw)
			return b.String()
		case tt == html.TextToken, !bytes.HasSuffix(raw, []byte(">")):
			b.Write(raw)
		default:
			b.WriteByte(' ')
		}
	}
}

func squeeze(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FirstSentences returns the first n sentences of text. A sentence ends at
// '.', '!' or '?' followed by whitespace.
func FirstSentences(text string, n int) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if text == "" || n <= 0 {
		return ""
	}

	runes := []rune(text)
	parts := make([]string, 0, n)
	start := 0
	for i := 0; i < len(runes)-1 && len(parts) < n; i++ {
		if !isSentenceEnd(runes[i]) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		parts = append(parts, string(runes[start:i+1]))
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if len(parts) < n && start < len(runes) {
		parts = append(parts, string(runes[start:]))
	}

	return strings.TrimSpace(strings.Join(parts, " "))
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// Summarize takes the first two sentences of the body, falling back to the
// comments when the body is empty.
func Summarize(body string, comments []string) string {
	if s := FirstSentences(body, 2); s != "" {
		return s
	}
	return FirstSentences(strings.Join(comments, " "), 2)
}

// Classify matches title, body and labels against Categories.
func Classify(title, body string, labels []string) string {
	text := strings.ToLower(title + " " + body + " " + strings.Join(labels, " "))
	for _, c := range Categories {
		for _, kw := range c.Keywords {
			if strings.Contains(text, kw) {
				return c.Label
			}
		}
	}
	return LabelOther
}

// BuildQA renders the question/answer pair for an issue.
func BuildQA(title, summary string) models.QA {
	answer := summary
	if answer == "" {
		answer = NoSummaryAnswer
	}
	return models.QA{
		Question: strings.TrimSpace("What is the issue about: " + title),
		Answer:   answer,
	}
}

// ContentHash is the dedup key of a raw issue: its key plus the description
// it was fetched with. Other fields do not take part.
func ContentHash(key, description string) string {
	s := sha256.Sum256([]byte(key + "|" + description))
	return hex.EncodeToString(s[:])
}
