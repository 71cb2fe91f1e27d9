package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/poornimagithubrit/Agentic-RAG/internal/analysis"
	"github.com/poornimagithubrit/Agentic-RAG/internal/llm"
	"github.com/poornimagithubrit/Agentic-RAG/internal/models"
	"github.com/poornimagithubrit/Agentic-RAG/internal/query"
)

// Source tells which strategy produced a candidate.
type Source string

const (
	SourceModel Source = "model"
	SourceRules Source = "rules"
)

// Filter is a column equality derived from the question text.
type Filter struct {
	Column string
	Value  string
}

// Candidate is the proposed answer to a question. Model candidates carry
// Code only; rule candidates carry Filters and Requested, and Code holds
// the equivalent expression for display.
type Candidate struct {
	Source    Source
	Code      string
	Filters   []Filter
	Requested []string
}

// Translator turns a question into a candidate.
type Translator interface {
	Translate(ctx context.Context, question string, desc analysis.Description) (*Candidate, error)
}

// ModelTranslator asks a language model for code.
type ModelTranslator struct {
	generator llm.Generator
}

func NewModelTranslator(generator llm.Generator) *ModelTranslator {
	return &ModelTranslator{generator: generator}
}

// Translate makes exactly one generator call. Any failure, including a
// missing backend, is TranslatorUnavailable.
func (t *ModelTranslator) Translate(ctx context.Context, question string, desc analysis.Description) (*Candidate, error) {
	if t.generator == nil {
		return nil, newQueryError(KindTranslatorUnavailable, llm.ErrNotConfigured, "%v", llm.ErrNotConfigured)
	}
	text, err := t.generator.Generate(ctx, BuildPrompt(question, desc))
	if err != nil {
		return nil, newQueryError(KindTranslatorUnavailable, err, "code generation failed: %v", err)
	}
	code := StripCodeFences(text)
	if code == "" {
		return nil, newQueryError(KindTranslatorUnavailable, nil, "code generation returned no code")
	}
	return &Candidate{Source: SourceModel, Code: code}, nil
}

const promptTemplate = `You are a data analyst working with a pandas DataFrame named %[1]s.
Write Python code that answers the question below.

Rules:
- The DataFrame is already loaded as %[1]s. Do not import anything.
- Store the final answer in a variable named %[2]s.
- Do not print, read or write files, or use the network.
- If the answer is a table, limit it with .head(10).
- Use only: boolean masks with == != < <= > >= & | ~, column selection,
  sort_values, nlargest, nsmallest, head, tail, groupby(...)[col].<agg>(),
  sum, mean, median, min, max, count, nunique, unique, value_counts,
  str.contains, str.lower, str.upper, str.startswith, str.endswith, isin,
  isna, notna, between, len, round, abs, reset_index, iloc, tolist.
- Return only the code.

Columns (name: type):
%[3]s
First %[4]d rows:
%[5]s
Total rows: %[6]d

Question: %[7]s
`

// BuildPrompt renders the instruction template for a question.
func BuildPrompt(question string, desc analysis.Description) string {
	var columns strings.Builder
	for i, c := range desc.Columns {
		typ := "string"
		if i < len(desc.Types) {
			typ = desc.Types[i]
		}
		fmt.Fprintf(&columns, "- %s: %s\n", c, typ)
	}

	var sample strings.Builder
	for _, rec := range desc.Sample {
		b, err := rec.MarshalJSON()
		if err != nil {
			continue
		}
		sample.Write(b)
		sample.WriteByte('\n')
	}

	return fmt.Sprintf(promptTemplate,
		query.DatasetName, query.ResultName,
		columns.String(), len(desc.Sample), sample.String(), desc.RowCount,
		strings.TrimSpace(question))
}

// StripCodeFences extracts code from a model reply. Fences may appear
// anywhere in the surrounding prose; the language tag after the opening
// fence is dropped, as are single backticks around a one-liner.
func StripCodeFences(text string) string {
	s := strings.TrimSpace(text)
	if open := strings.Index(s, "```"); open >= 0 {
		s = s[open+3:]
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			if tag := strings.TrimSpace(s[:nl]); isFenceTag(tag) {
				s = s[nl+1:]
			}
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, "`") && strings.HasSuffix(s, "`") {
		s = strings.TrimSpace(strings.Trim(s, "`"))
	}
	return s
}

func isFenceTag(tag string) bool {
	for _, r := range tag {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '+' || r == '_') {
			return false
		}
	}
	return true
}

// RuleTranslator matches column names in the question text. It never
// fails and never calls out.
type RuleTranslator struct{}

func NewRuleTranslator() *RuleTranslator {
	return &RuleTranslator{}
}

var connectives = map[string]bool{
	"is": true, "=": true, "==": true, ":": true, "for": true, "equals": true,
}

const valuePunctuation = "?.,!;\"'"

// Translate scans the schema in column order. For each column the first
// occurrence of its name wins; the value is the run of tokens after it, up
// to the next column name or the end of the question.
func (t *RuleTranslator) Translate(_ context.Context, question string, desc analysis.Description) (*Candidate, error) {
	q := strings.ToLower(question)
	names := make([]string, len(desc.Columns))
	for i, c := range desc.Columns {
		names[i] = strings.ToLower(c)
	}

	cand := &Candidate{Source: SourceRules}
	filtered := make(map[string]bool)
	for i, name := range names {
		if name == "" {
			continue
		}
		at := strings.Index(q, name)
		if at < 0 {
			continue
		}
		if value := captureValue(q[at+len(name):], names); value != "" {
			cand.Filters = append(cand.Filters, Filter{Column: desc.Columns[i], Value: value})
			filtered[desc.Columns[i]] = true
		}
	}
	for i, name := range names {
		if name != "" && !filtered[desc.Columns[i]] && strings.Contains(q, name) {
			cand.Requested = append(cand.Requested, desc.Columns[i])
		}
	}
	cand.Code = renderRules(cand, desc.Columns)
	return cand, nil
}

// captureValue returns the value text at the start of rest.
func captureValue(rest string, names []string) string {
	end := len(rest)
	for _, n := range names {
		if n == "" {
			continue
		}
		if i := strings.Index(rest, n); i >= 0 && i < end {
			end = i
		}
	}

	fields := strings.Fields(rest[:end])
	if len(fields) > 0 && connectives[fields[0]] {
		fields = fields[1:]
	}
	if len(fields) > 0 {
		fields[0] = strings.TrimLeft(fields[0], "=:")
	}
	return strings.Trim(strings.Join(fields, " "), valuePunctuation+" ")
}

// projection lists the columns a rule candidate returns: filter columns,
// requested columns, and when nothing was requested the first remaining
// schema column as a label.
func projection(cand *Candidate, schema []string) []string {
	var cols []string
	seen := make(map[string]bool)
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	for _, f := range cand.Filters {
		add(f.Column)
	}
	for _, c := range cand.Requested {
		add(c)
	}
	if len(cand.Requested) == 0 {
		for _, c := range schema {
			if !seen[c] {
				add(c)
				break
			}
		}
	}
	return cols
}

// renderRules writes the query a rule candidate stands for.
func renderRules(cand *Candidate, schema []string) string {
	if len(cand.Filters) == 0 {
		return fmt.Sprintf("%s = %s.head(10)", query.ResultName, query.DatasetName)
	}
	masks := make([]string, len(cand.Filters))
	for i, f := range cand.Filters {
		masks[i] = fmt.Sprintf("(%s[%s].astype(str).str.lower() == %s)",
			query.DatasetName, strconv.Quote(f.Column), strconv.Quote(f.Value))
	}
	cols := projection(cand, schema)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = strconv.Quote(c)
	}
	return fmt.Sprintf("%s = %s[%s][[%s]].head(10)",
		query.ResultName, query.DatasetName, strings.Join(masks, " & "), strings.Join(quoted, ", "))
}

// matchesFilters reports whether a row satisfies every filter.
func matchesFilters(t *models.Table, row []any, filters []Filter) bool {
	for _, f := range filters {
		i := t.ColumnIndex(f.Column)
		if i < 0 || !strings.EqualFold(models.Stringify(row[i]), f.Value) {
			return false
		}
	}
	return true
}
