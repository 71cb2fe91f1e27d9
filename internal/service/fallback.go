package service

import (
	"strings"

	"github.com/poornimagithubrit/Agentic-RAG/internal/models"
)

// Fallback reasons recorded on an answer.
const (
	ReasonNoFilters      = "no_filters"
	ReasonNoMatch        = "no_match"
	ReasonEmptyResult    = "empty_result"
	ReasonExecutionError = "execution_error"
)

// Fallback produces a deterministic result when the primary path has
// nothing to show.
type Fallback struct {
	maxRows int
}

func NewFallback(maxRows int) *Fallback {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Fallback{maxRows: maxRows}
}

// Keyword returns the rows matching the first question token found in any
// cell. Tokens are tried in question order; the first token with any match
// wins even if a later token matches more rows.
func (f *Fallback) Keyword(question string, ds *models.Dataset) ([]models.Record, string, bool) {
	cells := stringifyRows(ds)
	for _, token := range strings.Fields(strings.ToLower(question)) {
		var rows []models.Record
		for i, row := range cells {
			if rowContains(row, token) {
				rows = append(rows, ds.Record(i))
				if len(rows) == f.maxRows {
					break
				}
			}
		}
		if len(rows) > 0 {
			return rows, token, true
		}
	}
	return nil, "", false
}

// Head returns the first rows of the dataset in schema column order.
func (f *Fallback) Head(ds *models.Dataset) []models.Record {
	return ds.Head(f.maxRows)
}

// Resolve tries the keyword match when tryKeyword is set, then the head.
func (f *Fallback) Resolve(question string, ds *models.Dataset, tryKeyword bool) []models.Record {
	if tryKeyword {
		if rows, _, ok := f.Keyword(question, ds); ok {
			return rows
		}
	}
	return f.Head(ds)
}

func stringifyRows(ds *models.Dataset) [][]string {
	out := make([][]string, len(ds.Rows))
	for i, row := range ds.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = strings.ToLower(models.Stringify(v))
		}
		out[i] = cells
	}
	return out
}

func rowContains(cells []string, token string) bool {
	for _, c := range cells {
		if strings.Contains(c, token) {
			return true
		}
	}
	return false
}
