package service

import (
	"math"

	"github.com/pkg/errors"

	"github.com/poornimagithubrit/Agentic-RAG/internal/models"
	"github.com/poornimagithubrit/Agentic-RAG/internal/query"
)

// DefaultMaxRows caps every tabular result.
const DefaultMaxRows = 10

// Executor runs candidates against a dataset and normalizes the output.
type Executor struct {
	maxRows int
}

func NewExecutor(maxRows int) *Executor {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Executor{maxRows: maxRows}
}

// RunCode evaluates model code in the query sandbox. Failures come back as
// ExecutionError or NoResultProduced.
func (e *Executor) RunCode(code string, ds *models.Dataset) (models.Result, error) {
	v, err := query.Run(code, &ds.Table)
	if err != nil {
		if errors.Is(err, query.ErrNoResult) {
			return models.Result{}, newQueryError(KindNoResultProduced, err, "%v", err)
		}
		return models.Result{}, newQueryError(KindExecutionError, err, "%v", err)
	}
	return e.normalize(v)
}

// normalize turns an evaluated value into a result.
func (e *Executor) normalize(v any) (models.Result, error) {
	switch x := v.(type) {
	case *query.Frame:
		return models.RowsResult(x.Records(e.maxRows)), nil
	case *query.Series:
		return models.RowsResult(x.Records(e.maxRows)), nil
	case []any:
		n := len(x)
		if n > e.maxRows {
			n = e.maxRows
		}
		rows := make([]models.Record, n)
		for i := 0; i < n; i++ {
			rows[i] = models.Record{Columns: []string{"value"}, Values: []any{finite(x[i])}}
		}
		return models.RowsResult(rows), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return models.Result{}, newQueryError(KindExecutionError, nil, "OverflowError: result is not finite")
		}
		return models.ScalarResult(x), nil
	case nil, string, bool:
		return models.ScalarResult(x), nil
	}
	return models.Result{}, newQueryError(KindExecutionError, nil, "unsupported result type %T", v)
}

// ApplyRules filters and projects a rule candidate. It returns false when
// the candidate has no filters, in which case no projection is done.
func (e *Executor) ApplyRules(cand *Candidate, ds *models.Dataset) ([]models.Record, bool) {
	if len(cand.Filters) == 0 {
		return nil, false
	}
	cols := projection(cand, ds.Columns)
	positions := make([]int, len(cols))
	for i, c := range cols {
		positions[i] = ds.ColumnIndex(c)
	}

	rows := []models.Record{}
	for _, row := range ds.Rows {
		if !matchesFilters(&ds.Table, row, cand.Filters) {
			continue
		}
		values := make([]any, len(cols))
		for i, p := range positions {
			values[i] = row[p]
		}
		rows = append(rows, models.Record{Columns: cols, Values: values})
		if len(rows) == e.maxRows {
			break
		}
	}
	return rows, true
}

// CountMatches returns how many rows satisfy filters.
func CountMatches(ds *models.Dataset, filters []Filter) int {
	n := 0
	for _, row := range ds.Rows {
		if matchesFilters(&ds.Table, row, filters) {
			n++
		}
	}
	return n
}

func finite(v any) any {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil
	}
	return v
}
