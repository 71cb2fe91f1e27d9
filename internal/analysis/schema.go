package analysis

import (
	"github.com/poornimagithubrit/Agentic-RAG/internal/models"
)

// DefaultSampleRows is the number of rows shown to a translator.
const DefaultSampleRows = 5

// Description is the shape of a dataset as seen by a translator. It is
// never used for execution.
type Description struct {
	Columns  []string
	Types    []string
	Sample   []models.Record
	RowCount int
}

// Describe returns columns, types, the first n rows and the row count.
// Cost depends on n only.
func Describe(ds *models.Dataset, n int) Description {
	if n <= 0 {
		n = DefaultSampleRows
	}
	return Description{
		Columns:  ds.Columns,
		Types:    ds.Types,
		Sample:   ds.Head(n),
		RowCount: len(ds.Rows),
	}
}

// Profile computes per-column null and distinctness figures.
func Profile(ds *models.Dataset) []models.ColumnProfile {
	profiles := make([]models.ColumnProfile, len(ds.Columns))
	for i := range ds.Columns {
		profiles[i] = profileColumn(ds, i)
	}
	return profiles
}

func profileColumn(ds *models.Dataset, colIdx int) models.ColumnProfile {
	profile := models.ColumnProfile{
		ColumnName: ds.Columns[colIdx],
		TotalRows:  len(ds.Rows),
	}
	if colIdx < len(ds.Types) {
		profile.Type = ds.Types[colIdx]
	}

	uniqueValues := make(map[string]struct{})
	for _, row := range ds.Rows {
		if row[colIdx] == nil {
			continue
		}
		profile.NonNullRows++
		uniqueValues[models.Stringify(row[colIdx])] = struct{}{}
	}
	profile.DistinctCount = len(uniqueValues)

	if profile.TotalRows > 0 {
		profile.NullRate = float64(profile.TotalRows-profile.NonNullRows) / float64(profile.TotalRows)
	}
	if profile.NonNullRows > 0 {
		profile.UniquenessRatio = float64(profile.DistinctCount) / float64(profile.NonNullRows)
	}

	// High uniqueness (>95%) and low null rate (<5%)
	profile.IsPrimaryKey = profile.UniquenessRatio > 0.95 && profile.NullRate < 0.05
	return profile
}
