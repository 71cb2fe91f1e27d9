package analysis

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/poornimagithubrit/Agentic-RAG/internal/models"
)

// Column types reported by inference.
const (
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
	TypeDate   = "date"
	TypeString = "string"
)

var nullTokens = map[string]bool{
	"": true, "NA": true, "N/A": true, "NaN": true, "nan": true,
	"null": true, "NULL": true, "None": true,
}

type CSVService struct{}

func NewCSVService() *CSVService {
	return &CSVService{}
}

// Parse turns raw CSV bytes into a dataset. The dataset is complete when
// returned and can be published as is.
func (s *CSVService) Parse(raw []byte, fileName string) (*models.Dataset, error) {
	headers, records, err := readCSV(raw, ',')
	if err != nil || (len(headers) == 1 && strings.Contains(headers[0], ";")) {
		// Try with semicolon separator
		headers, records, err = readCSV(raw, ';')
		if err != nil {
			return nil, errors.Wrap(err, "failed to read headers")
		}
	}

	columns := uniqueHeaders(headers)
	types := make([]string, len(columns))
	for i := range columns {
		types[i] = inferColumnType(records, i)
	}

	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		row := make([]any, len(columns))
		for i := range columns {
			if i < len(rec) {
				row[i] = convertCell(rec[i], types[i])
			}
		}
		rows = append(rows, row)
	}

	return &models.Dataset{
		Table:    models.Table{Columns: columns, Rows: rows},
		FileName: fileName,
		Types:    types,
		LoadedAt: time.Now(),
	}, nil
}

// FromRows builds a dataset from already typed values (e.g. a database
// table). Values are normalized to the dataset scalar set.
func (s *CSVService) FromRows(columns []string, data [][]any) *models.Dataset {
	columns = uniqueHeaders(columns)
	rows := make([][]any, len(data))
	for r, rec := range data {
		row := make([]any, len(columns))
		for i := range columns {
			if i < len(rec) {
				row[i] = normalizeValue(rec[i])
			}
		}
		rows[r] = row
	}

	types := make([]string, len(columns))
	for i := range columns {
		types[i] = inferTypeFromValues(rows, i)
	}

	return &models.Dataset{
		Table:    models.Table{Columns: columns, Rows: rows},
		Types:    types,
		LoadedAt: time.Now(),
	}
}

func readCSV(raw []byte, comma rune) ([]string, [][]string, error) {
	reader := csv.NewReader(bytes.NewReader(raw))
	reader.Comma = comma
	reader.FieldsPerRecord = -1 // Allow variable fields
	reader.LazyQuotes = true    // Allow bare quotes in non-quoted fields
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, nil, err
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	records := [][]string{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Try to continue on malformed rows
			continue
		}
		records = append(records, record)
	}
	return headers, records, nil
}

// uniqueHeaders keeps column names unique: a repeated name gets a ".N"
// suffix and an empty one becomes "Unnamed: i".
func uniqueHeaders(headers []string) []string {
	used := make(map[string]bool, len(headers))
	out := make([]string, len(headers))
	for i, h := range headers {
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		name := h
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s.%d", h, n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

func inferColumnType(rows [][]string, colIndex int) string {
	isInt, isFloat, isBool, isDate := true, true, true, true
	seen := 0

	for _, row := range rows {
		if colIndex >= len(row) {
			continue
		}
		val := strings.TrimSpace(row[colIndex])
		if nullTokens[val] {
			continue // Skip empties
		}
		seen++

		if _, err := strconv.ParseInt(val, 10, 64); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(val, 64); err != nil {
			isFloat = false
		}
		if _, ok := parseBool(val); !ok {
			isBool = false
		}
		if !isDateString(val) {
			isDate = false
		}
		if !isInt && !isFloat && !isBool && !isDate {
			break
		}
	}

	switch {
	case seen == 0:
		return TypeString
	case isInt:
		return TypeInt
	case isFloat:
		return TypeFloat
	case isBool:
		return TypeBool
	case isDate:
		return TypeDate
	}
	return TypeString
}

func inferTypeFromValues(rows [][]any, colIndex int) string {
	for _, row := range rows {
		switch v := row[colIndex].(type) {
		case nil:
			continue
		case float64:
			if v == float64(int64(v)) {
				return TypeInt
			}
			return TypeFloat
		case bool:
			return TypeBool
		case string:
			if isDateString(v) {
				return TypeDate
			}
			return TypeString
		}
	}
	return TypeString
}

func convertCell(raw, colType string) any {
	val := strings.TrimSpace(raw)
	if nullTokens[val] {
		return nil
	}
	switch colType {
	case TypeInt, TypeFloat:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	case TypeBool:
		if b, ok := parseBool(val); ok {
			return b
		}
	}
	return raw
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(x)
	case string:
		return x
	case bool:
		return x
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

func parseBool(val string) (bool, bool) {
	switch val {
	case "true", "True", "TRUE":
		return true, true
	case "false", "False", "FALSE":
		return false, true
	}
	return false, false
}

func isDateString(val string) bool {
	formats := []string{
		time.RFC3339,
		"2006-01-02",
		"02/01/2006",
		"01/02/2006",
		"2006/01/02",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if _, err := time.Parse(f, val); err == nil {
			return true
		}
	}
	return false
}
