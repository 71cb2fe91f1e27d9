package models

import "encoding/json"

// UploadResponse is returned after successful file upload
type UploadResponse struct {
	Message     string   `json:"message"`
	Dataset     string   `json:"dataset"`
	Rows        int      `json:"rows"`
	Columns     []string `json:"columns"`
	Fingerprint string   `json:"fingerprint"`
}

// DatasetStatus describes one loaded dataset
type DatasetStatus struct {
	Key         string `json:"key"`
	Filename    string `json:"filename,omitempty"`
	Rows        int    `json:"rows"`
	Columns     int    `json:"columns"`
	Fingerprint string `json:"fingerprint"`
	LoadedAt    string `json:"loaded_at"`
}

// StatusResponse is returned by /datasets
type StatusResponse struct {
	Datasets []DatasetStatus `json:"datasets"`
}

// QueryRequest is the body of /query_csv. Question is accepted as an alias
// of Query so /ask and /query_csv share one shape.
type QueryRequest struct {
	Filename string `json:"filename"`
	Query    string `json:"query"`
	Question string `json:"question,omitempty"`
}

// Text returns whichever of Query/Question was provided.
func (q QueryRequest) Text() string {
	if q.Query != "" {
		return q.Query
	}
	return q.Question
}

// ResultKind tags the Result union.
type ResultKind string

const (
	ResultRows   ResultKind = "rows"
	ResultScalar ResultKind = "scalar"
	ResultError  ResultKind = "error"
)

// ErrorBody is the wire form of a query error.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result holds exactly one of rows, scalar or error, selected by Kind.
type Result struct {
	Kind   ResultKind
	Rows   []Record
	Scalar any
	Error  *ErrorBody
}

func RowsResult(rows []Record) Result {
	if rows == nil {
		rows = []Record{}
	}
	return Result{Kind: ResultRows, Rows: rows}
}

func ScalarResult(v any) Result {
	return Result{Kind: ResultScalar, Scalar: v}
}

func ErrorResult(kind, message string) Result {
	return Result{Kind: ResultError, Error: &ErrorBody{Kind: kind, Message: message}}
}

func (r Result) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case ResultRows:
		return json.Marshal(struct {
			Kind ResultKind `json:"kind"`
			Rows []Record   `json:"rows"`
		}{r.Kind, r.Rows})
	case ResultScalar:
		return json.Marshal(struct {
			Kind   ResultKind `json:"kind"`
			Scalar any        `json:"scalar"`
		}{r.Kind, r.Scalar})
	default:
		return json.Marshal(struct {
			Kind  ResultKind `json:"kind"`
			Error *ErrorBody `json:"error"`
		}{ResultError, r.Error})
	}
}

// Answer is the pipeline output for one question.
type Answer struct {
	TraceID  string     `json:"trace_id"`
	Dataset  string     `json:"dataset"`
	Question string     `json:"question"`
	Strategy string     `json:"strategy"`
	Code     string     `json:"code,omitempty"`
	Result   Result     `json:"result"`
	Fallback string     `json:"fallback,omitempty"`
	Warning  *ErrorBody `json:"warning,omitempty"`
}

// IndexRequest for /index_csv
type IndexRequest struct {
	Filename string `json:"filename"`
}

// IndexResponse for /index_csv
type IndexResponse struct {
	Status string `json:"status"`
	Rows   int    `json:"rows"`
}

// RetrieveRequest for /retrieve
type RetrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// Match is one similarity hit.
type Match struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// LLMConfig for /config/llm endpoint
type LLMConfig struct {
	Provider string `json:"provider"`
	BaseURL  string `json:"baseUrl"`
	Model    string `json:"model"`
	APIKey   string `json:"apiKey,omitempty"`
}

// ColumnProfile holds quality metrics for a column
type ColumnProfile struct {
	ColumnName      string  `json:"column_name"`
	Type            string  `json:"type"`
	TotalRows       int     `json:"total_rows"`
	NonNullRows     int     `json:"non_null_rows"`
	NullRate        float64 `json:"null_rate"`
	DistinctCount   int     `json:"distinct_count"`
	UniquenessRatio float64 `json:"uniqueness_ratio"`
	IsPrimaryKey    bool    `json:"is_primary_key"`
}

// SchemaResponse for /datasets/{key}/schema
type SchemaResponse struct {
	Dataset  string          `json:"dataset"`
	Columns  []string        `json:"columns"`
	Types    []string        `json:"types"`
	RowCount int             `json:"row_count"`
	Sample   []Record        `json:"sample"`
	Profiles []ColumnProfile `json:"profiles,omitempty"`
}

// DBImportRequest for /api/db/import
type DBImportRequest struct {
	TableName string `json:"table_name"`
	Dataset   string `json:"dataset"`
	Limit     int    `json:"limit"`
}
