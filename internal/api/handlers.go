package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/poornimagithubrit/Agentic-RAG/internal/analysis"
	"github.com/poornimagithubrit/Agentic-RAG/internal/llm"
	"github.com/poornimagithubrit/Agentic-RAG/internal/models"
	"github.com/poornimagithubrit/Agentic-RAG/internal/service"
	"github.com/poornimagithubrit/Agentic-RAG/internal/vector"
)

const (
	MaxFileSize = 100 * 1024 * 1024 // 100MB
	maxBodySize = 1 << 20
)

type Handler struct {
	Datasets      *service.DatasetService
	Pipeline      *service.Pipeline
	Index         *vector.Index
	LLM           *llm.Manager
	Logger        *zap.SugaredLogger
	MaxUploadSize int64

	// NewDataSource opens external databases for /api/db.
	NewDataSource func() service.DataSource

	dbMu      sync.Mutex
	currentDB service.DataSource // Active DB connection
}

func NewHandler(datasets *service.DatasetService, pipeline *service.Pipeline, index *vector.Index, manager *llm.Manager, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		Datasets:      datasets,
		Pipeline:      pipeline,
		Index:         index,
		LLM:           manager,
		Logger:        logger,
		MaxUploadSize: MaxFileSize,
		NewDataSource: func() service.DataSource { return service.NewPostgresSource() },
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)

	// Question answering
	r.Post("/upload_csv", h.UploadCSV)
	r.Post("/query_csv", h.QueryCSV)
	r.Post("/ask", h.Ask)

	// Semantic index
	r.Post("/index_csv", h.IndexCSV)
	r.Post("/retrieve", h.Retrieve)

	// Datasets
	r.Get("/datasets", h.ListDatasets)
	r.Get("/datasets/{key}/schema", h.GetSchema)
	r.Get("/datasets/{key}/preview", h.GetPreview)
	r.Delete("/datasets/{key}", h.DeleteDataset)

	// DB Routes
	r.Post("/api/db/connect", h.ConnectDB)
	r.Get("/api/db/tables", h.ListTables)
	r.Post("/api/db/import", h.ImportTable)

	r.Get("/config/llm", h.GetLLMConfig)
	r.Post("/config/llm", h.SaveLLMConfig)
}

// ============================================================================
// Health
// ============================================================================

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

// ============================================================================
// Upload & Query
// ============================================================================

// UploadCSV handles POST /upload_csv with a multipart "file" field.
func (h *Handler) UploadCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadSize)
	if err := r.ParseMultipartForm(h.MaxUploadSize); err != nil {
		http.Error(w, "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	key := filepath.Base(header.Filename)
	if !strings.HasSuffix(strings.ToLower(key), ".csv") {
		http.Error(w, "Only CSV files are allowed", http.StatusBadRequest)
		return
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read file", http.StatusBadRequest)
		return
	}

	ds, err := h.Datasets.Upload(r.Context(), key, raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse CSV: %v", err), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, models.UploadResponse{
		Message:     fmt.Sprintf("CSV '%s' uploaded successfully", key),
		Dataset:     key,
		Rows:        len(ds.Rows),
		Columns:     ds.Columns,
		Fingerprint: ds.Fingerprint,
	})
}

// QueryCSV handles POST /query_csv. It answers with the result rows, and
// falls back to the first rows when generated code fails.
func (h *Handler) QueryCSV(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	question := strings.TrimSpace(req.Text())
	if req.Filename == "" || question == "" {
		http.Error(w, "filename and query are required", http.StatusBadRequest)
		return
	}

	ans, err := h.Pipeline.Ask(r.Context(), service.Request{
		Dataset:         req.Filename,
		Question:        question,
		FallbackOnError: true,
	})
	if err != nil {
		h.writeQueryError(w, err)
		return
	}
	if ans.Result.Kind == models.ResultRows {
		writeJSON(w, http.StatusOK, ans.Result.Rows)
		return
	}
	writeJSON(w, http.StatusOK, ans.Result)
}

// Ask handles POST /ask and returns the full answer including the code.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string `json:"filename"`
		Question string `json:"question"`
		Strategy string `json:"strategy,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Filename == "" || strings.TrimSpace(req.Question) == "" {
		http.Error(w, "filename and question are required", http.StatusBadRequest)
		return
	}

	var strategy service.Strategy
	if req.Strategy != "" {
		s, err := service.ParseStrategy(req.Strategy)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		strategy = s
	}

	ans, err := h.Pipeline.Ask(r.Context(), service.Request{
		Dataset:  req.Filename,
		Question: strings.TrimSpace(req.Question),
		Strategy: strategy,
	})
	if err != nil {
		h.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// ============================================================================
// Semantic index
// ============================================================================

func (h *Handler) IndexCSV(w http.ResponseWriter, r *http.Request) {
	var req models.IndexRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ds, err := h.Datasets.Lookup(req.Filename)
	if err != nil {
		h.writeQueryError(w, err)
		return
	}

	status, err := h.Index.Build(r.Context(), req.Filename, ds)
	if err != nil {
		h.Logger.Errorw("indexing failed", "dataset", req.Filename, "error", err)
		http.Error(w, fmt.Sprintf("Indexing failed: %v", err), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req models.RetrieveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	matches, err := h.Index.Retrieve(r.Context(), req.Query, req.TopK)
	if err != nil {
		http.Error(w, fmt.Sprintf("Retrieval failed: %v", err), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// ============================================================================
// Datasets
// ============================================================================

func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.StatusResponse{Datasets: h.Datasets.List()})
}

func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	ds, err := h.Datasets.Lookup(key)
	if err != nil {
		h.writeQueryError(w, err)
		return
	}

	desc := analysis.Describe(ds, analysis.DefaultSampleRows)
	resp := models.SchemaResponse{
		Dataset:  key,
		Columns:  desc.Columns,
		Types:    desc.Types,
		RowCount: desc.RowCount,
		Sample:   desc.Sample,
	}
	if r.URL.Query().Get("profile") != "false" {
		resp.Profiles = analysis.Profile(ds)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetPreview(w http.ResponseWriter, r *http.Request) {
	ds, err := h.Datasets.Lookup(chi.URLParam(r, "key"))
	if err != nil {
		h.writeQueryError(w, err)
		return
	}
	rows := getIntParam(r, "rows", 10)
	if rows < 0 {
		rows = 0
	}
	writeJSON(w, http.StatusOK, ds.Head(rows))
}

func (h *Handler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !h.Datasets.Delete(key) {
		http.Error(w, fmt.Sprintf("Dataset '%s' not loaded", key), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// Database import
// ============================================================================

// ConnectDB establishes a database connection
func (h *Handler) ConnectDB(w http.ResponseWriter, r *http.Request) {
	var config service.DataSourceConfig
	if !decodeBody(w, r, &config) {
		return
	}

	// Currently only Postgres supported
	if config.Type != "" && config.Type != "postgres" {
		http.Error(w, "Only postgres is supported currently", http.StatusBadRequest)
		return
	}

	src := h.NewDataSource()
	if err := src.Connect(r.Context(), config); err != nil {
		http.Error(w, fmt.Sprintf("Failed to connect: %v", err), http.StatusBadGateway)
		return
	}

	h.dbMu.Lock()
	if h.currentDB != nil {
		h.currentDB.Close()
	}
	h.currentDB = src
	h.dbMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

// ListTables returns tables from connected DB
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	src := h.database()
	if src == nil {
		http.Error(w, "No database connection", http.StatusBadRequest)
		return
	}

	tables, err := src.ListTables(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Error listing tables: %v", err), http.StatusBadGateway)
		return
	}
	if tables == nil {
		tables = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tables": tables})
}

// ImportTable loads a table from the connected DB as a dataset.
func (h *Handler) ImportTable(w http.ResponseWriter, r *http.Request) {
	src := h.database()
	if src == nil {
		http.Error(w, "No database connection", http.StatusBadRequest)
		return
	}

	var req models.DBImportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TableName == "" {
		http.Error(w, "table_name is required", http.StatusBadRequest)
		return
	}

	ds, err := h.Datasets.Import(r.Context(), src, req.TableName, req.Dataset, req.Limit)
	if err != nil {
		if errors.Is(err, service.ErrUnknownTable) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Error fetching data: %v", err), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, models.UploadResponse{
		Message:     fmt.Sprintf("Table '%s' imported successfully", req.TableName),
		Dataset:     ds.Key,
		Rows:        len(ds.Rows),
		Columns:     ds.Columns,
		Fingerprint: ds.Fingerprint,
	})
}

func (h *Handler) database() service.DataSource {
	h.dbMu.Lock()
	defer h.dbMu.Unlock()
	return h.currentDB
}

// Close releases the active database connection.
func (h *Handler) Close() error {
	h.dbMu.Lock()
	defer h.dbMu.Unlock()
	if h.currentDB == nil {
		return nil
	}
	err := h.currentDB.Close()
	h.currentDB = nil
	return err
}

// ============================================================================
// LLM Config
// ============================================================================

func (h *Handler) GetLLMConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"config":    publicLLMConfig(h.LLM.Config()),
		"available": h.LLM.Available(),
	})
}

// SaveLLMConfig applies the non-empty fields of the request on top of the
// active configuration.
func (h *Handler) SaveLLMConfig(w http.ResponseWriter, r *http.Request) {
	var config models.LLMConfig
	if !decodeBody(w, r, &config) {
		return
	}

	cfg := h.LLM.Config()
	if config.Provider != "" {
		cfg.Provider = config.Provider
	}
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}
	if config.Model != "" {
		cfg.Model = config.Model
	}
	if config.APIKey != "" {
		cfg.APIKey = config.APIKey
	}

	if err := h.LLM.Update(cfg); err != nil && !errors.Is(err, llm.ErrNotConfigured) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Logger.Infow("llm configuration updated", "provider", cfg.Provider, "model", cfg.Model)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "LLM configuration saved successfully",
		"config":    publicLLMConfig(h.LLM.Config()),
		"available": h.LLM.Available(),
	})
}

func publicLLMConfig(cfg llm.Config) models.LLMConfig {
	return models.LLMConfig{Provider: cfg.Provider, BaseURL: cfg.BaseURL, Model: cfg.Model}
}

// ============================================================================
// Helpers
// ============================================================================

var statusByKind = map[service.ErrorKind]int{
	service.KindDatasetNotFound:       http.StatusNotFound,
	service.KindTranslatorUnavailable: http.StatusServiceUnavailable,
	service.KindExecutionError:        http.StatusOK,
	service.KindNoResultProduced:      http.StatusOK,
}

// writeQueryError maps a pipeline error to a status and an error body.
func (h *Handler) writeQueryError(w http.ResponseWriter, err error) {
	var qe *service.QueryError
	if !errors.As(err, &qe) {
		h.Logger.Errorw("request failed", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	status, ok := statusByKind[qe.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]interface{}{
		"error": models.ErrorBody{Kind: string(qe.Kind), Message: qe.Message},
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func getIntParam(r *http.Request, name string, defaultVal int) int {
	valStr := r.URL.Query().Get(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
