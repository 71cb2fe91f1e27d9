package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/poornimagithubrit/Agentic-RAG/internal/llm"
	"github.com/poornimagithubrit/Agentic-RAG/internal/service"
	"github.com/poornimagithubrit/Agentic-RAG/internal/state"
	"github.com/poornimagithubrit/Agentic-RAG/internal/vector"
)

const peopleCSV = "name,age,city\nAnn,30,NYC\nBo,25,LA\n"

type fakeGenerator struct {
	reply string
}

func (g *fakeGenerator) Generate(context.Context, string) (string, error) {
	return g.reply, nil
}

type fakeSource struct {
	closed bool
}

func (s *fakeSource) Connect(context.Context, service.DataSourceConfig) error { return nil }
func (s *fakeSource) Close() error                                             { s.closed = true; return nil }
func (s *fakeSource) ListTables(context.Context) ([]string, error) {
	return []string{"orders"}, nil
}
func (s *fakeSource) ReadTable(_ context.Context, table string, limit int) ([]string, [][]any, error) {
	if table != "orders" {
		return nil, nil, service.ErrUnknownTable
	}
	return []string{"id", "total"}, [][]any{{int64(1), 9.5}, {int64(2), 20.0}}, nil
}

type testEnv struct {
	server  *httptest.Server
	handler *Handler
}

func newTestEnv(t *testing.T, gen llm.Generator, strategy service.Strategy) *testEnv {
	t.Helper()
	logger := zap.NewNop().Sugar()
	reg := state.NewRegistry(state.Options{}, logger)
	t.Cleanup(reg.Close)

	var model service.Translator
	if gen != nil {
		model = service.NewModelTranslator(gen)
	}
	manager, err := llm.NewManager(llm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	pipeline := service.NewPipeline(reg, model, service.Options{Strategy: strategy}, logger)
	datasets := service.NewDatasetService(reg, nil, logger)
	index := vector.NewIndex(vector.NewHashEmbedder(vector.DefaultDims), vector.Options{Workers: 2}, logger)

	h := NewHandler(datasets, pipeline, index, manager, logger)
	h.NewDataSource = func() service.DataSource { return &fakeSource{} }

	srv := httptest.NewServer(NewRouter(h, []string{"*"}))
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, handler: h}
}

func (e *testEnv) upload(t *testing.T, name, content string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", name)
	part.Write([]byte(content))
	mw.Close()

	resp, err := http.Post(e.server.URL+"/upload_csv", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	return resp
}

func (e *testEnv) postJSON(t *testing.T, path string, payload interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(payload)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return strings.TrimSpace(string(b))
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ============================================================================
// Upload & Query
// ============================================================================

func TestUploadCSV(t *testing.T) {
	env := newTestEnv(t, nil, service.StrategyRules)

	resp := env.upload(t, "people.csv", peopleCSV)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var out struct {
		Message string   `json:"message"`
		Columns []string `json:"columns"`
		Rows    int      `json:"rows"`
	}
	decode(t, resp, &out)
	if out.Message != "CSV 'people.csv' uploaded successfully" {
		t.Errorf("Unexpected message %q", out.Message)
	}
	if strings.Join(out.Columns, ",") != "name,age,city" || out.Rows != 2 {
		t.Errorf("Unexpected upload response %+v", out)
	}

	resp = env.upload(t, "notes.txt", "hello")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for a non-CSV file, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestQueryCSVReturnsRows(t *testing.T) {
	env := newTestEnv(t, nil, service.StrategyRules)
	env.upload(t, "people.csv", peopleCSV).Body.Close()

	resp := env.postJSON(t, "/query_csv", map[string]string{"filename": "people.csv", "query": "city is NYC"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if body := readBody(t, resp); body != `[{"city":"NYC","name":"Ann"}]` {
		t.Errorf("Unexpected body %s", body)
	}
}

func TestQueryCSVFallsBackOnBadCode(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{reply: "result = df['nope']"}, service.StrategyModel)
	env.upload(t, "people.csv", peopleCSV).Body.Close()

	resp := env.postJSON(t, "/query_csv", map[string]string{"filename": "people.csv", "query": "anything"})
	var rows []map[string]interface{}
	decode(t, resp, &rows)
	if len(rows) != 2 {
		t.Errorf("Expected the first rows, got %v", rows)
	}
}

func TestAskErrors(t *testing.T) {
	env := newTestEnv(t, nil, service.StrategyModel)

	resp := env.postJSON(t, "/ask", map[string]string{"filename": "missing.csv", "question": "x"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
	var out struct {
		Error struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	decode(t, resp, &out)
	if out.Error.Kind != "DatasetNotFound" {
		t.Errorf("Expected DatasetNotFound, got %q", out.Error.Kind)
	}

	env.upload(t, "people.csv", peopleCSV).Body.Close()
	resp = env.postJSON(t, "/ask", map[string]string{"filename": "people.csv", "question": "x"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a model, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.postJSON(t, "/ask", map[string]string{"filename": "people.csv", "question": "x", "strategy": "psychic"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for an unknown strategy, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, _ = http.Post(env.server.URL+"/ask", "application/json", strings.NewReader("{"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad JSON, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAskReportsExecutionError(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{reply: "```python\nresult = open('x')\n```"}, service.StrategyModel)
	env.upload(t, "people.csv", peopleCSV).Body.Close()

	resp := env.postJSON(t, "/ask", map[string]string{"filename": "people.csv", "question": "read a file"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var ans struct {
		Code   string `json:"code"`
		Result struct {
			Kind  string `json:"kind"`
			Error struct {
				Kind string `json:"kind"`
			} `json:"error"`
		} `json:"result"`
	}
	decode(t, resp, &ans)
	if ans.Code != "result = open('x')" {
		t.Errorf("Expected the generated code, got %q", ans.Code)
	}
	if ans.Result.Kind != "error" || ans.Result.Error.Kind != "ExecutionError" {
		t.Errorf("Expected an ExecutionError result, got %+v", ans.Result)
	}
}

func TestAskRulesOverride(t *testing.T) {
	env := newTestEnv(t, nil, service.StrategyModel)
	env.upload(t, "people.csv", peopleCSV).Body.Close()

	resp := env.postJSON(t, "/ask", map[string]string{"filename": "people.csv", "question": "name is bo", "strategy": "rules"})
	var ans struct {
		Strategy string `json:"strategy"`
		Result   struct {
			Rows []map[string]interface{} `json:"rows"`
		} `json:"result"`
	}
	decode(t, resp, &ans)
	if ans.Strategy != "rules" || len(ans.Result.Rows) != 1 || ans.Result.Rows[0]["name"] != "Bo" {
		t.Errorf("Unexpected answer %+v", ans)
	}
}

// ============================================================================
// Semantic index
// ============================================================================

func TestIndexAndRetrieve(t *testing.T) {
	env := newTestEnv(t, nil, service.StrategyRules)
	env.upload(t, "people.csv", peopleCSV).Body.Close()

	resp := env.postJSON(t, "/index_csv", map[string]string{"filename": "people.csv"})
	if body := readBody(t, resp); body != `{"status":"indexed","rows":2}` {
		t.Errorf("Unexpected index response %s", body)
	}

	resp = env.postJSON(t, "/retrieve", map[string]interface{}{"query": "LA", "top_k": 1})
	var matches []struct {
		ID    string  `json:"id"`
		Text  string  `json:"text"`
		Score float64 `json:"score"`
	}
	decode(t, resp, &matches)
	if len(matches) != 1 || matches[0].Text != "name: Bo | age: 25 | city: LA" {
		t.Errorf("Unexpected matches %+v", matches)
	}

	resp = env.postJSON(t, "/index_csv", map[string]string{"filename": "other.csv"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown dataset, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// ============================================================================
// Datasets
// ============================================================================

func TestDatasetEndpoints(t *testing.T) {
	env := newTestEnv(t, nil, service.StrategyRules)
	env.upload(t, "people.csv", peopleCSV).Body.Close()

	var list struct {
		Datasets []struct {
			Key  string `json:"key"`
			Rows int    `json:"rows"`
		} `json:"datasets"`
	}
	decode(t, env.get(t, "/datasets"), &list)
	if len(list.Datasets) != 1 || list.Datasets[0].Key != "people.csv" || list.Datasets[0].Rows != 2 {
		t.Errorf("Unexpected listing %+v", list)
	}

	var schema struct {
		Types    []string `json:"types"`
		RowCount int      `json:"row_count"`
		Profiles []struct {
			ColumnName string `json:"column_name"`
		} `json:"profiles"`
	}
	decode(t, env.get(t, "/datasets/people.csv/schema"), &schema)
	if strings.Join(schema.Types, ",") != "string,int,string" || schema.RowCount != 2 || len(schema.Profiles) != 3 {
		t.Errorf("Unexpected schema %+v", schema)
	}

	if body := readBody(t, env.get(t, "/datasets/people.csv/preview?rows=1")); body != `[{"name":"Ann","age":30,"city":"NYC"}]` {
		t.Errorf("Unexpected preview %s", body)
	}

	req, _ := http.NewRequest(http.MethodDelete, env.server.URL+"/datasets/people.csv", nil)
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.get(t, "/datasets/people.csv/schema")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// ============================================================================
// Database import
// ============================================================================

func TestDatabaseImport(t *testing.T) {
	env := newTestEnv(t, nil, service.StrategyRules)

	resp := env.get(t, "/api/db/tables")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 before connecting, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.postJSON(t, "/api/db/connect", map[string]interface{}{"type": "mysql"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for mysql, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.postJSON(t, "/api/db/connect", map[string]interface{}{"type": "postgres", "host": "db"})
	if body := readBody(t, resp); body != `{"status":"connected"}` {
		t.Errorf("Unexpected connect response %s", body)
	}

	if body := readBody(t, env.get(t, "/api/db/tables")); body != `{"tables":["orders"]}` {
		t.Errorf("Unexpected tables %s", body)
	}

	resp = env.postJSON(t, "/api/db/import", map[string]interface{}{"table_name": "orders"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	resp.Body.Close()
	if _, err := env.handler.Datasets.Lookup("orders"); err != nil {
		t.Errorf("Expected orders to be loaded, got %v", err)
	}

	resp = env.postJSON(t, "/api/db/import", map[string]interface{}{"table_name": "users; DROP TABLE orders"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown table, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// ============================================================================
// LLM Config & metrics
// ============================================================================

func TestLLMConfig(t *testing.T) {
	env := newTestEnv(t, nil, service.StrategyRules)

	var before struct {
		Available bool `json:"available"`
	}
	decode(t, env.get(t, "/config/llm"), &before)
	if before.Available {
		t.Error("Expected no model to be available")
	}

	resp := env.postJSON(t, "/config/llm", map[string]string{"provider": "openai", "model": "gpt-4o-mini", "apiKey": "sk-secret"})
	body := readBody(t, resp)
	if strings.Contains(body, "sk-secret") {
		t.Error("API key must not be echoed")
	}
	if !env.handler.LLM.Available() || env.handler.LLM.Config().Model != "gpt-4o-mini" {
		t.Errorf("Expected the openai client to be active, got %+v", env.handler.LLM.Config())
	}

	resp = env.postJSON(t, "/config/llm", map[string]string{"provider": "bard"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for an unknown provider, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil, service.StrategyRules)
	if body := readBody(t, env.get(t, "/health")); body != "OK" {
		t.Errorf("Expected OK, got %q", body)
	}
	env.upload(t, "people.csv", peopleCSV).Body.Close()
	env.postJSON(t, "/ask", map[string]string{"filename": "people.csv", "question": "show age"}).Body.Close()

	if body := readBody(t, env.get(t, "/metrics")); !strings.Contains(body, "nlq_queries_total") {
		t.Error("Expected query metrics to be exported")
	}
}
