package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/poornimagithubrit/Agentic-RAG/internal/config"
)

// --- Test Fixtures ---

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T, dir string) string {
	t.Helper()
	return writeFile(t, dir, "config.yaml", `
log:
  level: error
storage:
  kind: file
  dir: `+filepath.Join(dir, "uploads")+`
vector:
  snapshot_path: `+filepath.Join(dir, "index.bson")+`
`)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// ============================================================================
// COMMANDS
// ============================================================================

func TestAskCommandRules(t *testing.T) {
	dir := t.TempDir()
	cfgPath := testConfig(t, dir)
	csvPath := writeFile(t, dir, "people.csv", "name,age,city\nAnn,30,NYC\nBo,25,LA\n")

	out, err := execute(t, "ask", "--config", cfgPath, "--file", csvPath, "--strategy", "rules", "city is NYC")
	if err != nil {
		t.Fatalf("ask failed: %v\n%s", err, out)
	}

	var ans struct {
		Strategy string `json:"strategy"`
		Result   struct {
			Kind string           `json:"kind"`
			Rows []map[string]any `json:"rows"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(out), &ans); err != nil {
		t.Fatalf("Expected JSON answer, got %q: %v", out, err)
	}
	if ans.Strategy != "rules" || ans.Result.Kind != "rows" {
		t.Errorf("Expected rules/rows, got %s/%s", ans.Strategy, ans.Result.Kind)
	}
	if len(ans.Result.Rows) != 1 || ans.Result.Rows[0]["name"] != "Ann" {
		t.Errorf("Expected Ann only, got %v", ans.Result.Rows)
	}

	// ask never persists the file it reads.
	if _, err := os.Stat(filepath.Join(dir, "uploads")); !os.IsNotExist(err) {
		t.Errorf("Expected no uploads dir, got %v", err)
	}
}

func TestAskCommandErrors(t *testing.T) {
	dir := t.TempDir()
	cfgPath := testConfig(t, dir)
	csvPath := writeFile(t, dir, "people.csv", "name,age\nAnn,30\n")

	cases := map[string][]string{
		"missing file":     {"ask", "--config", cfgPath, "--file", filepath.Join(dir, "nope.csv"), "q"},
		"unknown strategy": {"ask", "--config", cfgPath, "--file", csvPath, "--strategy", "magic", "q"},
		"no question":      {"ask", "--config", cfgPath, "--file", csvPath},
		"no file flag":     {"ask", "--config", cfgPath, "q"},
	}
	for name, args := range cases {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if strings.TrimSpace(out) != version {
		t.Errorf("Expected %q, got %q", version, out)
	}
}

// ============================================================================
// WIRING
// ============================================================================

func TestNewAppRestoresUploads(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(testConfig(t, dir))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, cfg.Storage.Dir, "people.csv", "name,age\nAnn,30\n")

	a, err := newApp(context.Background(), cfg, zap.NewNop().Sugar(), true)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()

	list := a.datasets.List()
	if len(list) != 1 || list[0].Key != "people.csv" || list[0].Rows != 1 {
		t.Errorf("Expected people.csv restored with 1 row, got %+v", list)
	}
	if a.llm.Available() {
		t.Error("Expected no language model with the default provider")
	}
}
