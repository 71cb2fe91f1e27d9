package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

type failingSaver struct{}

func (failingSaver) Save(context.Context, string, []byte) error {
	return errors.New("disk full")
}

type fakeSource struct {
	tables  []string
	columns []string
	rows    [][]any
}

func (s *fakeSource) Connect(context.Context, DataSourceConfig) error { return nil }
func (s *fakeSource) Close() error                                     { return nil }
func (s *fakeSource) ListTables(context.Context) ([]string, error)     { return s.tables, nil }
func (s *fakeSource) ReadTable(_ context.Context, table string, limit int) ([]string, [][]any, error) {
	rows := s.rows
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return s.columns, rows, nil
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := store.Save(context.Background(), "people.csv", []byte(peopleCSV)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	raw, err := store.Load("people.csv")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(raw) != peopleCSV {
		t.Errorf("Expected stored bytes back, got %q", raw)
	}

	keys, _ := store.Keys()
	if len(keys) != 1 || keys[0] != "people.csv" {
		t.Errorf("Expected only people.csv, got %v", keys)
	}
}

func TestFileStoreRejectsPaths(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	for _, key := range []string{"../escape.csv", "a/b.csv", ".hidden", ".."} {
		if err := store.Save(context.Background(), key, []byte("x")); err == nil {
			t.Errorf("Expected %q to be rejected", key)
		}
	}
}

func TestUploadIgnoresSaveFailure(t *testing.T) {
	reg := newRegistry(t)
	svc := NewDatasetService(reg, failingSaver{}, zap.NewNop().Sugar())

	ds, err := svc.Upload(context.Background(), "people.csv", []byte(peopleCSV))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if ds.Fingerprint == "" || ds.Key != "people.csv" {
		t.Errorf("Expected key and fingerprint to be set, got %q %q", ds.Key, ds.Fingerprint)
	}
	if _, err := svc.Lookup("people.csv"); err != nil {
		t.Errorf("Expected dataset to be published, got %v", err)
	}
}

func TestUploadReplacesDataset(t *testing.T) {
	reg := newRegistry(t)
	svc := NewDatasetService(reg, nil, zap.NewNop().Sugar())

	svc.Upload(context.Background(), "d.csv", []byte("a\n1\n"))
	svc.Upload(context.Background(), "d.csv", []byte("b,c\n1,2\n3,4\n"))

	ds, err := svc.Lookup("d.csv")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(ds.Columns) != 2 || len(ds.Rows) != 2 {
		t.Errorf("Expected the second upload, got %v with %d rows", ds.Columns, len(ds.Rows))
	}
	if len(svc.List()) != 1 {
		t.Errorf("Expected one dataset, got %d", len(svc.List()))
	}
}

func TestRestoreFromFileStore(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)
	store.Save(context.Background(), "people.csv", []byte(peopleCSV))
	os.WriteFile(filepath.Join(dir, ".upload-partial"), []byte("junk"), 0o644)

	reg := newRegistry(t)
	svc := NewDatasetService(reg, store, zap.NewNop().Sugar())
	n, err := svc.Restore(context.Background(), store)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 restored dataset, got %d", n)
	}
	ds, ok := reg.Lookup("people.csv")
	if !ok {
		t.Fatal("Expected people.csv in the registry")
	}
	if ds.Key != "people.csv" {
		t.Errorf("Expected restored key people.csv, got %q", ds.Key)
	}
}

func TestImportTable(t *testing.T) {
	src := &fakeSource{
		tables:  []string{"orders"},
		columns: []string{"id", "total", "paid"},
		rows: [][]any{
			{int64(1), []byte("10.50"), true},
			{int64(2), nil, false},
		},
	}
	reg := newRegistry(t)
	svc := NewDatasetService(reg, nil, zap.NewNop().Sugar())

	ds, err := svc.Import(context.Background(), src, "orders", "", 1)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if ds.Key != "orders" || len(ds.Rows) != 1 {
		t.Errorf("Expected one row under orders, got %q with %d rows", ds.Key, len(ds.Rows))
	}
	if ds.Rows[0][0] != 1.0 {
		t.Errorf("Expected numeric id, got %#v", ds.Rows[0][0])
	}
}

func TestDataSourceDSN(t *testing.T) {
	dsn := DataSourceConfig{Host: "db", User: "u", Password: "p", DBName: "x"}.DSN()
	want := "host=db port=5432 user=u password=p dbname=x sslmode=disable"
	if dsn != want {
		t.Errorf("Expected %s, got %s", want, dsn)
	}
}
