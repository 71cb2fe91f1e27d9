package state

import (
	"testing"

	"go.uber.org/zap"

	"github.com/poornimagithubrit/Agentic-RAG/internal/models"
)

func newTestRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	r := NewRegistry(opts, zap.NewNop().Sugar())
	t.Cleanup(r.Close)
	return r
}

func dataset(file string, rows int) *models.Dataset {
	ds := &models.Dataset{Key: file, FileName: file}
	ds.Columns = []string{"n"}
	for i := 0; i < rows; i++ {
		ds.Rows = append(ds.Rows, []any{float64(i)})
	}
	return ds
}

func TestStoreAndLookup(t *testing.T) {
	r := newTestRegistry(t, Options{})

	r.Store("a.csv", dataset("a.csv", 2))
	got, ok := r.Lookup("a.csv")
	if !ok {
		t.Fatal("Expected a.csv to be stored")
	}
	if got.Key != "a.csv" {
		t.Errorf("Expected key a.csv, got %q", got.Key)
	}
	if len(got.Rows) != 2 {
		t.Errorf("Expected 2 rows, got %d", len(got.Rows))
	}

	if _, ok := r.Lookup("missing.csv"); ok {
		t.Error("Expected missing.csv to be absent")
	}
}

func TestStoreLeavesDatasetUntouched(t *testing.T) {
	r := newTestRegistry(t, Options{})
	ds := dataset("orig.csv", 1)

	r.Store("alias.csv", ds)

	if ds.Key != "orig.csv" {
		t.Errorf("Expected Store not to rewrite the key, got %q", ds.Key)
	}
	got, ok := r.Lookup("alias.csv")
	if !ok || got != ds {
		t.Error("Expected the same dataset back under alias.csv")
	}
}

func TestStoreReplaces(t *testing.T) {
	r := newTestRegistry(t, Options{})

	r.Store("a.csv", dataset("a.csv", 2))
	r.Store("a.csv", dataset("a.csv", 5))

	got, _ := r.Lookup("a.csv")
	if len(got.Rows) != 5 {
		t.Errorf("Expected replacement with 5 rows, got %d", len(got.Rows))
	}
	if r.Len() != 1 {
		t.Errorf("Expected 1 dataset, got %d", r.Len())
	}
}

func TestDeleteAndKeys(t *testing.T) {
	r := newTestRegistry(t, Options{})
	r.Store("b.csv", dataset("b.csv", 1))
	r.Store("a.csv", dataset("a.csv", 1))
	r.Store("c.csv", dataset("c.csv", 1))

	keys := r.Keys()
	if len(keys) != 3 || keys[0] != "a.csv" || keys[1] != "b.csv" || keys[2] != "c.csv" {
		t.Errorf("Expected sorted keys, got %v", keys)
	}

	if !r.Delete("b.csv") {
		t.Error("Expected Delete to report b.csv as present")
	}
	if r.Delete("b.csv") {
		t.Error("Expected second Delete to report false")
	}
	if r.Len() != 2 {
		t.Errorf("Expected 2 datasets after delete, got %d", r.Len())
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	r := newTestRegistry(t, Options{Capacity: 1})

	r.Store("a.csv", dataset("a.csv", 1))
	r.Store("b.csv", dataset("b.csv", 1))

	if _, ok := r.Lookup("a.csv"); ok {
		t.Error("Expected a.csv to be evicted")
	}
	if _, ok := r.Lookup("b.csv"); !ok {
		t.Error("Expected b.csv to be kept")
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("name,age\nAda,36\n"))
	b := Fingerprint([]byte("name,age\nAda,36\n"))
	c := Fingerprint([]byte("name,age\nAda,37\n"))

	if a != b {
		t.Error("Expected equal input to give equal fingerprints")
	}
	if a == c {
		t.Error("Expected different input to give different fingerprints")
	}
	if len(a) != 64 {
		t.Errorf("Expected 64 hex characters, got %d", len(a))
	}
}
