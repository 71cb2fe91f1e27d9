package vector

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/poornimagithubrit/Agentic-RAG/internal/llm"
	"github.com/poornimagithubrit/Agentic-RAG/internal/models"
)

func peopleDataset() *models.Dataset {
	return &models.Dataset{Table: models.Table{
		Columns: []string{"name", "city", "role"},
		Rows: [][]any{
			{"Ann", "New York", "engineer"},
			{"Bo", "Los Angeles", "designer"},
			{"Cy", "Paris", "chef"},
			{"Di", nil, "engineer"},
		},
	}}
}

type countingEmbedder struct {
	inner llm.Embedder
	calls int64
	fail  string
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	atomic.AddInt64(&e.calls, 1)
	if e.fail != "" && text == e.fail {
		return nil, errors.New("embedding backend down")
	}
	return e.inner.Embed(ctx, text)
}

func TestRowText(t *testing.T) {
	got := RowText([]string{"name", "age", "city"}, []any{"Ann", 30.0, nil})
	if got != "name: Ann | age: 30 | city: " {
		t.Errorf("Unexpected row text %q", got)
	}
}

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	a, _ := e.Embed(context.Background(), "city: Paris")
	b, _ := e.Embed(context.Background(), "city: Paris")
	if len(a) != 64 {
		t.Fatalf("Expected 64 dims, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("Expected identical vectors for identical text")
		}
	}
	if s := Cosine(a, a); math.Abs(s-1) > 1e-9 {
		t.Errorf("Expected self similarity 1, got %f", s)
	}

	empty, _ := e.Embed(context.Background(), "   ")
	if Cosine(empty, a) != 0 {
		t.Error("Expected zero similarity for an empty text")
	}
}

func TestBuildAndRetrieve(t *testing.T) {
	emb := &countingEmbedder{inner: NewHashEmbedder(DefaultDims)}
	ix := NewIndex(emb, Options{Workers: 3}, zap.NewNop().Sugar())

	status, err := ix.Build(context.Background(), "people.csv", peopleDataset())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if status.Status != "indexed" || status.Rows != 4 {
		t.Errorf("Unexpected status %+v", status)
	}
	if emb.calls != 4 {
		t.Errorf("Expected 4 embedding calls, got %d", emb.calls)
	}

	matches, err := ix.Retrieve(context.Background(), "chef in Paris", 2)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "2" {
		t.Errorf("Expected the Paris row first, got %+v", matches[0])
	}
	if matches[0].Score < matches[1].Score {
		t.Errorf("Expected descending scores, got %v", matches)
	}
	if matches[0].Text != "name: Cy | city: Paris | role: chef" {
		t.Errorf("Unexpected text %q", matches[0].Text)
	}
}

func TestRetrieveDefaults(t *testing.T) {
	ix := NewIndex(NewHashEmbedder(32), Options{}, zap.NewNop().Sugar())
	matches, err := ix.Retrieve(context.Background(), "anything", 0)
	if err != nil || len(matches) != 0 {
		t.Errorf("Expected no matches from an empty index, got %v %v", matches, err)
	}

	ix.Build(context.Background(), "people.csv", peopleDataset())
	matches, _ = ix.Retrieve(context.Background(), "engineer", 0)
	if len(matches) != 4 {
		t.Errorf("Expected every row when fewer than the default k, got %d", len(matches))
	}
}

func TestBuildReplacesIndex(t *testing.T) {
	ix := NewIndex(NewHashEmbedder(32), Options{}, zap.NewNop().Sugar())
	ix.Build(context.Background(), "people.csv", peopleDataset())

	small := &models.Dataset{Table: models.Table{Columns: []string{"x"}, Rows: [][]any{{"1"}}}}
	ix.Build(context.Background(), "small.csv", small)
	if ix.Len() != 1 || ix.Dataset() != "small.csv" {
		t.Errorf("Expected only the new dataset, got %d rows of %s", ix.Len(), ix.Dataset())
	}
}

func TestBuildFailureKeepsPreviousIndex(t *testing.T) {
	emb := &countingEmbedder{inner: NewHashEmbedder(32)}
	ix := NewIndex(emb, Options{Workers: 1}, zap.NewNop().Sugar())
	ix.Build(context.Background(), "people.csv", peopleDataset())

	emb.fail = "x: boom"
	bad := &models.Dataset{Table: models.Table{Columns: []string{"x"}, Rows: [][]any{{"ok"}, {"boom"}}}}
	if _, err := ix.Build(context.Background(), "bad.csv", bad); err == nil {
		t.Fatal("Expected the build to fail")
	}
	if ix.Dataset() != "people.csv" || ix.Len() != 4 {
		t.Errorf("Expected the previous index to survive, got %s/%d", ix.Dataset(), ix.Len())
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "snapshot.bson")
	ix := NewIndex(NewHashEmbedder(32), Options{SnapshotPath: path}, zap.NewNop().Sugar())
	if _, err := ix.Build(context.Background(), "people.csv", peopleDataset()); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	restored := NewIndex(NewHashEmbedder(32), Options{}, zap.NewNop().Sugar())
	if err := restored.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if restored.Len() != 4 || restored.Dataset() != "people.csv" {
		t.Errorf("Expected 4 rows of people.csv, got %d of %s", restored.Len(), restored.Dataset())
	}

	a, _ := ix.Retrieve(context.Background(), "designer", 1)
	b, _ := restored.Retrieve(context.Background(), "designer", 1)
	if a[0].ID != b[0].ID || a[0].Score != b[0].Score {
		t.Errorf("Expected the same best match, got %+v and %+v", a[0], b[0])
	}

	if err := restored.Load(filepath.Join(t.TempDir(), "missing.bson")); err != nil {
		t.Errorf("Expected a missing snapshot to be ignored, got %v", err)
	}
}
