package vector

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/poornimagithubrit/Agentic-RAG/internal/llm"
	"github.com/poornimagithubrit/Agentic-RAG/internal/metrics"
	"github.com/poornimagithubrit/Agentic-RAG/internal/models"
)

// DefaultTopK is used when a retrieval asks for no particular count.
const DefaultTopK = 5

// Entry is one indexed row.
type Entry struct {
	ID     string    `bson:"id"`
	Text   string    `bson:"text"`
	Vector []float64 `bson:"vector"`
}

type snapshot struct {
	Dataset string    `bson:"dataset"`
	SavedAt time.Time `bson:"saved_at"`
	Entries []Entry   `bson:"entries"`
}

type Options struct {
	Workers int
	// SnapshotPath, when set, is where the index is saved after each build
	// and loaded from at startup.
	SnapshotPath string
}

// Index is an in-memory nearest-neighbour index over dataset rows. A
// build replaces the previous contents as a whole.
type Index struct {
	embedder llm.Embedder
	opts     Options
	logger   *zap.SugaredLogger

	mu      sync.RWMutex
	dataset string
	entries []Entry
}

func NewIndex(embedder llm.Embedder, opts Options, logger *zap.SugaredLogger) *Index {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Index{embedder: embedder, opts: opts, logger: logger}
}

// RowText renders a row as "col: val | col: val".
func RowText(columns []string, row []any) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		var v any
		if i < len(row) {
			v = row[i]
		}
		parts[i] = c + ": " + models.Stringify(v)
	}
	return strings.Join(parts, " | ")
}

// Build embeds every row of ds and replaces the index with the result.
// Embedding calls run on a bounded worker pool; the first failure aborts
// the build and leaves the previous index in place.
func (ix *Index) Build(ctx context.Context, key string, ds *models.Dataset) (models.IndexResponse, error) {
	entries := make([]Entry, len(ds.Rows))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		errMu    sync.Mutex
		firstErr error
	)
	wp := workerpool.New(ix.opts.Workers)
	for i, row := range ds.Rows {
		i, text := i, RowText(ds.Columns, row)
		wp.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			vec, err := ix.embedder.Embed(ctx, text)
			if err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = errors.Wrapf(err, "embed row %d", i)
					cancel()
				}
				errMu.Unlock()
				return
			}
			entries[i] = Entry{ID: strconv.Itoa(i), Text: text, Vector: vec}
		})
	}
	wp.StopWait()

	if firstErr != nil {
		return models.IndexResponse{}, firstErr
	}
	if err := ctx.Err(); err != nil {
		return models.IndexResponse{}, err
	}

	ix.mu.Lock()
	ix.dataset = key
	ix.entries = entries
	ix.mu.Unlock()
	metrics.IndexedRows.Add(float64(len(entries)))
	ix.logger.Infow("index built", "dataset", key, "rows", len(entries))

	if ix.opts.SnapshotPath != "" {
		if err := ix.Save(ix.opts.SnapshotPath); err != nil {
			ix.logger.Warnw("failed to save index snapshot", "path", ix.opts.SnapshotPath, "error", err)
		}
	}
	return models.IndexResponse{Status: "indexed", Rows: len(entries)}, nil
}

// Retrieve returns the k entries most similar to text, best first. Score
// is cosine similarity.
func (ix *Index) Retrieve(ctx context.Context, text string, k int) ([]models.Match, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	ix.mu.RLock()
	entries := ix.entries
	ix.mu.RUnlock()
	if len(entries) == 0 {
		return []models.Match{}, nil
	}

	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}

	matches := make([]models.Match, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) != len(vec) {
			continue
		}
		matches = append(matches, models.Match{ID: e.ID, Text: e.Text, Score: Cosine(vec, e.Vector)})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Len returns the number of indexed rows.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Dataset returns the key of the indexed dataset.
func (ix *Index) Dataset() string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dataset
}

// Save writes the index as a BSON document.
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	snap := snapshot{Dataset: ix.dataset, SavedAt: time.Now().UTC(), Entries: ix.entries}
	ix.mu.RUnlock()

	data, err := bson.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load replaces the index with a saved snapshot. A missing file is not an
// error.
func (ix *Index) Load(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var snap snapshot
	if err := bson.Unmarshal(data, &snap); err != nil {
		return errors.Wrapf(err, "decode snapshot %s", path)
	}

	ix.mu.Lock()
	ix.dataset = snap.Dataset
	ix.entries = snap.Entries
	ix.mu.Unlock()
	ix.logger.Infow("index snapshot loaded", "dataset", snap.Dataset, "rows", len(snap.Entries))
	return nil
}
