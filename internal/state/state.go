package state

import (
	"context"
	"encoding/hex"
	"sort"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/poornimagithubrit/Agentic-RAG/internal/metrics"
	"github.com/poornimagithubrit/Agentic-RAG/internal/models"
)

// Options bounds the registry. Zero values keep every dataset for the
// lifetime of the process.
type Options struct {
	Capacity uint64
	TTL      time.Duration
}

// Registry maps dataset keys to loaded datasets. Datasets are published
// whole: a reader gets either the previous or the new value for a key.
type Registry struct {
	cache   *ttlcache.Cache[string, *models.Dataset]
	logger  *zap.SugaredLogger
	started bool
}

// NewRegistry creates a registry. With a TTL configured the expiry loop runs
// until Close.
func NewRegistry(opts Options, logger *zap.SugaredLogger) *Registry {
	cache := ttlcache.New[string, *models.Dataset](
		ttlcache.WithTTL[string, *models.Dataset](opts.TTL),
		ttlcache.WithCapacity[string, *models.Dataset](opts.Capacity),
	)

	r := &Registry{cache: cache, logger: logger}

	cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *models.Dataset]) {
		if reason == ttlcache.EvictionReasonDeleted {
			return
		}
		logger.Infow("dataset evicted", "dataset", item.Key(), "reason", evictionReason(reason))
		metrics.DatasetsLoaded.Set(float64(cache.Len()))
	})

	if opts.TTL > 0 {
		r.started = true
		go cache.Start()
	}
	return r
}

// Store publishes ds under key, replacing any previous dataset. ds must be
// fully built; the registry never modifies it.
func (r *Registry) Store(key string, ds *models.Dataset) {
	r.cache.Set(key, ds, ttlcache.DefaultTTL)
	metrics.DatasetsLoaded.Set(float64(r.cache.Len()))
	r.logger.Debugw("dataset stored", "dataset", key, "rows", len(ds.Rows), "columns", len(ds.Columns))
}

// Lookup returns the dataset stored under key.
func (r *Registry) Lookup(key string) (*models.Dataset, bool) {
	item := r.cache.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Delete drops a dataset. It reports whether the key was present.
func (r *Registry) Delete(key string) bool {
	if item := r.cache.Get(key); item == nil {
		return false
	}
	r.cache.Delete(key)
	metrics.DatasetsLoaded.Set(float64(r.cache.Len()))
	return true
}

// Keys returns the stored keys in sorted order.
func (r *Registry) Keys() []string {
	keys := r.cache.Keys()
	sort.Strings(keys)
	return keys
}

func (r *Registry) Len() int {
	return r.cache.Len()
}

// Close stops the expiry loop, if one is running.
func (r *Registry) Close() {
	if r.started {
		r.cache.Stop()
		r.started = false
	}
}

// Fingerprint returns the hex BLAKE2b-256 digest of an upload.
func Fingerprint(raw []byte) string {
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func evictionReason(reason ttlcache.EvictionReason) string {
	switch reason {
	case ttlcache.EvictionReasonCapacityReached:
		return "capacity"
	case ttlcache.EvictionReasonExpired:
		return "expired"
	default:
		return "deleted"
	}
}
