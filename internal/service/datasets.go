package service

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/poornimagithubrit/Agentic-RAG/internal/analysis"
	"github.com/poornimagithubrit/Agentic-RAG/internal/models"
	"github.com/poornimagithubrit/Agentic-RAG/internal/state"
)

// DefaultImportLimit bounds a database import when no limit is given.
const DefaultImportLimit = 10000

// DatasetService loads datasets into the registry.
type DatasetService struct {
	registry *state.Registry
	csv      *analysis.CSVService
	saver    Saver
	logger   *zap.SugaredLogger
}

func NewDatasetService(registry *state.Registry, saver Saver, logger *zap.SugaredLogger) *DatasetService {
	if saver == nil {
		saver = NopStore{}
	}
	return &DatasetService{
		registry: registry,
		csv:      analysis.NewCSVService(),
		saver:    saver,
		logger:   logger,
	}
}

// Upload parses raw CSV and publishes it under key. The raw bytes are
// handed to the saver; a save failure is logged and does not fail the
// upload.
func (s *DatasetService) Upload(ctx context.Context, key string, raw []byte) (*models.Dataset, error) {
	ds, err := s.csv.Parse(raw, key)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", key)
	}
	ds.Key = key
	ds.Fingerprint = state.Fingerprint(raw)
	s.registry.Store(key, ds)

	if err := s.saver.Save(ctx, key, raw); err != nil {
		s.logger.Warnw("failed to persist upload", "dataset", key, "error", err)
	}
	s.logger.Infow("dataset loaded", "dataset", key, "rows", len(ds.Rows), "columns", len(ds.Columns))
	return ds, nil
}

// Import copies a database table into the registry.
func (s *DatasetService) Import(ctx context.Context, src DataSource, table, key string, limit int) (*models.Dataset, error) {
	if limit <= 0 {
		limit = DefaultImportLimit
	}
	if key == "" {
		key = table
	}
	columns, data, err := src.ReadTable(ctx, table, limit)
	if err != nil {
		return nil, err
	}
	ds := s.csv.FromRows(columns, data)
	ds.Key = key
	ds.FileName = table
	ds.Fingerprint = state.Fingerprint([]byte(table))
	s.registry.Store(key, ds)
	s.logger.Infow("table imported", "dataset", key, "table", table, "rows", len(ds.Rows))
	return ds, nil
}

// Restore reloads every upload kept by a file store. Unparseable files are
// skipped.
func (s *DatasetService) Restore(ctx context.Context, store *FileStore) (int, error) {
	keys, err := store.Keys()
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			return loaded, ctx.Err()
		}
		raw, err := store.Load(key)
		if err != nil {
			s.logger.Warnw("failed to read stored upload", "dataset", key, "error", err)
			continue
		}
		ds, err := s.csv.Parse(raw, key)
		if err != nil {
			s.logger.Warnw("failed to parse stored upload", "dataset", key, "error", err)
			continue
		}
		ds.Key = key
		ds.Fingerprint = state.Fingerprint(raw)
		s.registry.Store(key, ds)
		loaded++
	}
	return loaded, nil
}

// Lookup returns a dataset or a DatasetNotFound error.
func (s *DatasetService) Lookup(key string) (*models.Dataset, error) {
	ds, ok := s.registry.Lookup(key)
	if !ok {
		return nil, newQueryError(KindDatasetNotFound, nil, "dataset %q not found, upload it first", key)
	}
	return ds, nil
}

func (s *DatasetService) Delete(key string) bool {
	return s.registry.Delete(key)
}

// List describes every loaded dataset in key order.
func (s *DatasetService) List() []models.DatasetStatus {
	out := []models.DatasetStatus{}
	for _, key := range s.registry.Keys() {
		ds, ok := s.registry.Lookup(key)
		if !ok {
			continue
		}
		out = append(out, models.DatasetStatus{
			Key:         key,
			Filename:    ds.FileName,
			Rows:        len(ds.Rows),
			Columns:     len(ds.Columns),
			Fingerprint: ds.Fingerprint,
			LoadedAt:    ds.LoadedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return out
}
