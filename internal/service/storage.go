package service

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// Saver keeps the raw bytes of an upload. Nothing on the query path reads
// them back.
type Saver interface {
	Save(ctx context.Context, key string, raw []byte) error
}

// NopStore discards uploads.
type NopStore struct{}

func (NopStore) Save(context.Context, string, []byte) error { return nil }

// FileStore writes uploads into a directory, one file per dataset key.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create upload dir %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes to a temporary file and renames it into place, so a reader
// never sees a partial upload.
func (s *FileStore) Save(_ context.Context, key string, raw []byte) error {
	name, err := s.path(key)
	if err != nil {
		return err
	}
	tmp := filepath.Join(s.dir, ".upload-"+uuid.NewString())
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.Wrap(err, "write upload")
	}
	if err := os.Rename(tmp, name); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "store upload")
	}
	return nil
}

// Load reads a stored upload back.
func (s *FileStore) Load(key string) ([]byte, error) {
	name, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(name)
}

// Keys lists stored uploads.
func (s *FileStore) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		keys = append(keys, e.Name())
	}
	return keys, nil
}

func (s *FileStore) path(key string) (string, error) {
	base := filepath.Base(key)
	if base != key || base == "." || base == ".." || strings.HasPrefix(base, ".") {
		return "", errors.Errorf("invalid dataset key %q", key)
	}
	return filepath.Join(s.dir, base), nil
}

// PostgresStore appends uploads to the dataset_uploads table.
type PostgresStore struct {
	db *sql.DB
}

const createUploadsTable = `
	CREATE TABLE IF NOT EXISTS dataset_uploads (
		id          UUID PRIMARY KEY,
		dataset_key TEXT NOT NULL,
		content     BYTEA NOT NULL,
		uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	if _, err := db.ExecContext(ctx, createUploadsTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create dataset_uploads")
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Save(ctx context.Context, key string, raw []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dataset_uploads (id, dataset_key, content) VALUES ($1, $2, $3)`,
		uuid.NewString(), key, raw)
	return errors.Wrap(err, "insert upload")
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
