package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// DataSourceConfig holds connection details
type DataSourceConfig struct {
	Type     string `json:"type"` // only "postgres"
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"` // "disable", "require"
}

// DSN renders the config as a lib/pq connection string.
func (c DataSourceConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, port, c.User, c.Password, c.DBName, sslMode)
}

// ErrUnknownTable is returned for a table that is not in the public schema.
var ErrUnknownTable = errors.New("unknown table")

// DataSource is an external database that tables can be imported from.
type DataSource interface {
	Connect(ctx context.Context, config DataSourceConfig) error
	Close() error
	ListTables(ctx context.Context) ([]string, error)
	ReadTable(ctx context.Context, table string, limit int) ([]string, [][]any, error)
}

// PostgresSource reads tables from the public schema of a Postgres database.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource() *PostgresSource {
	return &PostgresSource{}
}

func (p *PostgresSource) Connect(ctx context.Context, config DataSourceConfig) error {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.Wrap(err, "ping postgres")
	}
	if p.db != nil {
		p.db.Close()
	}
	p.db = db
	return nil
}

func (p *PostgresSource) Connected() bool {
	return p.db != nil
}

func (p *PostgresSource) Close() error {
	if p.db != nil {
		err := p.db.Close()
		p.db = nil
		return err
	}
	return nil
}

func (p *PostgresSource) ListTables(ctx context.Context) ([]string, error) {
	if p.db == nil {
		return nil, errors.New("not connected to a database")
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, err
		}
		tables = append(tables, tableName)
	}
	return tables, rows.Err()
}

// ReadTable returns up to limit rows of a table. The name must be one of
// ListTables and is quoted before use.
func (p *PostgresSource) ReadTable(ctx context.Context, table string, limit int) ([]string, [][]any, error) {
	tables, err := p.ListTables(ctx)
	if err != nil {
		return nil, nil, err
	}
	known := false
	for _, t := range tables {
		if t == table {
			known = true
			break
		}
	}
	if !known {
		return nil, nil, errors.Wrapf(ErrUnknownTable, "%q", table)
	}

	rows, err := p.db.QueryContext(ctx,
		fmt.Sprintf("SELECT * FROM %s LIMIT $1", pq.QuoteIdentifier(table)), limit)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var data [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, nil, err
		}
		data = append(data, values)
	}
	return columns, data, rows.Err()
}
