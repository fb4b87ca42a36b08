package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/i474232898/degreeday-logger/internal/dglogger"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schemaSQL = `CREATE TABLE IF NOT EXISTS dg_loggers (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore keeps each logger as one JSONB document.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a PostgresStore backed by a pool or transaction.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the loggers table if it is missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// LoadLoggers returns every stored logger, oldest update first.
func (s *PostgresStore) LoadLoggers(ctx context.Context) ([]dglogger.Logger, error) {
	rows, err := s.db.Query(ctx, `SELECT doc FROM dg_loggers ORDER BY updated_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query loggers: %w", err)
	}
	defer rows.Close()

	var out []dglogger.Logger
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan logger: %w", err)
		}
		var l dglogger.Logger
		if err := json.Unmarshal(doc, &l); err != nil {
			return nil, fmt.Errorf("decode logger: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loggers: %w", err)
	}
	return out, nil
}

// SaveLogger upserts a logger document.
func (s *PostgresStore) SaveLogger(ctx context.Context, l dglogger.Logger) error {
	doc, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode logger %s: %w", l.ID, err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO dg_loggers (id, doc, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		l.ID, doc, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save logger %s: %w", l.ID, err)
	}
	return nil
}

// DeleteLogger removes a logger document.
func (s *PostgresStore) DeleteLogger(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM dg_loggers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete logger %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
