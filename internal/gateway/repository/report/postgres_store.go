package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore persists report history in Postgres over database/sql with
// the pgx driver.
type PostgresStore struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) ensureSchema() error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS troubleshoot_reports (
  request_id TEXT PRIMARY KEY,
  query TEXT NOT NULL DEFAULT '',
  device_type TEXT NOT NULL DEFAULT '',
  answer_type TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT '',
  elapsed_ms BIGINT NOT NULL DEFAULT 0,
  image_key TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_troubleshoot_reports_created_at ON troubleshoot_reports (created_at DESC);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	if strings.TrimSpace(rec.RequestID) == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO troubleshoot_reports (request_id, query, device_type, answer_type, status, elapsed_ms, image_key, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (request_id) DO NOTHING`,
		rec.RequestID, rec.Query, rec.DeviceType, string(rec.AnswerType),
		string(rec.Status), rec.ElapsedMS, rec.ImageKey, rec.CreatedAt)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, requestID string) (Record, error) {
	if err := s.ensureSchema(); err != nil {
		return Record{}, err
	}
	row := s.db.QueryRowContext(ctx, `
SELECT request_id, query, device_type, answer_type, status, elapsed_ms, image_key, created_at
FROM troubleshoot_reports WHERE request_id = $1`, strings.TrimSpace(requestID))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT request_id, query, device_type, answer_type, status, elapsed_ms, image_key, created_at
FROM troubleshoot_reports
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.RequestID,
		&rec.Query,
		&rec.DeviceType,
		&rec.AnswerType,
		&rec.Status,
		&rec.ElapsedMS,
		&rec.ImageKey,
		&rec.CreatedAt,
	)
	return rec, err
}
