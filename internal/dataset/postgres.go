package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"contactdir/internal/gateway/entity"
)

// PostgresSource stores each company as a JSONB document keyed by id.
type PostgresSource struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

// OpenPostgres connects through the pgx stdlib driver and pings once.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSource, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresSource(db), nil
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Name() string { return "postgres:companies" }

func (s *PostgresSource) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresSource) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS companies (
    id TEXT PRIMARY KEY,
    data JSONB NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
`)
	})
	return s.schemaErr
}

func (s *PostgresSource) List(ctx context.Context) ([]entity.Company, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM companies WHERE id NOT LIKE '\_%' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.Company
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		c, err := decodeRecord(id+".json", data)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresSource) Put(ctx context.Context, c entity.Company) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	data, err := entity.CanonicalJSON(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO companies (id, data, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (id)
DO UPDATE SET data=EXCLUDED.data, updated_at=EXCLUDED.updated_at
`, c.ID, data, time.Now())
	return err
}
