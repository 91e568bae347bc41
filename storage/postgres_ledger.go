package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"affiliate-poster/models"
)

// PostgresLedger keeps posted ids in the posted_products table. Rows are
// only inserted, never updated or deleted.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger opens a connection to PostgreSQL, runs the schema
// migration, and returns a ready-to-use PostgresLedger.
func NewPostgresLedger(ctx context.Context, dsn string) (*PostgresLedger, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 5; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pl := &PostgresLedger{db: db}
	if err := pl.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pl, nil
}

func (pl *PostgresLedger) migrate(ctx context.Context) error {
	_, err := pl.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS posted_products (
			product_id TEXT        PRIMARY KEY,
			posted_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

// Load returns every recorded id in posting order.
func (pl *PostgresLedger) Load(ctx context.Context) ([]string, error) {
	rows, err := pl.db.QueryContext(ctx, `SELECT product_id FROM posted_products ORDER BY posted_at, product_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load ledger: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Record inserts id; an id that is already present is left untouched.
func (pl *PostgresLedger) Record(ctx context.Context, id models.ProductID) error {
	_, err := pl.db.ExecContext(ctx,
		`INSERT INTO posted_products (product_id) VALUES ($1) ON CONFLICT (product_id) DO NOTHING`,
		id.String())
	if err != nil {
		return fmt.Errorf("postgres: record %s: %w", id, err)
	}
	return nil
}

func (pl *PostgresLedger) Close() error {
	return pl.db.Close()
}
