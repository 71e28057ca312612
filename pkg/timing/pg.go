package timing

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSink stores timing entries in PostgreSQL
type PGSink struct {
	pool *pgxpool.Pool
}

// NewPGSink connects to databaseURL and creates the runs table if needed
func NewPGSink(ctx context.Context, databaseURL string) (*PGSink, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// A run records one row, so a small pool is plenty
	config.MaxConns = 4
	config.MinConns = 0
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	s := &PGSink{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

func (s *PGSink) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS kmeans_runs (
		id BIGSERIAL PRIMARY KEY,
		run_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		workers INTEGER NOT NULL,
		points INTEGER NOT NULL,
		features INTEGER NOT NULL,
		clusters INTEGER NOT NULL,
		iterations INTEGER NOT NULL,
		elapsed_seconds DOUBLE PRECISION NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_kmeans_runs_shape ON kmeans_runs(points, features, clusters, workers);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Record inserts e
func (s *PGSink) Record(ctx context.Context, e Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	query := `
		INSERT INTO kmeans_runs (run_id, mode, workers, points, features, clusters, iterations, elapsed_seconds, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, query,
		e.RunID,
		string(e.Mode),
		e.Workers,
		e.Points,
		e.Features,
		e.Clusters,
		e.Iterations,
		e.Elapsed.Seconds(),
		e.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first
func (s *PGSink) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT run_id, mode, workers, points, features, clusters, iterations, elapsed_seconds, recorded_at
		FROM kmeans_runs
		ORDER BY recorded_at DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		var mode string
		var seconds float64
		err := row.Scan(&e.RunID, &mode, &e.Workers, &e.Points, &e.Features, &e.Clusters, &e.Iterations, &seconds, &e.RecordedAt)
		e.Mode = Mode(mode)
		e.Elapsed = time.Duration(seconds * float64(time.Second))
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan runs: %w", err)
	}
	return entries, nil
}

// Ping checks database connectivity
func (s *PGSink) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection pool
func (s *PGSink) Close() error {
	s.pool.Close()
	return nil
}
