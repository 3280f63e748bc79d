package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pharos-cli/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store is the PostgreSQL run registry. It records one row per finished run
// plus the run's deduplicated warnings; the artifact files themselves stay on
// disk and the row carries their location.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const sqlCreateTables = `
        CREATE TABLE IF NOT EXISTS gather_runs (
            run_id TEXT PRIMARY KEY,
            requested_url TEXT NOT NULL,
            final_url TEXT NOT NULL,
            fetch_time TIMESTAMPTZ NOT NULL,
            host_user_agent TEXT NOT NULL DEFAULT '',
            network_user_agent TEXT NOT NULL DEFAULT '',
            tested_as_mobile BOOLEAN NOT NULL DEFAULT FALSE,
            benchmark_index DOUBLE PRECISION NOT NULL DEFAULT 0,
            settings JSONB NOT NULL DEFAULT '{}',
            artifact_path TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL
        );

        CREATE TABLE IF NOT EXISTS gather_run_warnings (
            run_id TEXT NOT NULL REFERENCES gather_runs(run_id) ON DELETE CASCADE,
            seq INTEGER NOT NULL,
            message TEXT NOT NULL,
            PRIMARY KEY (run_id, seq)
        );
    `

// EnsureSchema creates the registry tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateTables); err != nil {
		return fmt.Errorf("failed to create run registry tables: %w", err)
	}
	return nil
}

const sqlInsertRun = `
        INSERT INTO gather_runs (run_id, requested_url, final_url, fetch_time, host_user_agent, network_user_agent, tested_as_mobile, benchmark_index, settings, artifact_path, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
    `

// SaveRun records a finished run and its warnings in one transaction.
// artifactPath is where the bundle was written, empty when it was not.
func (s *Store) SaveRun(ctx context.Context, bundle *schemas.ArtifactBundle, artifactPath string) error {
	if bundle == nil || bundle.Base == nil {
		return fmt.Errorf("artifact bundle has no base artifacts")
	}
	base := bundle.Base

	settings, err := json.Marshal(base.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal run settings: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.Exec(ctx, sqlInsertRun,
		base.RunID,
		base.URL.RequestedURL,
		base.URL.FinalURL,
		base.FetchTime.UTC(),
		base.HostUserAgent,
		base.NetworkUserAgent,
		base.TestedAsMobileDevice,
		base.BenchmarkIndex,
		settings,
		artifactPath,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", base.RunID, err)
	}

	if len(base.Warnings) > 0 {
		rows := make([][]interface{}, len(base.Warnings))
		for i, message := range base.Warnings {
			rows[i] = []interface{}{base.RunID, i, message}
		}

		copyCount, err := tx.CopyFrom(
			ctx,
			pgx.Identifier{"gather_run_warnings"},
			[]string{"run_id", "seq", "message"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to copy run warnings: %w", err)
		}
		if int(copyCount) != len(base.Warnings) {
			return fmt.Errorf("mismatch in copied warnings count: expected %d, got %d", len(base.Warnings), copyCount)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RunSummary is one row of the run registry listing.
type RunSummary struct {
	RunID                string
	RequestedURL         string
	FinalURL             string
	FetchTime            time.Time
	TestedAsMobileDevice bool
	BenchmarkIndex       float64
	ArtifactPath         string
	CreatedAt            time.Time
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
        SELECT run_id, requested_url, final_url, fetch_time, tested_as_mobile, benchmark_index, artifact_path, created_at
        FROM gather_runs
        ORDER BY created_at DESC
        LIMIT $1;
    `
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		err := rows.Scan(
			&r.RunID, &r.RequestedURL, &r.FinalURL, &r.FetchTime,
			&r.TestedAsMobileDevice, &r.BenchmarkIndex, &r.ArtifactPath, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return runs, nil
}
