package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ExclusionRepository reads the superseded-records table: decisions
// overturned by later case law and statutes repealed by revision. The
// snapshot is cached briefly since the table changes on editorial
// cadence, not per request.
type ExclusionRepository struct {
	db       *sql.DB
	cacheTTL time.Duration

	mu        sync.Mutex
	cached    map[string]string
	fetchedAt time.Time
}

func NewExclusionRepository(db *sql.DB, cacheTTL time.Duration) *ExclusionRepository {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &ExclusionRepository{db: db, cacheTTL: cacheTTL}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ExclusionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS superseded_records (
	record_key TEXT PRIMARY KEY,
	reason TEXT NOT NULL,
	superseded_by TEXT,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Snapshot returns the current exclusion set keyed by stable record
// identifier (normalized decision id or SR number), with a short label
// describing why the record is excluded.
func (r *ExclusionRepository) Snapshot(ctx context.Context) (map[string]string, error) {
	r.mu.Lock()
	if r.cached != nil && time.Since(r.fetchedAt) < r.cacheTTL {
		snapshot := r.cached
		r.mu.Unlock()
		return snapshot, nil
	}
	r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `
SELECT record_key, reason, COALESCE(superseded_by, '')
FROM superseded_records`)
	if err != nil {
		return nil, fmt.Errorf("query superseded records: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[string]string)
	for rows.Next() {
		var key, reason, supersededBy string
		if err := rows.Scan(&key, &reason, &supersededBy); err != nil {
			return nil, fmt.Errorf("scan superseded record: %w", err)
		}
		label := reason
		if supersededBy != "" {
			label = fmt.Sprintf("%s by %s", reason, supersededBy)
		}
		snapshot[strings.TrimSpace(key)] = label
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate superseded records: %w", err)
	}

	r.mu.Lock()
	r.cached = snapshot
	r.fetchedAt = time.Now()
	r.mu.Unlock()
	return snapshot, nil
}

// Add records a superseded entry and invalidates the cache. Used by the
// editorial ingestion path, not the search path.
func (r *ExclusionRepository) Add(ctx context.Context, recordKey, reason, supersededBy string) error {
	recordKey = strings.TrimSpace(recordKey)
	if recordKey == "" {
		return fmt.Errorf("superseded record key is empty")
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO superseded_records (record_key, reason, superseded_by)
VALUES ($1, $2, NULLIF($3, ''))
ON CONFLICT (record_key) DO UPDATE
SET reason = EXCLUDED.reason, superseded_by = EXCLUDED.superseded_by, recorded_at = now()`,
		recordKey, reason, supersededBy)
	if err != nil {
		return fmt.Errorf("insert superseded record: %w", err)
	}

	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
	return nil
}
