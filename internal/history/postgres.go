package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/FairForge/loginramp/internal/loadtest"
	"github.com/FairForge/loginramp/internal/reporting"
)

// PostgresStore keeps run summaries and full reports in PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore opens a connection pool for dsn.
func NewPostgresStore(dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewPostgresStoreFromDB(db, logger), nil
}

// NewPostgresStoreFromDB wraps an existing handle.
func NewPostgresStoreFromDB(db *sql.DB, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{db: db, logger: logger}
}

// Close closes the database connection
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// Ping verifies the database connection
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// CreateTables creates the history table and its index.
func (p *PostgresStore) CreateTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS loginramp_runs (
			run_id VARCHAR(64) PRIMARY KEY,
			endpoint TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			stop_reason VARCHAR(32) NOT NULL,
			levels INTEGER NOT NULL,
			total_sessions INTEGER NOT NULL,
			max_stable_concurrency INTEGER NOT NULL,
			critical_concurrency INTEGER,
			critical_kind VARCHAR(32),
			critical_avg_ms DOUBLE PRECISION,
			report JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_loginramp_runs_endpoint
			ON loginramp_runs (endpoint, start_time DESC)`,
	}

	for _, query := range queries {
		if _, err := p.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("history: create table: %w", err)
		}
	}
	return nil
}

const insertRun = `
	INSERT INTO loginramp_runs (
		run_id, endpoint, start_time, end_time, stop_reason, levels,
		total_sessions, max_stable_concurrency, critical_concurrency,
		critical_kind, critical_avg_ms, report
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// Save inserts the run.
func (p *PostgresStore) Save(ctx context.Context, run *loadtest.TestRun) error {
	rep := reporting.FromRun(run)
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("history: marshal run: %w", err)
	}
	rec := FromReport(rep)

	var (
		criticalConcurrency sql.NullInt64
		criticalKind        sql.NullString
		criticalAvg         sql.NullFloat64
	)
	if rec.HasCriticalPoint() {
		criticalConcurrency = sql.NullInt64{Int64: int64(rec.CriticalConcurrency), Valid: true}
		criticalKind = sql.NullString{String: rec.CriticalKind, Valid: true}
		criticalAvg = sql.NullFloat64{Float64: rec.CriticalAvgMs, Valid: true}
	}

	_, err = p.db.ExecContext(ctx, insertRun,
		rec.RunID, rec.Endpoint, rec.StartTime, rec.EndTime, rec.StopReason,
		rec.Levels, rec.TotalSessions, rec.MaxStableConcurrency,
		criticalConcurrency, criticalKind, criticalAvg, payload)
	if err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}

	p.logger.Debug("run stored", zap.String("run_id", rec.RunID))
	return nil
}

const selectRuns = `
	SELECT run_id, endpoint, start_time, end_time, stop_reason, levels,
		total_sessions, max_stable_concurrency, critical_concurrency,
		critical_kind, critical_avg_ms
	FROM loginramp_runs
	WHERE ($1 = '' OR endpoint = $1)
	ORDER BY start_time DESC
	LIMIT $2`

// List returns the newest runs first.
func (p *PostgresStore) List(ctx context.Context, endpoint string, limit int) ([]Record, error) {
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}

	rows, err := p.db.QueryContext(ctx, selectRuns, endpoint, lim)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var (
			r                   Record
			criticalConcurrency sql.NullInt64
			criticalKind        sql.NullString
			criticalAvg         sql.NullFloat64
		)
		err := rows.Scan(&r.RunID, &r.Endpoint, &r.StartTime, &r.EndTime, &r.StopReason,
			&r.Levels, &r.TotalSessions, &r.MaxStableConcurrency,
			&criticalConcurrency, &criticalKind, &criticalAvg)
		if err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.CriticalConcurrency = int(criticalConcurrency.Int64)
		r.CriticalKind = criticalKind.String
		r.CriticalAvgMs = criticalAvg.Float64
		records = append(records, r)
	}
	return records, rows.Err()
}

// Report loads the full stored report of one run.
func (p *PostgresStore) Report(ctx context.Context, runID string) (*reporting.Report, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx, `SELECT report FROM loginramp_runs WHERE run_id = $1`, runID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("history: run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("history: query report: %w", err)
	}
	return reporting.Decode(payload)
}
