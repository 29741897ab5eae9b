// Package sqlite implements ledger.Repository on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/sports-harvester/internal/ledger"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    harvester   TEXT NOT NULL,
    started_at  DATETIME NOT NULL,
    finished_at DATETIME,
    status      TEXT NOT NULL DEFAULT 'running',
    note        TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS units (
    run_id      TEXT NOT NULL REFERENCES runs(id),
    key         TEXT NOT NULL,
    url         TEXT NOT NULL,
    result      TEXT NOT NULL,
    bytes       INTEGER NOT NULL DEFAULT 0,
    http_status INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    note        TEXT NOT NULL DEFAULT '',
    at          DATETIME NOT NULL,
    PRIMARY KEY (run_id, key)
);
CREATE TABLE IF NOT EXISTS targets (
    run_id   TEXT NOT NULL REFERENCES runs(id),
    key      TEXT NOT NULL,
    url      TEXT NOT NULL,
    path     TEXT NOT NULL,
    category TEXT NOT NULL,
    ok       INTEGER NOT NULL,
    bytes    INTEGER NOT NULL DEFAULT 0,
    note     TEXT NOT NULL DEFAULT '',
    at       DATETIME NOT NULL,
    PRIMARY KEY (run_id, path)
);
CREATE INDEX IF NOT EXISTS idx_targets_failed ON targets(run_id, ok);
`

// Repository implements ledger.Repository using SQLite.
type Repository struct {
	db *sql.DB
}

var _ ledger.Repository = (*Repository)(nil)

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &Repository{db: db}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// StartRun implements ledger.Repository.
func (r *Repository) StartRun(ctx context.Context, id uuid.UUID, harvester string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, harvester, started_at, status) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET started_at = excluded.started_at`,
		id.String(), harvester, at.UTC(), ledger.RunRunning,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun implements ledger.Repository.
func (r *Repository) FinishRun(ctx context.Context, id uuid.UUID, at time.Time, status ledger.RunStatus, note string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, note = ? WHERE id = ?`,
		at.UTC(), status, note, id.String(),
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if affected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// RecordUnit implements ledger.Repository.
func (r *Repository) RecordUnit(ctx context.Context, rec ledger.UnitRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO units (run_id, key, url, result, bytes, http_status, duration_ms, note, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, key) DO UPDATE SET
		   url = excluded.url, result = excluded.result, bytes = excluded.bytes,
		   http_status = excluded.http_status, duration_ms = excluded.duration_ms,
		   note = excluded.note, at = excluded.at`,
		rec.RunID.String(), rec.Key, rec.URL, rec.Result, rec.Bytes, rec.HTTPStatus,
		rec.Duration.Milliseconds(), rec.Note, rec.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record unit %s: %w", rec.Key, err)
	}
	return nil
}

// RecordTargets implements ledger.Repository in a single transaction.
func (r *Repository) RecordTargets(ctx context.Context, recs []ledger.TargetRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin targets tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO targets (run_id, key, url, path, category, ok, bytes, note, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, path) DO UPDATE SET
		   key = excluded.key, url = excluded.url, category = excluded.category,
		   ok = excluded.ok, bytes = excluded.bytes, note = excluded.note, at = excluded.at`)
	if err != nil {
		return fmt.Errorf("prepare targets: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx,
			rec.RunID.String(), rec.Key, rec.URL, rec.Path, rec.Category, rec.OK, rec.Bytes, rec.Note, rec.At.UTC(),
		); err != nil {
			return fmt.Errorf("record target %s: %w", rec.Path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit targets: %w", err)
	}
	return nil
}

// GetRun implements ledger.Repository.
func (r *Repository) GetRun(ctx context.Context, id uuid.UUID) (ledger.Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, harvester, started_at, finished_at, status, note FROM runs WHERE id = ?`, id.String())
	return scanRun(row)
}

// ListRuns implements ledger.Repository.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]ledger.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, harvester, started_at, finished_at, status, note FROM runs
		 ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []ledger.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListUnits implements ledger.Repository.
func (r *Repository) ListUnits(ctx context.Context, runID uuid.UUID) ([]ledger.UnitRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, url, result, bytes, http_status, duration_ms, note, at
		 FROM units WHERE run_id = ? ORDER BY key`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []ledger.UnitRecord
	for rows.Next() {
		rec := ledger.UnitRecord{RunID: runID}
		var durMS int64
		if err := rows.Scan(&rec.Key, &rec.URL, &rec.Result, &rec.Bytes, &rec.HTTPStatus, &durMS, &rec.Note, &rec.At); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		rec.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListFailedTargets implements ledger.Repository.
func (r *Repository) ListFailedTargets(ctx context.Context, runID uuid.UUID) ([]ledger.TargetRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, url, path, category, bytes, note, at
		 FROM targets WHERE run_id = ? AND ok = 0 ORDER BY path`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("list failed targets: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []ledger.TargetRecord
	for rows.Next() {
		rec := ledger.TargetRecord{RunID: runID}
		if err := rows.Scan(&rec.Key, &rec.URL, &rec.Path, &rec.Category, &rec.Bytes, &rec.Note, &rec.At); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (ledger.Run, error) {
	var (
		run      ledger.Run
		id       string
		status   string
		finished sql.NullTime
	)
	err := row.Scan(&id, &run.Harvester, &run.StartedAt, &finished, &status, &run.Note)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Run{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Run{}, fmt.Errorf("scan run: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ledger.Run{}, fmt.Errorf("parse run id: %w", err)
	}
	run.ID = parsed
	run.Status = ledger.RunStatus(status)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}
