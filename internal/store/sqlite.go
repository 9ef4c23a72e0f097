package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sentiq/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ RunStore = (*SQLiteStore)(nil)
var _ SignalStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	symbol         TEXT NOT NULL,
	classifier     TEXT NOT NULL,
	train_ratio    REAL NOT NULL,
	conf_threshold REAL NOT NULL,
	cost           REAL NOT NULL,
	max_drawdown   REAL NOT NULL,
	row_count      INTEGER NOT NULL,
	dropped_count  INTEGER NOT NULL,
	sharpe         REAL NOT NULL,
	total_return   REAL NOT NULL,
	summary        TEXT NOT NULL,
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_symbol_created ON runs (symbol, created_at);

CREATE TABLE IF NOT EXISTS signals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	type        TEXT NOT NULL,
	confidence  REAL NOT NULL,
	ts          INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS signals_symbol_created ON signals (symbol, created_at);
`

// SQLiteStore implements RunStore and SignalStore backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// tables if needed and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// :memory: databases are private to a connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts a new run into the database.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.Run) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, symbol, classifier, train_ratio, conf_threshold, cost,
			max_drawdown, row_count, dropped_count, sharpe, total_return, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Symbol, run.Classifier, run.TrainRatio, run.ConfThreshold, run.Cost,
		run.MaxDrawdown, run.Rows, run.Dropped, run.Summary.Sharpe, run.Summary.TotalReturn,
		string(summary), run.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `id, symbol, classifier, train_ratio, conf_threshold, cost,
	max_drawdown, row_count, dropped_count, summary, created_at`

// GetRun retrieves a single run by its ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, symbol string, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE ? = '' OR symbol = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*domain.Run, error) {
	var (
		run       domain.Run
		summary   string
		createdAt int64
	)
	err := sc.Scan(&run.ID, &run.Symbol, &run.Classifier, &run.TrainRatio, &run.ConfThreshold,
		&run.Cost, &run.MaxDrawdown, &run.Rows, &run.Dropped, &summary, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(summary), &run.Summary); err != nil {
		return nil, fmt.Errorf("decoding summary of run %s: %w", run.ID, err)
	}
	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &run, nil
}

// ---------------------------------------------------------------------------
// SignalStore implementation
// ---------------------------------------------------------------------------

// SaveSignal inserts a new signal into the database.
func (s *SQLiteStore) SaveSignal(ctx context.Context, signal *domain.Signal) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (run_id, symbol, type, confidence, ts, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		signal.RunID, signal.Symbol, string(signal.Type), signal.Confidence,
		signal.Time.UnixMilli(), signal.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting signal for %s: %w", signal.Symbol, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	signal.ID = id
	return nil
}

// ListSignals returns the most recent signals for a symbol, up to limit.
func (s *SQLiteStore) ListSignals(ctx context.Context, symbol string, limit int) ([]domain.Signal, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, symbol, type, confidence, ts, created_at FROM signals
		WHERE symbol = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("listing signals: %w", err)
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		var (
			sig       domain.Signal
			typ       string
			ts, added int64
		)
		if err := rows.Scan(&sig.ID, &sig.RunID, &sig.Symbol, &typ, &sig.Confidence, &ts, &added); err != nil {
			return nil, err
		}
		sig.Type = domain.SignalType(typ)
		sig.Time = time.UnixMilli(ts).UTC()
		sig.CreatedAt = time.UnixMilli(added).UTC()
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}
