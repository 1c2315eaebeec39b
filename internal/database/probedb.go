package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/exitprobe/internal/model"
)

// dbFileName is the database file created inside the configured directory.
const dbFileName = "exitprobe.db"

// ProbeDB stores probe runs and their correlation events.
type ProbeDB struct {
	// db is the underlying SQL connection.
	db *sql.DB

	// dbPath is the path to the SQLite file.
	dbPath string
}

// Options configures ProbeDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file when
	// they do not exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a ProbeDB in the given directory.
func Open(dbDir string, opts Options) (*ProbeDB, error) {
	dbPath := filepath.Join(dbDir, dbFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports a single writer; more connections only add
	// lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	pdb := &ProbeDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := pdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return pdb, nil
}

// Close closes the database connection.
func (pdb *ProbeDB) Close() error {
	return pdb.db.Close()
}

// Path returns the path of the SQLite file.
func (pdb *ProbeDB) Path() string {
	return pdb.dbPath
}

// createTables creates the schema if it does not exist.
func (pdb *ProbeDB) createTables() error {
	schema := `
	-- One row per executed probe command.
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		circuit_id TEXT NOT NULL,
		command TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		timed_out INTEGER NOT NULL DEFAULT 0,
		output_bytes INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_circuit ON runs(circuit_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- One row per source-port disclosure observed during a run.
	CREATE TABLE IF NOT EXISTS correlations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		circuit_id TEXT NOT NULL,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		observed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_correlations_run ON correlations(run_id);
	CREATE INDEX IF NOT EXISTS idx_correlations_circuit ON correlations(circuit_id);
	`

	_, err := pdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a run and its correlation events in one transaction and
// returns the run's row ID.
func (pdb *ProbeDB) SaveRun(ctx context.Context, run *model.RunResult) (int64, error) {
	tx, err := pdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (circuit_id, command, started_at, finished_at, timed_out, output_bytes, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.CircuitID,
		strings.Join(run.Command, " "),
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.TimedOut,
		len(run.Output),
		run.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run ID: %w", err)
	}

	for _, c := range run.Correlations {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO correlations (run_id, circuit_id, host, port, observed_at)
			 VALUES (?, ?, ?, ?, ?)`,
			runID, c.CircuitID, c.Host, c.Port, c.ObservedAt.UTC(),
		); err != nil {
			return 0, fmt.Errorf("failed to insert correlation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

// CorrelationsByCircuit returns all recorded correlation events for a
// circuit, oldest first.
func (pdb *ProbeDB) CorrelationsByCircuit(ctx context.Context, circuitID string) ([]model.Correlation, error) {
	rows, err := pdb.db.QueryContext(ctx,
		`SELECT circuit_id, host, port, observed_at
		 FROM correlations WHERE circuit_id = ? ORDER BY id`,
		circuitID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query correlations: %w", err)
	}
	defer rows.Close()

	var correlations []model.Correlation
	for rows.Next() {
		var c model.Correlation
		if err := rows.Scan(&c.CircuitID, &c.Host, &c.Port, &c.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan correlation: %w", err)
		}
		correlations = append(correlations, c)
	}
	return correlations, rows.Err()
}

// RecentRuns returns the most recent runs, newest first, without output
// or correlation details.
func (pdb *ProbeDB) RecentRuns(ctx context.Context, limit int) ([]*model.RunResult, error) {
	rows, err := pdb.db.QueryContext(ctx,
		`SELECT circuit_id, command, started_at, finished_at, timed_out, error
		 FROM runs ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.RunResult
	for rows.Next() {
		var (
			run     model.RunResult
			command string
		)
		if err := rows.Scan(&run.CircuitID, &command, &run.StartedAt, &run.FinishedAt, &run.TimedOut, &run.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Command = strings.Fields(command)
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// CountCorrelations returns the total number of recorded correlation events.
func (pdb *ProbeDB) CountCorrelations(ctx context.Context) (int, error) {
	var n int
	err := pdb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM correlations`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count correlations: %w", err)
	}
	return n, nil
}
