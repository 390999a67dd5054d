// Package runstore persists completed script runs: status, error, and
// the exported flow graph. One row per run, SQLite-backed, suitable for
// single-instance deployments.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/planguard/planguard/internal/flowgraph"
)

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusDenied    = "denied"
	StatusFailed    = "failed"
)

// Run is one recorded script execution.
type Run struct {
	ID         string             `json:"id"`
	CreatedAt  time.Time          `json:"created_at"`
	ScriptHash string             `json:"script_hash"`
	Status     string             `json:"status"`
	ErrorKind  string             `json:"error_kind,omitempty"`
	ErrorMsg   string             `json:"error_message,omitempty"`
	Result     string             `json:"result,omitempty"`
	Graph      flowgraph.Snapshot `json:"graph"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Store persists runs in a SQLite database. SQLite only supports a
// single writer, so writes are serialized.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	saveStmt *sql.Stmt
	getStmt  *sql.Stmt
	listStmt *sql.Stmt
}

// Open opens (or creates) the run database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("runstore: db path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("runstore: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("runstore: initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("runstore: prepare statements: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		script_hash TEXT NOT NULL,
		status TEXT NOT NULL,
		error_kind TEXT,
		error_message TEXT,
		result TEXT,
		graph TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) prepareStatements() error {
	var err error

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO runs (id, created_at, script_hash, status, error_kind, error_message, result, graph)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			error_kind = excluded.error_kind,
			error_message = excluded.error_message,
			result = excluded.result,
			graph = excluded.graph
	`)
	if err != nil {
		return fmt.Errorf("save statement: %w", err)
	}

	s.getStmt, err = s.db.Prepare(`
		SELECT id, created_at, script_hash, status, error_kind, error_message, result, graph
		FROM runs WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("get statement: %w", err)
	}

	s.listStmt, err = s.db.Prepare(`
		SELECT id, created_at, script_hash, status, error_kind, error_message, result, graph
		FROM runs ORDER BY created_at DESC LIMIT ?
	`)
	if err != nil {
		return fmt.Errorf("list statement: %w", err)
	}
	return nil
}

// Save persists a run, replacing any previous row with the same ID.
func (s *Store) Save(ctx context.Context, run *Run) error {
	if run == nil {
		return fmt.Errorf("runstore: run cannot be nil")
	}
	if run.ID == "" {
		return fmt.Errorf("runstore: run ID cannot be empty")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	graphJSON, err := json.Marshal(run.Graph)
	if err != nil {
		return fmt.Errorf("runstore: marshal graph: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.saveStmt.ExecContext(ctx,
		run.ID,
		run.CreatedAt.Unix(),
		run.ScriptHash,
		run.Status,
		run.ErrorKind,
		run.ErrorMsg,
		run.Result,
		string(graphJSON),
	)
	if err != nil {
		return fmt.Errorf("runstore: save run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID. Returns nil, nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	if id == "" {
		return nil, fmt.Errorf("runstore: run ID cannot be empty")
	}

	row := s.getStmt.QueryRowContext(ctx, id)
	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("runstore: get run: %w", err)
	}
	return run, nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.listStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("runstore: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("runstore: scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("runstore: iterate runs: %w", err)
	}
	return runs, nil
}

// Close releases the database handle, checkpointing the WAL first.
func (s *Store) Close() error {
	if s.saveStmt != nil {
		s.saveStmt.Close()
	}
	if s.getStmt != nil {
		s.getStmt.Close()
	}
	if s.listStmt != nil {
		s.listStmt.Close()
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func scanRun(scan func(...any) error) (*Run, error) {
	var (
		run       Run
		createdAt int64
		errKind   sql.NullString
		errMsg    sql.NullString
		result    sql.NullString
		graphJSON sql.NullString
	)
	if err := scan(&run.ID, &createdAt, &run.ScriptHash, &run.Status, &errKind, &errMsg, &result, &graphJSON); err != nil {
		return nil, err
	}
	run.CreatedAt = time.Unix(createdAt, 0)
	run.ErrorKind = errKind.String
	run.ErrorMsg = errMsg.String
	run.Result = result.String
	if graphJSON.String != "" {
		if err := json.Unmarshal([]byte(graphJSON.String), &run.Graph); err != nil {
			return nil, fmt.Errorf("unmarshal graph: %w", err)
		}
	}
	return &run, nil
}
