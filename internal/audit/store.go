// Package audit archives terminal task states into a relational store for
// later historical lookup. The engine hands states over fire-and-forget;
// archival failures never affect a running task.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/domain"
)

// ErrRecordNotFound is returned when no archived record exists for a task id.
var ErrRecordNotFound = errors.New("task record not found")

const schema = `
CREATE TABLE IF NOT EXISTS agent_task_records (
	task_id          TEXT PRIMARY KEY,
	status           TEXT NOT NULL,
	steps            TEXT NOT NULL,
	result           TEXT,
	total_iterations INTEGER NOT NULL,
	start_time       TIMESTAMP,
	end_time         TIMESTAMP,
	error_message    TEXT,
	created_at       TIMESTAMP NOT NULL
);`

// TaskRecord is one archived terminal task.
type TaskRecord struct {
	TaskID          string     `json:"taskId"`
	Status          string     `json:"status"`
	Steps           string     `json:"steps"`
	Result          string     `json:"result,omitempty"`
	TotalIterations int        `json:"totalIterations"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Store is a sqlite-backed audit sink.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the audit database at path. Use ":memory:" for an
// ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

var _ domain.AuditSink = (*Store)(nil)

// Archive upserts the terminal state for state.TaskID.
func (s *Store) Archive(ctx context.Context, state *domain.TaskState) error {
	steps, err := json.Marshal(state.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_task_records
			(task_id, status, steps, result, total_iterations, start_time, end_time, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			status = excluded.status,
			steps = excluded.steps,
			result = excluded.result,
			total_iterations = excluded.total_iterations,
			end_time = excluded.end_time,
			error_message = excluded.error_message`,
		state.TaskID, state.Status.String(), string(steps), state.Result,
		state.TotalIterations, state.StartTime, state.EndTime, state.ErrorMessage,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert task record: %w", err)
	}
	return nil
}

// GetByTaskID returns the archived record for taskID or ErrRecordNotFound.
func (s *Store) GetByTaskID(ctx context.Context, taskID string) (*TaskRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT task_id, status, steps, result, total_iterations, start_time, end_time, error_message, created_at
		FROM agent_task_records WHERE task_id = ?`, taskID)

	var record TaskRecord
	var result, errorMessage sql.NullString
	var endTime sql.NullTime
	err := row.Scan(&record.TaskID, &record.Status, &record.Steps, &result,
		&record.TotalIterations, &record.StartTime, &endTime, &errorMessage, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query task record: %w", err)
	}
	record.Result = result.String
	record.ErrorMessage = errorMessage.String
	if endTime.Valid {
		record.EndTime = &endTime.Time
	}
	return &record, nil
}

// DB exposes the underlying handle so read-only collaborators (the
// database_query tool) can share the same database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
