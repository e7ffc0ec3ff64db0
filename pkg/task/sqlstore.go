package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/thehivegroup-ai/agentmesh/pkg/a2a"

	// Supported database/sql drivers.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore is a durable Store on database/sql. Status history and
// artifacts travel as JSON columns; per-task ordering is preserved by
// replacing the whole row under the manager's per-task lock.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQLStore opens the database and ensures the schema exists.
func OpenSQLStore(driver, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	store := &SQLStore{db: db, driver: driver}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an existing database handle.
func NewSQLStore(db *sql.DB, driver string) (*SQLStore, error) {
	store := &SQLStore{db: db, driver: driver}
	if err := store.ensureSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id          VARCHAR(64) PRIMARY KEY,
			context_id  VARCHAR(64),
			state       VARCHAR(32) NOT NULL,
			body        TEXT NOT NULL,
			updated_at  TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create tasks table: %w", err)
	}
	return nil
}

// placeholder renders the n-th (1-based) bind parameter for the driver.
func (s *SQLStore) placeholder(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Save persists the task, replacing any previous version.
func (s *SQLStore) Save(ctx context.Context, t *a2a.Task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	del := fmt.Sprintf("DELETE FROM tasks WHERE id = %s", s.placeholder(1))
	if _, err := tx.ExecContext(ctx, del, t.ID); err != nil {
		return fmt.Errorf("failed to replace task: %w", err)
	}

	ins := fmt.Sprintf(
		"INSERT INTO tasks (id, context_id, state, body, updated_at) VALUES (%s, %s, %s, %s, %s)",
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5))
	if _, err := tx.ExecContext(ctx, ins,
		t.ID, t.ContextID, string(t.Status.State), string(body), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	return tx.Commit()
}

// Get retrieves a task by id.
func (s *SQLStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	query := fmt.Sprintf("SELECT body FROM tasks WHERE id = %s", s.placeholder(1))

	var body string
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	var t a2a.Task
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", taskID, err)
	}
	return &t, nil
}

// Delete removes a task.
func (s *SQLStore) Delete(ctx context.Context, taskID string) error {
	query := fmt.Sprintf("DELETE FROM tasks WHERE id = %s", s.placeholder(1))
	if _, err := s.db.ExecContext(ctx, query, taskID); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// ListByContext lists tasks grouped under a context id.
func (s *SQLStore) ListByContext(ctx context.Context, contextID string) ([]*a2a.Task, error) {
	var rows *sql.Rows
	var err error
	if contextID == "" {
		rows, err = s.db.QueryContext(ctx, "SELECT body FROM tasks ORDER BY updated_at")
	} else {
		query := fmt.Sprintf("SELECT body FROM tasks WHERE context_id = %s ORDER BY updated_at", s.placeholder(1))
		rows, err = s.db.QueryContext(ctx, query, contextID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var result []*a2a.Task
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		var t a2a.Task
		if err := json.Unmarshal([]byte(body), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task: %w", err)
		}
		result = append(result, &t)
	}
	return result, rows.Err()
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
