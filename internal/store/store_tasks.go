package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AddTask appends a prompt to the end of the persisted task list.
func (s *Store) AddTask(ctx context.Context, text string) (*Task, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tasks (position, text, created_at)
         VALUES ((SELECT COALESCE(MAX(position), 0) + 1 FROM tasks), ?, ?)`,
		text,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.taskByID(ctx, id)
}

// ListTasks returns all tasks ordered by queue position.
func (s *Store) ListTasks(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT id, position, text, created_at FROM tasks ORDER BY position ASC, id ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// RemoveFirstTask deletes the front of the task list and returns it.
// It returns nil without error when the list is empty.
func (s *Store) RemoveFirstTask(ctx context.Context) (*Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin task tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(
		ctx,
		"SELECT id, position, text, created_at FROM tasks ORDER BY position ASC, id ASC LIMIT 1",
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", task.ID); err != nil {
		return nil, fmt.Errorf("delete task %d: %w", task.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit task removal: %w", err)
	}
	return task, nil
}

// ClearTasks removes every persisted task and reports how many were deleted.
func (s *Store) ClearTasks(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks")
	if err != nil {
		return 0, fmt.Errorf("clear tasks: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return removed, nil
}

// CountTasks returns the number of persisted tasks.
func (s *Store) CountTasks(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM tasks")
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return count, nil
}

func (s *Store) taskByID(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(
		ctx,
		"SELECT id, position, text, created_at FROM tasks WHERE id = ?",
		id,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d not found", id)
	}
	return task, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task      Task
		createdAt string
	)
	if err := row.Scan(&task.ID, &task.Position, &task.Text, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse task timestamp: %w", err)
	}
	task.CreatedAt = parsed
	return &task, nil
}
