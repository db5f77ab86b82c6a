package task

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"taskdeck/app/core/orchestrator/db"
)

// Fields the create/update paths accept from callers. Anything else in a
// payload is rejected rather than silently written.
var allowedFields = map[string]string{
	"title":       "title",
	"description": "description",
	"notes":       "notes",
	"due_date":    "due_date",
	"status":      "status",
}

type Store struct {
	db *db.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts a new active task from the given fields. Only present
// fields are written; the first update-history entry is stamped here.
func (s *Store) Create(ctx context.Context, userID string, fields map[string]interface{}) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("user_id is required")
	}
	title := strings.TrimSpace(stringField(fields, "title"))
	if title == "" {
		return "", fmt.Errorf("title is required")
	}
	for key := range fields {
		if _, ok := allowedFields[key]; !ok {
			return "", fmt.Errorf("unknown task field %q", key)
		}
	}

	now := time.Now()
	id := uuid.NewString()
	history, err := sjson.Set(`[]`, "-1", UpdateRecord{
		Timestamp:  now.UTC().Format(time.RFC3339),
		User:       userID,
		UpdateText: "Task created",
	})
	if err != nil {
		return "", fmt.Errorf("encode update history: %w", err)
	}

	query := `INSERT INTO tasks (id, user_id, title, description, notes, due_date, status, created_at, updated_at, updates)
VALUES (?, ?, ?, ?, ?, ?, 'active', ?, ?, ?)`
	_, err = s.db.Conn().ExecContext(ctx, query,
		id,
		userID,
		title,
		stringField(fields, "description"),
		stringField(fields, "notes"),
		stringField(fields, "due_date"),
		now.Unix(),
		now.Unix(),
		history,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Get returns the task only when it exists and belongs to userID; both
// misses surface as sql.ErrNoRows so callers cannot probe other users' IDs.
func (s *Store) Get(ctx context.Context, userID string, taskID string) (Task, error) {
	query := `SELECT id, user_id, title, COALESCE(description, ''), COALESCE(notes, ''), COALESCE(due_date, ''), status,
created_at, updated_at, COALESCE(completed_at, 0), COALESCE(deleted_at, 0), updates
FROM tasks WHERE id = ?`
	t, err := s.scanTask(s.db.Conn().QueryRowContext(ctx, query, taskID))
	if err != nil {
		return Task{}, err
	}
	if t.UserID != userID {
		return Task{}, sql.ErrNoRows
	}
	return t, nil
}

func (s *Store) ListActive(ctx context.Context, userID string) ([]Task, error) {
	return s.listByStatus(ctx, userID, StatusActive)
}

func (s *Store) ListCompleted(ctx context.Context, userID string) ([]Task, error) {
	return s.listByStatus(ctx, userID, StatusCompleted)
}

func (s *Store) ListDeleted(ctx context.Context, userID string) ([]Task, error) {
	return s.listByStatus(ctx, userID, StatusDeleted)
}

func (s *Store) listByStatus(ctx context.Context, userID string, status Status) ([]Task, error) {
	query := `SELECT id, user_id, title, COALESCE(description, ''), COALESCE(notes, ''), COALESCE(due_date, ''), status,
created_at, updated_at, COALESCE(completed_at, 0), COALESCE(deleted_at, 0), updates
FROM tasks WHERE user_id = ? AND status = ? ORDER BY updated_at DESC`
	rows, err := s.db.Conn().QueryContext(ctx, query, userID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Task, 0, 16)
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// Update applies a partial field update. The payload must not carry the id;
// ownership is checked here, which is the backstop for model-proposed IDs.
func (s *Store) Update(ctx context.Context, userID string, taskID string, fields map[string]interface{}) (bool, error) {
	if len(fields) == 0 {
		return false, fmt.Errorf("no fields to update")
	}
	if _, ok := fields["id"]; ok {
		return false, fmt.Errorf("id cannot be updated")
	}

	existing, err := s.Get(ctx, userID, taskID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}

	setClauses := make([]string, 0, len(fields)+2)
	args := make([]interface{}, 0, len(fields)+3)
	changed := make([]string, 0, len(fields))
	for key, value := range fields {
		column, ok := allowedFields[key]
		if !ok {
			return false, fmt.Errorf("unknown task field %q", key)
		}
		text := fmt.Sprint(value)
		if key == "status" && !ValidStatus(text) {
			return false, fmt.Errorf("invalid status: %s", text)
		}
		setClauses = append(setClauses, column+" = ?")
		args = append(args, text)
		changed = append(changed, key)
	}

	now := time.Now()
	history, err := appendHistory(existing, userID, now, "Updated "+strings.Join(changed, ", "))
	if err != nil {
		return false, err
	}
	setClauses = append(setClauses, "updated_at = ?", "updates = ?")
	args = append(args, now.Unix(), history, taskID)

	query := "UPDATE tasks SET " + strings.Join(setClauses, ", ") + " WHERE id = ?"
	if _, err := s.db.Conn().ExecContext(ctx, query, args...); err != nil {
		return false, err
	}
	return true, nil
}

// Complete marks an active task completed.
func (s *Store) Complete(ctx context.Context, userID string, taskID string) (bool, error) {
	return s.transition(ctx, userID, taskID, StatusActive, StatusCompleted, "Task completed")
}

// Delete soft-deletes a task; the row and its history survive.
func (s *Store) Delete(ctx context.Context, userID string, taskID string) (bool, error) {
	existing, err := s.Get(ctx, userID, taskID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	now := time.Now()
	history, err := appendHistory(existing, userID, now, "Task deleted")
	if err != nil {
		return false, err
	}
	query := `UPDATE tasks SET status = 'deleted', deleted_at = ?, updated_at = ?, updates = ? WHERE id = ?`
	if _, err := s.db.Conn().ExecContext(ctx, query, now.Unix(), now.Unix(), history, taskID); err != nil {
		return false, err
	}
	return true, nil
}

// Restore brings a deleted task back to active.
func (s *Store) Restore(ctx context.Context, userID string, taskID string) (bool, error) {
	existing, err := s.Get(ctx, userID, taskID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	if existing.Status != StatusDeleted {
		return false, nil
	}
	now := time.Now()
	history, err := appendHistory(existing, userID, now, "Task restored")
	if err != nil {
		return false, err
	}
	query := `UPDATE tasks SET status = 'active', deleted_at = NULL, updated_at = ?, updates = ? WHERE id = ?`
	if _, err := s.db.Conn().ExecContext(ctx, query, now.Unix(), history, taskID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) transition(ctx context.Context, userID string, taskID string, from Status, to Status, note string) (bool, error) {
	existing, err := s.Get(ctx, userID, taskID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	if existing.Status != from {
		return false, nil
	}
	now := time.Now()
	history, err := appendHistory(existing, userID, now, note)
	if err != nil {
		return false, err
	}
	query := `UPDATE tasks SET status = ?, completed_at = ?, updated_at = ?, updates = ? WHERE id = ?`
	if _, err := s.db.Conn().ExecContext(ctx, query, string(to), now.Unix(), now.Unix(), history, taskID); err != nil {
		return false, err
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanTask(row rowScanner) (Task, error) {
	var (
		t           Task
		status      string
		historyJSON string
	)
	if err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.Description,
		&t.Notes,
		&t.DueDate,
		&status,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.CompletedAt,
		&t.DeletedAt,
		&historyJSON,
	); err != nil {
		return Task{}, err
	}
	t.Status = Status(status)
	t.Updates = decodeHistory(historyJSON)
	return t, nil
}

func appendHistory(t Task, userID string, now time.Time, note string) (string, error) {
	raw := `[]`
	if len(t.Updates) > 0 {
		var err error
		for _, u := range t.Updates {
			raw, err = sjson.Set(raw, "-1", u)
			if err != nil {
				return "", fmt.Errorf("encode update history: %w", err)
			}
		}
	}
	raw, err := sjson.Set(raw, "-1", UpdateRecord{
		Timestamp:  now.UTC().Format(time.RFC3339),
		User:       userID,
		UpdateText: note,
	})
	if err != nil {
		return "", fmt.Errorf("encode update history: %w", err)
	}
	return raw, nil
}

func decodeHistory(raw string) []UpdateRecord {
	entries := gjson.Parse(raw).Array()
	if len(entries) == 0 {
		return nil
	}
	records := make([]UpdateRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, UpdateRecord{
			Timestamp:  entry.Get("timestamp").String(),
			User:       entry.Get("user").String(),
			UpdateText: entry.Get("updateText").String(),
		})
	}
	return records
}

func stringField(fields map[string]interface{}, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
