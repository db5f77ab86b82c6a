package prompt

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskdeck/app/core/orchestrator/db"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Prompt is one stored version of an instruction-text slot. At most one
// version per slot is active at a time.
type Prompt struct {
	ID        string `json:"id"`
	Name      string `json:"prompt_name"`
	Text      string `json:"text"`
	Status    string `json:"status"`
	Version   int    `json:"version"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

type Store struct {
	db *db.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// GetActive returns the active prompt for a slot, or sql.ErrNoRows when the
// slot has no active version.
func (s *Store) GetActive(ctx context.Context, name string) (Prompt, error) {
	query := `SELECT id, prompt_name, text, status, version, created_at, updated_at
FROM ai_prompts WHERE prompt_name = ? AND status = 'active' ORDER BY version DESC LIMIT 1`
	return s.scanPrompt(s.db.Conn().QueryRowContext(ctx, query, name))
}

// Create stores a new inactive version of a slot, numbered one above the
// slot's current highest version.
func (s *Store) Create(ctx context.Context, name string, text string) (Prompt, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Prompt{}, fmt.Errorf("prompt_name is required")
	}
	if strings.TrimSpace(text) == "" {
		return Prompt{}, fmt.Errorf("prompt text is required")
	}

	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return Prompt{}, err
	}
	defer tx.Rollback()

	var maxVersion int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM ai_prompts WHERE prompt_name = ?`, name).Scan(&maxVersion); err != nil {
		return Prompt{}, err
	}

	now := time.Now().Unix()
	p := Prompt{
		ID:        uuid.NewString(),
		Name:      name,
		Text:      text,
		Status:    StatusInactive,
		Version:   maxVersion + 1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	query := `INSERT INTO ai_prompts (id, prompt_name, text, status, version, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, p.ID, p.Name, p.Text, p.Status, p.Version, p.CreatedAt, p.UpdatedAt); err != nil {
		return Prompt{}, err
	}
	if err := tx.Commit(); err != nil {
		return Prompt{}, err
	}
	return p, nil
}

// Activate makes one version the slot's active prompt and deactivates every
// other version of the same slot.
func (s *Store) Activate(ctx context.Context, promptID string) error {
	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var name string
	if err := tx.QueryRowContext(ctx, `SELECT prompt_name FROM ai_prompts WHERE id = ?`, promptID).Scan(&name); err != nil {
		return err
	}

	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx, `UPDATE ai_prompts SET status = 'inactive', updated_at = ? WHERE prompt_name = ? AND status = 'active'`, now, name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE ai_prompts SET status = 'active', updated_at = ? WHERE id = ?`, now, promptID); err != nil {
		return err
	}
	return tx.Commit()
}

// List returns a slot's versions, newest first. An empty name lists all
// prompts.
func (s *Store) List(ctx context.Context, name string) ([]Prompt, error) {
	var (
		query string
		args  []interface{}
	)
	if strings.TrimSpace(name) == "" {
		query = `SELECT id, prompt_name, text, status, version, created_at, updated_at FROM ai_prompts ORDER BY prompt_name ASC, version DESC`
	} else {
		query = `SELECT id, prompt_name, text, status, version, created_at, updated_at FROM ai_prompts WHERE prompt_name = ? ORDER BY version DESC`
		args = append(args, name)
	}
	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Prompt, 0, 8)
	for rows.Next() {
		var p Prompt
		if err := rows.Scan(&p.ID, &p.Name, &p.Text, &p.Status, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (s *Store) scanPrompt(row *sql.Row) (Prompt, error) {
	var p Prompt
	if err := row.Scan(&p.ID, &p.Name, &p.Text, &p.Status, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Prompt{}, err
	}
	return p, nil
}
