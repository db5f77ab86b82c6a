package chat

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskdeck/app/core/orchestrator/db"
)

// Transaction is the durable record of one assistant request. The row is
// created before any model call; Response and the feedback fields are filled
// in later, if ever.
type Transaction struct {
	ID             string
	UserID         string
	InputText      string
	PromptName     string
	PromptVersion  int
	Response       string
	FeedbackRating string
	FeedbackText   string
	CreatedAt      int64
	UpdatedAt      int64
}

type Store struct {
	db *db.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create persists a new transaction row. Prompt attribution is captured here
// and never re-resolved; later prompt changes must not rewrite history.
func (s *Store) Create(ctx context.Context, userID string, inputText string, promptName string, promptVersion int) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("user_id is required")
	}
	now := time.Now().Unix()
	id := uuid.NewString()
	query := `INSERT INTO ai_chats (id, user_id, input_text, prompt_name, prompt_version, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.Conn().ExecContext(ctx, query, id, userID, inputText, promptName, promptVersion, now, now); err != nil {
		return "", err
	}
	return id, nil
}

// SetResponse stores the serialized change set on the row. Partial update;
// the rest of the row is untouched.
func (s *Store) SetResponse(ctx context.Context, chatID string, response string) error {
	query := `UPDATE ai_chats SET response = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.Conn().ExecContext(ctx, query, response, time.Now().Unix(), chatID)
	if err != nil {
		return err
	}
	return requireRow(result, chatID)
}

// SetFeedback stores the rating and optional comment. Partial update, same
// contract as SetResponse; the store itself does not reject a second write.
func (s *Store) SetFeedback(ctx context.Context, chatID string, rating string, comment string) error {
	query := `UPDATE ai_chats SET feedback_rating = ?, feedback_text = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.Conn().ExecContext(ctx, query, rating, comment, time.Now().Unix(), chatID)
	if err != nil {
		return err
	}
	return requireRow(result, chatID)
}

func (s *Store) Get(ctx context.Context, chatID string) (Transaction, error) {
	query := `SELECT id, user_id, input_text, prompt_name, prompt_version, COALESCE(response, ''), COALESCE(feedback_rating, ''), COALESCE(feedback_text, ''), created_at, updated_at
FROM ai_chats WHERE id = ?`
	var t Transaction
	err := s.db.Conn().QueryRowContext(ctx, query, chatID).Scan(
		&t.ID,
		&t.UserID,
		&t.InputText,
		&t.PromptName,
		&t.PromptVersion,
		&t.Response,
		&t.FeedbackRating,
		&t.FeedbackText,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// ListByUser returns a user's transactions, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, user_id, input_text, prompt_name, prompt_version, COALESCE(response, ''), COALESCE(feedback_rating, ''), COALESCE(feedback_text, ''), created_at, updated_at
FROM ai_chats WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.Conn().QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Transaction, 0, limit)
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.InputText,
			&t.PromptName,
			&t.PromptVersion,
			&t.Response,
			&t.FeedbackRating,
			&t.FeedbackText,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func requireRow(result sql.Result, chatID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("chat transaction %s not found: %w", chatID, sql.ErrNoRows)
	}
	return nil
}
