package task

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDeleted   Status = "deleted"
)

func (s Status) String() string {
	return string(s)
}

func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusActive, StatusCompleted, StatusDeleted:
		return true
	}
	return false
}

// UpdateRecord is one entry of a task's append-only update history.
type UpdateRecord struct {
	Timestamp  string `json:"timestamp"`
	User       string `json:"user"`
	UpdateText string `json:"updateText"`
}

type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Notes       string
	DueDate     string
	Status      Status
	CreatedAt   int64
	UpdatedAt   int64
	CompletedAt int64
	DeletedAt   int64
	Updates     []UpdateRecord
}

// Document flattens the task into the plain map form used for model context
// and serialization. Timestamps stay as time values; the document encoder
// coerces them.
func (t Task) Document() map[string]interface{} {
	doc := map[string]interface{}{
		"id":        t.ID,
		"userId":    t.UserID,
		"title":     t.Title,
		"status":    t.Status,
		"createdAt": time.Unix(t.CreatedAt, 0).UTC(),
		"updatedAt": time.Unix(t.UpdatedAt, 0).UTC(),
	}
	if t.Description != "" {
		doc["description"] = t.Description
	}
	if t.Notes != "" {
		doc["notes"] = t.Notes
	}
	if t.DueDate != "" {
		doc["dueDate"] = t.DueDate
	}
	if t.CompletedAt > 0 {
		doc["completionDate"] = time.Unix(t.CompletedAt, 0).UTC()
	}
	if t.DeletedAt > 0 {
		doc["deletionDate"] = time.Unix(t.DeletedAt, 0).UTC()
	}
	if len(t.Updates) > 0 {
		updates := make([]interface{}, 0, len(t.Updates))
		for _, u := range t.Updates {
			updates = append(updates, map[string]interface{}{
				"timestamp":  u.Timestamp,
				"user":       u.User,
				"updateText": u.UpdateText,
			})
		}
		doc["updates"] = updates
	}
	return doc
}
