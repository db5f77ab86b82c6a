package changes

import (
	"fmt"
	"strings"
)

// NewTask is one task the structuring model proposes to create. Only the
// title is required; absent optional fields stay empty and are omitted from
// the create payload.
type NewTask struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Notes       string `json:"notes,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

// ModifiedTask is one proposed change to an existing task. ID targets the
// task; every other field is present only if it changed.
type ModifiedTask struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Notes       string `json:"notes,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	Status      string `json:"status,omitempty"`
}

// TaskChangeSet is the structured output of the structuring stage and the
// input of the apply stage.
type TaskChangeSet struct {
	NewTasks      []NewTask      `json:"new_tasks"`
	ModifiedTasks []ModifiedTask `json:"modified_tasks"`
}

// CreateFields returns the create payload with absent optional fields
// omitted entirely rather than written as nulls.
func (t NewTask) CreateFields() map[string]interface{} {
	fields := map[string]interface{}{
		"title": t.Title,
	}
	if strings.TrimSpace(t.Description) != "" {
		fields["description"] = t.Description
	}
	if strings.TrimSpace(t.Notes) != "" {
		fields["notes"] = t.Notes
	}
	if strings.TrimSpace(t.DueDate) != "" {
		fields["due_date"] = t.DueDate
	}
	return fields
}

// UpdateFields returns the update payload: present fields only, never the
// ID itself.
func (t ModifiedTask) UpdateFields() map[string]interface{} {
	fields := map[string]interface{}{}
	if strings.TrimSpace(t.Title) != "" {
		fields["title"] = t.Title
	}
	if strings.TrimSpace(t.Description) != "" {
		fields["description"] = t.Description
	}
	if strings.TrimSpace(t.Notes) != "" {
		fields["notes"] = t.Notes
	}
	if strings.TrimSpace(t.DueDate) != "" {
		fields["due_date"] = t.DueDate
	}
	if strings.TrimSpace(t.Status) != "" {
		fields["status"] = t.Status
	}
	return fields
}

// Validate checks the required fields the structuring prompt demands.
func (c TaskChangeSet) Validate() error {
	for i, t := range c.NewTasks {
		if strings.TrimSpace(t.Title) == "" {
			return fmt.Errorf("new_tasks[%d]: title is required", i)
		}
	}
	for i, t := range c.ModifiedTasks {
		if strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("modified_tasks[%d]: id is required", i)
		}
	}
	return nil
}

// Empty reports whether the change set proposes nothing.
func (c TaskChangeSet) Empty() bool {
	return len(c.NewTasks) == 0 && len(c.ModifiedTasks) == 0
}
