package task

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"taskdeck/app/core/orchestrator/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.NewSQLiteDB(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("init sqlite failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "u-1", map[string]interface{}{
		"title":    "buy milk",
		"notes":    "2%",
		"due_date": "2025-03-15",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := store.Get(ctx, "u-1", id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Title != "buy milk" || got.Notes != "2%" || got.DueDate != "2025-03-15" {
		t.Fatalf("unexpected task: %+v", got)
	}
	if got.Status != StatusActive {
		t.Fatalf("new task should be active, got %s", got.Status)
	}
	if len(got.Updates) != 1 || got.Updates[0].UpdateText != "Task created" {
		t.Fatalf("expected creation history entry, got %+v", got.Updates)
	}
	if got.Updates[0].User != "u-1" {
		t.Fatalf("history entry should carry the acting user: %+v", got.Updates[0])
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "u-1", map[string]interface{}{"title": "private"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := store.Get(ctx, "u-2", id); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows for foreign task, got %v", err)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "u-1", map[string]interface{}{"notes": "no title"}); err == nil {
		t.Fatal("expected error for missing title")
	}
	if _, err := store.Create(ctx, "", map[string]interface{}{"title": "x"}); err == nil {
		t.Fatal("expected error for missing user")
	}
	if _, err := store.Create(ctx, "u-1", map[string]interface{}{"title": "x", "owner": "u-2"}); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestUpdateAppendsHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "u-1", map[string]interface{}{"title": "draft"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	ok, err := store.Update(ctx, "u-1", id, map[string]interface{}{"title": "final", "notes": "done editing"})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !ok {
		t.Fatal("expected update to apply")
	}

	got, err := store.Get(ctx, "u-1", id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Title != "final" || got.Notes != "done editing" {
		t.Fatalf("fields not updated: %+v", got)
	}
	if len(got.Updates) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(got.Updates))
	}
	last := got.Updates[1].UpdateText
	if !strings.HasPrefix(last, "Updated ") || !strings.Contains(last, "title") || !strings.Contains(last, "notes") {
		t.Fatalf("unexpected history note: %q", last)
	}
}

func TestUpdateRejectsIDAndUnknownFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "u-1", map[string]interface{}{"title": "fixed"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := store.Update(ctx, "u-1", id, map[string]interface{}{"id": "t-other"}); err == nil {
		t.Fatal("expected error when payload carries id")
	}
	if _, err := store.Update(ctx, "u-1", id, map[string]interface{}{"user_id": "u-2"}); err == nil {
		t.Fatal("expected error for unknown field")
	}
	if _, err := store.Update(ctx, "u-1", id, map[string]interface{}{"status": "archived"}); err == nil {
		t.Fatal("expected error for invalid status")
	}
}

func TestUpdateMissingTaskReportsNotFound(t *testing.T) {
	store := newTestStore(t)

	ok, err := store.Update(context.Background(), "u-1", "no-such-task", map[string]interface{}{"title": "x"})
	if err != nil {
		t.Fatalf("missing task should not error: %v", err)
	}
	if ok {
		t.Fatal("expected not-found result for missing task")
	}
}

func TestLifecycleTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "u-1", map[string]interface{}{"title": "chores"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	ok, err := store.Complete(ctx, "u-1", id)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if !ok {
		t.Fatal("expected active task to complete")
	}

	// Already completed; the transition no longer applies.
	ok, err = store.Complete(ctx, "u-1", id)
	if err != nil {
		t.Fatalf("second complete errored: %v", err)
	}
	if ok {
		t.Fatal("completed task should not complete again")
	}

	got, err := store.Get(ctx, "u-1", id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != StatusCompleted || got.CompletedAt == 0 {
		t.Fatalf("expected completed task with timestamp: %+v", got)
	}
}

func TestDeleteAndRestore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "u-1", map[string]interface{}{"title": "keep me"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Restore only applies to deleted tasks.
	ok, err := store.Restore(ctx, "u-1", id)
	if err != nil {
		t.Fatalf("restore errored: %v", err)
	}
	if ok {
		t.Fatal("active task should not restore")
	}

	if ok, err := store.Delete(ctx, "u-1", id); err != nil || !ok {
		t.Fatalf("delete failed: ok=%v err=%v", ok, err)
	}

	deleted, err := store.ListDeleted(ctx, "u-1")
	if err != nil {
		t.Fatalf("list deleted failed: %v", err)
	}
	if len(deleted) != 1 || deleted[0].ID != id {
		t.Fatalf("deleted task missing from list: %+v", deleted)
	}

	if ok, err := store.Restore(ctx, "u-1", id); err != nil || !ok {
		t.Fatalf("restore failed: ok=%v err=%v", ok, err)
	}

	got, err := store.Get(ctx, "u-1", id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != StatusActive || got.DeletedAt != 0 {
		t.Fatalf("expected restored active task: %+v", got)
	}
	lastNote := got.Updates[len(got.Updates)-1].UpdateText
	if lastNote != "Task restored" {
		t.Fatalf("unexpected final history note: %q", lastNote)
	}
}

func TestListsFilterByStatusAndUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	activeID, err := store.Create(ctx, "u-1", map[string]interface{}{"title": "mine active"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	doneID, err := store.Create(ctx, "u-1", map[string]interface{}{"title": "mine done"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := store.Create(ctx, "u-2", map[string]interface{}{"title": "not mine"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if ok, err := store.Complete(ctx, "u-1", doneID); err != nil || !ok {
		t.Fatalf("complete failed: ok=%v err=%v", ok, err)
	}

	active, err := store.ListActive(ctx, "u-1")
	if err != nil {
		t.Fatalf("list active failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != activeID {
		t.Fatalf("unexpected active list: %+v", active)
	}

	completed, err := store.ListCompleted(ctx, "u-1")
	if err != nil {
		t.Fatalf("list completed failed: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != doneID {
		t.Fatalf("unexpected completed list: %+v", completed)
	}
}
