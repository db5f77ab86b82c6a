package changes

import (
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func TestEncodeDocumentCoercesAwkwardValues(t *testing.T) {
	created := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	doc := map[string]interface{}{
		"title":     "buy milk",
		"createdAt": created,
		"elapsed":   90 * time.Second,
		"weird":     complex(1, 2),
		"none":      nil,
	}

	out := EncodeDocument(doc)
	if !gjson.Valid(out) {
		t.Fatalf("expected valid JSON, got: %s", out)
	}
	if got := gjson.Get(out, "createdAt").String(); got != "2025-03-14T09:26:53Z" {
		t.Fatalf("timestamp not coerced to RFC3339: %s", got)
	}
	if got := gjson.Get(out, "elapsed").String(); got != "1m30s" {
		t.Fatalf("stringer value not coerced via String(): %s", got)
	}
	if got := gjson.Get(out, "weird").String(); got != "(1+2i)" {
		t.Fatalf("unmarshalable value not coerced via Sprint: %s", got)
	}
	if !gjson.Get(out, "none").Exists() || gjson.Get(out, "none").Type != gjson.Null {
		t.Fatalf("nil value should encode as JSON null: %s", out)
	}
}

func TestEncodeDocumentNestedAndEscapedKeys(t *testing.T) {
	doc := map[string]interface{}{
		"due.date": "tomorrow",
		"updates": []map[string]interface{}{
			{"user": "u-1", "at": time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
		},
	}

	out := EncodeDocument(doc)
	if !gjson.Valid(out) {
		t.Fatalf("expected valid JSON, got: %s", out)
	}
	if got := gjson.Get(out, `due\.date`).String(); got != "tomorrow" {
		t.Fatalf("dotted key not preserved literally: %s", out)
	}
	if got := gjson.Get(out, "updates.0.at").String(); got != "2025-01-02T00:00:00Z" {
		t.Fatalf("nested timestamp not coerced: %s", out)
	}
}

func TestEncodeDocumentsAppends(t *testing.T) {
	out := EncodeDocuments([]map[string]interface{}{
		{"title": "first"},
		{"title": "second"},
	})
	items := gjson.Parse(out).Array()
	if len(items) != 2 {
		t.Fatalf("expected 2 documents, got %d: %s", len(items), out)
	}
	if items[0].Get("title").String() != "first" || items[1].Get("title").String() != "second" {
		t.Fatalf("document order not preserved: %s", out)
	}
}

func TestEncodeChangeSetOmitsAbsentFields(t *testing.T) {
	set := TaskChangeSet{
		NewTasks: []NewTask{
			{Title: "buy milk", DueDate: "2025-03-15"},
		},
		ModifiedTasks: []ModifiedTask{
			{ID: "t-1", Status: "completed"},
		},
	}

	out := EncodeChangeSet(set)
	if !gjson.Valid(out) {
		t.Fatalf("expected valid JSON, got: %s", out)
	}
	newDoc := gjson.Get(out, "new_tasks.0")
	if newDoc.Get("title").String() != "buy milk" {
		t.Fatalf("missing title: %s", out)
	}
	if newDoc.Get("description").Exists() || newDoc.Get("notes").Exists() {
		t.Fatalf("absent optional fields should be omitted, not null: %s", out)
	}
	modDoc := gjson.Get(out, "modified_tasks.0")
	if modDoc.Get("id").String() != "t-1" || modDoc.Get("status").String() != "completed" {
		t.Fatalf("modified task payload wrong: %s", out)
	}
	if modDoc.Get("title").Exists() {
		t.Fatalf("unchanged fields should be omitted from the payload: %s", out)
	}
}

func TestDecodeChangeSetRoundTrip(t *testing.T) {
	original := TaskChangeSet{
		NewTasks:      []NewTask{{Title: "walk dog", Notes: "before 6pm"}},
		ModifiedTasks: []ModifiedTask{{ID: "t-9", Title: "renamed"}},
	}
	decoded := DecodeChangeSet(EncodeChangeSet(original))
	if len(decoded.NewTasks) != 1 || decoded.NewTasks[0].Title != "walk dog" || decoded.NewTasks[0].Notes != "before 6pm" {
		t.Fatalf("new tasks did not survive the round trip: %+v", decoded)
	}
	if len(decoded.ModifiedTasks) != 1 || decoded.ModifiedTasks[0].ID != "t-9" || decoded.ModifiedTasks[0].Title != "renamed" {
		t.Fatalf("modified tasks did not survive the round trip: %+v", decoded)
	}
}

func TestValidateRequiredFields(t *testing.T) {
	missingTitle := TaskChangeSet{NewTasks: []NewTask{{Description: "no title"}}}
	if err := missingTitle.Validate(); err == nil || !strings.Contains(err.Error(), "title") {
		t.Fatalf("expected title error, got: %v", err)
	}

	missingID := TaskChangeSet{ModifiedTasks: []ModifiedTask{{Title: "orphan"}}}
	if err := missingID.Validate(); err == nil || !strings.Contains(err.Error(), "id") {
		t.Fatalf("expected id error, got: %v", err)
	}

	ok := TaskChangeSet{
		NewTasks:      []NewTask{{Title: "fine"}},
		ModifiedTasks: []ModifiedTask{{ID: "t-1"}},
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid change set rejected: %v", err)
	}
}

func TestUpdateFieldsNeverCarriesID(t *testing.T) {
	mod := ModifiedTask{ID: "t-1", Title: "new title", Status: "active"}
	fields := mod.UpdateFields()
	if _, ok := fields["id"]; ok {
		t.Fatal("update payload must not contain the id")
	}
	if len(fields) != 2 {
		t.Fatalf("expected 2 present fields, got %v", fields)
	}
}
