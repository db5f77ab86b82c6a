package changes

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// EncodeDocument renders a document as JSON. Values without a native JSON
// form are coerced to strings instead of failing: timestamps become RFC3339,
// Stringers use String(), anything unmarshalable falls back to fmt.Sprint.
// The result is always valid JSON.
func EncodeDocument(doc map[string]interface{}) string {
	out := `{}`
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = setField(out, escapePath(k), doc[k])
	}
	return out
}

// EncodeDocuments renders a slice of documents as a JSON array.
func EncodeDocuments(docs []map[string]interface{}) string {
	out := `[]`
	for _, doc := range docs {
		var err error
		out, err = sjson.SetRaw(out, "-1", EncodeDocument(doc))
		if err != nil {
			// EncodeDocument always yields valid JSON; nothing to do but keep going.
			continue
		}
	}
	return out
}

// EncodeChangeSet serializes a TaskChangeSet for the transaction record.
// It never fails.
func EncodeChangeSet(c TaskChangeSet) string {
	newDocs := make([]map[string]interface{}, 0, len(c.NewTasks))
	for _, t := range c.NewTasks {
		newDocs = append(newDocs, t.CreateFields())
	}
	modDocs := make([]map[string]interface{}, 0, len(c.ModifiedTasks))
	for _, t := range c.ModifiedTasks {
		doc := t.UpdateFields()
		doc["id"] = t.ID
		modDocs = append(modDocs, doc)
	}

	out := `{}`
	out, _ = sjson.SetRaw(out, "new_tasks", EncodeDocuments(newDocs))
	out, _ = sjson.SetRaw(out, "modified_tasks", EncodeDocuments(modDocs))
	return out
}

// DecodeChangeSet reads a serialized TaskChangeSet back. Unknown or coerced
// fields are ignored.
func DecodeChangeSet(raw string) TaskChangeSet {
	var c TaskChangeSet
	for _, item := range gjson.Get(raw, "new_tasks").Array() {
		c.NewTasks = append(c.NewTasks, NewTask{
			Title:       item.Get("title").String(),
			Description: item.Get("description").String(),
			Notes:       item.Get("notes").String(),
			DueDate:     item.Get("due_date").String(),
		})
	}
	for _, item := range gjson.Get(raw, "modified_tasks").Array() {
		c.ModifiedTasks = append(c.ModifiedTasks, ModifiedTask{
			ID:          item.Get("id").String(),
			Title:       item.Get("title").String(),
			Description: item.Get("description").String(),
			Notes:       item.Get("notes").String(),
			DueDate:     item.Get("due_date").String(),
			Status:      item.Get("status").String(),
		})
	}
	return c
}

func setField(out, path string, v interface{}) string {
	updated, err := sjson.Set(out, path, coerceValue(v))
	if err != nil {
		updated, err = sjson.Set(out, path, fmt.Sprint(v))
		if err != nil {
			return out
		}
	}
	return updated
}

func coerceValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format(time.RFC3339)
	case map[string]interface{}:
		coerced := make(map[string]interface{}, len(val))
		for k, item := range val {
			coerced[k] = coerceValue(item)
		}
		return coerced
	case []interface{}:
		coerced := make([]interface{}, 0, len(val))
		for _, item := range val {
			coerced = append(coerced, coerceValue(item))
		}
		return coerced
	case []map[string]interface{}:
		coerced := make([]interface{}, 0, len(val))
		for _, item := range val {
			coerced = append(coerced, coerceValue(item))
		}
		return coerced
	case fmt.Stringer:
		return val.String()
	case error:
		return val.Error()
	default:
		return val
	}
}

// sjson treats dots and colons in paths as structure; keys must escape them.
func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '|', '#', '@', '*', '?', ':':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
