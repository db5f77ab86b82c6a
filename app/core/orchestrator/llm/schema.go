package llm

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"

	"taskdeck/app/core/orchestrator/changes"
)

var (
	changeSetSchemaOnce sync.Once
	changeSetSchemaRaw  map[string]interface{}
)

// changeSetSchema reflects the TaskChangeSet contract into the JSON schema
// handed to the schema-constrained completion. Reflected once; the contract
// is fixed at compile time.
func changeSetSchema() map[string]interface{} {
	changeSetSchemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
		}
		schema := reflector.Reflect(&changes.TaskChangeSet{})
		data, err := json.Marshal(schema)
		if err == nil {
			var raw map[string]interface{}
			if json.Unmarshal(data, &raw) == nil {
				changeSetSchemaRaw = raw
				return
			}
		}
		changeSetSchemaRaw = map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"new_tasks":      map[string]interface{}{"type": "array"},
				"modified_tasks": map[string]interface{}{"type": "array"},
			},
			"required": []string{"new_tasks", "modified_tasks"},
		}
	})
	return changeSetSchemaRaw
}
