package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"taskdeck/app/core/orchestrator/changes"
)

// ErrMissingAPIKey is raised at construction time. No credential, no service.
var ErrMissingAPIKey = errors.New("missing OpenAI API key")

// SchemaError wraps a failure of the schema-constrained call with whatever
// transport detail the API error carried. Structuring is the most fragile
// link of the pipeline; operators need the status and body that broke it.
type SchemaError struct {
	Status  int
	Headers http.Header
	Body    string
	cause   error
}

func (e *SchemaError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("structured completion failed (status %d): %v", e.Status, e.cause)
	}
	return fmt.Sprintf("structured completion failed: %v", e.cause)
}

func (e *SchemaError) Unwrap() error {
	return e.cause
}

type Client struct {
	api                  openai.Client
	model                shared.ChatModel
	narrateTemperature   float64
	structureTemperature float64
}

func NewClient(apiKey string, model string, narrateTemperature float64, structureTemperature float64) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	return &Client{
		api:                  openai.NewClient(option.WithAPIKey(apiKey)),
		model:                shared.ChatModel(model),
		narrateTemperature:   narrateTemperature,
		structureTemperature: structureTemperature,
	}, nil
}

// CompleteText runs a free-text completion.
func (c *Client) CompleteText(ctx context.Context, system string, user string) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(c.narrateTemperature),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteChangeSet runs a completion constrained to the TaskChangeSet
// schema and decodes the result. Any failure comes back as a *SchemaError.
func (c *Client) CompleteChangeSet(ctx context.Context, system string, user string) (changes.TaskChangeSet, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(c.structureTemperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "task_change_set",
					Description: openai.String("New and modified task entries derived from proposed changes"),
					Schema:      changeSetSchema(),
				},
			},
		},
	})
	if err != nil {
		return changes.TaskChangeSet{}, wrapSchemaError(err)
	}
	if len(resp.Choices) == 0 {
		return changes.TaskChangeSet{}, &SchemaError{cause: fmt.Errorf("model returned no choices")}
	}

	content := resp.Choices[0].Message.Content
	var changeSet changes.TaskChangeSet
	if err := json.Unmarshal([]byte(content), &changeSet); err != nil {
		return changes.TaskChangeSet{}, &SchemaError{cause: fmt.Errorf("decode structured output: %w", err)}
	}
	if err := changeSet.Validate(); err != nil {
		return changes.TaskChangeSet{}, &SchemaError{cause: err}
	}
	return changeSet, nil
}

func wrapSchemaError(err error) *SchemaError {
	wrapped := &SchemaError{cause: err}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		wrapped.Status = apiErr.StatusCode
		wrapped.Body = apiErr.RawJSON()
		if apiErr.Response != nil {
			wrapped.Headers = apiErr.Response.Header
		}
	}
	return wrapped
}
