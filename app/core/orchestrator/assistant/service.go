package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/pretty"

	config "taskdeck/app/configs"
	"taskdeck/app/core/orchestrator/changes"
	"taskdeck/app/core/orchestrator/llm"
	"taskdeck/app/core/orchestrator/prompt"
	"taskdeck/app/core/orchestrator/task"
	"taskdeck/app/pkg/logger"
)

// DefaultPromptText is the hard fallback when the prompt slot has no active
// version. Missing configuration must never block a request.
const DefaultPromptText = "You are an expert Task manager. Given the user input which includes" +
	" user's current task-list, first understand the user's goal and figure" +
	" out what changes need to be made to user's task list."

const structureSystemPrompt = "You are an AI assistant that processes a list of task descriptions" +
	" and structures them into new and modified task entries. Strictly adhere to the provided" +
	" schema for the output format. Ensure all required fields are present for each task." +
	" The input text is a list of proposed changes."

// ModelClient is the two-mode completion surface the pipeline consumes.
type ModelClient interface {
	CompleteText(ctx context.Context, system string, user string) (string, error)
	CompleteChangeSet(ctx context.Context, system string, user string) (changes.TaskChangeSet, error)
}

// TaskGateway is the slice of the task store the pipeline touches.
type TaskGateway interface {
	ListActive(ctx context.Context, userID string) ([]task.Task, error)
	ListCompleted(ctx context.Context, userID string) ([]task.Task, error)
	ListDeleted(ctx context.Context, userID string) ([]task.Task, error)
	Create(ctx context.Context, userID string, fields map[string]interface{}) (string, error)
	Update(ctx context.Context, userID string, taskID string, fields map[string]interface{}) (bool, error)
}

// PromptSource resolves the active instruction text for a named slot.
type PromptSource interface {
	GetActive(ctx context.Context, name string) (prompt.Prompt, error)
}

// TransactionLog persists chat transactions and their follow-up writes.
type TransactionLog interface {
	Create(ctx context.Context, userID string, inputText string, promptName string, promptVersion int) (string, error)
	SetResponse(ctx context.Context, chatID string, response string) error
	SetFeedback(ctx context.Context, chatID string, rating string, comment string) error
}

// Result is the successful outcome of one request.
type Result struct {
	ChatID  string
	Changes changes.TaskChangeSet
}

type Service struct {
	model        ModelClient
	tasks        TaskGateway
	prompts      PromptSource
	transactions TransactionLog
	aiCfg        config.AIConfig

	feedback *feedbackGate
}

func NewService(model ModelClient, tasks TaskGateway, prompts PromptSource, transactions TransactionLog, aiCfg config.AIConfig) *Service {
	return &Service{
		model:        model,
		tasks:        tasks,
		prompts:      prompts,
		transactions: transactions,
		aiCfg:        aiCfg,
		feedback:     newFeedbackGate(),
	}
}

// ProcessRequest runs one natural-language request through the pipeline:
// narrate, structure, apply. The transaction row is persisted before any
// model call so a trace exists even on total failure. A nil result with a
// nil error means the request was recorded but no changes were confidently
// applied.
func (s *Service) ProcessRequest(ctx context.Context, userID string, inputText string) (*Result, error) {
	activePrompt := s.resolvePrompt(ctx)
	snapshot := s.snapshotTasks(ctx, userID)

	chatID, err := s.transactions.Create(ctx, userID, inputText, activePrompt.Name, activePrompt.Version)
	if err != nil {
		return nil, fmt.Errorf("record chat transaction: %w", err)
	}

	narration, err := s.narrate(ctx, activePrompt.Text, snapshot, inputText)
	if err != nil {
		logger.Error("Narrate stage failed for user %s (chat %s): %v", userID, chatID, err)
		return nil, fmt.Errorf("narrate request: %w", err)
	}

	changeSet, err := s.structure(ctx, narration)
	if err != nil {
		logger.Error("Structure stage failed for user %s (chat %s): %v", userID, chatID, err)
		return nil, err
	}

	applied := s.apply(ctx, userID, changeSet)
	if applied == nil {
		return nil, nil
	}

	if err := s.transactions.SetResponse(ctx, chatID, changes.EncodeChangeSet(*applied)); err != nil {
		return nil, fmt.Errorf("record chat response: %w", err)
	}

	logger.Info("Chat %s processed for user %s: %d new, %d modified", chatID, userID, len(applied.NewTasks), len(applied.ModifiedTasks))
	return &Result{ChatID: chatID, Changes: *applied}, nil
}

// resolvePrompt never fails; a missing or errored slot yields the built-in
// default with version 0 so historical attribution stays meaningful.
func (s *Service) resolvePrompt(ctx context.Context) prompt.Prompt {
	slot := s.aiCfg.PromptSlot
	active, err := s.prompts.GetActive(ctx, slot)
	if err == nil && strings.TrimSpace(active.Text) != "" {
		return active
	}
	if err != nil {
		logger.Error("No active %s prompt (%v), using fallback", slot, err)
	} else {
		logger.Error("Active %s prompt is empty, using fallback", slot)
	}
	return prompt.Prompt{Name: slot, Text: DefaultPromptText, Status: prompt.StatusActive, Version: 0}
}

type taskSnapshot struct {
	active    string
	completed string
	deleted   string
}

// snapshotTasks serializes the user's current lists for model context. List
// failures degrade to an error marker in the context rather than aborting
// the request.
func (s *Service) snapshotTasks(ctx context.Context, userID string) taskSnapshot {
	encode := func(items []task.Task, err error) string {
		if err != nil {
			logger.Error("Error listing tasks for %s: %v", userID, err)
			return changes.EncodeDocument(map[string]interface{}{"error": err})
		}
		docs := make([]map[string]interface{}, 0, len(items))
		for _, t := range items {
			docs = append(docs, t.Document())
		}
		return string(pretty.Pretty([]byte(changes.EncodeDocuments(docs))))
	}

	active, err := s.tasks.ListActive(ctx, userID)
	activeJSON := encode(active, err)
	completed, err := s.tasks.ListCompleted(ctx, userID)
	completedJSON := encode(completed, err)
	deleted, err := s.tasks.ListDeleted(ctx, userID)
	deletedJSON := encode(deleted, err)

	return taskSnapshot{active: activeJSON, completed: completedJSON, deleted: deletedJSON}
}

func (s *Service) narrate(ctx context.Context, promptText string, snapshot taskSnapshot, inputText string) (string, error) {
	system := buildNarrateSystemMessage(promptText, snapshot)
	return s.model.CompleteText(ctx, system, strings.TrimSpace(inputText))
}

func buildNarrateSystemMessage(promptText string, snapshot taskSnapshot) string {
	var b strings.Builder
	b.WriteString(promptText)
	b.WriteString("\n\nCurrent active tasks:\n")
	b.WriteString(snapshot.active)
	b.WriteString("\nCompleted tasks:\n")
	b.WriteString(snapshot.completed)
	b.WriteString("\nBased on the user's request, determine what changes need to be made to the task list.\n")
	b.WriteString("List each change separately.\n")
	return b.String()
}

// structure converts the narration into a TaskChangeSet. On failure the
// narration preview and any transport detail ride along in the error.
func (s *Service) structure(ctx context.Context, narration string) (changes.TaskChangeSet, error) {
	changeSet, err := s.model.CompleteChangeSet(ctx, structureSystemPrompt, narration)
	if err != nil {
		preview := truncateRunes(narration, s.aiCfg.NarrationPreviewMax)
		var schemaErr *llm.SchemaError
		if errors.As(err, &schemaErr) {
			logger.Error("Structure call failed: status=%d headers=%v body=%s", schemaErr.Status, schemaErr.Headers, schemaErr.Body)
		}
		return changes.TaskChangeSet{}, fmt.Errorf("structure narration (input preview: %q): %w", preview, err)
	}
	return changeSet, nil
}

// apply writes the change set to the task store. Each item is independent:
// one failed create or update is logged and skipped. Only a failure of the
// batch itself (a panic outside per-item error handling) voids the stage.
func (s *Service) apply(ctx context.Context, userID string, changeSet changes.TaskChangeSet) (applied *changes.TaskChangeSet) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Apply stage failed wholesale for user %s: %v", userID, r)
			applied = nil
		}
	}()

	for _, newTask := range changeSet.NewTasks {
		fields := newTask.CreateFields()
		taskID, err := s.tasks.Create(ctx, userID, fields)
		if err != nil {
			logger.Error("Error creating task for %s: %v (fields: %v)", userID, err, fields)
			continue
		}
		logger.Info("Created task %s for %s", taskID, userID)
	}

	for _, modTask := range changeSet.ModifiedTasks {
		fields := modTask.UpdateFields()
		if len(fields) == 0 {
			logger.Info("Modification for task %s carries no fields, skipping", modTask.ID)
			continue
		}
		ok, err := s.tasks.Update(ctx, userID, modTask.ID, fields)
		if err != nil {
			logger.Error("Error updating task %s for %s: %v (fields: %v)", modTask.ID, userID, err, fields)
			continue
		}
		if !ok {
			logger.Error("Task %s not found or not owned by %s, update skipped", modTask.ID, userID)
		}
	}

	return &changeSet
}

func truncateRunes(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	if maxRunes <= 1 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-1]) + "..."
}
