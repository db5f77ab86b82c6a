package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"taskdeck/app/core/orchestrator/assistant"
	"taskdeck/app/core/orchestrator/changes"
	"taskdeck/app/core/orchestrator/chat"
	"taskdeck/app/core/orchestrator/prompt"
	"taskdeck/app/core/orchestrator/task"
	"taskdeck/app/pkg/logger"
)

const (
	retryableErrorMessage = "Couldn't process your request, please try again."
	partialApplyMessage   = "Some changes may not have been applied."
)

type Server struct {
	port            int
	server          *http.Server
	shutdownTimeout time.Duration
	startedUnix     atomic.Int64

	assistant *assistant.Service
	tasks     *task.Store
	prompts   *prompt.Store
	chats     *chat.Store
}

func NewServer(port int, svc *assistant.Service, tasks *task.Store, prompts *prompt.Store, chats *chat.Store) *Server {
	return &Server{
		port:            port,
		shutdownTimeout: 5 * time.Second,
		assistant:       svc,
		tasks:           tasks,
		prompts:         prompts,
		chats:           chats,
	}
}

func (s *Server) SetShutdownTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	s.shutdownTimeout = timeout
}

func (s *Server) Start(ctx context.Context) error {
	s.startedUnix.Store(time.Now().Unix())

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown error: %v", err)
		}
	}()

	logger.Info("HTTP listening on port %d...", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler builds the route table. Exposed so tests can drive the server
// without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/assistant/message", s.handleAssistantMessage)
	mux.HandleFunc("/api/assistant/feedback", s.handleAssistantFeedback)
	mux.HandleFunc("/api/tasks", s.handleTasks)
	mux.HandleFunc("/api/tasks/", s.handleTaskAction)
	mux.HandleFunc("/api/chats", s.handleChats)
	mux.HandleFunc("/api/prompts", s.handlePrompts)
	mux.HandleFunc("/api/prompts/", s.handlePromptAction)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

type assistantRequest struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

type assistantResponse struct {
	ChatID    string                 `json:"chat_id,omitempty"`
	ChangeSet *changes.TaskChangeSet `json:"change_set,omitempty"`
	Applied   bool                   `json:"applied"`
	Message   string                 `json:"message,omitempty"`
}

type feedbackRequest struct {
	ChatID  string `json:"chat_id"`
	Rating  string `json:"rating,omitempty"`
	Comment string `json:"comment,omitempty"`
	Dismiss bool   `json:"dismiss,omitempty"`
}

type feedbackResponse struct {
	Resolved bool `json:"resolved"`
}

type taskRequest struct {
	UserID      string `json:"user_id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Notes       string `json:"notes,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	Status      string `json:"status,omitempty"`
}

type taskResponse struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	DueDate     string            `json:"due_date,omitempty"`
	Status      string            `json:"status"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
	Updates     []task.UpdateRecord `json:"updates,omitempty"`
}

type taskListResponse struct {
	Tasks []taskResponse `json:"tasks"`
}

type chatResponse struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	InputText      string `json:"inputText"`
	PromptName     string `json:"prompt_name"`
	PromptVersion  int    `json:"prompt_version"`
	Response       string `json:"Response,omitempty"`
	FeedbackRating string `json:"feedbackRating,omitempty"`
	FeedbackText   string `json:"feedbackText,omitempty"`
	CreatedAt      string `json:"created_at"`
}

type chatListResponse struct {
	Chats []chatResponse `json:"chats"`
}

type promptRequest struct {
	Name string `json:"prompt_name"`
	Text string `json:"text"`
}

type promptListResponse struct {
	Prompts []prompt.Prompt `json:"prompts"`
}

type statusResponse struct {
	StartedAt string `json:"started_at,omitempty"`
	UptimeSec int64  `json:"uptime_sec"`
}

func (s *Server) handleAssistantMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req assistantRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}

	result, err := s.assistant.ProcessRequest(r.Context(), req.UserID, req.Content)
	if err != nil {
		logger.Error("Assistant request failed for %s: %v", req.UserID, err)
		writeJSON(w, http.StatusBadGateway, assistantResponse{Message: retryableErrorMessage})
		return
	}
	if result == nil {
		writeJSON(w, http.StatusOK, assistantResponse{Applied: false, Message: partialApplyMessage})
		return
	}

	writeJSON(w, http.StatusOK, assistantResponse{
		ChatID:    result.ChatID,
		ChangeSet: &result.Changes,
		Applied:   true,
	})
}

func (s *Server) handleAssistantFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req feedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ChatID) == "" {
		http.Error(w, "chat_id is required", http.StatusBadRequest)
		return
	}

	if req.Dismiss {
		writeJSON(w, http.StatusOK, feedbackResponse{Resolved: s.assistant.DismissFeedback(req.ChatID)})
		return
	}

	resolved, err := s.assistant.SubmitFeedback(r.Context(), req.ChatID, req.Rating, req.Comment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, feedbackResponse{Resolved: resolved})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
		var (
			items []task.Task
			err   error
		)
		switch status {
		case "", "active":
			items, err = s.tasks.ListActive(r.Context(), userID)
		case "completed":
			items, err = s.tasks.ListCompleted(r.Context(), userID)
		case "deleted":
			items, err = s.tasks.ListDeleted(r.Context(), userID)
		default:
			http.Error(w, "invalid status: "+status, http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp := taskListResponse{Tasks: make([]taskResponse, 0, len(items))}
		for _, t := range items {
			resp.Tasks = append(resp.Tasks, toTaskResponse(t))
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		var req taskRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.UserID) == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		fields := map[string]interface{}{"title": req.Title}
		if req.Description != "" {
			fields["description"] = req.Description
		}
		if req.Notes != "" {
			fields["notes"] = req.Notes
		}
		if req.DueDate != "" {
			fields["due_date"] = req.DueDate
		}
		taskID, err := s.tasks.Create(r.Context(), req.UserID, fields)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		created, err := s.tasks.Get(r.Context(), req.UserID, taskID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, toTaskResponse(created))
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTaskAction(w http.ResponseWriter, r *http.Request) {
	id, action, ok := parseActionPath(r.URL.Path, "/api/tasks/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodPatch {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req taskRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.UserID) == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		fields := map[string]interface{}{}
		if req.Title != "" {
			fields["title"] = req.Title
		}
		if req.Description != "" {
			fields["description"] = req.Description
		}
		if req.Notes != "" {
			fields["notes"] = req.Notes
		}
		if req.DueDate != "" {
			fields["due_date"] = req.DueDate
		}
		if req.Status != "" {
			fields["status"] = req.Status
		}
		updated, err := s.tasks.Update(r.Context(), req.UserID, id, fields)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !updated {
			http.NotFound(w, r)
			return
		}
		current, err := s.tasks.Get(r.Context(), req.UserID, id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toTaskResponse(current))
	case "complete", "delete", "restore":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req taskRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.UserID) == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		var (
			done bool
			err  error
		)
		switch action {
		case "complete":
			done, err = s.tasks.Complete(r.Context(), req.UserID, id)
		case "delete":
			done, err = s.tasks.Delete(r.Context(), req.UserID, id)
		case "restore":
			done, err = s.tasks.Restore(r.Context(), req.UserID, id)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !done {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	limit := parseListLimit(r.URL.Query().Get("limit"))
	items, err := s.chats.ListByUser(r.Context(), userID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := chatListResponse{Chats: make([]chatResponse, 0, len(items))}
	for _, t := range items {
		resp.Chats = append(resp.Chats, chatResponse{
			ID:             t.ID,
			UserID:         t.UserID,
			InputText:      t.InputText,
			PromptName:     t.PromptName,
			PromptVersion:  t.PromptVersion,
			Response:       t.Response,
			FeedbackRating: t.FeedbackRating,
			FeedbackText:   t.FeedbackText,
			CreatedAt:      time.Unix(t.CreatedAt, 0).UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := s.prompts.List(r.Context(), r.URL.Query().Get("name"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, promptListResponse{Prompts: items})
	case http.MethodPost:
		var req promptRequest
		if !decodeBody(w, r, &req) {
			return
		}
		created, err := s.prompts.Create(r.Context(), req.Name, req.Text)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePromptAction(w http.ResponseWriter, r *http.Request) {
	id, action, ok := parseActionPath(r.URL.Path, "/api/prompts/")
	if !ok || action != "activate" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.prompts.Activate(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := statusResponse{}
	if started := s.startedUnix.Load(); started > 0 {
		startAt := time.Unix(started, 0).UTC()
		resp.StartedAt = startAt.Format(time.RFC3339)
		resp.UptimeSec = int64(time.Since(startAt).Seconds())
		if resp.UptimeSec < 0 {
			resp.UptimeSec = 0
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func toTaskResponse(t task.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		UserID:      t.UserID,
		Title:       t.Title,
		Description: t.Description,
		Notes:       t.Notes,
		DueDate:     t.DueDate,
		Status:      string(t.Status),
		CreatedAt:   time.Unix(t.CreatedAt, 0).UTC().Format(time.RFC3339),
		UpdatedAt:   time.Unix(t.UpdatedAt, 0).UTC().Format(time.RFC3339),
		Updates:     t.Updates,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return false
	}
	defer r.Body.Close()
	if err := json.Unmarshal(body, dst); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseActionPath(path string, prefix string) (id string, action string, ok bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	tail := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if tail == "" {
		return "", "", false
	}
	parts := strings.Split(tail, "/")
	if len(parts) == 1 {
		return parts[0], "", true
	}
	if len(parts) == 2 {
		return parts[0], parts[1], true
	}
	return "", "", false
}

func parseListLimit(raw string) int {
	const (
		defaultLimit = 50
		maxLimit     = 200
	)
	size, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || size <= 0 {
		return defaultLimit
	}
	if size > maxLimit {
		return maxLimit
	}
	return size
}
