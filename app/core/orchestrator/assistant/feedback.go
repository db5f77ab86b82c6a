package assistant

import (
	"context"
	"fmt"
	"sync"

	"taskdeck/app/pkg/logger"
)

const (
	RatingUp   = "up"
	RatingDown = "down"
)

func ValidRating(rating string) bool {
	return rating == RatingUp || rating == RatingDown
}

// feedbackGate keeps the per-transaction "already resolved" flag for the
// lifetime of this process. It stops the interactive flow from asking twice;
// the store itself never rejects a second write.
type feedbackGate struct {
	mu       sync.Mutex
	resolved map[string]bool
}

func newFeedbackGate() *feedbackGate {
	return &feedbackGate{resolved: map[string]bool{}}
}

func (g *feedbackGate) isResolved(chatID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resolved[chatID]
}

func (g *feedbackGate) markResolved(chatID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resolved[chatID] {
		return false
	}
	g.resolved[chatID] = true
	return true
}

// SubmitFeedback records a rating and optional comment against a prior
// transaction, at most once per session. A second submission for a resolved
// transaction is ignored; the first write wins.
func (s *Service) SubmitFeedback(ctx context.Context, chatID string, rating string, comment string) (bool, error) {
	if !ValidRating(rating) {
		return false, fmt.Errorf("invalid rating %q", rating)
	}
	if s.feedback.isResolved(chatID) {
		logger.Info("Feedback for chat %s already resolved, ignoring", chatID)
		return true, nil
	}
	if err := s.transactions.SetFeedback(ctx, chatID, rating, comment); err != nil {
		return false, err
	}
	s.feedback.markResolved(chatID)
	logger.Info("Feedback submitted for chat %s", chatID)
	return true, nil
}

// DismissFeedback resolves the gate without writing a rating.
func (s *Service) DismissFeedback(chatID string) bool {
	if s.feedback.markResolved(chatID) {
		logger.Info("Feedback dismissed for chat %s", chatID)
	}
	return true
}

// FeedbackResolved reports whether a transaction already took feedback (or
// was dismissed) in this session.
func (s *Service) FeedbackResolved(chatID string) bool {
	return s.feedback.isResolved(chatID)
}
