package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"quantumlab/internal/models"
	"quantumlab/internal/service/ai"
)

const chatSystemPrompt = "You are a medical assistant for a laboratory " +
	"analysis platform. Answer questions about lab results, reference ranges, " +
	"and general health topics in clear language. You do not diagnose; for " +
	"clinical decisions, tell the user to consult their physician."

// Chatter is the slice of the LLM client the chat service depends on.
type Chatter interface {
	Chat(ctx context.Context, systemPrompt string, history []*models.Message, opts ai.Options) (string, error)
}

// Service proxies the chat endpoint to the LLM, keeping a bounded per-user
// conversation window.
type Service struct {
	llm          Chatter
	store        HistoryStore
	historyLimit int
	maxTokens    int
}

// NewService wires the chat service. historyLimit caps the retained turns.
func NewService(llm Chatter, store HistoryStore, historyLimit, maxTokens int) *Service {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	if maxTokens <= 0 {
		maxTokens = 500
	}
	return &Service{llm: llm, store: store, historyLimit: historyLimit, maxTokens: maxTokens}
}

// SendMessage appends the user's message, asks the model for a reply, and
// persists the capped history.
func (s *Service) SendMessage(ctx context.Context, userID int64, content string) (*models.Message, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("message cannot be empty")
	}

	history, err := s.store.History(ctx, userID)
	if err != nil {
		return nil, err
	}
	history = append(history, &models.Message{
		Role:      models.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	history = s.cap(history)

	replyText, err := s.llm.Chat(ctx, chatSystemPrompt, history, ai.Options{
		Temperature: 0.7,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	reply := &models.Message{
		Role:      models.RoleAssistant,
		Content:   replyText,
		CreatedAt: time.Now().UTC(),
	}
	history = s.cap(append(history, reply))
	if err := s.store.Save(ctx, userID, history); err != nil {
		return nil, err
	}
	return reply, nil
}

// History returns the user's retained conversation window.
func (s *Service) History(ctx context.Context, userID int64) ([]*models.Message, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	return s.store.History(ctx, userID)
}

// Clear drops the user's conversation.
func (s *Service) Clear(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return errors.New("user_id is required")
	}
	return s.store.Clear(ctx, userID)
}

func (s *Service) cap(history []*models.Message) []*models.Message {
	if len(history) <= s.historyLimit {
		return history
	}
	return history[len(history)-s.historyLimit:]
}
