package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"quantumlab/internal/models"
	"quantumlab/internal/service/ai"
)

const synthesisSystemPrompt = "You are a medical analysis engine. " +
	"You receive summarized lab findings and reply with a single JSON object " +
	"following the structure given in the user message. Reply with JSON only, " +
	"no prose, no markdown."

// Synthesize issues the single final LLM call and parses the reply strictly
// as JSON. An upstream failure maps to ErrUpstream; a reply that is not valid
// JSON maps to ErrMalformedResponse. There is no retry at this layer.
func Synthesize(ctx context.Context, llm Completer, prompt string, maxTokens int) (*models.Analysis, error) {
	raw, err := llm.Complete(ctx, synthesisSystemPrompt, prompt, ai.Options{
		Temperature: 0.2,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	cleaned := stripCodeFences(raw)
	var analysis models.Analysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &analysis, nil
}

// stripCodeFences removes a surrounding markdown code fence some models wrap
// around JSON replies.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
