package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"quantumlab/internal/service/ai"
)

// Completer is the slice of the LLM client the pipeline depends on.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts ai.Options) (string, error)
}

// FileSummary is one file's anomaly digest.
type FileSummary struct {
	FileName string
	Text     string
	// Usable is false when the summary is a fallback produced after an
	// upstream failure. Fallbacks still feed the synthesis prompt but do
	// not count as analyzable data.
	Usable bool
}

const summarySystemPrompt = "You are a clinical laboratory assistant. " +
	"You receive the content of one lab-report file and must list only the " +
	"abnormal parameters in a compact format: one line per finding, " +
	"\"parameter: value (reference range) - deviation\". " +
	"If nothing is abnormal, answer exactly: no abnormal findings."

// Summarize compresses one file into a bounded anomaly summary. Any upstream
// error is recovered locally with a fallback summary naming the file; a single
// bad file never aborts the analysis.
func Summarize(ctx context.Context, llm Completer, file SourceFile, charLimit, maxTokens int) FileSummary {
	content := clampText(file.Text, charLimit)
	userPrompt := fmt.Sprintf("File: %s\n\n%s", file.Name, content)

	text, err := llm.Complete(ctx, summarySystemPrompt, userPrompt, ai.Options{
		Temperature: 0.1,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		log.Printf("summarize %q failed: %v", file.Name, err)
		return FileSummary{
			FileName: file.Name,
			Text:     fmt.Sprintf("[%s]: summary unavailable, file could not be processed.", file.Name),
			Usable:   false,
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return FileSummary{
			FileName: file.Name,
			Text:     fmt.Sprintf("[%s]: summary unavailable, empty model response.", file.Name),
			Usable:   false,
		}
	}
	return FileSummary{FileName: file.Name, Text: text, Usable: true}
}
