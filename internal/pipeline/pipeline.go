package pipeline

import (
	"context"
	"fmt"
	"log"

	"quantumlab/internal/catalog"
	"quantumlab/internal/config"
	"quantumlab/internal/models"
)

// Pipeline runs the full archive analysis: extract, classify, summarize in
// batches, reconcile patient metadata, synthesize, complete the schema.
type Pipeline struct {
	summaryLLM   Completer
	synthesisLLM Completer
	cat          *catalog.Catalog
	cfg          config.PipelineConfig
}

// New wires the pipeline with its LLM clients, reference catalog, and tuning.
// Summarization and synthesis may use different models.
func New(summaryLLM, synthesisLLM Completer, cat *catalog.Catalog, cfg config.PipelineConfig) *Pipeline {
	return &Pipeline{summaryLLM: summaryLLM, synthesisLLM: synthesisLLM, cat: cat, cfg: cfg}
}

// Run processes one job and returns the completed analysis. The scratch
// directory and the uploaded archive are removed on every exit path.
func (p *Pipeline) Run(ctx context.Context, job *Job) (*models.Analysis, error) {
	defer job.Cleanup()

	names, err := Extract(job)
	if err != nil {
		return nil, err
	}
	log.Printf("analysis user=%d archive=%q: extracted %d entries", job.UserID, job.FileName, len(names))

	files := Classify(job.ScratchDir, names)
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no json or html files in archive", ErrNoData)
	}
	log.Printf("analysis user=%d: %d classifiable files", job.UserID, len(files))

	rec := NewReconciler()
	summaries := RunBatches(ctx, p.summaryLLM, files, rec, p.cfg.BatchWidth, p.cfg.FileCharLimit, p.cfg.SummaryMaxTokens)
	if UsableCount(summaries) == 0 {
		return nil, fmt.Errorf("%w: all file summarizations failed", ErrNoData)
	}
	patient := rec.Finalize()

	prompt := AssemblePrompt(patient, summaries, p.cat.PromptList(), p.cfg.PromptCharLimit)
	analysis, err := Synthesize(ctx, p.synthesisLLM, prompt, p.cfg.SynthesisMaxTokens)
	if err != nil {
		return nil, err
	}

	analysis.SchemaComplete()
	if analysis.Patient.Name == "" {
		// Model omitted or blanked the patient block; fall back to the
		// reconciled record.
		analysis.Patient = patient
	}
	log.Printf("analysis user=%d archive=%q: severity=%s", job.UserID, job.FileName, analysis.Severity)
	return analysis, nil
}
