package pipeline

import (
	"context"
	"sync"
)

type workerResult struct {
	index      int
	summary    FileSummary
	candidates PatientCandidates
}

// RunBatches drives summarization over the classified files in fixed-width
// batches. Workers within one batch run concurrently; batches are strictly
// sequential, so at most batchWidth calls are in flight at any instant.
//
// Worker goroutines only return results; patient candidates are applied to
// the reconciler here, in ascending file order after each batch settles,
// which keeps first-writer-wins deterministic for a given file ordering.
func RunBatches(ctx context.Context, llm Completer, files []SourceFile, rec *Reconciler, batchWidth, charLimit, maxTokens int) []FileSummary {
	if batchWidth <= 0 {
		batchWidth = 1
	}
	summaries := make([]FileSummary, len(files))

	for start := 0; start < len(files); start += batchWidth {
		end := start + batchWidth
		if end > len(files) {
			end = len(files)
		}

		results := make([]workerResult, end-start)
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				file := files[idx]
				results[idx-start] = workerResult{
					index:      idx,
					summary:    Summarize(ctx, llm, file, charLimit, maxTokens),
					candidates: CandidatesFor(file),
				}
			}(i)
		}
		wg.Wait()

		for _, res := range results {
			summaries[res.index] = res.summary
			rec.Apply(res.candidates)
		}
	}
	return summaries
}

// UsableCount reports how many summaries are genuine model output rather
// than per-file failure fallbacks.
func UsableCount(summaries []FileSummary) int {
	n := 0
	for _, s := range summaries {
		if s.Usable {
			n++
		}
	}
	return n
}
