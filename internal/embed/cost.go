package embed

import (
	"fmt"
	"sync"
)

// Provider list prices in USD per 1k tokens. Estimates only: billing uses
// the provider's own token counts, which the chars/4 heuristic tracks
// loosely.
const (
	embeddingPricePer1K     = 0.00002
	captionInputPricePer1K  = 0.000075
	captionOutputPricePer1K = 0.0003
)

// CostTracker accumulates token usage across embedding batches and caption
// calls. Process-scoped, never persisted; caption calls add from concurrent
// goroutines, hence the mutex.
type CostTracker struct {
	mu sync.Mutex

	embeddingTokens     int
	captionInputTokens  int
	captionOutputTokens int
	batches             int
	captions            int
}

// NewCostTracker returns an empty tracker.
func NewCostTracker() *CostTracker {
	return &CostTracker{}
}

// AddEmbedding records one successful embedding request of n tokens.
func (t *CostTracker) AddEmbedding(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.embeddingTokens += n
	t.batches++
}

// AddCaption records one successful caption call.
func (t *CostTracker) AddCaption(inputTokens, outputTokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.captionInputTokens += inputTokens
	t.captionOutputTokens += outputTokens
	t.captions++
}

// Summary returns the accumulated usage and its estimated dollar cost.
func (t *CostTracker) Summary() CostSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	usd := float64(t.embeddingTokens)/1000*embeddingPricePer1K +
		float64(t.captionInputTokens)/1000*captionInputPricePer1K +
		float64(t.captionOutputTokens)/1000*captionOutputPricePer1K

	return CostSummary{
		EmbeddingTokens:     t.embeddingTokens,
		CaptionInputTokens:  t.captionInputTokens,
		CaptionOutputTokens: t.captionOutputTokens,
		Batches:             t.batches,
		Captions:            t.captions,
		USD:                 usd,
	}
}

// CostSummary is a point-in-time snapshot of tracked usage.
type CostSummary struct {
	EmbeddingTokens     int     `json:"embedding_tokens"`
	CaptionInputTokens  int     `json:"caption_input_tokens"`
	CaptionOutputTokens int     `json:"caption_output_tokens"`
	Batches             int     `json:"batches"`
	Captions            int     `json:"captions"`
	USD                 float64 `json:"usd"`
}

// String renders the summary for run reports.
func (s CostSummary) String() string {
	total := s.EmbeddingTokens + s.CaptionInputTokens + s.CaptionOutputTokens
	return fmt.Sprintf("%d tokens across %d batches and %d captions (~$%.4f)",
		total, s.Batches, s.Captions, s.USD)
}
