package pipeline

import (
	"time"

	"github.com/fieldwise/agrokb/internal/db"
	"github.com/fieldwise/agrokb/internal/embed"
)

// Run outcomes. Partial means some documents failed but the rest of the
// run went through; failed means no document survived parsing, so nothing
// reached the store.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Report is the run summary: per-phase counts, the failure tally, dropped
// product-recommendation chunks, token and dollar cost, and elapsed wall
// time. It is printed at the end of a run and written to summary.json.
type Report struct {
	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	DryRun         bool      `json:"dry_run"`
	Outcome        string    `json:"outcome"`

	SourcesPlanned int `json:"sources_planned"`
	Unreachable    int `json:"unreachable"`
	Scraped        int `json:"scraped"`
	Parsed         int `json:"parsed"`
	Failed         int `json:"failed"`

	TextChunks           int `json:"text_chunks"`
	DroppedProductChunks int `json:"dropped_product_chunks"`
	EmbeddedChunks       int `json:"embedded_chunks"`
	ImagesFound          int `json:"images_found"`
	ImagesCaptioned      int `json:"images_captioned"`

	ChunkUpserts db.UpsertStats    `json:"chunk_upserts"`
	ImageUpserts db.UpsertStats    `json:"image_upserts"`
	Cost         embed.CostSummary `json:"cost"`
}

// finish stamps elapsed time and classifies the outcome.
func (r *Report) finish() {
	r.ElapsedSeconds = time.Since(r.StartedAt).Seconds()
	switch {
	case r.Parsed == 0:
		r.Outcome = OutcomeFailed
	case r.Failed > 0:
		r.Outcome = OutcomePartial
	default:
		r.Outcome = OutcomeSuccess
	}
}
