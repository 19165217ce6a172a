package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/fieldwise/agrokb/internal/types"
)

// Source status lifecycle: pending (registered, not yet ingested) →
// processed (fetched and parsed this run) → ready (chunk counts
// reconciled) or error.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusReady     = "ready"
	StatusError     = "error"
)

// Source is one knowledge-base source row.
type Source struct {
	ID          uuid.UUID            `json:"id"`
	URL         string               `json:"url"`
	Title       string               `json:"title"`
	SourceType  string               `json:"source_type"`
	Institution string               `json:"institution"`
	Status      string               `json:"status"`
	ChunksCount int                  `json:"chunks_count"`
	Metadata    types.SourceMetadata `json:"metadata"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// UpsertStats counts the outcomes of one upsert batch. Skipped covers
// dedup hits and lost insert races, which are expected, not errors.
type UpsertStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// Add accumulates another batch's stats.
func (s *UpsertStats) Add(other UpsertStats) {
	s.Inserted += other.Inserted
	s.Updated += other.Updated
	s.Skipped += other.Skipped
}

// Totals is a row-count snapshot for status reporting.
type Totals struct {
	Sources     int64 `json:"sources"`
	TextChunks  int64 `json:"text_chunks"`
	ImageChunks int64 `json:"image_chunks"`
}
