package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldwise/agrokb/internal/types"
)

// UpsertImageChunks writes captioned images keyed by (source_id,
// image_url). Existing rows are updated in place — re-ingestion refreshes
// caption, embedding, and metadata rather than duplicating — and a
// duplicate-key race on insert counts as skipped.
func (db *DB) UpsertImageChunks(ctx context.Context, images []types.ProcessedImage) (UpsertStats, error) {
	var stats UpsertStats
	for _, img := range images {
		sourceID, err := uuid.Parse(img.SourceID)
		if err != nil {
			return stats, fmt.Errorf("image %s has invalid source id %q: %w", img.Image.URL, img.SourceID, err)
		}

		metadata, err := json.Marshal(img.Metadata)
		if err != nil {
			return stats, fmt.Errorf("failed to marshal metadata for image %s: %w", img.Image.URL, err)
		}

		var existing uuid.UUID
		err = db.pool.QueryRow(ctx,
			`SELECT id FROM image_chunks WHERE source_id = $1 AND image_url = $2`,
			sourceID, img.Image.URL,
		).Scan(&existing)

		switch {
		case errors.Is(err, pgx.ErrNoRows):
			_, err = db.pool.Exec(ctx,
				`INSERT INTO image_chunks (id, source_id, image_url, alt_text, caption, embedding, metadata)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				uuid.New(), sourceID, img.Image.URL, img.Image.AltText, img.Caption,
				embeddingParam(img.Embedding), metadata,
			)
			if err != nil {
				if isUniqueViolation(err) {
					stats.Skipped++
					continue
				}
				return stats, fmt.Errorf("failed to insert image %s: %w", img.Image.URL, err)
			}
			stats.Inserted++

		case err != nil:
			return stats, fmt.Errorf("failed to check image %s: %w", img.Image.URL, err)

		default:
			_, err = db.pool.Exec(ctx,
				`UPDATE image_chunks
				 SET alt_text = $2, caption = $3, embedding = $4, metadata = $5, updated_at = NOW()
				 WHERE id = $1`,
				existing, img.Image.AltText, img.Caption, embeddingParam(img.Embedding), metadata,
			)
			if err != nil {
				return stats, fmt.Errorf("failed to update image %s: %w", img.Image.URL, err)
			}
			stats.Updated++
		}
	}
	return stats, nil
}
