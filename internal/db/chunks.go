package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/fieldwise/agrokb/internal/types"
)

// UpsertTextChunks writes embedded chunks, deduplicating on content hash:
// a hash already present counts as skipped, and a unique violation on
// insert (lost race) is also a skip. Rows are written one at a time with
// no wrapping transaction; a crash mid-batch leaves valid rows that the
// next run's dedup walks past.
func (db *DB) UpsertTextChunks(ctx context.Context, chunks []types.ChunkData) (UpsertStats, error) {
	var stats UpsertStats
	for _, ch := range chunks {
		sourceID, err := uuid.Parse(ch.SourceID)
		if err != nil {
			return stats, fmt.Errorf("chunk %s has invalid source id %q: %w", ch.ContentHash, ch.SourceID, err)
		}

		var exists bool
		err = db.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM text_chunks WHERE content_hash = $1)`,
			ch.ContentHash,
		).Scan(&exists)
		if err != nil {
			return stats, fmt.Errorf("failed to check chunk %s: %w", ch.ContentHash, err)
		}
		if exists {
			stats.Skipped++
			continue
		}

		metadata, err := json.Marshal(ch.Metadata)
		if err != nil {
			return stats, fmt.Errorf("failed to marshal metadata for chunk %s: %w", ch.ContentHash, err)
		}

		_, err = db.pool.Exec(ctx,
			`INSERT INTO text_chunks (id, content_hash, source_id, content, embedding, chunk_index, token_count, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), ch.ContentHash, sourceID, ch.Content, embeddingParam(ch.Embedding),
			ch.ChunkIndex, ch.TokenCount, metadata,
		)
		if err != nil {
			if isUniqueViolation(err) {
				stats.Skipped++
				continue
			}
			return stats, fmt.Errorf("failed to insert chunk %s: %w", ch.ContentHash, err)
		}
		stats.Inserted++
	}
	return stats, nil
}

// RecomputeChunkCounts reconciles chunks_count for the given sources from
// the actual row counts and promotes them to ready. Idempotent; correctness
// needs eventual convergence, not per-insert counter upkeep.
func (db *DB) RecomputeChunkCounts(ctx context.Context, sourceIDs []uuid.UUID) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	_, err := db.pool.Exec(ctx,
		`UPDATE sources s
		 SET chunks_count = (SELECT count(*) FROM text_chunks t WHERE t.source_id = s.id),
		     status = $2,
		     updated_at = NOW()
		 WHERE s.id = ANY($1)`,
		sourceIDs, StatusReady,
	)
	if err != nil {
		return fmt.Errorf("failed to recompute chunk counts: %w", err)
	}
	return nil
}

// embeddingParam converts a vector for insertion, mapping an absent
// embedding to NULL rather than a zero-length vector.
func embeddingParam(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}
