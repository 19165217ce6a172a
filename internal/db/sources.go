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

// UpsertSources inserts or refreshes one source row per scraped document,
// keyed by URL, and returns the url-to-id mapping the chunk phase needs.
// Existing rows are updated in place and their status reset to processed,
// so a re-ingested source is always re-ingestable.
func (db *DB) UpsertSources(ctx context.Context, docs []types.ScrapedDocument) (map[string]uuid.UUID, error) {
	ids := make(map[string]uuid.UUID, len(docs))
	for _, doc := range docs {
		metadata, err := json.Marshal(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata for %s: %w", doc.URL, err)
		}

		var id uuid.UUID
		err = db.pool.QueryRow(ctx,
			`INSERT INTO sources (id, url, title, source_type, institution, status, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (url) DO UPDATE
			 SET title = EXCLUDED.title,
			     source_type = EXCLUDED.source_type,
			     institution = EXCLUDED.institution,
			     status = EXCLUDED.status,
			     metadata = EXCLUDED.metadata,
			     updated_at = NOW()
			 RETURNING id`,
			uuid.New(), doc.URL, doc.Title, doc.SourceType, doc.Metadata.Institution, StatusProcessed, metadata,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert source %s: %w", doc.URL, err)
		}
		ids[doc.URL] = id
	}
	return ids, nil
}

// GetSource returns the source row for a URL, or nil if none exists.
func (db *DB) GetSource(ctx context.Context, url string) (*Source, error) {
	var (
		s    Source
		meta []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT id, url, title, source_type, institution, status, chunks_count, metadata, created_at, updated_at
		 FROM sources WHERE url = $1`,
		url,
	).Scan(&s.ID, &s.URL, &s.Title, &s.SourceType, &s.Institution, &s.Status, &s.ChunksCount, &meta, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get source %s: %w", url, err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", url, err)
		}
	}
	return &s, nil
}

// ListSources returns all source rows ordered by institution then URL.
func (db *DB) ListSources(ctx context.Context) ([]Source, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, url, title, source_type, institution, status, chunks_count, metadata, created_at, updated_at
		 FROM sources ORDER BY institution, url`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var (
			s    Source
			meta []byte
		)
		if err := rows.Scan(&s.ID, &s.URL, &s.Title, &s.SourceType, &s.Institution, &s.Status,
			&s.ChunksCount, &meta, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &s.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", s.URL, err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkSourceError flags a source as failed and records the reason in its
// metadata.
func (db *DB) MarkSourceError(ctx context.Context, url, reason string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE sources
		 SET status = $2,
		     metadata = metadata || jsonb_build_object('error', $3::text),
		     updated_at = NOW()
		 WHERE url = $1`,
		url, StatusError, reason,
	)
	if err != nil {
		return fmt.Errorf("failed to mark source %s as error: %w", url, err)
	}
	return nil
}
