package db

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505"}
	assert.True(t, isUniqueViolation(dup))
	assert.True(t, isUniqueViolation(fmt.Errorf("failed to insert: %w", dup)),
		"should see through wrapping")

	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}),
		"foreign key violation is not a duplicate")
	assert.False(t, isUniqueViolation(errors.New("duplicate key value")),
		"plain errors do not count without SQLSTATE")
	assert.False(t, isUniqueViolation(nil))
}

func TestEmbeddingParam(t *testing.T) {
	assert.Nil(t, embeddingParam(nil), "missing embedding maps to NULL")
	assert.Nil(t, embeddingParam([]float32{}), "empty embedding maps to NULL")

	v := embeddingParam([]float32{0.1, 0.2, 0.3})
	vec, ok := v.(pgvector.Vector)
	assert.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec.Slice())
}

func TestSchemaSQL(t *testing.T) {
	// The embedded schema must match what the Go layer assumes.
	assert.Contains(t, schemaSQL, "CREATE EXTENSION IF NOT EXISTS vector")
	assert.Contains(t, schemaSQL, "vector(768)")
	assert.Contains(t, schemaSQL, "content_hash TEXT NOT NULL UNIQUE")
	assert.Contains(t, schemaSQL, "UNIQUE (source_id, image_url)")
	assert.Contains(t, schemaSQL, "ON DELETE CASCADE")

	// Idempotency: every CREATE must tolerate re-execution.
	for _, line := range strings.Split(schemaSQL, "\n") {
		if strings.HasPrefix(line, "CREATE") {
			assert.Contains(t, line, "IF NOT EXISTS", "schema statement must be idempotent: %s", line)
		}
	}
}

func TestStatusConstants(t *testing.T) {
	statuses := []string{StatusPending, StatusProcessed, StatusReady, StatusError}
	seen := make(map[string]bool)
	for _, s := range statuses {
		assert.NotEmpty(t, s)
		assert.False(t, seen[s], "status constants must be distinct: %s", s)
		seen[s] = true
	}
	assert.Equal(t, "pending", StatusPending, "must match the schema default")
}

func TestUpsertStatsAdd(t *testing.T) {
	total := UpsertStats{Inserted: 1, Updated: 2, Skipped: 3}
	total.Add(UpsertStats{Inserted: 10, Updated: 20, Skipped: 30})

	assert.Equal(t, UpsertStats{Inserted: 11, Updated: 22, Skipped: 33}, total)
}
