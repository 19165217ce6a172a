package chunk

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ContentHash returns a chunk's deduplication identity: a BLAKE2b-256 digest
// of the source ID, the chunk's position, and its exact content. Two chunks
// collide only when they are the same text at the same place in the same
// source, which is what makes re-ingestion of unchanged documents a no-op.
// The embedding model is deliberately not part of the identity; it is
// recorded in chunk metadata instead so stale-model rows stay identifiable.
func ContentHash(sourceID string, index int, content string) string {
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%s|%d|%s", sourceID, index, content)))
	return hex.EncodeToString(sum[:])
}
