// Package types provides type definitions for structured data passed between
// the ingestion pipeline stages: scraped documents, parsed content, chunks,
// and images.
//
//nolint:revive // types is a standard Go package name pattern
package types

// ScrapedDocument is one fetched document, classified by payload bytes but
// not yet parsed. Immutable once produced. RawContent round-trips through
// JSON as base64, which keeps PDF payloads snapshot-safe.
type ScrapedDocument struct {
	URL         string         `json:"url"`
	Title       string         `json:"title"`
	RawContent  []byte         `json:"raw_content"`
	ContentType string         `json:"content_type"` // "pdf" or "html"
	SourceType  string         `json:"source_type"`
	Metadata    SourceMetadata `json:"metadata"`
}

// SourceMetadata carries provenance attached to a document by its source
// descriptor and propagated onto every chunk derived from it.
type SourceMetadata struct {
	Institution string   `json:"institution,omitempty"`
	Crops       []string `json:"crops,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	Region      string   `json:"region,omitempty"`
	Priority    string   `json:"priority,omitempty"`
}
