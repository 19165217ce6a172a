package types

// Chunk content types. The narrative types come from the chunker's keyword
// heuristics; table and image mark structural chunks.
const (
	ChunkTypeSymptom    = "symptom"
	ChunkTypeTreatment  = "treatment"
	ChunkTypeProduct    = "product"
	ChunkTypeProcedure  = "procedure"
	ChunkTypeBackground = "background"
	ChunkTypeTable      = "table"
	ChunkTypeImage      = "image"
)

// ChunkData is one retrieval-sized unit of text. ContentHash is its
// deduplication identity (a digest of source ID, chunk index, and content);
// Embedding is filled in by the embedder before persistence.
type ChunkData struct {
	Content     string        `json:"content"`
	SourceID    string        `json:"source_id"`
	ChunkIndex  int           `json:"chunk_index"`
	TokenCount  int           `json:"token_count"`
	ContentHash string        `json:"content_hash"`
	Embedding   []float32     `json:"embedding,omitempty"`
	Metadata    ChunkMetadata `json:"metadata"`
}

// ChunkMetadata is stored alongside each chunk as JSON for retrieval-time
// filtering and provenance.
type ChunkMetadata struct {
	Section        string   `json:"section,omitempty"`
	ContentType    string   `json:"content_type"`
	SourceURL      string   `json:"source_url,omitempty"`
	Institution    string   `json:"institution,omitempty"`
	Crops          []string `json:"crops,omitempty"`
	Topics         []string `json:"topics,omitempty"`
	Region         string   `json:"region,omitempty"`
	EmbeddingModel string   `json:"embedding_model,omitempty"`
}

// ProcessedImage is an image with a generated (or assembled) caption and
// its embedding, ready for upsert. Identity is (SourceID, Image.URL).
type ProcessedImage struct {
	Image     ImageData     `json:"image"`
	SourceID  string        `json:"source_id"`
	Caption   string        `json:"caption"`
	Embedding []float32     `json:"embedding,omitempty"`
	Metadata  ChunkMetadata `json:"metadata"`
}
