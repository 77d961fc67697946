package domain

// Chunk is one retrieval unit of an indexed source document.
type Chunk struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	Page       int    `json:"page,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// RetrievedChunk is a chunk together with the score assigned by a
// search backend or by rank fusion.
type RetrievedChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// SearchFilter restricts retrieval to the listed source identifiers.
// Empty means no restriction.
type SearchFilter struct {
	Sources []string
}

// Citation points a generated statement or answer back at corpus text.
// Page is nil when the source carries no page information.
type Citation struct {
	Source string `json:"source"`
	Page   *int   `json:"page,omitempty"`
	Quote  string `json:"quote"`
}

// SourceInfo describes one distinct source known to the chunk store.
type SourceInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

type Answer struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
	// NoContext is set when retrieval produced nothing usable and the
	// answer text is therefore empty.
	NoContext bool `json:"no_context,omitempty"`
}
