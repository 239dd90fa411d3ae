package model

import "time"

// VectorRecord is one chunk stored in the vector index.
type VectorRecord struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Vector   []float32      `json:"-"`
	Metadata VectorMetadata `json:"metadata"`
}

type VectorMetadata struct {
	Title              string    `json:"title,omitempty"`
	Source             string    `json:"source,omitempty"`
	Category           string    `json:"category,omitempty"`
	ChunkIndex         int       `json:"chunkIndex"`
	OriginalDocumentID string    `json:"originalDocumentId,omitempty"`
	OriginalFile       string    `json:"originalFile,omitempty"`
	CreatedAt          time.Time `json:"createdAt,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt,omitempty"`
}

// SearchResult pairs a record with its normalized distance: lower is closer.
type SearchResult struct {
	Record *VectorRecord `json:"record"`
	Score  float64       `json:"score"`
}

type Answer struct {
	Response string   `json:"response"`
	Context  []string `json:"context"`
}
