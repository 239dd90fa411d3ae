package model

import "time"

const (
	DefaultSource   = "manual"
	DefaultCategory = "knowledge_base"
	SourcePDF       = "pdf"
)

type Document struct {
	ID       string           `json:"id"`
	Content  string           `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
}

type DocumentMetadata struct {
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
