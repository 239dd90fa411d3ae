package model

// EmbeddingCache is one cached vector keyed by model, task type and text hash.
type EmbeddingCache struct {
	ModelName   string    `json:"model_name"`
	TaskType    string    `json:"task_type"`
	ContentHash string    `json:"content_hash"`
	Dimension   int       `json:"dimension"`
	Embedding   []float32 `json:"embedding"`
	Ctime       int64     `json:"ctime"`
}
