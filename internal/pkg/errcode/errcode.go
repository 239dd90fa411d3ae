package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrInvalid
	ErrNotFound
	ErrInternal
	ErrInvalidFile
	ErrAIUnavailable
	ErrEmbedding
	ErrGeneration
	ErrStoreInit
	ErrStoreOperation
	ErrCatalog
	ErrTooMany
)
