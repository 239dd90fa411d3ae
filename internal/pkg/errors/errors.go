package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalid        = errors.New("invalid")
	ErrInternal       = errors.New("internal")
	ErrUnavailable    = errors.New("unavailable")
	ErrEmbedding      = errors.New("embedding failed")
	ErrGeneration     = errors.New("generation failed")
	ErrStoreInit      = errors.New("vector store initialization failed")
	ErrStoreOperation = errors.New("vector store operation failed")
	ErrCatalog        = errors.New("document catalog failed")
)

// StageError records which pipeline stage failed. It unwraps to both the
// failure kind and the underlying cause.
type StageError struct {
	Kind  error
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func Wrap(kind error, stage string, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) && errors.Is(err, kind) && se.Stage == stage {
		return err
	}
	return &StageError{Kind: kind, Stage: stage, Err: err}
}

func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}
