package service

import (
	"fmt"

	"github.com/google/uuid"
)

func newDocumentID() string {
	return uuid.NewString()
}

func chunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

// corpusChunkID keeps file name and chunk position readable while staying
// unique across repeated loads of the same file.
func corpusChunkID(file string, index int) string {
	return fmt.Sprintf("%s_%s_chunk_%d", file, uuid.NewString(), index)
}
