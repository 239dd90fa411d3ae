package repo

import (
	"context"
	"sync"

	"github.com/xxxsen/mrag/internal/model"
)

type MemoryDocumentRepo struct {
	mu   sync.RWMutex
	docs map[string]*model.Document
}

func NewMemoryDocumentRepo() *MemoryDocumentRepo {
	return &MemoryDocumentRepo{docs: make(map[string]*model.Document)}
}

func (r *MemoryDocumentRepo) Save(ctx context.Context, doc *model.Document) error {
	clone := *doc
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = &clone
	return nil
}

func (r *MemoryDocumentRepo) FindByID(ctx context.Context, id string) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, nil
	}
	clone := *doc
	return &clone, nil
}

func (r *MemoryDocumentRepo) FindByMetadata(ctx context.Context, filter map[string]string) ([]*model.Document, error) {
	if err := checkFilter(filter); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Document
	for _, doc := range r.docs {
		matched := true
		for key, value := range filter {
			if metadataValue(doc.Metadata, key) != value {
				matched = false
				break
			}
		}
		if matched {
			clone := *doc
			out = append(out, &clone)
		}
	}
	sortDocuments(out)
	return out, nil
}

func (r *MemoryDocumentRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	return nil
}
