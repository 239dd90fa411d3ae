package repo

import (
	"context"
	"fmt"
	"sort"

	"github.com/xxxsen/mrag/internal/model"
	appErr "github.com/xxxsen/mrag/internal/pkg/errors"
)

// DocumentCatalog records ingested documents next to the vector store.
// FindByID returns nil without error for an unknown id.
type DocumentCatalog interface {
	Save(ctx context.Context, doc *model.Document) error
	FindByID(ctx context.Context, id string) (*model.Document, error)
	FindByMetadata(ctx context.Context, filter map[string]string) ([]*model.Document, error)
	Delete(ctx context.Context, id string) error
}

var metadataColumns = map[string]struct{}{
	"title":    {},
	"source":   {},
	"category": {},
}

func checkFilter(filter map[string]string) error {
	for key := range filter {
		if _, ok := metadataColumns[key]; !ok {
			return fmt.Errorf("%w: unknown metadata field %q", appErr.ErrInvalid, key)
		}
	}
	return nil
}

func metadataValue(md model.DocumentMetadata, key string) string {
	switch key {
	case "title":
		return md.Title
	case "source":
		return md.Source
	case "category":
		return md.Category
	}
	return ""
}

func sortDocuments(docs []*model.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Metadata.CreatedAt.Equal(docs[j].Metadata.CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].Metadata.CreatedAt.Before(docs[j].Metadata.CreatedAt)
	})
}
