package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mrag/internal/model"
	appErr "github.com/xxxsen/mrag/internal/pkg/errors"
)

func newDoc(id, title, source, category string, created time.Time) *model.Document {
	return &model.Document{
		ID:      id,
		Content: "content of " + id,
		Metadata: model.DocumentMetadata{
			Title:     title,
			Source:    source,
			Category:  category,
			CreatedAt: created,
			UpdatedAt: created,
		},
	}
}

func TestMemoryDocumentRepo_SaveAndFind(t *testing.T) {
	r := NewMemoryDocumentRepo()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, r.Save(ctx, newDoc("d1", "Pagos", "manual", "knowledge_base", now)))

	doc, err := r.FindByID(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, "Pagos", doc.Metadata.Title)

	doc.Metadata.Title = "mutated"
	again, err := r.FindByID(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, "Pagos", again.Metadata.Title)

	missing, err := r.FindByID(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestMemoryDocumentRepo_SaveUpserts(t *testing.T) {
	r := NewMemoryDocumentRepo()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, r.Save(ctx, newDoc("d1", "v1", "manual", "kb", now)))
	require.NoError(t, r.Save(ctx, newDoc("d1", "v2", "manual", "kb", now)))
	docs, err := r.FindByMetadata(ctx, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "v2", docs[0].Metadata.Title)
}

func TestMemoryDocumentRepo_FindByMetadataAndSemantics(t *testing.T) {
	r := NewMemoryDocumentRepo()
	ctx := context.Background()
	base := time.Now()
	require.NoError(t, r.Save(ctx, newDoc("a", "A", "manual", "billing", base)))
	require.NoError(t, r.Save(ctx, newDoc("b", "B", "pdf", "billing", base.Add(time.Second))))
	require.NoError(t, r.Save(ctx, newDoc("c", "C", "manual", "knowledge_base", base.Add(2*time.Second))))

	docs, err := r.FindByMetadata(ctx, map[string]string{"category": "billing"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "a", docs[0].ID)
	require.Equal(t, "b", docs[1].ID)

	docs, err = r.FindByMetadata(ctx, map[string]string{"category": "billing", "source": "manual"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "a", docs[0].ID)

	docs, err = r.FindByMetadata(ctx, map[string]string{"category": "bill"})
	require.NoError(t, err)
	require.Empty(t, docs)

	_, err = r.FindByMetadata(ctx, map[string]string{"author": "x"})
	require.True(t, errors.Is(err, appErr.ErrInvalid))
}

func TestMemoryDocumentRepo_DeleteIsIdempotent(t *testing.T) {
	r := NewMemoryDocumentRepo()
	ctx := context.Background()
	require.NoError(t, r.Save(ctx, newDoc("a", "A", "manual", "kb", time.Now())))
	require.NoError(t, r.Delete(ctx, "a"))
	require.NoError(t, r.Delete(ctx, "a"))
	doc, err := r.FindByID(ctx, "a")
	require.NoError(t, err)
	require.Nil(t, doc)
}
