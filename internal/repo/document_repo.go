package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mrag/internal/model"
	"github.com/xxxsen/mrag/internal/pkg/dbutil"
)

var documentFields = []string{"id", "content", "title", "source", "category", "ctime", "mtime"}

// DocumentRepo is the postgres backed DocumentCatalog.
type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Save(ctx context.Context, doc *model.Document) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	update := map[string]interface{}{
		"content":  doc.Content,
		"title":    doc.Metadata.Title,
		"source":   doc.Metadata.Source,
		"category": doc.Metadata.Category,
		"mtime":    doc.Metadata.UpdatedAt.UnixMilli(),
	}
	sqlStr, args, err := builder.BuildUpdate("documents", map[string]interface{}{"id": doc.ID}, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		data := map[string]interface{}{
			"id":       doc.ID,
			"content":  doc.Content,
			"title":    doc.Metadata.Title,
			"source":   doc.Metadata.Source,
			"category": doc.Metadata.Category,
			"ctime":    doc.Metadata.CreatedAt.UnixMilli(),
			"mtime":    doc.Metadata.UpdatedAt.UnixMilli(),
		}
		sqlStr, args, err = builder.BuildInsert("documents", []map[string]interface{}{data})
		if err != nil {
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr, args)
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *DocumentRepo) FindByID(ctx context.Context, id string) (*model.Document, error) {
	docs, err := r.query(ctx, map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func (r *DocumentRepo) FindByMetadata(ctx context.Context, filter map[string]string) ([]*model.Document, error) {
	if err := checkFilter(filter); err != nil {
		return nil, err
	}
	where := map[string]interface{}{"_orderby": "ctime asc, id asc"}
	for key, value := range filter {
		where[key] = value
	}
	return r.query(ctx, where)
}

func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("documents", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *DocumentRepo) query(ctx context.Context, where map[string]interface{}) ([]*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Document
	for rows.Next() {
		var (
			doc          model.Document
			ctime, mtime int64
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &doc.Metadata.Title, &doc.Metadata.Source, &doc.Metadata.Category, &ctime, &mtime); err != nil {
			return nil, err
		}
		doc.Metadata.CreatedAt = time.UnixMilli(ctime).UTC()
		doc.Metadata.UpdatedAt = time.UnixMilli(mtime).UTC()
		out = append(out, &doc)
	}
	return out, rows.Err()
}
