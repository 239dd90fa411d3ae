package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/mrag/internal/model"
	"github.com/xxxsen/mrag/internal/pkg/dbutil"
	"go.uber.org/zap"
)

// pgvectorStore keeps vectors in postgres and lets the server rank them with
// the cosine distance operator.
type pgvectorStore struct {
	db    *sql.DB
	table string
	dim   int
	guard initGuard
}

func (s *pgvectorStore) Name() string {
	return "pgvector"
}

func (s *pgvectorStore) Initialize(ctx context.Context) error {
	return s.guard.Do(ctx, s.initialize)
}

func (s *pgvectorStore) initialize(ctx context.Context) error {
	table := dbutil.QuoteIdent(s.table)
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding vector(%d) NOT NULL,
			ctime BIGINT NOT NULL
		)`, table, s.dim),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("prepare pgvector table: %w", err)
		}
	}
	logutil.GetLogger(ctx).Info("pgvector table ready", zap.String("table", s.table), zap.Int("dimension", s.dim))
	return nil
}

func (s *pgvectorStore) AddVector(ctx context.Context, record *model.VectorRecord) error {
	return s.AddVectors(ctx, []*model.VectorRecord{record})
}

func (s *pgvectorStore) AddVectors(ctx context.Context, records []*model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := checkRecords(records, s.dim); err != nil {
		return err
	}
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	query := `INSERT INTO ` + dbutil.QuoteIdent(s.table) + ` (id, text, metadata, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	now := time.Now().Unix()
	for _, r := range records {
		md, err := encodeMetadata(r.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Text, md, pgvector.NewVector(r.Vector), now); err != nil {
			return fmt.Errorf("insert vector %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (s *pgvectorStore) SearchSimilar(ctx context.Context, query []float32, limit int, threshold float64) ([]*model.SearchResult, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	q := `SELECT id, text, metadata, embedding <=> $1 AS distance
		FROM ` + dbutil.QuoteIdent(s.table) + `
		WHERE embedding <=> $1 <= $2
		ORDER BY distance ASC
		LIMIT $3`
	rows, err := s.db.QueryContext(ctx, q, pgvector.NewVector(query), threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []*model.SearchResult
	for rows.Next() {
		var (
			id, text, md string
			distance     float64
		)
		if err := rows.Scan(&id, &text, &md, &distance); err != nil {
			return nil, err
		}
		meta, err := decodeMetadata(id, md)
		if err != nil {
			return nil, err
		}
		results = append(results, &model.SearchResult{
			Record: &model.VectorRecord{ID: id, Text: text, Metadata: meta},
			Score:  distance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankResults(results, limit, threshold), nil
}

func (s *pgvectorStore) DeleteVector(ctx context.Context, id string) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM `+dbutil.QuoteIdent(s.table)+` WHERE id = $1`, id)
	return err
}

func (s *pgvectorStore) VectorExists(ctx context.Context, id string) (bool, error) {
	if err := s.Initialize(ctx); err != nil {
		return false, err
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM `+dbutil.QuoteIdent(s.table)+` WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *pgvectorStore) Stats(ctx context.Context) (*Stats, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+dbutil.QuoteIdent(s.table)).Scan(&count); err != nil {
		return nil, err
	}
	return &Stats{Count: count}, nil
}

func createPGVectorStore(opts *Options) (Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("pgvector store requires a database connection")
	}
	return &pgvectorStore{db: opts.DB, table: opts.Table, dim: opts.Dimension}, nil
}

func init() {
	Register("pgvector", createPGVectorStore)
}
