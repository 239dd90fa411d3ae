package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/mrag/internal/model"
	"github.com/xxxsen/mrag/internal/pkg/dbutil"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	embeddedReservedID  = "__mrag_init__"
	defaultEmbeddedPath = "data/vectors.db"
)

type embeddedConfig struct {
	Path string `json:"path"`
}

// embeddedStore keeps vectors in a local sqlite file and ranks them in
// process. Access is serialized through a single connection.
type embeddedStore struct {
	db    *sql.DB
	table string
	dim   int
	guard initGuard
}

func (s *embeddedStore) Name() string {
	return "embedded"
}

func (s *embeddedStore) Initialize(ctx context.Context) error {
	return s.guard.Do(ctx, s.initialize)
}

func (s *embeddedStore) initialize(ctx context.Context) error {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, s.table).Scan(&name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check table: %w", err)
	}
	logutil.GetLogger(ctx).Info("creating embedded vector table", zap.String("table", s.table), zap.Int("dimension", s.dim))
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	table := dbutil.QuoteIdent(s.table)
	stmts := []struct {
		query string
		args  []interface{}
	}{
		{query: `CREATE TABLE IF NOT EXISTS ` + table + ` (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			vector BLOB NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			ctime INTEGER NOT NULL
		)`},
		{
			query: `INSERT INTO ` + table + ` (id, text, vector, metadata, ctime) VALUES (?, '', ?, '{}', ?)`,
			args:  []interface{}{embeddedReservedID, encodeVector(make([]float32, s.dim)), time.Now().Unix()},
		},
		{query: `DELETE FROM ` + table + ` WHERE id = ?`, args: []interface{}{embeddedReservedID}},
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			return fmt.Errorf("bootstrap table: %w", err)
		}
	}
	return tx.Commit()
}

func (s *embeddedStore) AddVector(ctx context.Context, record *model.VectorRecord) error {
	return s.AddVectors(ctx, []*model.VectorRecord{record})
}

func (s *embeddedStore) AddVectors(ctx context.Context, records []*model.VectorRecord) error {
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
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO `+dbutil.QuoteIdent(s.table)+` (id, text, vector, metadata, ctime) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	now := time.Now().Unix()
	for _, r := range records {
		if r.ID == embeddedReservedID {
			return fmt.Errorf("vector id %s is reserved", r.ID)
		}
		md, err := encodeMetadata(r.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Text, encodeVector(r.Vector), md, now); err != nil {
			return fmt.Errorf("insert vector %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (s *embeddedStore) SearchSimilar(ctx context.Context, query []float32, limit int, threshold float64) ([]*model.SearchResult, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, vector, metadata FROM `+dbutil.QuoteIdent(s.table)+` WHERE id <> ?`, embeddedReservedID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []*model.SearchResult
	for rows.Next() {
		var (
			id, text, md string
			blob         []byte
		)
		if err := rows.Scan(&id, &text, &blob, &md); err != nil {
			return nil, err
		}
		vec := decodeVector(blob)
		distance := cosineDistance(query, vec)
		if distance > threshold {
			continue
		}
		meta, err := decodeMetadata(id, md)
		if err != nil {
			return nil, err
		}
		results = append(results, &model.SearchResult{
			Record: &model.VectorRecord{ID: id, Text: text, Vector: vec, Metadata: meta},
			Score:  distance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankResults(results, limit, threshold), nil
}

func (s *embeddedStore) DeleteVector(ctx context.Context, id string) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM `+dbutil.QuoteIdent(s.table)+` WHERE id = ?`, id)
	return err
}

func (s *embeddedStore) VectorExists(ctx context.Context, id string) (bool, error) {
	if id == embeddedReservedID {
		return false, nil
	}
	if err := s.Initialize(ctx); err != nil {
		return false, err
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM `+dbutil.QuoteIdent(s.table)+` WHERE id = ? LIMIT 1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *embeddedStore) Stats(ctx context.Context) (*Stats, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+dbutil.QuoteIdent(s.table)+` WHERE id <> ?`, embeddedReservedID).Scan(&count)
	if err != nil {
		return nil, err
	}
	return &Stats{Count: count}, nil
}

func (s *embeddedStore) Close() error {
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

func createEmbeddedStore(opts *Options) (Store, error) {
	cfg := &embeddedConfig{}
	if err := decodeConfig(opts.Data, cfg); err != nil {
		return nil, err
	}
	path := cfg.Path
	if path == "" {
		path = defaultEmbeddedPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &embeddedStore{db: db, table: opts.Table, dim: opts.Dimension}, nil
}

func init() {
	Register("embedded", createEmbeddedStore)
}
