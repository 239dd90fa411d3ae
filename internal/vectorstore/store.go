package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xxxsen/mrag/internal/model"
	apperrors "github.com/xxxsen/mrag/internal/pkg/errors"
)

// MaxDistance is the largest cosine distance a record can have. Passing it
// as threshold disables filtering on every backend.
const MaxDistance = 2.0

// Store persists chunk vectors. Search results are ordered best first and
// their Score is a distance: lower is closer.
type Store interface {
	Name() string
	Initialize(ctx context.Context) error
	AddVector(ctx context.Context, record *model.VectorRecord) error
	AddVectors(ctx context.Context, records []*model.VectorRecord) error
	SearchSimilar(ctx context.Context, query []float32, limit int, threshold float64) ([]*model.SearchResult, error)
	DeleteVector(ctx context.Context, id string) error
	VectorExists(ctx context.Context, id string) (bool, error)
}

type Stats struct {
	Count int64 `json:"count"`
}

// StatsProvider is implemented by stores that can report their size cheaply.
type StatsProvider interface {
	Stats(ctx context.Context) (*Stats, error)
}

type Options struct {
	Table     string
	Dimension int
	DB        *sql.DB
	Data      interface{}
}

type Factory func(opts *Options) (Store, error)

var registry = map[string]Factory{}

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func New(name string, opts *Options) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("vector_store.type is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported vector store: %s", name)
	}
	if opts == nil || opts.Dimension <= 0 {
		return nil, fmt.Errorf("vector store dimension is required")
	}
	if strings.TrimSpace(opts.Table) == "" {
		return nil, fmt.Errorf("vector store table is required")
	}
	return factory(opts)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode vector store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode vector store config: %w", err)
	}
	return nil
}

func checkRecords(records []*model.VectorRecord, dim int) error {
	for _, r := range records {
		if r == nil || strings.TrimSpace(r.ID) == "" {
			return fmt.Errorf("%w: vector record id is required", apperrors.ErrInvalid)
		}
		if len(r.Vector) != dim {
			return fmt.Errorf("%w: record %s has dimension %d, want %d", apperrors.ErrInvalid, r.ID, len(r.Vector), dim)
		}
	}
	return nil
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return MaxDistance
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// rankResults drops results above threshold, sorts ascending by score and
// truncates to limit.
func rankResults(results []*model.SearchResult, limit int, threshold float64) []*model.SearchResult {
	kept := results[:0]
	for _, r := range results {
		if r.Score <= threshold {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score < kept[j].Score })
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

func encodeMetadata(md model.VectorMetadata) (string, error) {
	data, err := json.Marshal(md)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeMetadata(id, raw string) (model.VectorMetadata, error) {
	var md model.VectorMetadata
	if raw == "" {
		return md, nil
	}
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return md, fmt.Errorf("decode metadata of %s: %w", id, err)
	}
	return md, nil
}
