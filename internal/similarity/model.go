// Package similarity builds and queries the content-similarity model:
// pairwise cosine over feature vectors with deterministic tie-breaking.
package similarity

import (
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/susume/internal/models"
)

// Scored is one ranked neighbor.
type Scored struct {
	ProductID int64
	Score     float64
}

// Model is an immutable content-similarity artifact for one generation.
// All methods are safe for concurrent use; nothing mutates after New returns.
type Model struct {
	ids       []int64 // sorted ascending, for deterministic iteration
	vectors   map[int64][]float32
	ratings   map[int64]float64
	topK      int
	neighbors map[int64][]Scored // precomputed per-product neighbor lists; nil when disabled
}

// Option configures model construction.
type Option func(*Model)

// WithPrecomputedTopK precomputes up to k neighbors per product at build
// time, trading training cost for O(1) serving. Queries asking for more than
// k fall back to a full scan.
func WithPrecomputedTopK(k int) Option {
	return func(m *Model) { m.topK = k }
}

// New builds a model over the given vectors. ratings feed the tie-break rule
// (equal score: higher rating first, then lower id).
func New(vectors map[int64][]float32, ratings map[int64]float64, opts ...Option) *Model {
	m := &Model{
		ids:     sortedIDs(vectors),
		vectors: vectors,
		ratings: ratings,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.topK > 0 {
		m.precompute()
	}
	return m
}

// precompute fills the per-product neighbor cache. The pairwise scan is
// CPU-bound, so products are sharded across NumCPU workers; each worker
// writes only its own shard.
func (m *Model) precompute() {
	results := make([][]Scored, len(m.ids))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())

	const shard = 64
	for start := 0; start < len(m.ids); start += shard {
		end := start + shard
		if end > len(m.ids) {
			end = len(m.ids)
		}
		start, end := start, end
		g.Go(func() error {
			for i := start; i < end; i++ {
				results[i] = m.scan(m.ids[i], m.topK)
			}
			return nil
		})
	}
	_ = g.Wait() // workers cannot fail

	m.neighbors = make(map[int64][]Scored, len(m.ids))
	for i, id := range m.ids {
		m.neighbors[id] = results[i]
	}
}

// TopN returns up to n products most similar to id, best first, excluding id
// itself. Returns models.ErrNotFound when id has no vector in this generation.
func (m *Model) TopN(id int64, n int) ([]Scored, error) {
	if _, ok := m.vectors[id]; !ok {
		return nil, models.ErrNotFound
	}
	if n <= 0 {
		return nil, nil
	}
	if m.neighbors != nil && n <= m.topK {
		cached := m.neighbors[id]
		if n > len(cached) {
			n = len(cached)
		}
		out := make([]Scored, n)
		copy(out, cached[:n])
		return out, nil
	}
	scored := m.scan(id, n)
	return scored, nil
}

// scan computes similarity of id against every other product and returns the
// top n in deterministic order.
func (m *Model) scan(id int64, n int) []Scored {
	query := m.vectors[id]
	scored := make([]Scored, 0, len(m.ids)-1)
	for _, other := range m.ids {
		if other == id {
			continue
		}
		scored = append(scored, Scored{ProductID: other, Score: Cosine(query, m.vectors[other])})
	}
	m.rank(scored)
	if n < len(scored) {
		scored = scored[:n]
	}
	return scored
}

// rank orders by score descending; ties break by higher rating, then lower id,
// so identical snapshots always produce identical orderings.
func (m *Model) rank(scored []Scored) {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		ri, rj := m.ratings[scored[i].ProductID], m.ratings[scored[j].ProductID]
		if ri != rj {
			return ri > rj
		}
		return scored[i].ProductID < scored[j].ProductID
	})
}

// Similarity returns the pairwise cosine similarity of two products.
func (m *Model) Similarity(a, b int64) (float64, error) {
	va, ok := m.vectors[a]
	if !ok {
		return 0, models.ErrNotFound
	}
	vb, ok := m.vectors[b]
	if !ok {
		return 0, models.ErrNotFound
	}
	return Cosine(va, vb), nil
}

// Has reports whether id has a vector in this model.
func (m *Model) Has(id int64) bool {
	_, ok := m.vectors[id]
	return ok
}

// Vector returns the feature vector for id, if present. Callers must not
// modify the returned slice.
func (m *Model) Vector(id int64) ([]float32, bool) {
	v, ok := m.vectors[id]
	return v, ok
}

// IDs returns the product ids in this model, sorted ascending. Callers must
// not modify the returned slice.
func (m *Model) IDs() []int64 {
	return m.ids
}

// Size returns the number of products in the model.
func (m *Model) Size() int {
	return len(m.ids)
}

// Cosine returns the cosine similarity of two vectors; 0 when either has zero
// norm or lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func sortedIDs(vectors map[int64][]float32) []int64 {
	ids := make([]int64, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
