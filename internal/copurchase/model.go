// Package copurchase mines order baskets into a product-pair association
// model ("frequently bought together") and answers top-N queries against it.
package copurchase

import (
	"errors"
	"sort"

	"github.com/hyperjump/susume/internal/models"
)

// ErrEmptyBasketSet indicates the snapshot holds no basket with two or more
// distinct products, so no associations can be mined; training cannot proceed.
var ErrEmptyBasketSet = errors.New("no baskets with two or more distinct products")

// Scored is one ranked co-purchase companion.
type Scored struct {
	ProductID int64
	Score     float64
}

// Model is an immutable co-purchase association artifact for one generation.
//
// strength[p][q] = co_count(p,q) / support(p): the probability that a basket
// containing p also contains q. The normalization is directional on purpose:
// strength(p,q) and strength(q,p) legitimately differ, which keeps globally
// rare but strongly associated companions rankable.
type Model struct {
	strength map[int64]map[int64]float64
	support  map[int64]int
	ratings  map[int64]float64
}

// Build mines baskets into a model. Support counts every basket containing a
// product; pair counts only accrue from baskets with at least two distinct
// products. ratings feed the tie-break rule.
func Build(baskets []models.OrderBasket, ratings map[int64]float64) (*Model, error) {
	support := make(map[int64]int)
	pairCounts := make(map[int64]map[int64]int)
	pairs := 0

	for _, basket := range baskets {
		distinct := distinctIDs(basket.ProductIDs)
		for _, id := range distinct {
			support[id]++
		}
		if len(distinct) < 2 {
			continue
		}
		for i := 0; i < len(distinct); i++ {
			for j := i + 1; j < len(distinct); j++ {
				p, q := distinct[i], distinct[j]
				incr(pairCounts, p, q)
				incr(pairCounts, q, p)
				pairs++
			}
		}
	}

	if pairs == 0 {
		return nil, ErrEmptyBasketSet
	}

	strength := make(map[int64]map[int64]float64, len(pairCounts))
	for p, counts := range pairCounts {
		row := make(map[int64]float64, len(counts))
		for q, c := range counts {
			row[q] = float64(c) / float64(support[p])
		}
		strength[p] = row
	}

	return &Model{strength: strength, support: support, ratings: ratings}, nil
}

// FromParts reassembles a model from persisted state. Used by artifact loading.
func FromParts(strength map[int64]map[int64]float64, support map[int64]int, ratings map[int64]float64) *Model {
	return &Model{strength: strength, support: support, ratings: ratings}
}

// TopN returns up to n companions of p by descending strength. A product with
// zero basket support yields an empty result and no error: "never bought
// together with anything" is a valid business answer, not a failure.
func (m *Model) TopN(p int64, n int) ([]Scored, error) {
	row := m.strength[p]
	if len(row) == 0 || n <= 0 {
		return nil, nil
	}
	scored := make([]Scored, 0, len(row))
	for q, s := range row {
		scored = append(scored, Scored{ProductID: q, Score: s})
	}
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
	if n < len(scored) {
		scored = scored[:n]
	}
	return scored, nil
}

// Strength returns strength(p,q); 0 when the pair never co-occurred.
func (m *Model) Strength(p, q int64) float64 {
	return m.strength[p][q]
}

// Support returns the number of baskets containing p.
func (m *Model) Support(p int64) int {
	return m.support[p]
}

// Anchors returns the product ids that have at least one association, sorted
// ascending. Used by artifact persistence.
func (m *Model) Anchors() []int64 {
	ids := make([]int64, 0, len(m.strength))
	for id := range m.strength {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Associations returns the companion map for anchor p. Callers must not
// modify the returned map.
func (m *Model) Associations(p int64) map[int64]float64 {
	return m.strength[p]
}

// PairCount returns the total number of directed associations in the model.
func (m *Model) PairCount() int {
	n := 0
	for _, row := range m.strength {
		n += len(row)
	}
	return n
}

func incr(counts map[int64]map[int64]int, p, q int64) {
	row, ok := counts[p]
	if !ok {
		row = make(map[int64]int)
		counts[p] = row
	}
	row[q]++
}

// distinctIDs collapses duplicate product lines (quantity rows) into set
// membership, preserving a deterministic sorted order.
func distinctIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
