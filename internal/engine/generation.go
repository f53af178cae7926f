// Package engine owns model generations: building them from snapshots
// (training state machine), holding the live one behind an atomic reference,
// and persisting them as binary artifacts.
package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/hyperjump/susume/internal/copurchase"
	"github.com/hyperjump/susume/internal/feature"
	"github.com/hyperjump/susume/internal/models"
	"github.com/hyperjump/susume/internal/similarity"
)

// Generation is one complete, immutable output of a training run: the
// encoding scheme, both models, and the snapshot's product catalog for
// hydrating responses. A request holds one Generation reference for its whole
// lifetime, so an in-progress swap can never produce a half-old answer.
type Generation struct {
	ID          uint64
	RunID       string
	CreatedAt   time.Time
	Scheme      *feature.Scheme
	Similarity  *similarity.Model
	CoPurchase  *copurchase.Model
	Products    map[int64]models.ProductRecord
	BasketCount int
}

// Similar returns up to limit products most similar to id, hydrated with
// catalog metadata. Returns models.ErrNotFound for ids outside this
// generation's catalog.
func (g *Generation) Similar(id int64, limit int) ([]models.Recommendation, error) {
	if _, ok := g.Products[id]; !ok {
		return nil, models.ErrNotFound
	}
	scored, err := g.Similarity.TopN(id, limit)
	if err != nil {
		return nil, err
	}
	recs := make([]models.Recommendation, 0, len(scored))
	for _, s := range scored {
		recs = append(recs, g.hydrate(s.ProductID, s.Score,
			fmt.Sprintf("similar product features (score %.2f)", s.Score)))
	}
	return recs, nil
}

// CoPurchased returns up to limit products frequently bought together with
// id. A known product that was never purchased yields an empty list, not an
// error; unknown ids return models.ErrNotFound.
func (g *Generation) CoPurchased(id int64, limit int) ([]models.Recommendation, error) {
	if _, ok := g.Products[id]; !ok {
		return nil, models.ErrNotFound
	}
	scored, err := g.CoPurchase.TopN(id, limit)
	if err != nil {
		return nil, err
	}
	support := g.CoPurchase.Support(id)
	recs := make([]models.Recommendation, 0, len(scored))
	for _, s := range scored {
		co := int(math.Round(s.Score * float64(support)))
		recs = append(recs, g.hydrate(s.ProductID, s.Score,
			fmt.Sprintf("bought together in %d of %d baskets", co, support)))
	}
	return recs, nil
}

func (g *Generation) hydrate(id int64, score float64, reason string) models.Recommendation {
	p := g.Products[id]
	return models.Recommendation{
		ProductID: id,
		Name:      p.Name,
		Price:     p.Price,
		Brand:     p.Brand,
		Category:  p.Category,
		Rating:    p.Rating,
		Picture:   p.Picture,
		Score:     score,
		Reason:    reason,
	}
}
