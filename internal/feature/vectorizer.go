package feature

import (
	"errors"
	"sort"

	"github.com/hyperjump/susume/internal/models"
)

// ErrEmptyCatalog indicates a training snapshot with zero products; training
// cannot proceed.
var ErrEmptyCatalog = errors.New("empty product catalog")

// Vectorize builds the encoding scheme from the snapshot's products and
// returns one feature vector per product id. Every vector has the same
// dimension within a run.
func Vectorize(products []models.ProductRecord) (*Scheme, map[int64][]float32, error) {
	scheme, err := BuildScheme(products)
	if err != nil {
		return nil, nil, err
	}
	vectors := make(map[int64][]float32, len(products))
	for _, p := range products {
		vectors[p.ID] = scheme.Encode(p)
	}
	return scheme, vectors, nil
}

// BuildScheme derives the encoding scheme for one training run: sorted
// category and brand vocabularies plus observed price and rating bounds.
// Returns ErrEmptyCatalog when no products are present.
func BuildScheme(products []models.ProductRecord) (*Scheme, error) {
	if len(products) == 0 {
		return nil, ErrEmptyCatalog
	}

	catSet := make(map[string]struct{})
	brandSet := make(map[string]struct{})
	s := &Scheme{
		PriceMin:  products[0].Price,
		PriceMax:  products[0].Price,
		RatingMin: products[0].Rating,
		RatingMax: products[0].Rating,
	}
	for _, p := range products {
		if p.Category != "" {
			catSet[p.Category] = struct{}{}
		}
		if p.Brand != "" {
			brandSet[p.Brand] = struct{}{}
		}
		if p.Price < s.PriceMin {
			s.PriceMin = p.Price
		}
		if p.Price > s.PriceMax {
			s.PriceMax = p.Price
		}
		if p.Rating < s.RatingMin {
			s.RatingMin = p.Rating
		}
		if p.Rating > s.RatingMax {
			s.RatingMax = p.Rating
		}
	}

	s.Categories = sortedKeys(catSet)
	s.Brands = sortedKeys(brandSet)
	return s, nil
}

// Encode produces the fixed-dimension vector for one product: one-hot
// category, one-hot brand, then min-max scaled price and rating. Values the
// scheme has not seen encode as all-zero slots.
func (s *Scheme) Encode(p models.ProductRecord) []float32 {
	vec := make([]float32, s.Dimension())
	if i := s.categoryIndex(p.Category); i >= 0 {
		vec[i] = 1
	}
	if i := s.brandIndex(p.Brand); i >= 0 {
		vec[len(s.Categories)+i] = 1
	}
	base := len(s.Categories) + len(s.Brands)
	vec[base] = scale(p.Price, s.PriceMin, s.PriceMax)
	vec[base+1] = scale(p.Rating, s.RatingMin, s.RatingMax)
	return vec
}

// scale maps v into [0,1] within [min,max]. A degenerate range (a single
// observed value) yields 0 so the component carries no signal instead of NaN.
func scale(v, min, max float64) float32 {
	if max <= min {
		return 0
	}
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return float32((v - min) / (max - min))
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
