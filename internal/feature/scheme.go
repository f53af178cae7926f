// Package feature converts product records into fixed-dimension numeric
// feature vectors for content-similarity training.
package feature

import "sort"

// Scheme describes the feature encoding fixed at the start of one training
// run. Vocabularies and numeric bounds come from that run's snapshot only;
// vectors from different schemes must never be compared, so consumers always
// go through the generation that owns the scheme.
type Scheme struct {
	// Categories and Brands are the sorted one-hot vocabularies.
	Categories []string
	Brands     []string

	// Observed numeric bounds used for min-max scaling.
	PriceMin  float64
	PriceMax  float64
	RatingMin float64
	RatingMax float64
}

// Dimension returns the length of every vector this scheme produces:
// one slot per category, one per brand, plus scaled price and rating.
func (s *Scheme) Dimension() int {
	return len(s.Categories) + len(s.Brands) + 2
}

// categoryIndex returns the one-hot slot for category, or -1 when the value
// was not in this run's snapshot.
func (s *Scheme) categoryIndex(category string) int {
	return searchVocab(s.Categories, category)
}

// brandIndex returns the one-hot slot for brand, or -1 when unseen.
func (s *Scheme) brandIndex(brand string) int {
	return searchVocab(s.Brands, brand)
}

func searchVocab(vocab []string, value string) int {
	i := sort.SearchStrings(vocab, value)
	if i < len(vocab) && vocab[i] == value {
		return i
	}
	return -1
}
