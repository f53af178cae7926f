package copurchase

import (
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/susume/internal/models"
)

const (
	prodA int64 = 1
	prodB int64 = 2
	prodC int64 = 3
	prodD int64 = 4 // in the catalog but never purchased with anything
)

func testBaskets() []models.OrderBasket {
	return []models.OrderBasket{
		{OrderID: 10, ProductIDs: []int64{prodA, prodB}},
		{OrderID: 11, ProductIDs: []int64{prodA, prodB}},
		{OrderID: 12, ProductIDs: []int64{prodA, prodC}},
		{OrderID: 13, ProductIDs: []int64{prodD}},
	}
}

func testRatings() map[int64]float64 {
	return map[int64]float64{prodA: 4.5, prodB: 4.0, prodC: 3.5, prodD: 2.0}
}

func TestBuild_strengths(t *testing.T) {
	m, err := Build(testBaskets(), testRatings())
	if err != nil {
		t.Fatal(err)
	}

	// A appears in 3 baskets: twice with B, once with C.
	if got := m.Support(prodA); got != 3 {
		t.Errorf("support(A) = %d, want 3", got)
	}
	if got, want := m.Strength(prodA, prodB), 2.0/3.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("strength(A,B) = %v, want %v", got, want)
	}
	if got, want := m.Strength(prodA, prodC), 1.0/3.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("strength(A,C) = %v, want %v", got, want)
	}
	// Never co-occurred.
	if got := m.Strength(prodB, prodC); got != 0 {
		t.Errorf("strength(B,C) = %v, want 0", got)
	}
}

func TestBuild_asymmetricNormalization(t *testing.T) {
	m, err := Build(testBaskets(), testRatings())
	if err != nil {
		t.Fatal(err)
	}
	// Every basket with B also has A, but only 2 of A's 3 baskets have B.
	if got := m.Strength(prodB, prodA); got != 1.0 {
		t.Errorf("strength(B,A) = %v, want 1", got)
	}
	if ab, ba := m.Strength(prodA, prodB), m.Strength(prodB, prodA); ab == ba {
		t.Errorf("normalization should be directional: strength(A,B)=%v == strength(B,A)=%v", ab, ba)
	}
}

func TestBuild_strengthBounds(t *testing.T) {
	m, err := Build(testBaskets(), testRatings())
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range m.Anchors() {
		for q, s := range m.Associations(p) {
			if s <= 0 || s > 1 {
				t.Errorf("strength(%d,%d) = %v outside (0,1]", p, q, s)
			}
		}
	}
}

func TestBuild_duplicateLinesCollapse(t *testing.T) {
	// Three quantity lines of A and one of B is one co-occurrence, not three.
	baskets := []models.OrderBasket{
		{OrderID: 1, ProductIDs: []int64{prodA, prodA, prodA, prodB}},
	}
	m, err := Build(baskets, testRatings())
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Support(prodA); got != 1 {
		t.Errorf("support(A) = %d, want 1", got)
	}
	if got := m.Strength(prodA, prodB); got != 1.0 {
		t.Errorf("strength(A,B) = %v, want 1", got)
	}
}

func TestBuild_singleItemBasketsOnly(t *testing.T) {
	baskets := []models.OrderBasket{
		{OrderID: 1, ProductIDs: []int64{prodA}},
		{OrderID: 2, ProductIDs: []int64{prodB, prodB}},
	}
	if _, err := Build(baskets, testRatings()); !errors.Is(err, ErrEmptyBasketSet) {
		t.Errorf("err = %v, want ErrEmptyBasketSet", err)
	}
}

func TestBuild_noBaskets(t *testing.T) {
	if _, err := Build(nil, testRatings()); !errors.Is(err, ErrEmptyBasketSet) {
		t.Errorf("err = %v, want ErrEmptyBasketSet", err)
	}
}

func TestTopN(t *testing.T) {
	m, err := Build(testBaskets(), testRatings())
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.TopN(prodA, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ProductID != prodB || got[1].ProductID != prodC {
		t.Errorf("TopN(A) = %v, want [B, C]", got)
	}

	got, err = m.TopN(prodA, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ProductID != prodB {
		t.Errorf("TopN(A, 1) = %v, want [B]", got)
	}
}

func TestTopN_zeroSupportIsEmptyNotError(t *testing.T) {
	m, err := Build(testBaskets(), testRatings())
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.TopN(prodD, 10)
	if err != nil {
		t.Errorf("zero-support product should not error, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("TopN(D) = %v, want empty", got)
	}
	// Same for an id that was never in any basket at all.
	got, err = m.TopN(999, 10)
	if err != nil || len(got) != 0 {
		t.Errorf("TopN(999) = %v, %v, want empty, nil", got, err)
	}
}

func TestTopN_tieBreaks(t *testing.T) {
	// B, C, D each co-occur with A exactly once out of three baskets.
	baskets := []models.OrderBasket{
		{OrderID: 1, ProductIDs: []int64{prodA, prodB}},
		{OrderID: 2, ProductIDs: []int64{prodA, prodC}},
		{OrderID: 3, ProductIDs: []int64{prodA, prodD}},
	}
	ratings := map[int64]float64{prodA: 4.0, prodB: 3.0, prodC: 5.0, prodD: 3.0}
	m, err := Build(baskets, ratings)
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.TopN(prodA, 3)
	if err != nil {
		t.Fatal(err)
	}
	// Equal strength: higher rating first (C), then lower id (B before D).
	want := []int64{prodC, prodB, prodD}
	for i, id := range want {
		if got[i].ProductID != id {
			t.Fatalf("tie-break order = %v, want %v", got, want)
		}
	}
}

func TestFromParts(t *testing.T) {
	orig, err := Build(testBaskets(), testRatings())
	if err != nil {
		t.Fatal(err)
	}
	strength := make(map[int64]map[int64]float64)
	for _, p := range orig.Anchors() {
		row := make(map[int64]float64)
		for q, s := range orig.Associations(p) {
			row[q] = s
		}
		strength[p] = row
	}
	support := make(map[int64]int)
	for _, p := range []int64{prodA, prodB, prodC, prodD} {
		if n := orig.Support(p); n > 0 {
			support[p] = n
		}
	}
	rebuilt := FromParts(strength, support, testRatings())
	if rebuilt.PairCount() != orig.PairCount() {
		t.Fatalf("pair count: got %d, want %d", rebuilt.PairCount(), orig.PairCount())
	}
	origTop, _ := orig.TopN(prodA, 10)
	rebuiltTop, _ := rebuilt.TopN(prodA, 10)
	if len(origTop) != len(rebuiltTop) {
		t.Fatalf("TopN length differs after rebuild")
	}
	for i := range origTop {
		if origTop[i] != rebuiltTop[i] {
			t.Errorf("TopN[%d] = %v, want %v", i, rebuiltTop[i], origTop[i])
		}
	}
}
