package similarity

import (
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/susume/internal/models"
)

// testVectors mirrors a small catalog: products 1 and 2 share category and
// brand and sit close in price/rating; product 3 differs in everything.
// Layout: [catA, catB, brandX, brandY, price, rating].
func testVectors() (map[int64][]float32, map[int64]float64) {
	vectors := map[int64][]float32{
		1: {1, 0, 1, 0, 0.00, 1.00},
		2: {1, 0, 1, 0, 0.025, 0.67},
		3: {0, 1, 0, 1, 1.00, 0.00},
	}
	ratings := map[int64]float64{1: 4.5, 2: 4.0, 3: 3.0}
	return vectors, ratings
}

func TestTopN(t *testing.T) {
	m := New(testVectors())

	got, err := m.TopN(1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	// The query product itself is excluded; the near-twin ranks first.
	if got[0].ProductID != 2 || got[1].ProductID != 3 {
		t.Errorf("order = [%d, %d], want [2, 3]", got[0].ProductID, got[1].ProductID)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("scores not descending: %v", got)
	}
}

func TestTopN_limitAndZero(t *testing.T) {
	m := New(testVectors())
	got, err := m.TopN(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ProductID != 2 {
		t.Errorf("limit 1: got %v", got)
	}
	got, err = m.TopN(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("limit 0: got %v", got)
	}
}

func TestTopN_unknownID(t *testing.T) {
	m := New(testVectors())
	if _, err := m.TopN(99, 5); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSimilarity_symmetric(t *testing.T) {
	m := New(testVectors())
	for _, a := range m.IDs() {
		for _, b := range m.IDs() {
			sab, err := m.Similarity(a, b)
			if err != nil {
				t.Fatal(err)
			}
			sba, err := m.Similarity(b, a)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(sab-sba) > 1e-9 {
				t.Errorf("similarity(%d,%d)=%v != similarity(%d,%d)=%v", a, b, sab, b, a, sba)
			}
			if sab < -1e-9 || sab > 1+1e-9 {
				t.Errorf("similarity(%d,%d)=%v outside [0,1] for non-negative features", a, b, sab)
			}
		}
	}
}

func TestTopN_tieBreaks(t *testing.T) {
	// Products 2, 3, 4 have identical vectors, so all tie against product 1.
	vec := []float32{1, 0, 0.5, 0.5}
	vectors := map[int64][]float32{
		1: {1, 0, 0.4, 0.6},
		2: vec,
		3: vec,
		4: vec,
	}
	ratings := map[int64]float64{1: 4.0, 2: 3.0, 3: 5.0, 4: 3.0}

	m := New(vectors, ratings)
	got, err := m.TopN(1, 3)
	if err != nil {
		t.Fatal(err)
	}
	// Equal score: higher rating first (3), then lower id (2 before 4).
	want := []int64{3, 2, 4}
	for i, id := range want {
		if got[i].ProductID != id {
			t.Fatalf("tie-break order = %v, want %v", got, want)
		}
	}
}

func TestTopN_deterministic(t *testing.T) {
	vectors, ratings := testVectors()
	first, err := New(vectors, ratings).TopN(1, 10)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		again, err := New(vectors, ratings).TopN(1, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(again) != len(first) {
			t.Fatalf("run %d: length changed", i)
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("run %d: result differs at %d: %v vs %v", i, j, again[j], first[j])
			}
		}
	}
}

func TestPrecomputedMatchesScan(t *testing.T) {
	vectors, ratings := testVectors()
	naive := New(vectors, ratings)
	cached := New(vectors, ratings, WithPrecomputedTopK(2))

	for _, id := range naive.IDs() {
		for _, n := range []int{1, 2} {
			want, err := naive.TopN(id, n)
			if err != nil {
				t.Fatal(err)
			}
			got, err := cached.TopN(id, n)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(want) {
				t.Fatalf("id %d n %d: %v vs %v", id, n, got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("id %d n %d: cached[%d] = %v, scan = %v", id, n, i, got[i], want[i])
				}
			}
		}
	}

	// Asking for more than k falls back to a full scan.
	want, _ := naive.TopN(1, 10)
	got, _ := cached.TopN(1, 10)
	if len(got) != len(want) {
		t.Fatalf("fallback scan: got %d, want %d", len(got), len(want))
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero_norm", []float32{0, 0}, []float32{1, 1}, 0},
		{"length_mismatch", []float32{1}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}
