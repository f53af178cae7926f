package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/susume/internal/copurchase"
	"github.com/hyperjump/susume/internal/feature"
	"github.com/hyperjump/susume/internal/models"
	"github.com/hyperjump/susume/internal/similarity"
)

func testGeneration(t *testing.T, id uint64) *Generation {
	t.Helper()
	products := []models.ProductRecord{
		{ID: 1, Name: "Laptop", Category: "electronics", Brand: "acme", Price: 100, Rating: 4.5, Picture: "laptop.jpg", Stock: 5},
		{ID: 2, Name: "Mouse", Category: "electronics", Brand: "acme", Price: 110, Rating: 4.0, Stock: 20},
		{ID: 3, Name: "Chair", Category: "furniture", Brand: "woodco", Price: 500, Rating: 3.0, Stock: 2},
		{ID: 4, Name: "Lamp", Category: "furniture", Brand: "woodco", Price: 60, Rating: 4.8, Stock: 9},
	}
	baskets := []models.OrderBasket{
		{OrderID: 10, ProductIDs: []int64{1, 2}},
		{OrderID: 11, ProductIDs: []int64{1, 2}},
		{OrderID: 12, ProductIDs: []int64{1, 3}},
		{OrderID: 13, ProductIDs: []int64{4}},
	}

	scheme, vectors, err := feature.Vectorize(products)
	if err != nil {
		t.Fatal(err)
	}
	catalog := make(map[int64]models.ProductRecord, len(products))
	ratings := make(map[int64]float64, len(products))
	for _, p := range products {
		catalog[p.ID] = p
		ratings[p.ID] = p.Rating
	}
	cop, err := copurchase.Build(baskets, ratings)
	if err != nil {
		t.Fatal(err)
	}
	return &Generation{
		ID:          id,
		RunID:       "test-run",
		CreatedAt:   time.Now(),
		Scheme:      scheme,
		Similarity:  similarity.New(vectors, ratings),
		CoPurchase:  cop,
		Products:    catalog,
		BasketCount: len(baskets),
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	dir := t.TempDir()
	gen := testGeneration(t, 3)

	path, err := Save(dir, gen)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != ArtifactName(3) {
		t.Errorf("artifact path = %s", path)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ID != gen.ID || loaded.RunID != gen.RunID || loaded.BasketCount != gen.BasketCount {
		t.Errorf("header: got id=%d run=%s baskets=%d", loaded.ID, loaded.RunID, loaded.BasketCount)
	}
	if !loaded.CreatedAt.Equal(gen.CreatedAt) {
		t.Errorf("created_at: got %v, want %v", loaded.CreatedAt, gen.CreatedAt)
	}
	if loaded.Scheme.Dimension() != gen.Scheme.Dimension() {
		t.Errorf("scheme dimension: got %d, want %d", loaded.Scheme.Dimension(), gen.Scheme.Dimension())
	}
	if len(loaded.Products) != len(gen.Products) {
		t.Fatalf("got %d products, want %d", len(loaded.Products), len(gen.Products))
	}
	if p := loaded.Products[1]; p.Name != "Laptop" || p.Picture != "laptop.jpg" || p.Stock != 5 {
		t.Errorf("product 1 = %+v", p)
	}

	// The reloaded generation must answer queries identically.
	for _, id := range []int64{1, 2, 3, 4} {
		wantSim, err := gen.Similar(id, 10)
		if err != nil {
			t.Fatal(err)
		}
		gotSim, err := loaded.Similar(id, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(gotSim) != len(wantSim) {
			t.Fatalf("product %d: similar lengths differ", id)
		}
		for i := range wantSim {
			if gotSim[i] != wantSim[i] {
				t.Errorf("product %d similar[%d]: got %+v, want %+v", id, i, gotSim[i], wantSim[i])
			}
		}

		wantCo, err := gen.CoPurchased(id, 10)
		if err != nil {
			t.Fatal(err)
		}
		gotCo, err := loaded.CoPurchased(id, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(gotCo) != len(wantCo) {
			t.Fatalf("product %d: copurchase lengths differ", id)
		}
		for i := range wantCo {
			if gotCo[i] != wantCo[i] {
				t.Errorf("product %d copurchased[%d]: got %+v, want %+v", id, i, gotCo[i], wantCo[i])
			}
		}
	}
}

func TestArtifactName(t *testing.T) {
	name := ArtifactName(42)
	if name != "gen-0000000000000042.model" {
		t.Errorf("name = %s", name)
	}
	id, ok := ParseArtifactID(name)
	if !ok || id != 42 {
		t.Errorf("ParseArtifactID(%s) = %d, %v", name, id, ok)
	}
	if _, ok := ParseArtifactID("notes.txt"); ok {
		t.Error("ParseArtifactID should reject non-artifact names")
	}
}

func TestLoadLatest(t *testing.T) {
	dir := t.TempDir()

	if g, err := LoadLatest(dir, nil); err != nil || g != nil {
		t.Fatalf("empty dir: got %v, %v", g, err)
	}

	if _, err := Save(dir, testGeneration(t, 1)); err != nil {
		t.Fatal(err)
	}
	if _, err := Save(dir, testGeneration(t, 2)); err != nil {
		t.Fatal(err)
	}
	g, err := LoadLatest(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if g == nil || g.ID != 2 {
		t.Fatalf("latest = %+v, want generation 2", g)
	}
}

func TestLoadLatest_skipsCorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	if _, err := Save(dir, testGeneration(t, 1)); err != nil {
		t.Fatal(err)
	}
	// A newer but garbage artifact must be skipped, not surfaced as an error.
	if err := os.WriteFile(filepath.Join(dir, ArtifactName(2)), []byte("not a model"), 0644); err != nil {
		t.Fatal(err)
	}
	g, err := LoadLatest(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if g == nil || g.ID != 1 {
		t.Fatalf("latest = %+v, want fallback to generation 1", g)
	}
}

func TestLoadLatest_missingDir(t *testing.T) {
	g, err := LoadLatest(filepath.Join(t.TempDir(), "nope"), nil)
	if err != nil || g != nil {
		t.Errorf("missing dir: got %v, %v, want nil, nil", g, err)
	}
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []uint64{1, 2, 3} {
		if _, err := Save(dir, testGeneration(t, id)); err != nil {
			t.Fatal(err)
		}
	}
	// A non-artifact file must survive pruning.
	other := filepath.Join(dir, "README")
	if err := os.WriteFile(other, []byte("keep me"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Prune(dir, 3); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if len(names) != 2 {
		t.Fatalf("after prune: %v", names)
	}
	if _, err := os.Stat(filepath.Join(dir, ArtifactName(3))); err != nil {
		t.Errorf("kept artifact missing: %v", err)
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("non-artifact file removed: %v", err)
	}
}
