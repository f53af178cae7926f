package engine

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/susume/internal/copurchase"
	"github.com/hyperjump/susume/internal/feature"
	"github.com/hyperjump/susume/internal/models"
	"github.com/hyperjump/susume/internal/similarity"
)

// Artifact format: a single little-endian binary file per generation holding
// everything needed to serve after a restart without retraining: header
// (magic, version, generation id, run id, created-at, basket count), the
// encoding scheme, the product table with feature vectors, and the
// co-purchase support + sparse strength tables.
const (
	artifactMagic   uint32 = 0x4D535553 // "SUSM"
	artifactVersion uint32 = 1

	// maxFieldLen bounds variable-length fields so a corrupt file cannot
	// trigger a huge allocation.
	maxFieldLen = 1 << 20
)

// ArtifactName returns the file name for a generation id. Zero-padded so
// lexical order equals generation order.
func ArtifactName(id uint64) string {
	return fmt.Sprintf("gen-%016d.model", id)
}

// ParseArtifactID extracts the generation id from an artifact file name.
func ParseArtifactID(name string) (uint64, bool) {
	var id uint64
	if _, err := fmt.Sscanf(filepath.Base(name), "gen-%d.model", &id); err != nil {
		return 0, false
	}
	return id, true
}

// Save writes g to dir as a single artifact file. The file is written to a
// temp name and renamed so readers (including the directory watcher) never
// observe a partial artifact.
func Save(dir string, g *Generation) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}
	path := filepath.Join(dir, ArtifactName(g.ID))
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := encode(w, g); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("encode artifact: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("flush artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("publish artifact: %w", err)
	}
	return path, nil
}

// Load reads an artifact file and rebuilds a fully queryable generation.
// simOpts configure the rebuilt similarity model (e.g. a precomputed
// neighbor cache).
func Load(path string, simOpts ...similarity.Option) (*Generation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()
	g, err := decode(bufio.NewReader(f), simOpts...)
	if err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", filepath.Base(path), err)
	}
	return g, nil
}

// LoadLatest loads the newest readable artifact in dir, or (nil, nil) when
// none exists. Corrupt or partial files are skipped with a warning.
func LoadLatest(dir string, logger *zap.Logger, simOpts ...similarity.Option) (*Generation, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read model dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if _, ok := ParseArtifactID(e.Name()); ok && !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	for _, name := range names {
		g, err := Load(filepath.Join(dir, name), simOpts...)
		if err != nil {
			if logger != nil {
				logger.Warn("skipping unreadable artifact", zap.String("file", name), zap.Error(err))
			}
			continue
		}
		return g, nil
	}
	return nil, nil
}

// Prune removes all artifacts in dir except the one for keepID. Old
// generations are discarded after a successful swap; there is no rollback store.
func Prune(dir string, keepID uint64) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		id, ok := ParseArtifactID(e.Name())
		if !ok || id == keepID {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func encode(w io.Writer, g *Generation) error {
	for _, v := range []uint32{artifactMagic, artifactVersion} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, g.ID); err != nil {
		return err
	}
	if err := writeString(w, g.RunID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, g.CreatedAt.UnixNano()); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(g.BasketCount)); err != nil {
		return err
	}

	// Scheme.
	for _, b := range []float64{g.Scheme.PriceMin, g.Scheme.PriceMax, g.Scheme.RatingMin, g.Scheme.RatingMax} {
		if err := binary.Write(w, binary.LittleEndian, b); err != nil {
			return err
		}
	}
	if err := writeStrings(w, g.Scheme.Categories); err != nil {
		return err
	}
	if err := writeStrings(w, g.Scheme.Brands); err != nil {
		return err
	}

	// Product table with vectors, in deterministic id order.
	ids := g.Similarity.IDs()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		p := g.Products[id]
		if err := binary.Write(w, binary.LittleEndian, p.ID); err != nil {
			return err
		}
		for _, s := range []string{p.Name, p.Category, p.Brand, p.Picture} {
			if err := writeString(w, s); err != nil {
				return err
			}
		}
		for _, v := range []float64{p.Price, p.Rating} {
			if err := binary.Write(w, binary.LittleEndian, v); err != nil {
				return err
			}
		}
		if err := binary.Write(w, binary.LittleEndian, p.Stock); err != nil {
			return err
		}
		vec, _ := g.Similarity.Vector(id)
		if err := binary.Write(w, binary.LittleEndian, uint32(len(vec))); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, vec); err != nil {
			return err
		}
	}

	// Co-purchase support table.
	supportIDs := make([]int64, 0, len(ids))
	for _, id := range ids {
		if g.CoPurchase.Support(id) > 0 {
			supportIDs = append(supportIDs, id)
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(supportIDs))); err != nil {
		return err
	}
	for _, id := range supportIDs {
		if err := binary.Write(w, binary.LittleEndian, id); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(g.CoPurchase.Support(id))); err != nil {
			return err
		}
	}

	// Co-purchase sparse strength table.
	anchors := g.CoPurchase.Anchors()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(anchors))); err != nil {
		return err
	}
	for _, anchor := range anchors {
		assoc := g.CoPurchase.Associations(anchor)
		others := make([]int64, 0, len(assoc))
		for q := range assoc {
			others = append(others, q)
		}
		sort.Slice(others, func(i, j int) bool { return others[i] < others[j] })
		if err := binary.Write(w, binary.LittleEndian, anchor); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(others))); err != nil {
			return err
		}
		for _, q := range others {
			if err := binary.Write(w, binary.LittleEndian, q); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, assoc[q]); err != nil {
				return err
			}
		}
	}
	return nil
}

func decode(r io.Reader, simOpts ...similarity.Option) (*Generation, error) {
	var magic, version uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if magic != artifactMagic {
		return nil, fmt.Errorf("bad magic %#x", magic)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != artifactVersion {
		return nil, fmt.Errorf("unsupported artifact version %d", version)
	}

	g := &Generation{}
	if err := binary.Read(r, binary.LittleEndian, &g.ID); err != nil {
		return nil, err
	}
	runID, err := readString(r)
	if err != nil {
		return nil, err
	}
	g.RunID = runID
	var createdNanos int64
	if err := binary.Read(r, binary.LittleEndian, &createdNanos); err != nil {
		return nil, err
	}
	g.CreatedAt = time.Unix(0, createdNanos)
	var basketCount uint32
	if err := binary.Read(r, binary.LittleEndian, &basketCount); err != nil {
		return nil, err
	}
	g.BasketCount = int(basketCount)

	scheme := &feature.Scheme{}
	for _, b := range []*float64{&scheme.PriceMin, &scheme.PriceMax, &scheme.RatingMin, &scheme.RatingMax} {
		if err := binary.Read(r, binary.LittleEndian, b); err != nil {
			return nil, err
		}
	}
	if scheme.Categories, err = readStrings(r); err != nil {
		return nil, err
	}
	if scheme.Brands, err = readStrings(r); err != nil {
		return nil, err
	}
	g.Scheme = scheme

	var productCount uint32
	if err := binary.Read(r, binary.LittleEndian, &productCount); err != nil {
		return nil, err
	}
	if productCount > maxFieldLen {
		return nil, fmt.Errorf("implausible product count %d", productCount)
	}
	g.Products = make(map[int64]models.ProductRecord, productCount)
	vectors := make(map[int64][]float32, productCount)
	ratings := make(map[int64]float64, productCount)
	for i := uint32(0); i < productCount; i++ {
		var p models.ProductRecord
		if err := binary.Read(r, binary.LittleEndian, &p.ID); err != nil {
			return nil, err
		}
		for _, s := range []*string{&p.Name, &p.Category, &p.Brand, &p.Picture} {
			if *s, err = readString(r); err != nil {
				return nil, err
			}
		}
		for _, v := range []*float64{&p.Price, &p.Rating} {
			if err := binary.Read(r, binary.LittleEndian, v); err != nil {
				return nil, err
			}
		}
		if err := binary.Read(r, binary.LittleEndian, &p.Stock); err != nil {
			return nil, err
		}
		var vecLen uint32
		if err := binary.Read(r, binary.LittleEndian, &vecLen); err != nil {
			return nil, err
		}
		if vecLen > maxFieldLen {
			return nil, fmt.Errorf("implausible vector length %d", vecLen)
		}
		vec := make([]float32, vecLen)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, err
		}
		g.Products[p.ID] = p
		vectors[p.ID] = vec
		ratings[p.ID] = p.Rating
	}

	var supportCount uint32
	if err := binary.Read(r, binary.LittleEndian, &supportCount); err != nil {
		return nil, err
	}
	if supportCount > maxFieldLen {
		return nil, fmt.Errorf("implausible support count %d", supportCount)
	}
	support := make(map[int64]int, supportCount)
	for i := uint32(0); i < supportCount; i++ {
		var id int64
		var count uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return nil, err
		}
		support[id] = int(count)
	}

	var anchorCount uint32
	if err := binary.Read(r, binary.LittleEndian, &anchorCount); err != nil {
		return nil, err
	}
	if anchorCount > maxFieldLen {
		return nil, fmt.Errorf("implausible anchor count %d", anchorCount)
	}
	strength := make(map[int64]map[int64]float64, anchorCount)
	for i := uint32(0); i < anchorCount; i++ {
		var anchor int64
		var m uint32
		if err := binary.Read(r, binary.LittleEndian, &anchor); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &m); err != nil {
			return nil, err
		}
		if m > maxFieldLen {
			return nil, fmt.Errorf("implausible association count %d", m)
		}
		row := make(map[int64]float64, m)
		for j := uint32(0); j < m; j++ {
			var q int64
			var s float64
			if err := binary.Read(r, binary.LittleEndian, &q); err != nil {
				return nil, err
			}
			if err := binary.Read(r, binary.LittleEndian, &s); err != nil {
				return nil, err
			}
			row[q] = s
		}
		strength[anchor] = row
	}

	g.Similarity = similarity.New(vectors, ratings, simOpts...)
	g.CoPurchase = copurchase.FromParts(strength, support, ratings)
	return g, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxFieldLen {
		return "", fmt.Errorf("implausible string length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeStrings(w io.Writer, ss []string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ss))); err != nil {
		return err
	}
	for _, s := range ss {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readStrings(r io.Reader) ([]string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > maxFieldLen {
		return nil, fmt.Errorf("implausible list length %d", n)
	}
	ss := make([]string, n)
	for i := range ss {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		ss[i] = s
	}
	return ss, nil
}
