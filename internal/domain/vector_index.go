package domain

import (
	"fmt"
	"math"
	"sort"
)

// IndexEntry pairs a chunk's identity with its embedding inside a
// VectorIndex. The index exclusively owns its entries for the lifetime of
// the document.
type IndexEntry struct {
	ChunkID int
	Page    int
	Vector  []float32
}

// SearchHit is one ranked result of a similarity search.
type SearchHit struct {
	ChunkID int
	Page    int
	Score   float64
}

// VectorIndex is a flat inner-product index over one document's chunk
// embeddings. Vectors are unit-normalized by contract, so the inner product
// is cosine similarity. The index has a single mutable build phase; once
// Build returns it is immutable and Search is safe for any number of
// concurrent callers. Content changes rebuild the index wholesale on a
// fresh instance.
type VectorIndex struct {
	dim     int
	entries []IndexEntry
	built   bool
}

// NewVectorIndex creates an empty index for vectors of the given dimension.
func NewVectorIndex(dim int) *VectorIndex {
	return &VectorIndex{dim: dim}
}

// Build constructs the searchable structure from chunk/vector pairs. It
// copies the entry list, orders it by chunk ID and rejects empty input,
// duplicate chunk IDs, dimension mismatches and repeated builds.
func (ix *VectorIndex) Build(entries []IndexEntry) error {
	if ix.built {
		return fmt.Errorf("vector index is already built")
	}
	if ix.dim <= 0 {
		return fmt.Errorf("vector index dimension must be positive, got %d", ix.dim)
	}
	if len(entries) == 0 {
		return ErrEmptyIndex
	}

	own := make([]IndexEntry, len(entries))
	for i, entry := range entries {
		own[i] = entry
		own[i].Vector = append([]float32(nil), entry.Vector...)
	}
	sort.Slice(own, func(i, j int) bool { return own[i].ChunkID < own[j].ChunkID })

	for i, entry := range own {
		if len(entry.Vector) != ix.dim {
			return fmt.Errorf("entry for chunk %d has dimension %d, want %d: %w",
				entry.ChunkID, len(entry.Vector), ix.dim, ErrDimensionMismatch)
		}
		if i > 0 && own[i-1].ChunkID == entry.ChunkID {
			return fmt.Errorf("duplicate chunk id %d in index entries", entry.ChunkID)
		}
	}

	ix.entries = own
	ix.built = true
	return nil
}

// Search returns the top-k entries by descending similarity, breaking score
// ties by lower chunk ID. It never returns more than k hits, never mutates
// the index, and fails with ErrNotBuilt before Build has run.
func (ix *VectorIndex) Search(query []float32, k int) ([]SearchHit, error) {
	if !ix.built {
		return nil, ErrNotBuilt
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("query has dimension %d, index has %d: %w",
			len(query), ix.dim, ErrDimensionMismatch)
	}

	hits := make([]SearchHit, 0, len(ix.entries))
	for _, entry := range ix.entries {
		hits = append(hits, SearchHit{
			ChunkID: entry.ChunkID,
			Page:    entry.Page,
			Score:   dotProduct(query, entry.Vector),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Built reports whether the build phase has completed.
func (ix *VectorIndex) Built() bool { return ix.built }

// Len returns the number of indexed entries.
func (ix *VectorIndex) Len() int { return len(ix.entries) }

// Dim returns the vector dimension the index was created with.
func (ix *VectorIndex) Dim() int { return ix.dim }

// Entries returns the entries in ascending chunk order. The slice is the
// index's own storage and must be treated as read-only.
func (ix *VectorIndex) Entries() []IndexEntry { return ix.entries }

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// NormalizeVector scales v to unit L2 length in place and returns it. The
// epsilon keeps an all-zero vector from dividing by zero.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + 1e-10
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
