// Package similarity implements exact cosine nearest-neighbour ranking over
// in-process chunk sets. Backends without native vector operators use it.
package similarity

import (
	"bytes"
	"math"
	"sort"

	"github.com/seanblong/contentstore/pkg/models"
)

const (
	DefaultLimit     = 10
	DefaultThreshold = 0.7
)

// Cosine returns dot(a,b)/(|a||b|). ok is false when the similarity is
// undefined: mismatched or empty vectors, or a zero norm on either side.
func Cosine(a, b []float32) (score float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0, false
	}
	return s, true
}

// Norm returns the euclidean length of v.
func Norm(v []float32) float64 {
	var n float64
	for _, x := range v {
		n += float64(x) * float64(x)
	}
	return math.Sqrt(n)
}

// TopK scores every chunk against query and returns at most limit results
// with score >= threshold, best first. Equal scores are ordered by chunk id.
// Chunks without an embedding are skipped.
func TopK(query []float32, chunks []models.Chunk, limit int, threshold float64) []models.SearchResult {
	if limit <= 0 {
		return []models.SearchResult{}
	}
	out := make([]models.SearchResult, 0, min(limit, len(chunks)))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		s, ok := Cosine(query, c.Embedding)
		if !ok || s < threshold {
			continue
		}
		out = append(out, models.SearchResult{Chunk: c, Score: s})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return bytes.Compare(out[i].Chunk.ID[:], out[j].Chunk.ID[:]) < 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
