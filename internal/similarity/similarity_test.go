package similarity

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/seanblong/contentstore/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name   string
		a, b   []float32
		want   float64
		wantOK bool
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1, true},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0, true},
		{"opposite", []float32{1, 2}, []float32{-1, -2}, -1, true},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 1, true},
		{"zero query", []float32{0, 0}, []float32{1, 0}, 0, false},
		{"zero stored", []float32{1, 0}, []float32{0, 0}, 0, false},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0, false},
		{"empty", nil, nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Cosine(tt.a, tt.b)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.False(t, math.IsNaN(got))
		})
	}
}

func chunk(id string, emb []float32) models.Chunk {
	return models.Chunk{ID: uuid.MustParse(id), Embedding: emb}
}

func TestTopK_ScenarioRanking(t *testing.T) {
	query := []float32{1, 0, 0}
	chunks := []models.Chunk{
		chunk("00000000-0000-0000-0000-000000000003", []float32{0, 1, 0}),
		chunk("00000000-0000-0000-0000-000000000002", []float32{0.9, 0.1, 0}),
		chunk("00000000-0000-0000-0000-000000000001", []float32{1, 0, 0}),
	}

	got := TopK(query, chunks, 10, 0.7)
	require.Len(t, got, 2)
	assert.Equal(t, chunks[2].ID, got[0].Chunk.ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.Equal(t, chunks[1].ID, got[1].Chunk.ID)
	assert.InDelta(t, 0.9939, got[1].Score, 1e-4)
}

func TestTopK_OrthogonalQueryIsEmpty(t *testing.T) {
	chunks := []models.Chunk{
		chunk("00000000-0000-0000-0000-000000000001", []float32{0, 1, 0}),
		chunk("00000000-0000-0000-0000-000000000002", []float32{0, 0, 1}),
		chunk("00000000-0000-0000-0000-000000000003", []float32{0, 0.6, 0.8}),
	}

	got := TopK([]float32{1, 0, 0}, chunks, DefaultLimit, DefaultThreshold)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestTopK_Exclusions(t *testing.T) {
	query := []float32{1, 0}
	chunks := []models.Chunk{
		chunk("00000000-0000-0000-0000-00000000000a", nil),
		chunk("00000000-0000-0000-0000-00000000000b", []float32{0, 0}),
		chunk("00000000-0000-0000-0000-00000000000c", []float32{1, 0}),
	}

	got := TopK(query, chunks, 10, -1)
	require.Len(t, got, 1)
	assert.Equal(t, chunks[2].ID, got[0].Chunk.ID)

	assert.Empty(t, TopK([]float32{0, 0}, chunks, 10, -1))
}

func TestTopK_LimitAndTies(t *testing.T) {
	query := []float32{1, 1}
	chunks := []models.Chunk{
		chunk("00000000-0000-0000-0000-000000000004", []float32{1, 1}),
		chunk("00000000-0000-0000-0000-000000000002", []float32{1, 1}),
		chunk("00000000-0000-0000-0000-000000000003", []float32{1, 1}),
		chunk("00000000-0000-0000-0000-000000000001", []float32{1, 0}),
	}

	got := TopK(query, chunks, 2, 0.5)
	require.Len(t, got, 2)
	assert.Equal(t, chunks[1].ID, got[0].Chunk.ID)
	assert.Equal(t, chunks[2].ID, got[1].Chunk.ID)

	assert.Empty(t, TopK(query, chunks, 0, 0))
}

func TestTopK_ScoresAreMonotone(t *testing.T) {
	query := []float32{0.3, 0.5, 0.8}
	var chunks []models.Chunk
	for i := 0; i < 20; i++ {
		chunks = append(chunks, models.Chunk{
			ID:        uuid.New(),
			Embedding: []float32{float32(i%5) - 2, float32(i%3) + 0.1, float32(i) / 10},
		})
	}

	got := TopK(query, chunks, 20, -1)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestNorm(t *testing.T) {
	assert.InDelta(t, 5.0, Norm([]float32{3, 4}), 1e-9)
	assert.Zero(t, Norm(nil))
}
