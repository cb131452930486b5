// Package storetest holds the behavioural suite every store backend must
// pass. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/seanblong/contentstore/internal/store"
	"github.com/seanblong/contentstore/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Dim is the embedding dimension the suite migrates with.
const Dim = 3

// Factory returns an empty store migrated with Dim.
type Factory func(t *testing.T) store.Store

func ptr[T any](v T) *T { return &v }

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"UpsertSourceIdempotent", testUpsertSourceIdempotent},
		{"SourceActivation", testSourceActivation},
		{"GetMissing", testGetMissing},
		{"UpsertContent", testUpsertContent},
		{"UpsertContentUnknownSource", testUpsertContentUnknownSource},
		{"UpdateContent", testUpdateContent},
		{"ChunkRoundTrip", testChunkRoundTrip},
		{"BatchCreateIsAtomic", testBatchCreateIsAtomic},
		{"ChunkValidation", testChunkValidation},
		{"ReplaceChunks", testReplaceChunks},
		{"FindSimilarRanking", testFindSimilarRanking},
		{"FindSimilarOrthogonal", testFindSimilarOrthogonal},
		{"FindSimilarExclusions", testFindSimilarExclusions},
		{"FindSimilarLimit", testFindSimilarLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			tt.fn(t, s)
		})
	}
}

func seedContent(t *testing.T, s store.Store, url string) models.Content {
	t.Helper()
	ctx := context.Background()
	src, err := s.UpsertSource(ctx, "a.com")
	require.NoError(t, err)
	c, err := s.UpsertContent(ctx, src.ID, url, ptr("body"))
	require.NoError(t, err)
	return c
}

func testUpsertSourceIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()

	first, err := s.UpsertSource(ctx, "a.com")
	require.NoError(t, err)
	second, err := s.UpsertSource(ctx, "a.com")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "a.com", second.Domain)
	assert.True(t, second.IsActive)
	require.NotNil(t, second.LastCrawled)

	other, err := s.UpsertSource(ctx, "b.org")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func testSourceActivation(t *testing.T, s store.Store) {
	ctx := context.Background()

	a, err := s.UpsertSource(ctx, "a.com")
	require.NoError(t, err)
	_, err = s.UpsertSource(ctx, "b.org")
	require.NoError(t, err)

	updated, found, err := s.SetSourceActive(ctx, a.ID, false)
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, updated.IsActive)

	active, err := s.ListActiveSources(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "b.org", active[0].Domain)

	again, err := s.UpsertSource(ctx, "a.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)
	assert.True(t, again.IsActive)

	_, found, err = s.SetSourceActive(ctx, uuid.New(), true)
	require.NoError(t, err)
	assert.False(t, found)
}

func testGetMissing(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, found, err := s.GetSource(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.GetContent(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.UpdateContent(ctx, uuid.New(), store.ContentPatch{Status: ptr(models.StatusProcessed)})
	require.NoError(t, err)
	assert.False(t, found)

	chunks, err := s.ChunksByContent(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func testUpsertContent(t *testing.T, s store.Store) {
	ctx := context.Background()

	src, err := s.UpsertSource(ctx, "a.com")
	require.NoError(t, err)

	c1, err := s.UpsertContent(ctx, src.ID, "http://a.com/x", ptr("hello"))
	require.NoError(t, err)
	assert.Equal(t, models.HashURL("http://a.com/x"), c1.URLHash)
	assert.Equal(t, models.StatusPending, c1.Status)
	require.NotNil(t, c1.RawContent)
	assert.Equal(t, "hello", *c1.RawContent)

	c2, err := s.UpsertContent(ctx, src.ID, "http://a.com/x", nil)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
	require.NotNil(t, c2.RawContent)
	assert.Equal(t, "hello", *c2.RawContent)

	_, err = s.UpsertContent(ctx, src.ID, "http://a.com/y", nil)
	require.NoError(t, err)

	got, found, err := s.GetContent(ctx, c1.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "http://a.com/x", got.URL)
	assert.Equal(t, src.ID, got.SourceID)

	list, err := s.ListContentsBySource(ctx, src.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func testUpsertContentUnknownSource(t *testing.T, s store.Store) {
	_, err := s.UpsertContent(context.Background(), uuid.New(), "http://a.com/x", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrPersistence))
}

func testUpdateContent(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := seedContent(t, s, "http://a.com/x")

	got, found, err := s.UpdateContent(ctx, c.ID, store.ContentPatch{Status: ptr(models.StatusProcessed)})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.StatusProcessed, got.Status)
	require.NotNil(t, got.RawContent)
	assert.Equal(t, "body", *got.RawContent)

	got, _, err = s.UpdateContent(ctx, c.ID, store.ContentPatch{RawContent: ptr("new body")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessed, got.Status)
	assert.Equal(t, "new body", *got.RawContent)
}

func testChunkRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := seedContent(t, s, "http://a.com/x")

	created, err := s.BatchCreateChunks(ctx, []models.Chunk{
		{ContentID: c.ID, Sequence: 2, Text: "second", Embedding: []float32{0, 1, 0}, EmbeddingModel: "m", CharCount: ptr(6), TokenCount: ptr(1)},
		{ContentID: c.ID, Sequence: 1, Text: "first", Embedding: []float32{0.25, -0.5, 1.5}, EmbeddingModel: "m"},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.NotEqual(t, uuid.Nil, created[0].ID)

	single, err := s.CreateChunk(ctx, models.Chunk{ContentID: c.ID, Sequence: 3, Text: "third"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, single.ID)

	got, err := s.ChunksByContent(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].Sequence, got[1].Sequence, got[2].Sequence})
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, []float32{0.25, -0.5, 1.5}, got[0].Embedding)
	assert.Equal(t, "m", got[0].EmbeddingModel)
	assert.Nil(t, got[0].CharCount)
	require.NotNil(t, got[1].CharCount)
	assert.Equal(t, 6, *got[1].CharCount)
	assert.Nil(t, got[2].Embedding)
	assert.Equal(t, single.ID, got[2].ID)

	require.NoError(t, s.DeleteChunksByContent(ctx, c.ID))
	got, err = s.ChunksByContent(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testBatchCreateIsAtomic(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := seedContent(t, s, "http://a.com/x")

	_, err := s.CreateChunk(ctx, models.Chunk{ContentID: c.ID, Sequence: 1, Text: "one"})
	require.NoError(t, err)

	// sequence 1 already exists, so the whole batch must be rejected
	_, err = s.BatchCreateChunks(ctx, []models.Chunk{
		{ContentID: c.ID, Sequence: 2, Text: "two"},
		{ContentID: c.ID, Sequence: 1, Text: "dup"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrPersistence))

	got, err := s.ChunksByContent(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "one", got[0].Text)
}

func testChunkValidation(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := seedContent(t, s, "http://a.com/x")

	bad := []models.Chunk{
		{ContentID: c.ID, Sequence: 1, Text: "wrong dim", Embedding: []float32{1, 2}},
		{ContentID: c.ID, Sequence: 0, Text: "bad sequence"},
		{ContentID: uuid.New(), Sequence: 1, Text: "unknown content"},
	}
	for _, ch := range bad {
		_, err := s.CreateChunk(ctx, ch)
		require.Error(t, err, ch.Text)
		assert.True(t, errors.Is(err, models.ErrPersistence), ch.Text)
	}

	got, err := s.ChunksByContent(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testReplaceChunks(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := seedContent(t, s, "http://a.com/x")

	_, err := s.BatchCreateChunks(ctx, []models.Chunk{
		{ContentID: c.ID, Sequence: 1, Text: "old 1"},
		{ContentID: c.ID, Sequence: 2, Text: "old 2"},
		{ContentID: c.ID, Sequence: 3, Text: "old 3"},
	})
	require.NoError(t, err)

	_, err = s.ReplaceChunks(ctx, c.ID, []models.Chunk{
		{Sequence: 1, Text: "new 1"},
		{Sequence: 2, Text: "new 2"},
	})
	require.NoError(t, err)

	got, err := s.ChunksByContent(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new 1", got[0].Text)
	assert.Equal(t, "new 2", got[1].Text)

	// a failing replacement leaves the previous set intact
	_, err = s.ReplaceChunks(ctx, c.ID, []models.Chunk{{Sequence: 1, Text: "x", Embedding: []float32{1}}})
	require.Error(t, err)
	got, err = s.ChunksByContent(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func seedVectors(t *testing.T, s store.Store, vecs ...[]float32) []models.Chunk {
	t.Helper()
	c := seedContent(t, s, "http://a.com/vectors")
	cs := make([]models.Chunk, len(vecs))
	for i, v := range vecs {
		cs[i] = models.Chunk{ContentID: c.ID, Sequence: i + 1, Text: "chunk", Embedding: v}
	}
	created, err := s.BatchCreateChunks(context.Background(), cs)
	require.NoError(t, err)
	return created
}

func testFindSimilarOrthogonal(t *testing.T, s store.Store) {
	seedVectors(t, s,
		[]float32{0, 1, 0},
		[]float32{0, 0, 1},
		[]float32{0, 0.6, 0.8},
	)

	res, err := s.FindSimilar(context.Background(), []float32{1, 0, 0}, 10, 0.7)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func testFindSimilarRanking(t *testing.T, s store.Store) {
	ctx := context.Background()
	created := seedVectors(t, s,
		[]float32{1, 0, 0},
		[]float32{0.9, 0.1, 0},
		[]float32{0, 1, 0},
	)

	res, err := s.FindSimilar(ctx, []float32{1, 0, 0}, 10, 0.7)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, created[0].ID, res[0].Chunk.ID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-4)
	assert.Equal(t, created[1].ID, res[1].Chunk.ID)
	assert.InDelta(t, 0.9939, res[1].Score, 1e-3)
	assert.Equal(t, []float32{1, 0, 0}, res[0].Chunk.Embedding)
}

func testFindSimilarExclusions(t *testing.T, s store.Store) {
	ctx := context.Background()
	created := seedVectors(t, s,
		nil,
		[]float32{0, 0, 0},
		[]float32{1, 1, 0},
	)

	res, err := s.FindSimilar(ctx, []float32{1, 0, 0}, 10, -1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, created[2].ID, res[0].Chunk.ID)

	res, err = s.FindSimilar(ctx, []float32{0, 0, 0}, 10, -1)
	require.NoError(t, err)
	assert.Empty(t, res)

	res, err = s.FindSimilar(ctx, []float32{1, 0}, 10, -1)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func testFindSimilarLimit(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedVectors(t, s,
		[]float32{1, 0, 0},
		[]float32{1, 0.1, 0},
		[]float32{1, 0.2, 0},
		[]float32{1, 0.3, 0},
	)

	res, err := s.FindSimilar(ctx, []float32{1, 0, 0}, 2, 0)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)

	res, err = s.FindSimilar(ctx, []float32{1, 0, 0}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, res)
}
