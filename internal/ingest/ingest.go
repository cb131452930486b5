// Package ingest turns workflow output into stored, embedded chunks.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/contentstore/internal/ai"
	"github.com/seanblong/contentstore/internal/chunker"
	"github.com/seanblong/contentstore/internal/store"
	"github.com/seanblong/contentstore/internal/trigger"
	"github.com/seanblong/contentstore/pkg/models"
)

// Store is the persistence an ingestion run writes to.
type Store interface {
	store.SourceStore
	store.ContentStore
	store.ChunkStore
}

// Service runs the trigger, chunks what it returns and stores embedded
// chunks. Workers bounds how many documents are processed at once.
type Service struct {
	Trigger  trigger.Client
	Store    Store
	Embedder ai.Embedder
	Chunker  *chunker.Chunker
	Workers  int
}

// NewService creates an ingestion service. tr may be nil when only Ingest
// and CreateChunk are used.
func NewService(tr trigger.Client, s Store, e ai.Embedder, c *chunker.Chunker, workers int) *Service {
	if c == nil {
		c = chunker.New()
	}
	if workers < 1 {
		workers = 1
	}
	return &Service{Trigger: tr, Store: s, Embedder: e, Chunker: c, Workers: workers}
}

// Run calls the workflow with inputs on behalf of user and ingests every
// document it returns. A malformed response aborts before anything is
// written.
func (s *Service) Run(ctx context.Context, inputs map[string]any, user string) ([]models.ChunkRef, error) {
	if s.Trigger == nil {
		return nil, fmt.Errorf("%w: no workflow trigger configured", models.ErrTriggerUnavailable)
	}

	start := time.Now()
	resp, err := s.Trigger.RunWorkflow(ctx, inputs, user)
	if err != nil {
		return nil, err
	}
	docs, err := trigger.Parse(resp)
	if err != nil {
		log.Error().Err(err).Msg("workflow returned a malformed response")
		return nil, err
	}
	log.Info().Int("documents", len(docs)).Dur("took", time.Since(start)).Msg("workflow finished")

	return s.Ingest(ctx, docs)
}

// Ingest stores docs and returns one ref per created chunk, grouped by
// document in input order. A URL listed more than once is ingested only from
// its last occurrence. The first failure cancels the documents not yet
// started and is returned as is; documents already finished stay stored.
func (s *Service) Ingest(ctx context.Context, docs []trigger.Document) ([]models.ChunkRef, error) {
	docs = lastByURL(docs)
	if len(docs) == 0 {
		return []models.ChunkRef{}, nil
	}

	numWorkers := min(max(s.Workers, 1), len(docs))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]models.ChunkRef, len(docs))
	workChan := make(chan int)
	errorChan := make(chan error, 1)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log.Debug().Int("worker", workerID).Msg("worker started")

			for idx := range workChan {
				refs, err := s.ingestDocument(ctx, docs[idx])
				if err != nil {
					select {
					case errorChan <- err:
					default:
						log.Debug().Err(err).Str("url", docs[idx].URL).Msg("dropping error after first failure")
					}
					cancel()
					continue
				}
				results[idx] = refs
			}
		}(i)
	}

dispatch:
	for i := range docs {
		select {
		case workChan <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(workChan)
	wg.Wait()

	select {
	case err := <-errorChan:
		return nil, err
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := []models.ChunkRef{}
	for _, refs := range results {
		out = append(out, refs...)
	}
	log.Info().Int("documents", len(docs)).Int("chunks", len(out)).Msg("ingestion finished")
	return out, nil
}

// lastByURL drops every document whose URL hash appears again later in
// docs, so no two workers replace the chunks of the same content.
func lastByURL(docs []trigger.Document) []trigger.Document {
	last := make(map[string]int, len(docs))
	for i, d := range docs {
		last[models.HashURL(d.URL)] = i
	}
	if len(last) == len(docs) {
		return docs
	}
	out := make([]trigger.Document, 0, len(last))
	for i, d := range docs {
		if last[models.HashURL(d.URL)] == i {
			out = append(out, d)
		}
	}
	log.Debug().Int("documents", len(docs)).Int("unique", len(out)).Msg("dropped repeated urls")
	return out
}

func (s *Service) ingestDocument(ctx context.Context, doc trigger.Document) ([]models.ChunkRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := s.Store.UpsertSource(ctx, trigger.DomainOf(doc.URL))
	if err != nil {
		return nil, err
	}
	raw := doc.Text
	content, err := s.Store.UpsertContent(ctx, src.ID, doc.URL, &raw)
	if err != nil {
		return nil, err
	}

	chunks, err := s.buildChunks(ctx, content.ID, s.Chunker.Split(doc.Text))
	if err != nil {
		s.markFailed(ctx, content.ID)
		return nil, err
	}
	created, err := s.Store.ReplaceChunks(ctx, content.ID, chunks)
	if err != nil {
		s.markFailed(ctx, content.ID)
		return nil, err
	}

	processed := models.StatusProcessed
	if _, _, err := s.Store.UpdateContent(ctx, content.ID, store.ContentPatch{Status: &processed}); err != nil {
		return nil, err
	}

	log.Info().Str("url", doc.URL).Str("domain", src.Domain).Int("chunks", len(created)).Msg("ingested content")

	refs := make([]models.ChunkRef, len(created))
	for i, c := range created {
		refs[i] = models.ChunkRef{SourceID: src.ID, ContentID: content.ID, ChunkID: c.ID}
	}
	return refs, nil
}

// buildChunks embeds texts in one batch and numbers them from 1.
func (s *Service) buildChunks(ctx context.Context, contentID uuid.UUID, texts []string) ([]models.Chunk, error) {
	if len(texts) == 0 {
		return []models.Chunk{}, nil
	}
	embs, err := s.Embedder.EmbedMany(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(embs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d chunks", models.ErrEmbeddingUnavailable, len(embs), len(texts))
	}

	out := make([]models.Chunk, len(texts))
	for j, text := range texts {
		out[j] = newChunk(contentID, j+1, text, embs[j])
	}
	return out, nil
}

// CreateChunk embeds text and stores it as chunk seq of contentID.
func (s *Service) CreateChunk(ctx context.Context, contentID uuid.UUID, seq int, text string) (models.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return models.Chunk{}, fmt.Errorf("%w: chunk text is empty", models.ErrInvalidInput)
	}
	if seq < 1 {
		return models.Chunk{}, fmt.Errorf("%w: sequence must be at least 1", models.ErrInvalidInput)
	}
	if _, found, err := s.Store.GetContent(ctx, contentID); err != nil {
		return models.Chunk{}, err
	} else if !found {
		return models.Chunk{}, fmt.Errorf("%w: content %s", models.ErrNotFound, contentID)
	}

	emb, err := s.Embedder.Embed(ctx, text)
	if err != nil {
		return models.Chunk{}, err
	}
	return s.Store.CreateChunk(ctx, newChunk(contentID, seq, text, emb))
}

func (s *Service) markFailed(ctx context.Context, contentID uuid.UUID) {
	failed := models.StatusFailed
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, _, err := s.Store.UpdateContent(ctx, contentID, store.ContentPatch{Status: &failed}); err != nil {
		log.Warn().Err(err).Str("content_id", contentID.String()).Msg("could not mark content failed")
	}
}

func newChunk(contentID uuid.UUID, seq int, text string, emb ai.Embedding) models.Chunk {
	chars := utf8.RuneCountInString(text)
	tokens := approxTokens(text)
	return models.Chunk{
		ContentID:      contentID,
		Sequence:       seq,
		Text:           text,
		CharCount:      &chars,
		TokenCount:     &tokens,
		Embedding:      emb.Vector,
		EmbeddingModel: emb.Model,
	}
}

// approxTokens estimates tokens as 4/3 per whitespace separated word.
func approxTokens(text string) int {
	return max(1, len(strings.Fields(text))*4/3)
}
