package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/seanblong/contentstore/pkg/models"
	"google.golang.org/genai"
)

type embedContentFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)

type VertexAIClient struct {
	config *ClientConfig
	embed  embedContentFunc
	// outputDim is requested from the model when Dim was set explicitly.
	outputDim int32
}

func vertexDefaults(config *ClientConfig) {
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-005"
	}
	if config.Dim == 0 {
		config.Dim = 768
	}
	if config.Location == "" && strings.TrimSpace(config.APIKey) == "" {
		config.Location = "us-central1"
	}
}

// NewVertexAIClient creates a new client for the Google Gemini API.
func NewVertexAIClient(ctx context.Context, config *ClientConfig) (*VertexAIClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	outputDim := int32(config.Dim)
	vertexDefaults(config)

	cc := genai.ClientConfig{
		Backend: genai.BackendVertexAI,
	}
	if strings.TrimSpace(config.APIKey) != "" {
		cc.APIKey = config.APIKey
	}
	if strings.TrimSpace(config.ProjectID) != "" {
		cc.Project = config.ProjectID
	}
	if strings.TrimSpace(config.Location) != "" {
		cc.Location = config.Location
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &VertexAIClient{
		config:    config,
		embed:     client.Models.EmbedContent,
		outputDim: outputDim,
	}, nil
}

func (c *VertexAIClient) Embed(ctx context.Context, text string) (Embedding, error) {
	out, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return Embedding{}, err
	}
	return out[0], nil
}

func (c *VertexAIClient) EmbedMany(ctx context.Context, texts []string) ([]Embedding, error) {
	cfg := genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	}
	if c.outputDim > 0 {
		cfg.OutputDimensionality = &c.outputDim
	}

	out := make([]Embedding, 0, len(texts))
	for _, batch := range batches(texts, c.config.BatchSize) {
		contents := make([]*genai.Content, 0, len(batch))
		for _, t := range batch {
			contents = append(contents, genai.Text(t)...)
		}

		res, err := c.embed(ctx, c.config.EmbedModel, contents, &cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: vertexai: %w", models.ErrEmbeddingUnavailable, err)
		}
		if res == nil || len(res.Embeddings) != len(batch) {
			return nil, fmt.Errorf("%w: vertexai: embedding count mismatch", models.ErrEmbeddingUnavailable)
		}
		for _, e := range res.Embeddings {
			if e == nil {
				return nil, fmt.Errorf("%w: vertexai: nil embedding", models.ErrEmbeddingUnavailable)
			}
			if err := checkDim("vertexai", e.Values, c.config.Dim); err != nil {
				return nil, err
			}
			out = append(out, Embedding{Vector: e.Values, Model: c.config.EmbedModel})
		}
	}
	return out, nil
}

func (c *VertexAIClient) Dim() int      { return c.config.Dim }
func (c *VertexAIClient) Model() string { return c.config.EmbedModel }
