package ai

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"github.com/seanblong/contentstore/pkg/models"
)

type OpenAIClient struct {
	config *ClientConfig
	client *openai.Client
	// dimensions is sent with every request when Dim was configured
	// explicitly, so text-embedding-3 models shorten their output to match.
	dimensions int
}

func NewOpenAIClient(config *ClientConfig) *OpenAIClient {
	if config.EmbedModel == "" {
		config.EmbedModel = string(openai.SmallEmbedding3)
	}
	dimensions := config.Dim
	if config.Dim == 0 {
		switch config.EmbedModel {
		case string(openai.LargeEmbedding3):
			config.Dim = 3072
		default:
			config.Dim = 1536
		}
	}

	transport := &http.Transport{}
	// corporate proxies
	if skipTLS, _ := strconv.ParseBool(os.Getenv("CONTENTSTORE_SKIP_TLS_VERIFY")); skipTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	oc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		oc.BaseURL = config.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: 30 * time.Second, Transport: transport}

	return &OpenAIClient{
		config:     config,
		client:     openai.NewClientWithConfig(oc),
		dimensions: dimensions,
	}
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) (Embedding, error) {
	out, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return Embedding{}, err
	}
	return out[0], nil
}

func (c *OpenAIClient) EmbedMany(ctx context.Context, texts []string) ([]Embedding, error) {
	if c.config.APIKey == "" {
		return nil, fmt.Errorf("%w: openai: %w", models.ErrEmbeddingUnavailable, errors.New("CONTENTSTORE_PROVIDER_API_KEY unset"))
	}

	out := make([]Embedding, 0, len(texts))
	for _, batch := range batches(texts, c.config.BatchSize) {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input:      batch,
			Model:      openai.EmbeddingModel(c.config.EmbedModel),
			Dimensions: c.dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: openai: %w", models.ErrEmbeddingUnavailable, err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("%w: openai: got %d embeddings for %d inputs", models.ErrEmbeddingUnavailable, len(resp.Data), len(batch))
		}

		data := resp.Data
		sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
		for _, d := range data {
			if err := checkDim("openai", d.Embedding, c.config.Dim); err != nil {
				return nil, err
			}
			out = append(out, Embedding{Vector: d.Embedding, Model: c.config.EmbedModel})
		}
		log.Debug().Int("inputs", len(batch)).Int("tokens", resp.Usage.TotalTokens).Msg("openai embeddings")
	}
	return out, nil
}

func (c *OpenAIClient) Dim() int      { return c.config.Dim }
func (c *OpenAIClient) Model() string { return c.config.EmbedModel }
