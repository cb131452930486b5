package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/contentstore/pkg/models"
)

const (
	DefaultDifyBaseURL = "https://api.dify.ai/v1"
	DefaultDifyTimeout = 120 * time.Second
)

// DifyClient runs Dify workflows in blocking mode.
type DifyClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

var _ Client = (*DifyClient)(nil)

// NewDifyClient returns a client for the Dify API. Empty baseURL and
// non-positive timeout fall back to the public endpoint and two minutes.
func NewDifyClient(apiKey, baseURL string, timeout time.Duration) (*DifyClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("dify API key is required")
	}
	if baseURL == "" {
		baseURL = DefaultDifyBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultDifyTimeout
	}
	return &DifyClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}, nil
}

type workflowRequest struct {
	Inputs       map[string]any `json:"inputs"`
	User         string         `json:"user"`
	ResponseMode string         `json:"response_mode"`
}

func (c *DifyClient) RunWorkflow(ctx context.Context, inputs map[string]any, user string) (map[string]any, error) {
	if inputs == nil {
		inputs = map[string]any{}
	}
	body, err := json.Marshal(workflowRequest{Inputs: inputs, User: user, ResponseMode: "blocking"})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", models.ErrTriggerUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/workflows/run", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", models.ErrTriggerUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrTriggerUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", models.ErrTriggerUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Int("status", resp.StatusCode).Str("body", truncate(string(payload), 512)).Msg("dify workflow request failed")
		return nil, fmt.Errorf("%w: dify returned %d: %s", models.ErrTriggerUnavailable, resp.StatusCode, truncate(string(payload), 512))
	}

	var out map[string]any
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("%w: response is not a JSON object: %w", models.ErrMalformedTriggerResponse, err)
	}
	log.Debug().Dur("took", time.Since(start)).Str("user", user).Msg("dify workflow finished")
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
