// Package trigger talks to the external workflow that decides what to ingest
// and turns its response into documents.
package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/seanblong/contentstore/pkg/models"
)

// Client runs an external workflow and returns its raw response.
type Client interface {
	RunWorkflow(ctx context.Context, inputs map[string]any, user string) (map[string]any, error)
}

// Document is one url and the text fetched for it.
type Document struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Parse extracts the documents from a workflow response. The payload lives
// at data.outputs.output, either as an object or as a JSON encoded string,
// and carries two equally long string lists: url and contents.
func Parse(resp map[string]any) ([]Document, error) {
	data, ok := resp["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: missing data object", models.ErrMalformedTriggerResponse)
	}
	outputs, ok := data["outputs"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: missing data.outputs object", models.ErrMalformedTriggerResponse)
	}
	raw, ok := outputs["output"]
	if !ok || raw == nil {
		return nil, fmt.Errorf("%w: missing data.outputs.output", models.ErrMalformedTriggerResponse)
	}

	var output map[string]any
	switch v := raw.(type) {
	case map[string]any:
		output = v
	case string:
		if err := json.Unmarshal([]byte(strings.TrimSpace(v)), &output); err != nil {
			return nil, fmt.Errorf("%w: output is not valid JSON: %w", models.ErrMalformedTriggerResponse, err)
		}
		if output == nil {
			return nil, fmt.Errorf("%w: output is not an object", models.ErrMalformedTriggerResponse)
		}
	default:
		return nil, fmt.Errorf("%w: output has type %T", models.ErrMalformedTriggerResponse, raw)
	}

	urls, err := stringList(output, "url")
	if err != nil {
		return nil, err
	}
	contents, err := stringList(output, "contents")
	if err != nil {
		return nil, err
	}
	if len(urls) != len(contents) {
		return nil, fmt.Errorf("%w: %d urls but %d contents", models.ErrMalformedTriggerResponse, len(urls), len(contents))
	}

	docs := make([]Document, len(urls))
	for i := range urls {
		docs[i] = Document{URL: urls[i], Text: contents[i]}
	}
	return docs, nil
}

// stringList reads key as a list of strings. A missing key is an empty list.
func stringList(m map[string]any, key string) ([]string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a list, got %T", models.ErrMalformedTriggerResponse, key, v)
	}
	out := make([]string, len(items))
	for i, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] must be a string, got %T", models.ErrMalformedTriggerResponse, key, i, it)
		}
		out[i] = s
	}
	return out, nil
}

// DomainOf returns the host part of url: the text after the first "//" up
// to the next "/". Without a scheme the text before the first "/" is used.
// Empty results become "unknown".
func DomainOf(url string) string {
	rest := url
	if i := strings.Index(rest, "//"); i >= 0 {
		rest = rest[i+2:]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "unknown"
	}
	return rest
}
