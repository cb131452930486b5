package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/seanblong/contentstore/pkg/models"
)

func TestNewDifyClient(t *testing.T) {
	if _, err := NewDifyClient("", "", 0); err == nil {
		t.Fatal("expected error for missing API key")
	}
	c, err := NewDifyClient("key", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.BaseURL != DefaultDifyBaseURL {
		t.Errorf("BaseURL = %q, want %q", c.BaseURL, DefaultDifyBaseURL)
	}
	if c.HTTPClient.Timeout != DefaultDifyTimeout {
		t.Errorf("Timeout = %v, want %v", c.HTTPClient.Timeout, DefaultDifyTimeout)
	}
	c, _ = NewDifyClient("key", "http://dify.local/v1/", time.Second)
	if c.BaseURL != "http://dify.local/v1" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", c.BaseURL)
	}
}

func TestDifyClient_RunWorkflow(t *testing.T) {
	var got workflowRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/workflows/run" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if h := r.Header.Get("Authorization"); h != "Bearer secret" {
			t.Errorf("Authorization = %q", h)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"outputs":{"output":{"url":["http://a.com/x"],"contents":["hello world"]}}}}`))
	}))
	defer srv.Close()

	c, err := NewDifyClient("secret", srv.URL+"/v1", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.RunWorkflow(context.Background(), map[string]any{"topic": "go"}, "u1")
	if err != nil {
		t.Fatalf("RunWorkflow() error: %v", err)
	}
	if got.User != "u1" || got.ResponseMode != "blocking" || got.Inputs["topic"] != "go" {
		t.Errorf("request body = %+v", got)
	}
	docs, err := Parse(resp)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(docs) != 1 || docs[0].URL != "http://a.com/x" {
		t.Errorf("docs = %+v", docs)
	}
}

func TestDifyClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `{"message":"boom"}`, models.ErrTriggerUnavailable},
		{"unauthorized", http.StatusUnauthorized, `{}`, models.ErrTriggerUnavailable},
		{"not json", http.StatusOK, `<html>`, models.ErrMalformedTriggerResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, _ := NewDifyClient("k", srv.URL, time.Second)
			_, err := c.RunWorkflow(context.Background(), nil, "u")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("RunWorkflow() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDifyClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, _ := NewDifyClient("k", url, time.Second)
	_, err := c.RunWorkflow(context.Background(), nil, "u")
	if !errors.Is(err, models.ErrTriggerUnavailable) {
		t.Errorf("RunWorkflow() error = %v, want ErrTriggerUnavailable", err)
	}
}
