package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rentpulse/internal/config"
)

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		resp := fmt.Sprintf(`{"choices":[{"message":{"role":"assistant","content":%q}}]}`, content)
		_, _ = w.Write([]byte(resp))
	}))
}

func newTestClient(baseURL string) Client {
	return NewClient(config.AIConfig{BaseURL: baseURL, Model: "test", Timeout: 2 * time.Second})
}

func TestClassify_ParsesPlainJSON(t *testing.T) {
	server := completionServer(t, `{"flagged": true, "confidence": 0.92, "reason": "duplicate photos"}`)
	defer server.Close()

	c := newTestClient(server.URL)
	got, err := c.Classify(context.Background(), "some listing text")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !got.Flagged || got.Confidence != 0.92 || got.Reason != "duplicate photos" {
		t.Fatalf("unexpected classification: %+v", got)
	}
}

func TestClassify_ParsesFencedJSON(t *testing.T) {
	server := completionServer(t, "Here is my verdict:\n```json\n{\"flagged\": false, \"confidence\": 0.3, \"reason\": \"looks fine\"}\n```")
	defer server.Close()

	c := newTestClient(server.URL)
	got, err := c.Classify(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Flagged || got.Reason != "looks fine" {
		t.Fatalf("unexpected classification: %+v", got)
	}
}

func TestClassify_ClampsConfidence(t *testing.T) {
	server := completionServer(t, `{"flagged": true, "confidence": 7.5, "reason": "x"}`)
	defer server.Close()

	c := newTestClient(server.URL)
	got, err := c.Classify(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Confidence != 1 {
		t.Fatalf("expected confidence clamped to 1, got %v", got.Confidence)
	}
}

func TestClassify_MalformedOutputIsError(t *testing.T) {
	server := completionServer(t, "I cannot classify this listing.")
	defer server.Close()

	c := newTestClient(server.URL)
	if _, err := c.Classify(context.Background(), "text"); err == nil {
		t.Fatalf("expected parse error for non-JSON output")
	}
}

func TestRewrite_EmptyResultIsError(t *testing.T) {
	server := completionServer(t, `{"title": "", "description": ""}`)
	defer server.Close()

	c := newTestClient(server.URL)
	if _, err := c.Rewrite(context.Background(), "t", "d"); err == nil {
		t.Fatalf("expected error for empty rewrite")
	}
}

func TestRewrite_Success(t *testing.T) {
	server := completionServer(t, `{"title": "Bright 2BR condo in Thonglor", "description": "Fully furnished."}`)
	defer server.Close()

	c := newTestClient(server.URL)
	got, err := c.Rewrite(context.Background(), "condo!!!", "furnished")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Title != "Bright 2BR condo in Thonglor" {
		t.Fatalf("unexpected title: %q", got.Title)
	}
}

func TestNewClient_UnconfiguredIsNil(t *testing.T) {
	if c := NewClient(config.AIConfig{}); c != nil {
		t.Fatalf("expected nil client without base URL")
	}
}

func TestClassify_Non2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if _, err := c.Classify(context.Background(), "text"); err == nil {
		t.Fatalf("expected error on 503")
	}
}
