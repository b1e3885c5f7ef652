package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rentpulse/internal/config"
)

// Client is the AI text service: prompt in, text out. The response text
// is untrusted and parsed defensively by the callers in this package.
type Client interface {
	Classify(ctx context.Context, text string) (Classification, error)
	Rewrite(ctx context.Context, title, description string) (Rewritten, error)
}

type Classification struct {
	Flagged    bool    `json:"flagged"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type Rewritten struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

var ErrNotConfigured = errors.New("ai service not configured")

type httpClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewClient(cfg config.AIConfig) Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   strings.TrimSpace(cfg.Model),
		client:  &http.Client{Timeout: timeout},
	}
}

const classifyPrompt = `You review rental listings for a property aggregator.
Classify the following listing text as suspicious/low-quality or not.
Respond with a JSON object only: {"flagged": bool, "confidence": 0..1, "reason": string}.

Listing:
%s`

const rewritePrompt = `You rewrite rental listing copy for a property aggregator.
Rewrite the title and description below to be clear and factual, keeping all details.
Respond with a JSON object only: {"title": string, "description": string}.

Title: %s
Description:
%s`

func (c *httpClient) Classify(ctx context.Context, text string) (Classification, error) {
	if c == nil {
		return Classification{}, ErrNotConfigured
	}
	raw, err := c.complete(ctx, fmt.Sprintf(classifyPrompt, text))
	if err != nil {
		return Classification{}, err
	}

	var out Classification
	if err := decodeLoose(raw, &out); err != nil {
		return Classification{}, fmt.Errorf("parse classification: %w", err)
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return out, nil
}

func (c *httpClient) Rewrite(ctx context.Context, title, description string) (Rewritten, error) {
	if c == nil {
		return Rewritten{}, ErrNotConfigured
	}
	raw, err := c.complete(ctx, fmt.Sprintf(rewritePrompt, title, description))
	if err != nil {
		return Rewritten{}, err
	}

	var out Rewritten
	if err := decodeLoose(raw, &out); err != nil {
		return Rewritten{}, fmt.Errorf("parse rewrite: %w", err)
	}
	out.Title = strings.TrimSpace(out.Title)
	out.Description = strings.TrimSpace(out.Description)
	if out.Title == "" && out.Description == "" {
		return Rewritten{}, fmt.Errorf("parse rewrite: empty result")
	}
	return out, nil
}

type completionRequest struct {
	Model    string    `json:"model,omitempty"`
	Messages []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

func (c *httpClient) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:    c.model,
		Messages: []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ai service status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var cr completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decode ai response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("ai response has no choices")
	}
	return cr.Choices[0].Message.Content, nil
}

// decodeLoose extracts the first JSON object from model output that may
// be wrapped in prose or markdown fences.
func decodeLoose(raw string, out any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("empty response")
	}

	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return errors.New("no JSON object in response")
	}
	return json.Unmarshal([]byte(raw[start:end+1]), out)
}
