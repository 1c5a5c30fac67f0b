// Package ai wraps the generative REST capability the chat features consume:
// text completion, topic-style structured prompts, and image/video
// generation. The capability is treated as at-least-sometimes-unavailable;
// every call is fallible and callers decide whether a failure is surfaced or
// swallowed.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("ai: capability not configured")
	// ErrAccessDenied marks failures that need a different plan or access
	// level rather than a retry.
	ErrAccessDenied = errors.New("ai: model access denied")
	// ErrTimedOut marks a long-running generation that exhausted its
	// polling budget.
	ErrTimedOut = errors.New("ai: generation timed out")
)

type Config struct {
	APIKey        string
	BaseURL       string
	TextModel     string
	ImageModel    string
	ImageModelAlt string
	VideoModel    string
	// RatePerSecond caps outbound capability calls across all features.
	RatePerSecond float64
}

type Client struct {
	httpClient *http.Client
	cfg        Config
	limiter    *rate.Limiter
}

func New(cfg Config) *Client {
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 3),
	}
}

// Enabled reports whether the capability is configured at all.
func (c *Client) Enabled() bool {
	return c.cfg.APIKey != ""
}

// Turn is one prior exchange supplied as conversation context.
type Turn struct {
	Role    string // "user" or "model"
	Content string
}

type generatePart struct {
	Text string `json:"text,omitempty"`
}

type generateContent struct {
	Role  string         `json:"role,omitempty"`
	Parts []generatePart `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *generateContent  `json:"system_instruction,omitempty"`
	Contents          []generateContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content generateContent `json:"content"`
	} `json:"candidates"`
}

// Complete sends the prompt with bounded history (oldest first) and returns
// the model's text reply.
func (c *Client) Complete(ctx context.Context, system string, history []Turn, prompt string) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("ai rate wait: %w", err)
	}

	req := generateRequest{}
	if system != "" {
		req.SystemInstruction = &generateContent{Parts: []generatePart{{Text: system}}}
	}
	for _, turn := range history {
		role := turn.Role
		if role != "user" {
			role = "model"
		}
		req.Contents = append(req.Contents, generateContent{Role: role, Parts: []generatePart{{Text: turn.Content}}})
	}
	req.Contents = append(req.Contents, generateContent{Role: "user", Parts: []generatePart{{Text: prompt}}})

	var resp generateResponse
	if err := c.post(ctx, c.modelPath(c.cfg.TextModel, "generateContent"), req, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("ai: empty completion response")
	}
	text := resp.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", fmt.Errorf("ai: empty completion text")
	}
	return text, nil
}

func (c *Client) modelPath(model, method string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:%s", c.cfg.BaseURL, model, method)
}

func (c *Client) post(ctx context.Context, url string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("ai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("ai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)

	return c.do(httpReq, out)
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("ai: build request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)
	return c.do(httpReq, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ai: request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("ai: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", ErrAccessDenied, resp.StatusCode)
	default:
		return fmt.Errorf("ai: status %d: %s", resp.StatusCode, truncate(payload, 200))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("ai: decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
