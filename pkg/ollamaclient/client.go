// Package ollamaclient talks to a local Ollama-compatible model server:
// embeddings, chat (optionally with image attachments), and model
// listing. It is the only package in this repo that knows the wire
// format of that protocol.
package ollamaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/localrag/localrag/pkg/httpclient"
)

const defaultBaseURL = "http://localhost:11434"

// Client is a shared HTTP client for the Ollama API surface this repo
// uses: /api/embed, /api/chat, /api/tags.
type Client struct {
	baseURL string
	http    *httpclient.Client
}

// New creates a Client against baseURL (falls back to the local default
// if empty).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(2*time.Second),
		),
	}
}

// NewWithTimeout creates a Client with a caller-chosen per-request timeout
// (vision captioning and large-batch embedding can run long).
func NewWithTimeout(baseURL string, timeout time.Duration) *Client {
	c := New(baseURL)
	c.http = httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		httpclient.WithMaxRetries(3),
		httpclient.WithBaseDelay(2*time.Second),
	)
	return c
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("ollamaclient: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("ollamaclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollamaclient: request to %s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollamaclient: %s returned status %d: %s", endpoint, resp.StatusCode, string(b))
	}
	return resp, nil
}

// embedRequest mirrors Ollama's /api/embed payload: Input accepts either a
// single string or a []string for batch embedding.
type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed calls /api/embed. Passing a single text returns a single vector
// embedded as a one-element batch; passing N texts returns N vectors in
// the same order.
func (c *Client) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}

	resp, err := c.post(ctx, "/api/embed", embedRequest{Model: model, Input: input})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollamaclient: decode embed response: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollamaclient: expected %d embeddings, got %d", len(texts), len(out.Embeddings))
	}
	return out.Embeddings, nil
}

// ChatMessage is one turn of a /api/chat request. Images, when present,
// are either absolute file paths the server can read or base64-encoded
// bytes — the caller chooses the representation, this client passes it
// through unmodified.
type ChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatResponseMessage `json:"message"`
	Done    bool                `json:"done"`
}

type chatResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat calls /api/chat non-streaming and returns the assistant's content.
func (c *Client) Chat(ctx context.Context, model string, messages []ChatMessage) (string, error) {
	resp, err := c.post(ctx, "/api/chat", chatRequest{Model: model, Messages: messages, Stream: false})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ollamaclient: decode chat response: %w", err)
	}
	return out.Message.Content, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels calls GET /api/tags and returns the installed model names
// (full tagged name, e.g. "llava:latest").
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollamaclient: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollamaclient: request to /api/tags: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollamaclient: /api/tags returned status %d: %s", resp.StatusCode, string(b))
	}

	var out tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollamaclient: decode tags response: %w", err)
	}

	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// HasModel reports whether name is installed, matching either the full
// tagged name or the base name before the first ':'.
func HasModel(installed []string, name string) bool {
	base := name
	if i := strings.Index(name, ":"); i >= 0 {
		base = name[:i]
	}
	for _, m := range installed {
		if m == name {
			return true
		}
		if i := strings.Index(m, ":"); i >= 0 && m[:i] == base {
			return true
		}
		if m == base {
			return true
		}
	}
	return false
}
