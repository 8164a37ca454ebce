// Package llm implements the chat completion client for Ollama-compatible
// endpoints (POST {base}/api/chat, non-streaming). Reasoning spans emitted by
// thinking models are stripped before the reply reaches a chat.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Message is one chat turn in the wire format the endpoint expects.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the /api/chat request body.
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// chatResponse is the subset of the /api/chat response we read.
type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error,omitempty"`
}

// thinkSpan matches reasoning blocks like <think>...</think>, including
// multi-line ones, non-greedily.
var thinkSpan = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Client talks to an Ollama-compatible chat endpoint.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a chat client for the given base URL and model.
func New(baseURL, model string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "llm"),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Chat sends the full message list and returns the assistant reply with
// reasoning spans removed and whitespace trimmed. The context aborts the
// request; a superseded inference run is cancelled this way.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("encoding chat request: %w", err)
	}

	url := c.baseURL + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	c.logger.Debug("chat request", "model", c.model, "messages", len(messages))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling chat endpoint: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("reading chat response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apierr := &apiError{statusCode: resp.StatusCode, body: string(respBody)}
		c.logger.Error("chat request failed",
			"status", resp.StatusCode,
			"kind", classifyAPIError(resp.StatusCode, string(respBody)),
			"elapsed", time.Since(start))
		return "", apierr
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if chatResp.Error != "" {
		return "", &apiError{statusCode: resp.StatusCode, body: chatResp.Error}
	}

	reply := StripReasoning(chatResp.Message.Content)
	c.logger.Info("chat completed",
		"model", c.model,
		"elapsed", time.Since(start),
		"reply_len", len(reply))
	return reply, nil
}

// StripReasoning removes <think>...</think> spans and trims the result.
func StripReasoning(s string) string {
	return strings.TrimSpace(thinkSpan.ReplaceAllString(s, ""))
}
