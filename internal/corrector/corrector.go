// Package corrector refines translated SQL candidates through an
// external model served over the Ollama chat API. The corrector is an
// untrusted collaborator: its output is only ever accepted after the
// verifier has executed it successfully, and the orchestrator, not this
// package, bounds how many rounds it may run.
package corrector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Request carries everything a correction round may condition on.
type Request struct {
	SQL         string
	Context     string
	Diagnostics []string
	Feedback    string
}

// Corrector produces a revised SQL candidate from a failed one.
type Corrector interface {
	Correct(ctx context.Context, req Request) (string, error)
}

// Reviewer optionally pre-screens a candidate before verification.
// A failed review returns pass=false with the reviewer's feedback.
type Reviewer interface {
	Review(ctx context.Context, sql string) (pass bool, feedback string, err error)
}

// Client talks to an Ollama-compatible chat endpoint.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	model       string
	temperature float64
}

// NewClient returns a corrector backed by the chat endpoint at baseURL.
func NewClient(baseURL, model string, temperature float64) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: temperature,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// Correct asks the model to repair the candidate and returns the cleaned
// SQL text.
func (c *Client) Correct(ctx context.Context, req Request) (string, error) {
	prompt := buildCorrectionPrompt(req)
	content, err := c.chat(ctx, []chatMessage{{Role: "user", Content: prompt}})
	if err != nil {
		return "", fmt.Errorf("correction round: %w", err)
	}
	sql := cleanSQLResponse(content)
	if sql == "" {
		return "", fmt.Errorf("correction round: model returned no SQL")
	}
	return sql, nil
}

// Review asks the model to screen a candidate. Any response containing
// PASS accepts it; everything else is feedback for the next round.
func (c *Client) Review(ctx context.Context, sql string) (bool, string, error) {
	content, err := c.chat(ctx, []chatMessage{
		{Role: "system", Content: reviewerPrompt},
		{Role: "user", Content: "SQL: " + sql},
	})
	if err != nil {
		return false, "", fmt.Errorf("review: %w", err)
	}
	content = strings.TrimSpace(content)
	if strings.Contains(strings.ToUpper(content), "PASS") {
		return true, "", nil
	}
	return false, content, nil
}

func (c *Client) chat(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options:  map[string]any{"temperature": c.temperature},
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat endpoint returned %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("chat endpoint error: %s", parsed.Error)
	}
	return parsed.Message.Content, nil
}

// cleanSQLResponse strips markdown fencing the model tends to wrap
// around its answer.
func cleanSQLResponse(content string) string {
	content = strings.ReplaceAll(content, "```sql", "")
	content = strings.ReplaceAll(content, "```", "")
	return strings.TrimSpace(content)
}
