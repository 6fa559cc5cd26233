// Package protalk talks to the ProTalk content-generation API: one endpoint
// produces background images, another produces short greeting texts.
package protalk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StatusError is a non-success HTTP response from the upstream, kept distinct
// from transport errors so callers can apply fallback-vs-fatal policy.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("protalk: unexpected status %d", e.Status)
}

// ErrEmptyResult means the upstream answered successfully but produced
// nothing usable.
var ErrEmptyResult = errors.New("protalk: empty result")

type Client struct {
	baseURL    string
	botID      string
	botToken   string
	functionID string
	httpClient *http.Client
	log        *slog.Logger
}

type Config struct {
	BaseURL    string
	BotID      string
	BotToken   string
	FunctionID string
	Timeout    time.Duration
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		botID:      cfg.BotID,
		botToken:   cfg.BotToken,
		functionID: cfg.FunctionID,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// GenerateImage runs the image function synchronously and returns the raw
// image bytes. Any failure here is fatal to the caller's run.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	endpoint := c.functionURL(prompt, "image")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Error("protalk image request failed", "status", resp.StatusCode, "body", truncateBody(body))
		return nil, &StatusError{Status: resp.StatusCode}
	}
	if len(body) == 0 {
		return nil, ErrEmptyResult
	}
	return body, nil
}

const (
	greetingAttempts    = 3
	greetingBackoffBase = 500 * time.Millisecond
)

// GenerateGreeting asks for a short greeting text. Transient failures are
// retried with exponential backoff, bounded by the context deadline. Callers
// substitute their own fallback text on error.
func (c *Client) GenerateGreeting(ctx context.Context, name, occasion string) (string, error) {
	prompt := fmt.Sprintf(
		"Напиши короткое красивое поздравление на русском языке. "+
			"Получатель: %s. Повод: %s. "+
			"Стиль: тёплый, искренний, 2-3 предложения максимум. "+
			"Ответь ТОЛЬКО текстом поздравления, без кавычек и пояснений.",
		name, occasion,
	)

	backoff := greetingBackoffBase
	var lastErr error
	for attempt := 0; attempt < greetingAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		text, err := c.completion(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		c.log.Warn("protalk greeting attempt failed", "attempt", attempt+1, "err", err)
	}
	return "", lastErr
}

func (c *Client) completion(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"bot_id":    c.botID,
		"bot_token": c.botToken,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal completion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1.0/completion", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post completion: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read completion body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Status: resp.StatusCode}
	}

	text := extractText(raw)
	if text == "" {
		return "", ErrEmptyResult
	}
	return text, nil
}

// extractText pulls the greeting out of the known response shapes; observed
// variants include ChatCompletions-style choices, a flat response/result
// field and plain text bodies.
func extractText(raw []byte) string {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Response string `json:"response"`
		Result   string `json:"result"`
		Text     string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return strings.TrimSpace(string(raw))
	}
	if len(parsed.Choices) > 0 {
		if content := strings.TrimSpace(parsed.Choices[0].Message.Content); content != "" {
			return content
		}
	}
	for _, candidate := range []string{parsed.Result, parsed.Text, parsed.Response} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func (c *Client) functionURL(prompt, output string) string {
	params := url.Values{}
	params.Set("function_id", c.functionID)
	params.Set("bot_id", c.botID)
	params.Set("bot_token", c.botToken)
	params.Set("prompt", prompt)
	params.Set("output", output)
	return c.baseURL + "/api/v1.0/run_function_get?" + params.Encode()
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
