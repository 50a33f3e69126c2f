// Package gemini wraps the Gemini generateContent REST API for text
// completion, image-grounded completion, and structured book detection.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bookholmes/processor/internal/detect"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash"
)

const detectBookPrompt = `Look at this image and determine whether it shows a book.
Respond with a single JSON object and nothing else, in this exact shape:
{"isBook": <true|false>, "title": "<main title or empty string>", "author": "<author or empty string>"}
If the object is not a book, set isBook to false and leave title and author empty.`

// Config holds the Gemini client parameters.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client calls the generateContent endpoint. It implements detect.Completion.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New constructs a Gemini client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Complete sends a text prompt and returns the model's reply.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, []part{{Text: prompt}})
}

// CompleteOverImage sends a prompt together with an inline image.
func (c *Client) CompleteOverImage(ctx context.Context, prompt string, image []byte) (string, error) {
	parts := []part{
		{Text: prompt},
		{InlineData: &inlineData{
			MimeType: http.DetectContentType(image),
			Data:     base64.StdEncoding.EncodeToString(image),
		}},
	}
	return c.generate(ctx, parts)
}

// DetectBookFromImage asks the model for a structured book verdict over the
// image and parses its JSON reply, tolerating markdown code fences.
func (c *Client) DetectBookFromImage(ctx context.Context, image []byte) (detect.BookSignal, error) {
	reply, err := c.CompleteOverImage(ctx, detectBookPrompt, image)
	if err != nil {
		return detect.BookSignal{}, err
	}
	var signal detect.BookSignal
	if err := json.Unmarshal([]byte(stripCodeFence(reply)), &signal); err != nil {
		return detect.BookSignal{}, fmt.Errorf("parse book signal %q: %w", reply, err)
	}
	return signal, nil
}

func (c *Client) generate(ctx context.Context, parts []part) (string, error) {
	payload := generateRequest{Contents: []content{{Parts: parts}}}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.cfg.BaseURL, c.cfg.Model, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call gemini api: %w", err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.logger.Warn("close gemini response body failed", zap.Error(closeErr))
		}
	}()

	if httpResp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return "", fmt.Errorf("gemini api status %d: %s", httpResp.StatusCode, snippet)
	}

	var decoded generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if len(decoded.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	var sb strings.Builder
	for _, p := range decoded.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}

// stripCodeFence removes a surrounding markdown code fence, with or without
// a language tag, so fenced JSON replies still parse.
func stripCodeFence(reply string) string {
	trimmed := strings.TrimSpace(reply)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 && !strings.HasPrefix(trimmed, "\n") {
		// Drop the language tag line (e.g. "json").
		firstLine := trimmed[:idx]
		if !strings.ContainsAny(firstLine, "{}") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content content `json:"content"`
}
