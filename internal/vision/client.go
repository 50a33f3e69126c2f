// Package vision wraps the Google Cloud Vision REST API for object
// localization and text detection.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bookholmes/processor/internal/detect"
)

const defaultEndpoint = "https://vision.googleapis.com/v1/images:annotate"

// Vision API feature types used by this client.
const (
	featureObjectLocalization = "OBJECT_LOCALIZATION"
	featureTextDetection      = "TEXT_DETECTION"
)

// Config holds the Vision client parameters.
type Config struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

// Client calls the images:annotate endpoint. It implements detect.Vision.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New constructs a Vision client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
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

// DetectObjects runs object localization and returns the labeled objects.
func (c *Client) DetectObjects(ctx context.Context, image []byte) ([]detect.ObjectAnnotation, error) {
	resp, err := c.annotate(ctx, image, featureObjectLocalization)
	if err != nil {
		return nil, err
	}
	annotations := make([]detect.ObjectAnnotation, 0, len(resp.LocalizedObjectAnnotations))
	for _, obj := range resp.LocalizedObjectAnnotations {
		annotations = append(annotations, detect.ObjectAnnotation{
			Label:      obj.Name,
			Confidence: obj.Score,
		})
	}
	return annotations, nil
}

// DetectText runs OCR and returns the full detected text. The first
// annotation aggregates every text block found in the image; an empty
// string means the image carried no recognizable text.
func (c *Client) DetectText(ctx context.Context, image []byte) (string, error) {
	resp, err := c.annotate(ctx, image, featureTextDetection)
	if err != nil {
		return "", err
	}
	if len(resp.TextAnnotations) == 0 {
		return "", nil
	}
	return resp.TextAnnotations[0].Description, nil
}

func (c *Client) annotate(ctx context.Context, image []byte, featureType string) (annotateResponse, error) {
	payload := annotateRequest{
		Requests: []annotateEntry{
			{
				Image:    imageContent{Content: base64.StdEncoding.EncodeToString(image)},
				Features: []feature{{Type: featureType, MaxResults: 10}},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return annotateResponse{}, fmt.Errorf("marshal annotate request: %w", err)
	}

	url := fmt.Sprintf("%s?key=%s", c.cfg.Endpoint, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return annotateResponse{}, fmt.Errorf("build annotate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return annotateResponse{}, fmt.Errorf("call vision api: %w", err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.logger.Warn("close vision response body failed", zap.Error(closeErr))
		}
	}()

	if httpResp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return annotateResponse{}, fmt.Errorf("vision api status %d: %s", httpResp.StatusCode, snippet)
	}

	var decoded annotateEnvelope
	if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
		return annotateResponse{}, fmt.Errorf("decode annotate response: %w", err)
	}
	if len(decoded.Responses) == 0 {
		return annotateResponse{}, nil
	}
	first := decoded.Responses[0]
	if first.Error != nil {
		return annotateResponse{}, fmt.Errorf("vision api error %d: %s", first.Error.Code, first.Error.Message)
	}
	return first, nil
}

type annotateRequest struct {
	Requests []annotateEntry `json:"requests"`
}

type annotateEntry struct {
	Image    imageContent `json:"image"`
	Features []feature    `json:"features"`
}

type imageContent struct {
	Content string `json:"content"`
}

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults,omitempty"`
}

type annotateEnvelope struct {
	Responses []annotateResponse `json:"responses"`
}

type annotateResponse struct {
	LocalizedObjectAnnotations []localizedObject `json:"localizedObjectAnnotations"`
	TextAnnotations            []textAnnotation  `json:"textAnnotations"`
	Error                      *apiError         `json:"error"`
}

type localizedObject struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type textAnnotation struct {
	Description string `json:"description"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
