// Package books wraps the Google Books volumes API for title lookup.
package books

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/bookholmes/processor/internal/detect"
)

const defaultEndpoint = "https://www.googleapis.com/books/v1/volumes"

// Config holds the Books client parameters.
type Config struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

// Client resolves titles against the volumes endpoint. It implements
// detect.Catalog.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New constructs a Books client.
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

// LookupByTitle searches the catalog with an intitle query and maps the
// best volume onto a CatalogRecord, preferring English editions. An empty
// result set yields detect.ErrBookNotFound; the preview URL is only set
// when the volume's viewability permits public preview access.
func (c *Client) LookupByTitle(ctx context.Context, title string) (detect.CatalogRecord, error) {
	query := url.Values{}
	query.Set("q", fmt.Sprintf("intitle:%q", title))
	if c.cfg.APIKey != "" {
		query.Set("key", c.cfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return detect.CatalogRecord{}, fmt.Errorf("build volumes request: %w", err)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return detect.CatalogRecord{}, fmt.Errorf("call books api: %w", err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.logger.Warn("close books response body failed", zap.Error(closeErr))
		}
	}()

	if httpResp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return detect.CatalogRecord{}, fmt.Errorf("books api status %d: %s", httpResp.StatusCode, snippet)
	}

	var decoded volumesResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&decoded); err != nil {
		return detect.CatalogRecord{}, fmt.Errorf("decode volumes response: %w", err)
	}
	if len(decoded.Items) == 0 {
		return detect.CatalogRecord{}, detect.ErrBookNotFound
	}

	vol := pickVolume(decoded.Items)
	record := detect.CatalogRecord{
		Title:       vol.VolumeInfo.Title,
		Categories:  vol.VolumeInfo.Categories,
		Description: vol.VolumeInfo.Description,
		Viewability: detect.Viewability(vol.AccessInfo.Viewability),
	}
	if record.Viewability == detect.ViewabilityPartial || record.Viewability == detect.ViewabilityFull {
		record.PreviewURL = vol.VolumeInfo.PreviewLink
	}
	return record, nil
}

// pickVolume prefers the first English edition, falling back to the first
// result.
func pickVolume(items []volume) volume {
	for _, item := range items {
		if item.VolumeInfo.Language == "en" {
			return item
		}
	}
	return items[0]
}

type volumesResponse struct {
	Items []volume `json:"items"`
}

type volume struct {
	VolumeInfo volumeInfo `json:"volumeInfo"`
	AccessInfo accessInfo `json:"accessInfo"`
}

type volumeInfo struct {
	Title       string   `json:"title"`
	Categories  []string `json:"categories"`
	Description string   `json:"description"`
	Language    string   `json:"language"`
	PreviewLink string   `json:"previewLink"`
}

type accessInfo struct {
	Viewability string `json:"viewability"`
}
