// Package scraper drives a headless browser through a book preview viewer
// in two rounds: first the contents pane to pick the section where the
// story starts, then the section itself for a page screenshot that gets
// transcribed into an excerpt.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bookholmes/processor/internal/detect"
	"github.com/bookholmes/processor/internal/metrics"
)

// Scrape failure sentinels. The messages are user visible and matched by
// the frontend; do not reword them.
var (
	ErrNoLinks      = errors.New("No links found")
	ErrNoPreview    = errors.New("No free preview for the book found")
	ErrNoScreenshot = errors.New("No screenshot found")
)

const transcribePrompt = `Transcribe the text of the book page shown in this image.
Return only the transcription, with no commentary. If the image shows no readable page text, return an empty response.`

// Config holds the viewer-specific selectors and capture geometry.
type Config struct {
	TOCSelector    string
	ScrollSelector string
	ScrollOffset   int
	Clip           Clip
	// VisionTranscription makes OCR the first transcription attempt, with
	// the completion model as fallback. When false the model goes first.
	VisionTranscription bool
}

// Scraper implements detect.Scraper over a Browser session.
type Scraper struct {
	browser    Browser
	vision     detect.Vision
	completion detect.Completion
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Scraper.
func New(browser Browser, vision detect.Vision, completion detect.Completion, cfg Config, logger *zap.Logger) *Scraper {
	if cfg.TOCSelector == "" {
		cfg.TOCSelector = "#toc"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		browser:    browser,
		vision:     vision,
		completion: completion,
		cfg:        cfg,
		logger:     logger,
	}
}

// Scrape opens the preview at url, picks the section where the content
// begins, and returns a transcribed excerpt of its first page. The
// pageSelector shifts the capture within the section: "2" scrolls one page
// down before the screenshot, any other value captures the top of the
// section. The page session is closed on every path.
func (s *Scraper) Scrape(ctx context.Context, rawURL, pageSelector string) (detect.Excerpt, error) {
	excerpt, err := s.scrape(ctx, rawURL, pageSelector)
	if err != nil {
		metrics.ObserveScrape("error")
		return excerpt, err
	}
	metrics.ObserveScrape("ok")
	return excerpt, nil
}

func (s *Scraper) scrape(ctx context.Context, rawURL, pageSelector string) (detect.Excerpt, error) {
	previewURL := stripPrintsec(rawURL)

	page, err := s.browser.NewPage(ctx)
	if err != nil {
		return detect.Excerpt{}, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	if err := page.Navigate(ctx, previewURL); err != nil {
		return detect.Excerpt{}, fmt.Errorf("navigate preview: %w", err)
	}

	links, err := s.contentsLinks(ctx, page, previewURL)
	if err != nil {
		return detect.Excerpt{}, err
	}

	section, err := s.pickSection(ctx, links)
	if err != nil {
		return detect.Excerpt{}, err
	}
	s.logger.Info("section selected",
		zap.String("label", section.Label),
		zap.Int("index", section.Index),
	)

	if err := page.Navigate(ctx, sectionURL(section.Href, pageSelector)); err != nil {
		return detect.Excerpt{}, fmt.Errorf("navigate section: %w", err)
	}
	if pageSelector == "2" && s.cfg.ScrollSelector != "" {
		if err := page.ScrollBy(ctx, s.cfg.ScrollSelector, s.cfg.ScrollOffset); err != nil {
			return detect.Excerpt{}, fmt.Errorf("scroll section: %w", err)
		}
	}

	shot, err := page.Screenshot(ctx, s.cfg.Clip)
	if err != nil {
		s.logger.Warn("screenshot failed", zap.Error(err))
		return detect.Excerpt{}, ErrNoScreenshot
	}
	if len(shot) == 0 {
		return detect.Excerpt{}, ErrNoScreenshot
	}

	text, err := s.transcribe(ctx, shot)
	if err != nil {
		return detect.Excerpt{Screenshot: shot}, fmt.Errorf("transcribe page: %w", err)
	}
	return detect.Excerpt{Text: text, Screenshot: shot}, nil
}

// contentsLinks reads the contents pane and parses its anchors.
func (s *Scraper) contentsLinks(ctx context.Context, page Page, pageURL string) ([]Link, error) {
	tocHTML, err := page.ElementHTML(ctx, s.cfg.TOCSelector)
	if err != nil {
		return nil, fmt.Errorf("read contents pane: %w", err)
	}
	if strings.TrimSpace(tocHTML) == "" {
		return nil, ErrNoLinks
	}
	links, err := parseTOCLinks(tocHTML, pageURL)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, ErrNoLinks
	}
	return links, nil
}

// pickSection asks the completion model which contents entry starts the
// actual content.
func (s *Scraper) pickSection(ctx context.Context, links []Link) (Link, error) {
	labels := make([]string, len(links))
	for i, link := range links {
		labels[i] = link.Label
	}
	reply, err := s.completion.Complete(ctx, sectionPrompt(labels))
	if err != nil {
		return Link{}, fmt.Errorf("pick section: %w", err)
	}
	idx, err := parseSectionIndex(reply, len(links))
	if err != nil {
		return Link{}, err
	}
	return links[idx], nil
}

// transcribe turns the page screenshot into text, trying OCR and the
// completion model in configured order and keeping the first non-empty
// result. Both attempts failing surfaces the second error.
func (s *Scraper) transcribe(ctx context.Context, shot []byte) (string, error) {
	first, second := s.modelTranscribe, s.ocrTranscribe
	if s.cfg.VisionTranscription {
		first, second = second, first
	}

	text, firstErr := first(ctx, shot)
	if firstErr == nil && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text), nil
	}
	if firstErr != nil {
		s.logger.Warn("transcription attempt failed", zap.Error(firstErr))
	}

	text, err := second(ctx, shot)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (s *Scraper) ocrTranscribe(ctx context.Context, shot []byte) (string, error) {
	if s.vision == nil {
		return "", errors.New("no vision client configured")
	}
	return s.vision.DetectText(ctx, shot)
}

func (s *Scraper) modelTranscribe(ctx context.Context, shot []byte) (string, error) {
	return s.completion.CompleteOverImage(ctx, transcribePrompt, shot)
}
