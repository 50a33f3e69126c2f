package detect

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Title strategy names accepted in configuration.
const (
	StrategyVisionFirst = "vision-first"
	StrategyVisionModel = "vision-model"
)

const titlePrompt = `You are a book title extractor analyzing OCR text from a book cover image.
Your task is to identify and return ONLY the main title of the book.
The title will be used to look up the book in a catalog to determine if it is fiction or non-fiction.
Rules:
1. Return ONLY the title text, no subtitles or author names
2. Remove any series information (e.g. 'Book 1 of...')
3. Clean up any OCR artifacts or formatting issues
4. Ensure the title is in its most searchable form
5. If you cannot confidently identify the title, return an empty string
6. Do not include any explanations or additional text in your response`

// TitleStrategy resolves a candidate book title from the cover image.
// The variant is chosen once at pipeline construction.
type TitleStrategy interface {
	Name() string
	ExtractTitle(ctx context.Context, image []byte) (string, error)
}

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// normalizeTitle strips OCR noise: non-alphanumerics become spaces, runs of
// whitespace collapse, and the result is trimmed.
func normalizeTitle(raw string) string {
	cleaned := nonAlphanumeric.ReplaceAllString(raw, " ")
	return strings.Join(strings.Fields(cleaned), " ")
}

// VisionFirstStrategy runs OCR over the cover and asks the completion model
// to isolate the title from the detected text. A failed or empty completion
// falls back to the normalized OCR text; there is no retry.
type VisionFirstStrategy struct {
	vision     Vision
	completion Completion
	logger     *zap.Logger
}

// NewVisionFirst constructs the OCR-led title strategy.
func NewVisionFirst(vision Vision, completion Completion, logger *zap.Logger) *VisionFirstStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VisionFirstStrategy{vision: vision, completion: completion, logger: logger}
}

// Name identifies the strategy in config and logs.
func (s *VisionFirstStrategy) Name() string { return StrategyVisionFirst }

// ExtractTitle implements TitleStrategy.
func (s *VisionFirstStrategy) ExtractTitle(ctx context.Context, image []byte) (string, error) {
	fullText, err := s.vision.DetectText(ctx, image)
	if err != nil {
		return "", fmt.Errorf("detect cover text: %w", err)
	}
	if strings.TrimSpace(fullText) == "" {
		return "", ErrNoText
	}
	candidate := normalizeTitle(fullText)
	if candidate == "" {
		return "", ErrNoTitle
	}

	prompt := fmt.Sprintf("%s\n\nText: %s", titlePrompt, fullText)
	refined, err := s.completion.Complete(ctx, prompt)
	if err != nil {
		s.logger.Warn("title completion failed; using OCR text", zap.Error(err))
		return candidate, nil
	}
	refined = strings.TrimSpace(refined)
	if refined == "" {
		return candidate, nil
	}
	return refined, nil
}

// VisionModelStrategy asks the vision-capable completion model for the
// book/title verdict in a single call.
type VisionModelStrategy struct {
	completion Completion
}

// NewVisionModel constructs the single-call model strategy.
func NewVisionModel(completion Completion) *VisionModelStrategy {
	return &VisionModelStrategy{completion: completion}
}

// Name identifies the strategy in config and logs.
func (s *VisionModelStrategy) Name() string { return StrategyVisionModel }

// ExtractTitle implements TitleStrategy.
func (s *VisionModelStrategy) ExtractTitle(ctx context.Context, image []byte) (string, error) {
	signal, err := s.completion.DetectBookFromImage(ctx, image)
	if err != nil {
		return "", fmt.Errorf("detect book from image: %w", err)
	}
	if !signal.IsBook {
		return "", ErrNotABook
	}
	title := strings.TrimSpace(signal.Title)
	if title == "" {
		return "", ErrNoTitle
	}
	return title, nil
}
