package detect

import (
	"context"
	"io"
)

// ObjectAnnotation is one localized object label returned by the vision
// service for an image.
type ObjectAnnotation struct {
	Label      string
	Confidence float64
}

// BookSignal is the combined answer of a vision-capable completion model
// asked whether an image shows a book.
type BookSignal struct {
	IsBook bool   `json:"isBook"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

// Viewability reports how much of a catalog record's content is publicly
// previewable.
type Viewability string

// Viewability levels as reported by the catalog.
const (
	ViewabilityNone    Viewability = "NONE"
	ViewabilityPartial Viewability = "PARTIAL"
	ViewabilityFull    Viewability = "FULL"
)

// CatalogRecord is the metadata resolved for a title. PreviewURL is only
// populated when Viewability permits public preview access.
type CatalogRecord struct {
	Title       string
	Categories  []string
	Description string
	PreviewURL  string
	Viewability Viewability
}

// Excerpt is the scraper's output: the transcribed preview text plus the
// raw screenshot it was read from.
type Excerpt struct {
	Text       string
	Screenshot []byte
}

// Vision wraps the image classification and OCR capabilities the pipeline
// depends on.
type Vision interface {
	DetectObjects(ctx context.Context, image []byte) ([]ObjectAnnotation, error)
	DetectText(ctx context.Context, image []byte) (string, error)
}

// Completion wraps the generative text/vision model.
type Completion interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteOverImage(ctx context.Context, prompt string, image []byte) (string, error)
	DetectBookFromImage(ctx context.Context, image []byte) (BookSignal, error)
}

// Catalog resolves a title to book metadata.
type Catalog interface {
	LookupByTitle(ctx context.Context, title string) (CatalogRecord, error)
}

// Scraper locates and transcribes a readable excerpt from a preview URL.
// pageSelector chooses how deep into the first content section to capture.
type Scraper interface {
	Scrape(ctx context.Context, url, pageSelector string) (Excerpt, error)
}

// BlobStore persists debug artifacts (screenshots, result snapshots) and
// returns the stored object's URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher delivers terminal results to an external topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
