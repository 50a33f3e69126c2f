package detect

import "errors"

// Pipeline failure taxonomy. These strings are user-visible: they travel
// verbatim in Result.Error and the frontend matches on them, so they must
// stay stable even where they break error-string conventions.
var (
	// ErrNotABook means classification found no book (or box) label.
	ErrNotABook = errors.New("No book detected in the image.")
	// ErrNoText means OCR produced no text at all for the cover image.
	ErrNoText = errors.New("no text found in image")
	// ErrNoTitle means OCR text normalized down to nothing usable.
	ErrNoTitle = errors.New("no title found")
	// ErrBookNotFound means the catalog had no record for the title.
	ErrBookNotFound = errors.New("Book not found")
	// ErrNoContent means no excerpt could be captured: the record has no
	// accessible preview or the scrape transcribed nothing.
	ErrNoContent = errors.New("No book content found")
)
