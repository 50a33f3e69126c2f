package detect

// Category is the coarse catalog classification of a detected book.
type Category string

// Supported categories.
const (
	CategoryFiction    Category = "fiction"
	CategoryNonFiction Category = "non-fiction"
)

// Result accumulates the outcome of one pipeline run. Fields fill in stage
// order; once Error is set no later stage runs and the result is terminal.
// At completion exactly one of Excerpt or Error is present.
type Result struct {
	IsBook      bool     `json:"isBook,omitempty"`
	Title       string   `json:"title,omitempty"`
	Category    Category `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	Excerpt     string   `json:"excerpt,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// EventType denotes the milestone an Event reports.
type EventType string

// Event types, emitted in stage order. Completed and Error are terminal and
// mutually exclusive; exactly one of them ends every run.
const (
	EventBookDetected     EventType = "book-detected"
	EventTitleExtracted   EventType = "title-extracted"
	EventCategoryResolved EventType = "category-resolved"
	EventDescriptionFound EventType = "description-found"
	EventCompleted        EventType = "completed"
	EventError            EventType = "error"
)

// Event is an immutable progress notification. Data carries the fields
// resolved by the reporting stage; terminal events carry the full result.
type Event struct {
	Type EventType `json:"type"`
	Data Result    `json:"data"`
}

// EmitFunc receives progress events from a pipeline run. Implementations
// must not block; delivery is best effort and never affects the run.
type EmitFunc func(Event)
