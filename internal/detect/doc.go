// Package detect implements the book detection and enrichment pipeline: it
// classifies an uploaded photo, extracts the book title, resolves catalog
// metadata, and captures a readable excerpt from the book's online preview,
// emitting a progress event after each completed stage. Stage failures are
// captured as data on the result, never raised to the caller.
package detect
