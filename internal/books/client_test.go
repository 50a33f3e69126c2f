package books

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bookholmes/processor/internal/detect"
)

func TestLookupByTitle(t *testing.T) {
	t.Parallel()

	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		require.Equal(t, "test-key", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{
			"items": [{
				"volumeInfo": {
					"title": "The Old Man and the Sea",
					"categories": ["Fiction", "Classics"],
					"description": "An old fisherman battles a marlin.",
					"language": "en",
					"previewLink": "https://books.example.com/preview?id=123&printsec=frontcover"
				},
				"accessInfo": {"viewability": "PARTIAL"}
			}]
		}`))
	}))
	defer ts.Close()

	c := New(Config{APIKey: "test-key", Endpoint: ts.URL}, nil)
	record, err := c.LookupByTitle(context.Background(), "The Old Man and the Sea")

	require.NoError(t, err)
	require.Equal(t, `intitle:"The Old Man and the Sea"`, gotQuery)
	require.Equal(t, "The Old Man and the Sea", record.Title)
	require.Equal(t, []string{"Fiction", "Classics"}, record.Categories)
	require.Equal(t, detect.ViewabilityPartial, record.Viewability)
	require.Equal(t, "https://books.example.com/preview?id=123&printsec=frontcover", record.PreviewURL)
}

func TestLookupByTitlePrefersEnglish(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"items": [
				{"volumeInfo": {"title": "Der alte Mann und das Meer", "language": "de"}, "accessInfo": {"viewability": "NONE"}},
				{"volumeInfo": {"title": "The Old Man and the Sea", "language": "en"}, "accessInfo": {"viewability": "NONE"}}
			]
		}`))
	}))
	defer ts.Close()

	c := New(Config{Endpoint: ts.URL}, nil)
	record, err := c.LookupByTitle(context.Background(), "The Old Man and the Sea")

	require.NoError(t, err)
	require.Equal(t, "The Old Man and the Sea", record.Title)
}

func TestLookupByTitleFallsBackToFirstResult(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"items": [
				{"volumeInfo": {"title": "Le Petit Prince", "language": "fr"}, "accessInfo": {"viewability": "NONE"}},
				{"volumeInfo": {"title": "El Principito", "language": "es"}, "accessInfo": {"viewability": "NONE"}}
			]
		}`))
	}))
	defer ts.Close()

	c := New(Config{Endpoint: ts.URL}, nil)
	record, err := c.LookupByTitle(context.Background(), "Le Petit Prince")

	require.NoError(t, err)
	require.Equal(t, "Le Petit Prince", record.Title)
}

func TestLookupByTitleNotFound(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"totalItems": 0}`))
	}))
	defer ts.Close()

	c := New(Config{Endpoint: ts.URL}, nil)
	_, err := c.LookupByTitle(context.Background(), "No Such Book")

	require.ErrorIs(t, err, detect.ErrBookNotFound)
}

func TestLookupByTitleNoPreviewWhenViewabilityNone(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"items": [{
				"volumeInfo": {"title": "Locked Book", "language": "en", "previewLink": "https://books.example.com/preview?id=9"},
				"accessInfo": {"viewability": "NO_PAGES"}
			}]
		}`))
	}))
	defer ts.Close()

	c := New(Config{Endpoint: ts.URL}, nil)
	record, err := c.LookupByTitle(context.Background(), "Locked Book")

	require.NoError(t, err)
	require.Empty(t, record.PreviewURL)
}

func TestLookupByTitleHTTPError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend error", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := New(Config{Endpoint: ts.URL}, nil)
	_, err := c.LookupByTitle(context.Background(), "Any Book")

	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
}
