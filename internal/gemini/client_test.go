package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func generateReply(text string) string {
	body, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	return string(body)
}

func TestComplete(t *testing.T) {
	t.Parallel()

	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, "test-key", r.URL.Query().Get("key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(generateReply("  The Old Man and the Sea\n")))
	}))
	defer ts.Close()

	c := New(Config{APIKey: "test-key", Model: "gemini-2.0-flash", BaseURL: ts.URL}, nil)
	reply, err := c.Complete(context.Background(), "extract the title")

	require.NoError(t, err)
	require.Equal(t, "The Old Man and the Sea", reply)
	require.Equal(t, "/models/gemini-2.0-flash:generateContent", gotPath)
}

func TestCompleteOverImage(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(generateReply("page text")))
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL}, nil)
	reply, err := c.CompleteOverImage(context.Background(), "transcribe this", []byte{0xFF, 0xD8, 0xFF})

	require.NoError(t, err)
	require.Equal(t, "page text", reply)

	contents := gotBody["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	require.Len(t, parts, 2)
	require.Equal(t, "transcribe this", parts[0].(map[string]any)["text"])
	require.Contains(t, parts[1].(map[string]any), "inline_data")
}

func TestDetectBookFromImage(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(generateReply("```json\n{\"isBook\": true, \"title\": \"Dune\", \"author\": \"Frank Herbert\"}\n```")))
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL}, nil)
	signal, err := c.DetectBookFromImage(context.Background(), []byte("jpeg-bytes"))

	require.NoError(t, err)
	require.True(t, signal.IsBook)
	require.Equal(t, "Dune", signal.Title)
	require.Equal(t, "Frank Herbert", signal.Author)
}

func TestDetectBookFromImageUnparseableReply(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(generateReply("I cannot tell.")))
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL}, nil)
	_, err := c.DetectBookFromImage(context.Background(), []byte("jpeg-bytes"))

	require.Error(t, err)
	require.Contains(t, err.Error(), "parse book signal")
}

func TestGenerateNoCandidates(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL}, nil)
	_, err := c.Complete(context.Background(), "prompt")

	require.Error(t, err)
	require.Contains(t, err.Error(), "no candidates")
}

func TestGenerateHTTPError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL}, nil)
	_, err := c.Complete(context.Background(), "prompt")

	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
}

func TestStripCodeFence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input string
		want  string
	}{
		{"{\"isBook\": true}", "{\"isBook\": true}"},
		{"```json\n{\"isBook\": true}\n```", "{\"isBook\": true}"},
		{"```\n{\"isBook\": true}\n```", "{\"isBook\": true}"},
		{"  ```json\n{\"isBook\": false}\n```  ", "{\"isBook\": false}"},
		{"```{\"isBook\": true}```", "{\"isBook\": true}"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, stripCodeFence(tc.input), "input %q", tc.input)
	}
}
