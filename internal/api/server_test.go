package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bookholmes/processor/internal/detect"
	"github.com/bookholmes/processor/internal/events"
	pubmemory "github.com/bookholmes/processor/internal/publisher/memory"
)

type stubRunner struct {
	result detect.Result
	emits  []detect.Event
	delay  time.Duration

	gotImage []byte
}

func (r *stubRunner) Run(ctx context.Context, image []byte, emit detect.EmitFunc) detect.Result {
	r.gotImage = image
	for _, evt := range r.emits {
		emit(evt)
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
		}
	}
	return r.result
}

func multipartUpload(t *testing.T, field string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, "cover.jpg")
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func newTestServer(runner Runner, relay *events.Registry, publisher detect.Publisher, opts Options) *Server {
	if relay == nil {
		relay = events.NewRegistry(8, nil)
	}
	return NewServer(runner, relay, publisher, opts, nil)
}

func TestAnalyzeSuccess(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{result: detect.Result{
		IsBook:   true,
		Title:    "The Old Man and the Sea",
		Category: detect.CategoryFiction,
		Excerpt:  "He was an old man.",
	}}
	srv := newTestServer(runner, nil, nil, Options{AnalyzeTimeout: time.Second})

	body, contentType := multipartUpload(t, "file", []byte("jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/analyze?clientId=abc", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res detect.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	require.Equal(t, runner.result, res)
	require.Equal(t, []byte("jpeg-bytes"), runner.gotImage)
}

func TestAnalyzePipelineErrorStillReturns200(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{result: detect.Result{Error: "No book detected in the image."}}
	srv := newTestServer(runner, nil, nil, Options{AnalyzeTimeout: time.Second})

	body, contentType := multipartUpload(t, "file", []byte("jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/analyze?clientId=abc", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res detect.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	require.Equal(t, "No book detected in the image.", res.Error)
}

func TestAnalyzeMissingClientID(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubRunner{}, nil, nil, Options{})

	body, contentType := multipartUpload(t, "file", []byte("jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeMissingFile(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubRunner{}, nil, nil, Options{})

	body, contentType := multipartUpload(t, "wrong-field", []byte("jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/analyze?clientId=abc", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeEmptyFile(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubRunner{}, nil, nil, Options{})

	body, contentType := multipartUpload(t, "file", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/analyze?clientId=abc", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeAuth(t *testing.T) {
	t.Parallel()

	opts := Options{AuthEnabled: true, APIKeys: []string{"secret-key"}, AnalyzeTimeout: time.Second}

	t.Run("rejects bad key", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(&stubRunner{}, nil, nil, opts)

		body, contentType := multipartUpload(t, "file", []byte("jpeg-bytes"))
		req := httptest.NewRequest(http.MethodPost, "/api/analyze?clientId=abc", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "wrong")
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("accepts configured key", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(&stubRunner{}, nil, nil, opts)

		body, contentType := multipartUpload(t, "file", []byte("jpeg-bytes"))
		req := httptest.NewRequest(http.MethodPost, "/api/analyze?clientId=abc", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "secret-key")
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAnalyzeTimeoutKeepsRunAlive(t *testing.T) {
	t.Parallel()

	publisher := pubmemory.New()
	runner := &stubRunner{
		result: detect.Result{IsBook: true, Title: "Slow Book"},
		delay:  100 * time.Millisecond,
	}
	// The run outlives the request budget but finishes well inside the
	// detached context's doubled window.
	srv := newTestServer(runner, nil, publisher, Options{
		AnalyzeTimeout: 60 * time.Millisecond,
		ResultTopic:    "detect-results",
	})

	body, contentType := multipartUpload(t, "file", []byte("jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/analyze?clientId=abc", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestTimeout, rec.Code)

	// The detached run completes and its terminal result still publishes.
	require.Eventually(t, func() bool {
		return len(publisher.Messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	msg := publisher.Messages()[0]
	require.Equal(t, "detect-results", msg.Topic)
	var res detect.Result
	require.NoError(t, json.Unmarshal(msg.Payload, &res))
	require.Equal(t, "Slow Book", res.Title)
}

func TestAnalyzeForwardsEventsToRelay(t *testing.T) {
	t.Parallel()

	relay := events.NewRegistry(8, nil)
	ch, cancel := relay.Subscribe("abc")
	defer cancel()

	runner := &stubRunner{
		result: detect.Result{IsBook: true},
		emits: []detect.Event{
			{Type: detect.EventBookDetected, Data: detect.Result{IsBook: true}},
			{Type: detect.EventCompleted, Data: detect.Result{IsBook: true}},
		},
	}
	srv := newTestServer(runner, relay, nil, Options{AnalyzeTimeout: time.Second})

	body, contentType := multipartUpload(t, "file", []byte("jpeg-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/analyze?clientId=abc", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, detect.EventBookDetected, (<-ch).Type)
	require.Equal(t, detect.EventCompleted, (<-ch).Type)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubRunner{}, nil, nil, Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}
