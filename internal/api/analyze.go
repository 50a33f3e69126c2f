package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bookholmes/processor/internal/detect"
	"github.com/bookholmes/processor/internal/metrics"
)

// handleAnalyze accepts a multipart image upload and runs the detection
// pipeline. The response is the terminal Result, returned with 200 even
// when the pipeline failed partway (the Error field carries the reason).
// When the run outlives the request budget the handler answers 408 and the
// pipeline keeps going in the background, streaming to the client's event
// subscription.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusBadRequest, "invalid api key")
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "clientId query parameter is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file form field is required")
		return
	}
	defer func() { _ = file.Close() }()

	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read uploaded file failed")
		return
	}
	if len(image) == 0 {
		writeError(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	log := s.logger.With(
		zap.String("client_id", clientID),
		zap.String("request_id", middleware.GetReqID(r.Context())),
	)
	log.Info("analyze started", zap.Int("image_bytes", len(image)))

	// The run is detached from the request so a handler timeout does not
	// kill the pipeline; the event stream still delivers its progress.
	pipeCtx, pipeCancel := context.WithTimeout(
		context.WithoutCancel(r.Context()),
		2*s.opts.AnalyzeTimeout,
	)

	metrics.IncAnalyzeInflight()
	results := make(chan detect.Result, 1)
	go func() {
		defer pipeCancel()
		defer metrics.DecAnalyzeInflight()

		emit := func(evt detect.Event) { s.relay.Publish(clientID, evt) }
		res := s.runner.Run(pipeCtx, image, emit)
		results <- res

		if s.publisher != nil && s.opts.ResultTopic != "" {
			if _, err := s.publisher.Publish(pipeCtx, s.opts.ResultTopic, res); err != nil {
				log.Warn("result publish failed", zap.Error(err))
			}
		}
	}()

	select {
	case res := <-results:
		writeJSON(w, http.StatusOK, res)
	case <-time.After(s.opts.AnalyzeTimeout):
		log.Warn("analyze request timed out, run continues in background")
		writeError(w, http.StatusRequestTimeout, "analysis timed out")
	}
}
