package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// handleEvents streams the client's pipeline events over SSE. One
// subscription per client ID: reconnecting replaces the previous stream.
// The stream closes when the client disconnects or after the idle window
// passes with no events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.relay.Subscribe(clientID)
	defer cancel()

	fmt.Fprint(w, "data: {\"type\":\"connected\"}\n\n")
	flusher.Flush()

	log := s.logger.With(zap.String("client_id", clientID))
	log.Info("event stream opened")

	idle := time.NewTimer(s.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				// Subscription replaced by a newer stream.
				log.Info("event stream superseded")
				return
			}
			frame, err := json.Marshal(evt)
			if err != nil {
				log.Warn("marshal event failed", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()

			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(s.opts.IdleTimeout)
		case <-idle.C:
			log.Info("event stream idle, closing")
			return
		case <-r.Context().Done():
			log.Info("event stream client disconnected")
			return
		}
	}
}
