package api

import (
	"errors"
	"net/http"

	"github.com/banshee-data/speedtrap/internal/engine"
	"github.com/banshee-data/speedtrap/internal/httputil"
)

func (s *Server) handleBrake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.engine.Brake(); err != nil {
		if errors.Is(err, engine.ErrNoActiveRun) {
			httputil.WriteJSONError(w, http.StatusConflict, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.engine.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) showActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	h, ok := s.engine.Active()
	resp := map[string]any{"active": ok}
	if ok {
		resp["run_id"] = h.ID
		resp["started_at"] = h.StartedAt
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// streamEvents issues Server-Sent Events for every engine event. The SSE
// event name is the event kind.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := s.engine.Subscribe()
	defer s.engine.Unsubscribe(id)

	// Send initial ping to establish connection
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case ev, ok := <-c:
			if !ok {
				return
			}
			if err := httputil.WriteEvent(w, string(ev.Kind), ev); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
