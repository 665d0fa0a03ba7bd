package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleChatStream streams a chat turn. Framing follows server.transport:
// SSE frames (`data: {json}`) by default, one JSON object per line in
// ndjson mode.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	transport := s.transport()

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.metrics.RecordTransportError(transport, "no_flush")
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	if transport == "ndjson" {
		w.Header().Set("Content-Type", "application/x-ndjson")
	} else {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
	}
	w.WriteHeader(http.StatusOK)

	s.metrics.IncActiveStreams(transport)
	defer s.metrics.DecActiveStreams(transport)

	for ev := range s.svc.StreamChat(r.Context(), in) {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.metrics.RecordTransportError(transport, "encode")
			return
		}

		if transport == "ndjson" {
			_, err = fmt.Fprintf(w, "%s\n", payload)
		} else {
			_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		if err != nil {
			// Client went away. Returning cancels the request context, which
			// unblocks the service goroutine's sends.
			s.metrics.RecordTransportError(transport, "write")
			return
		}
		flusher.Flush()
	}
}
