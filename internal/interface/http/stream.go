package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/companion-hub/companion-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHAT STREAM
// Server-sent events: the conversation's history, then live messages. Each
// event id is the message Seq, so a reconnecting client sends Last-Event-ID
// and skips what it already has.
// ══════════════════════════════════════════════════════════════════════════════

// handleStream handles GET /api/v1/chats/{peerID}/stream
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var lastSeq int64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "Last-Event-ID must be a sequence number")
			return
		}
		lastSeq = n
	}

	sub, err := s.deps.WatchConversation.Handle(r.Context(), callerID(r), r.PathValue("peerID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer sub.Cancel()

	log := logger.FromContext(r.Context()).With(logger.ConversationID(sub.ConversationID))
	rc := http.NewResponseController(w)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Tells the client the stream is attached before any message arrives.
	if _, err := fmt.Fprintf(w, "retry: 3000\n: subscribed %s\n\n", sub.ConversationID); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		log.Warn("stream flush unsupported", logger.Err(err))
		return
	}

	heartbeat := time.NewTicker(s.config.StreamHeartbeat)
	defer heartbeat.Stop()

	started := time.Now()
	sent := 0
	defer func() {
		log.Debug("chat stream closed", logger.Int("sent", sent), logger.Latency(time.Since(started)))
	}()

	for {
		select {
		case <-r.Context().Done():
			return

		case m, ok := <-sub.Messages():
			if !ok {
				return
			}
			if m.Seq <= lastSeq {
				continue
			}
			data, err := json.Marshal(m)
			if err != nil {
				log.Error("encode chat event failed", logger.Err(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: message\ndata: %s\n\n", m.Seq, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
			sent++

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
