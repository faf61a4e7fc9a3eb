package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

func setSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Content-Type-Options", "nosniff")
}

func writeSSE(w http.ResponseWriter, kind Kind, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", kind); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// parseKinds reads the optional comma separated ?types= filter. A nil set
// passes everything.
func parseKinds(raw string) map[Kind]bool {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	set := make(map[Kind]bool)
	for _, part := range strings.Split(raw, ",") {
		if k := strings.TrimSpace(part); k != "" {
			set[Kind(k)] = true
		}
	}
	return set
}

// HandleSSE streams the same frames as HandleWS as server-sent events for
// clients that cannot hold a websocket open.
func (s *Server) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	filter := parseKinds(r.URL.Query().Get("types"))

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)
	metricConnectionsTotal.Add(1)
	metricConnectionsActive.Add(1)
	defer metricConnectionsActive.Add(-1)
	log.Info().Str("remote_addr", r.RemoteAddr).Int("clients", s.hub.Count()).Msg("sse_client_connected")

	if err := writeSSE(w, Connected, mustEncode(Message{Type: Connected, Message: welcomeText, Timestamp: time.Now().UnixMilli()})); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case msg := <-sub.C():
			var head struct {
				Type Kind `json:"type"`
			}
			if err := json.Unmarshal(msg, &head); err != nil {
				continue
			}
			if filter != nil && !filter[head.Type] {
				continue
			}
			if err := writeSSE(w, head.Type, msg); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if err := writeSSE(w, Ping, mustEncode(NewMessage(Ping, nil))); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
