package notify

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	welcomeText    = "Connected to Agent Marketplace WebSocket"
	writeWait      = 10 * time.Second
	maxClientFrame = 4096
)

// Server upgrades HTTP requests to websocket subscribers of a Hub.
type Server struct {
	hub          *Hub
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

func NewServer(hub *Hub, pingInterval time.Duration) *Server {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Server{
		hub:          hub,
		upgrader:     websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		pingInterval: pingInterval,
	}
}

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("ws_upgrade_failed")
		return
	}
	sub := s.hub.Subscribe()
	metricConnectionsTotal.Add(1)
	metricConnectionsActive.Add(1)
	log.Info().Str("remote_addr", r.RemoteAddr).Int("clients", s.hub.Count()).Msg("ws_client_connected")

	sub.offer(mustEncode(Message{Type: Connected, Message: welcomeText, Timestamp: time.Now().UnixMilli()}))

	go s.writeLoop(conn, sub)
	s.readLoop(conn, sub)

	metricConnectionsActive.Add(-1)
	log.Info().Str("remote_addr", r.RemoteAddr).Int("clients", s.hub.Count()).Msg("ws_client_disconnected")
}

func (s *Server) readLoop(conn *websocket.Conn, sub *Subscriber) {
	defer func() {
		s.hub.Unsubscribe(sub)
		_ = conn.Close()
	}()

	pongWait := 2 * s.pingInterval
	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("ws_read_failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		var in ClientMessage
		if err := json.Unmarshal(raw, &in); err != nil {
			log.Debug().Err(err).Msg("ws_bad_client_frame")
			continue
		}
		if in.Type == Ping {
			sub.offer(mustEncode(Message{Type: Pong, Timestamp: time.Now().UnixMilli()}))
		}
	}
}

// writeLoop is the only goroutine writing to conn.
func (s *Server) writeLoop(conn *websocket.Conn, sub *Subscriber) {
	ticker := time.NewTicker(s.pingInterval)
	defer func() {
		ticker.Stop()
		s.hub.Unsubscribe(sub)
		_ = conn.Close()
	}()

	for {
		select {
		case <-sub.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
				time.Now().Add(writeWait))
			return
		case msg := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func mustEncode(m Message) []byte {
	b, _ := json.Marshal(m)
	return b
}
