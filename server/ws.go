package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/lexcodex/ceylo/agents"
)

const (
	defaultPongWait = 70 * time.Second
	writeWait       = 10 * time.Second
	maxMessageLen   = 64 << 10
)

// Frame is one server to client WebSocket message.
type Frame struct {
	Type         string             `json:"type"`
	Conversation *ConversationView  `json:"conversation,omitempty"`
	Result       *agents.TurnResult `json:"result,omitempty"`
	Error        string             `json:"error,omitempty"`
	Status       int                `json:"status,omitempty"`
}

const (
	FrameState  = "state"
	FrameTyping = "typing"
	FrameTurn   = "turn"
	FrameError  = "error"
)

// handleWebSocket streams a conversation: each client text frame {text} is a
// user turn, answered by a typing frame and then a turn frame.
func (s *APIServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conv, err := s.Conversations.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logf("websocket upgrade for %s: %v", id, err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(frame Frame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(frame)
	}

	pongWait := s.PongWait
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}
	pingPeriod := pongWait / 3

	conn.SetReadLimit(maxMessageLen)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	stopPing := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(writeWait))
				writeMu.Unlock()
				if err != nil {
					return
				}
			case <-stopPing:
				return
			}
		}
	}()
	defer close(stopPing)

	view := NewConversationView(conv)
	if err := write(Frame{Type: FrameState, Conversation: &view}); err != nil {
		return
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req MessageRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			if write(Frame{Type: FrameError, Error: "invalid json", Status: http.StatusBadRequest}) != nil {
				return
			}
			continue
		}
		if err := write(Frame{Type: FrameTyping}); err != nil {
			return
		}
		result, err := s.Conversations.Send(r.Context(), id, req.Text)
		// Pongs are only handled inside ReadMessage, so a long turn would
		// otherwise outlive the deadline.
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		frame := Frame{Type: FrameTurn, Result: result}
		if err != nil {
			frame = Frame{Type: FrameError, Error: err.Error(), Status: statusFor(err)}
		}
		if err := write(frame); err != nil {
			return
		}
	}
}

// checkOrigin admits clients without an Origin header, same-host browser
// pages and the configured allowlist.
func (s *APIServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return lo.ContainsBy(s.AllowedOrigins, func(allowed string) bool {
		allowed = strings.TrimRight(strings.TrimSpace(allowed), "/")
		return allowed == "*" || strings.EqualFold(allowed, origin)
	})
}
