package conversation

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame types exchanged over the chat WebSocket.
const (
	FrameMessage  = "message"
	FrameCancel   = "cancel"
	FrameFragment = "fragment"
	FrameDone     = "done"
	FrameError    = "error"
)

// Frame is one JSON message on the chat WebSocket.
type Frame struct {
	Type    string      `json:"type"`
	Text    string      `json:"text,omitempty"`
	Stream  *bool       `json:"stream,omitempty"`
	Result  *TurnResult `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
	Session string      `json:"session_id,omitempty"`
}

type wsConn struct {
	socket *websocket.Conn
	mu     sync.Mutex
}

func (c *wsConn) send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.socket.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.socket.WriteJSON(frame)
}

// NewUpgrader builds the WebSocket upgrader. Browser origins are checked with
// allowOrigin; a nil func keeps gorilla's same-host check. Clients without an
// Origin header are always accepted.
func NewUpgrader(allowOrigin func(origin string) bool) websocket.Upgrader {
	u := websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096}
	if allowOrigin != nil {
		u.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowOrigin(origin)
		}
	}
	return u
}

// WebSocket handles GET /chat/ws?session=<id>. Each "message" frame runs one
// turn; "cancel" aborts it. Turns run off the read loop so cancel frames are
// seen while a reply streams.
func (h *Handler) WebSocket(upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
		if sessionID == "" {
			http.Error(w, "session query parameter is required", http.StatusBadRequest)
			return
		}
		socket, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Error("websocket upgrade failed", "error", err)
			return
		}
		socket.SetReadLimit(64 * 1024)
		conn := &wsConn{socket: socket}

		ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
		var turns sync.WaitGroup
		defer func() {
			cancel()
			turns.Wait()
			socket.Close()
		}()

		h.logger.Debug("websocket connected", "session_id", sessionID)
		for {
			var frame Frame
			if err := socket.ReadJSON(&frame); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Warn("websocket read error", "session_id", sessionID, "error", err)
				}
				// The deferred cancel aborts this socket's own turns. A turn
				// started over REST or SSE for the same session keeps running.
				return
			}

			switch frame.Type {
			case FrameCancel:
				h.service.Cancel(sessionID)
			case FrameMessage:
				stream := h.stream
				if frame.Stream != nil {
					stream = *frame.Stream
				}
				turns.Add(1)
				go func(text string, stream bool) {
					defer turns.Done()
					h.runSocketTurn(ctx, conn, sessionID, text, stream)
				}(frame.Text, stream)
			default:
				_ = conn.send(Frame{Type: FrameError, Error: "unknown frame type: " + frame.Type})
			}
		}
	}
}

func (h *Handler) runSocketTurn(ctx context.Context, conn *wsConn, sessionID, text string, stream bool) {
	var onFragment func(string)
	if stream {
		onFragment = func(fragment string) {
			if err := conn.send(Frame{Type: FrameFragment, Text: fragment}); err != nil {
				h.logger.Debug("websocket fragment write failed", "session_id", sessionID, "error", err)
			}
		}
	}
	result, err := h.service.Turn(ctx, TurnRequest{
		SessionID: sessionID,
		Message:   text,
		Stream:    stream,
		Transport: "ws",
	}, onFragment)
	if err != nil {
		_ = conn.send(Frame{Type: FrameError, Error: err.Error(), Session: sessionID})
		return
	}
	if err := conn.send(Frame{Type: FrameDone, Result: result, Session: sessionID}); err != nil {
		h.logger.Debug("websocket done write failed", "session_id", sessionID, "error", err)
	}
}
