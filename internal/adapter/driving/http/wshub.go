package httphandler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ericfisherdev/mergebridge/internal/application"
)

// MsgSessionView is the only message type pushed over a session stream.
const MsgSessionView = "session_view"

// WSMessage is the envelope sent to WebSocket clients.
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
}

// NewWSMessage creates a WSMessage with the given type and payload.
// Returns an error if payload cannot be marshaled to JSON.
func NewWSMessage(msgType string, payload any) (WSMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return WSMessage{}, err
	}
	return WSMessage{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// StreamSession upgrades to a WebSocket and pushes the session view once on
// connect and again after every change, until either side goes away.
func (h *Handler) StreamSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrading to websocket", "error", err)
		return
	}

	updates, unsubscribe := sess.Subscribe()
	c := &wsClient{conn: conn, logger: h.logger.With("session", sess.ID())}

	go c.writePump(sess.View(), updates)
	go c.readPump(unsubscribe)
}

type wsClient struct {
	conn   *websocket.Conn
	logger *slog.Logger
}

// readPump exists to detect disconnects and answer pings; client messages
// are discarded.
func (c *wsClient) readPump(unsubscribe func()) {
	defer func() {
		unsubscribe()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump sends the initial view, then every update, plus periodic pings.
func (c *wsClient) writePump(initial application.SessionView, updates <-chan application.SessionView) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	if !c.sendView(initial) {
		return
	}

	for {
		select {
		case view, ok := <-updates:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if !c.sendView(view) {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) sendView(view application.SessionView) bool {
	msg, err := NewWSMessage(MsgSessionView, view)
	if err != nil {
		c.logger.Error("marshaling session view", "error", err)
		return false
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug("websocket write failed", "error", err)
		return false
	}
	return true
}
