package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	EventJoin       = "join-chat"
	EventSend       = "send-message"
	EventNewMessage = "new-message"

	roomPrefix = "chat-"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 32
)

// Frame is the wire format in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RoomFor names the room of an application.
func RoomFor(applicationID string) string {
	return roomPrefix + applicationID
}

// Client is one websocket connection. rooms and closed are guarded by the
// hub's mutex.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	rooms  map[string]struct{}
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:    uuid.NewString(),
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		rooms: make(map[string]struct{}),
	}
}

// Handler upgrades requests to websocket connections served by hub.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates the /ws/chat handler. An empty allowedOrigins list or a
// "*" entry accepts any origin.
func NewHandler(hub *Hub, allowedOrigins []string, logger *slog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return len(set) == 0 || origin == "" || set[origin]
	}
}

// ServeHTTP upgrades the connection and blocks until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h.hub, conn)
	h.logger.Debug("chat client connected", slog.String("client", c.id))

	go c.writePump()
	c.readPump(r.Context(), h.logger)

	h.logger.Debug("chat client disconnected", slog.String("client", c.id))
}

func (c *Client) readPump(ctx context.Context, logger *slog.Logger) {
	defer func() {
		c.hub.Leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("chat read failed", slog.String("client", c.id), slog.String("error", err.Error()))
			}
			return
		}
		if err := c.handle(ctx, f); err != nil {
			logger.Debug("chat frame ignored", slog.String("client", c.id), slog.String("error", err.Error()))
		}
	}
}

func (c *Client) handle(ctx context.Context, f Frame) error {
	switch f.Event {
	case EventJoin:
		id, err := applicationID(f.Data)
		if err != nil {
			return err
		}
		c.hub.Join(c, RoomFor(id))
		return nil

	case EventSend:
		payload, room, err := stampMessage(f.Data, time.Now())
		if err != nil {
			return err
		}
		return c.hub.Broadcast(ctx, room, payload)

	default:
		return fmt.Errorf("chat: unknown event %q", f.Event)
	}
}

// stampMessage turns a send-message payload into the new-message frame for
// its room. Fields are relayed as sent; only timestamp is added.
func stampMessage(data json.RawMessage, now time.Time) ([]byte, string, error) {
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, "", fmt.Errorf("chat: decoding message: %w", err)
	}

	id, err := applicationID(msg["applicationId"])
	if err != nil {
		return nil, "", err
	}

	ts, err := json.Marshal(now.UTC())
	if err != nil {
		return nil, "", err
	}
	msg["timestamp"] = ts

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, "", err
	}
	frame, err := json.Marshal(Frame{Event: EventNewMessage, Data: body})
	if err != nil {
		return nil, "", err
	}
	return frame, RoomFor(id), nil
}

// applicationID accepts a JSON string or number, bare or as
// {"applicationId": ...}.
func applicationID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("chat: missing application id")
	}

	var obj struct {
		ApplicationID json.RawMessage `json:"applicationId"`
	}
	if raw[0] == '{' {
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("chat: decoding application id: %w", err)
		}
		return applicationID(obj.ApplicationID)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s = strings.TrimSpace(s); s != "" {
			return s, nil
		}
		return "", fmt.Errorf("chat: empty application id")
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("chat: application id must be a string or number")
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel: dropped or disconnected.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
