// Package chat relays messages between websocket clients joined to the same
// application room.
//
// Delivery is fire-and-forget: no persistence, no acknowledgements, no
// backfill. A client whose send buffer is full is disconnected rather than
// allowed to stall the room. With a Broker configured, broadcasts go through
// it so clients on other instances receive them too.
package chat

import (
	"context"
	"log/slog"
	"sync"
)

// Broker fans broadcasts out across server instances.
type Broker interface {
	Publish(ctx context.Context, room string, payload []byte) error
	// Subscribe calls deliver for every message published to any room until
	// ctx is cancelled.
	Subscribe(ctx context.Context, deliver func(room string, payload []byte)) error
	Close() error
}

// Hub tracks room membership for the connections of this process.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	broker Broker // nil: local delivery only
	logger *slog.Logger
}

// NewHub creates a Hub. broker may be nil.
func NewHub(broker Broker, logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		broker: broker,
		logger: logger,
	}
}

// Run pumps broker messages into local rooms until ctx is cancelled. Without
// a broker it just waits for ctx.
func (h *Hub) Run(ctx context.Context) error {
	if h.broker == nil {
		<-ctx.Done()
		return nil
	}
	return h.broker.Subscribe(ctx, h.deliver)
}

// Join adds c to room. Joining twice is a no-op.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Leave removes c from every room and closes its send channel. It is safe to
// call more than once.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return
	}
	for room := range c.rooms {
		members := h.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	c.rooms = nil
	c.closed = true
	close(c.send)
}

// Broadcast sends payload to every member of room, here and, through the
// broker, on other instances.
func (h *Hub) Broadcast(ctx context.Context, room string, payload []byte) error {
	if h.broker != nil {
		return h.broker.Publish(ctx, room, payload)
	}
	h.deliver(room, payload)
	return nil
}

// RoomSize reports the number of local members of room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// deliver writes payload to the local members of room. Sends and Leave's
// close both happen under mu, so a send never hits a closed channel.
func (h *Hub) deliver(room string, payload []byte) {
	var slow []*Client

	h.mu.RLock()
	for c := range h.rooms[room] {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow chat client", slog.String("client", c.id), slog.String("room", room))
		h.Leave(c)
	}
}
