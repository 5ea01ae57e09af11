package hub

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/handshape-backend/pkg/types"
)

var ErrDuplicateClient = errors.New("client already registered")
var ErrUnknownClient = errors.New("unknown client")

// Hub is the connection registry: which connection belongs to which
// player, and whether the connection is still alive. It knows nothing
// about the game.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*client // clientID -> client
	log     *zap.Logger
	now     func() time.Time
}

type client struct {
	outbox   chan types.Message
	playerID string
	lastSeen time.Time
	closed   bool
}

func New(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*client),
		log:     log,
		now:     time.Now,
	}
}

// Register adds a connection. The hub closes outbox when the connection
// is dropped or unregistered; the caller must not close it.
func (h *Hub) Register(clientID string, outbox chan types.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[clientID]; ok {
		return ErrDuplicateClient
	}
	h.clients[clientID] = &client{outbox: outbox, lastSeen: h.now()}
	return nil
}

func (h *Hub) Bind(clientID, playerID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[clientID]
	if !ok {
		return ErrUnknownClient
	}
	c.playerID = playerID
	return nil
}

// Unregister forgets the connection and returns the player bound to it,
// if any.
func (h *Hub) Unregister(clientID string) (playerID string, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, found := h.clients[clientID]
	if !found {
		return "", false
	}
	delete(h.clients, clientID)
	h.closeLocked(c)
	return c.playerID, c.playerID != ""
}

func (h *Hub) PlayerOf(clientID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[clientID]
	if !ok || c.playerID == "" {
		return "", false
	}
	return c.playerID, true
}

// Touch records that the connection showed signs of life.
func (h *Hub) Touch(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[clientID]; ok {
		c.lastSeen = h.now()
	}
}

// Stale lists connections not seen since cutoff.
func (h *Hub) Stale(cutoff time.Time) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []string
	for id, c := range h.clients {
		if !c.closed && c.lastSeen.Before(cutoff) {
			out = append(out, id)
		}
	}
	return out
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Send queues msg without blocking. A connection whose outbox is full is
// closed as a slow consumer; its binding stays until Unregister so the
// owner still sees the disconnect.
func (h *Hub) Send(clientID string, msg types.Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[clientID]
	if !ok || c.closed {
		return false
	}
	select {
	case c.outbox <- msg:
		return true
	default:
		h.log.Warn("dropping slow client",
			zap.String("client_id", clientID),
			zap.String("player_id", c.playerID),
			zap.String("kind", msg.Kind()),
		)
		h.closeLocked(c)
		return false
	}
}

// Close ends delivery to the connection. The transport notices the closed
// outbox and tears the socket down.
func (h *Hub) Close(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[clientID]; ok {
		h.closeLocked(c)
	}
}

// Each calls fn for every registered connection. fn runs without the lock
// held, so it may call Send.
func (h *Hub) Each(fn func(clientID, playerID string)) {
	type pair struct{ clientID, playerID string }

	h.mu.Lock()
	all := make([]pair, 0, len(h.clients))
	for id, c := range h.clients {
		all = append(all, pair{id, c.playerID})
	}
	h.mu.Unlock()

	for _, p := range all {
		fn(p.clientID, p.playerID)
	}
}

func (h *Hub) closeLocked(c *client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.outbox)
}
