package ws

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/folkengine/goname"
	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-signal/config"
	"github.com/tcriess/lightspeed-signal/room"
	"github.com/tcriess/lightspeed-signal/types"
)

// Inbound is a decoded frame of a client, or the marker that its transport is gone. Both travel
// through the same channel, so the hub sees a client's events and its disconnect in order.
type Inbound struct {
	client  *Client
	message types.WebsocketMessage
	closed  bool
}

// Hub owns every session. All registrations, events and disconnects are processed by the single
// Run goroutine, which is what orders the traffic of a room.
type Hub struct {
	registry *room.Registry
	cfg      *config.Config
	logger   hclog.Logger

	// Register a new client to the hub. Unbuffered, so a client is known to the hub before its
	// read loop can submit anything.
	Register chan *Client

	// Inbound events of all clients.
	Inbound chan *Inbound

	// only touched by the Run goroutine
	clients  map[*Client]struct{}
	sessions map[string]map[string]*Client // room id -> user id -> client

	connections atomic.Int64
	inRoom      atomic.Int64
	dropped     atomic.Uint64

	done chan struct{}

	now     func() time.Time
	newName func() string
}

func NewHub(registry *room.Registry, cfg *config.Config, logger hclog.Logger) *Hub {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Hub{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		Register: make(chan *Client),
		Inbound:  make(chan *Inbound, cfg.InboundBufferSize),
		clients:  make(map[*Client]struct{}),
		sessions: make(map[string]map[string]*Client),
		done:     make(chan struct{}),
		now:      time.Now,
		newName:  guestName,
	}
}

func guestName() string {
	return goname.New(goname.FantasyMap).FirstLast() + " (guest)"
}

// Done is closed after Run returned and every client's Send channel has been closed.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Attach hands a new client to the hub. It returns false if the hub is no longer running.
func (h *Hub) Attach(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) submit(in *Inbound) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.Inbound <- in:
		return true
	case <-h.done:
		return false
	}
}

// Run is the main hub event loop. It returns when ctx is cancelled, after all sessions have left
// their rooms and all Send channels are closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	stopStats := h.startStats()
	defer stopStats()
	h.logger.Info("start hub run loop")
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.clients[client] = struct{}{}
			h.connections.Add(1)
			client.logger.Debug("registered client")

		case in := <-h.Inbound:
			h.handle(in)
		}
	}
}

func (h *Hub) shutdown() {
	h.logger.Info("shutting down hub", "connections", len(h.clients))
	for client := range h.clients {
		h.leave(client, false)
	}
	for client := range h.clients {
		h.release(client)
	}
}

// release forgets the client and closes its Send channel, which makes the write loop send a close
// frame. This is the only place Send is closed.
func (h *Hub) release(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.state = stateClosed
	close(c.Send)
	h.connections.Add(-1)
	c.logger.Debug("released client")
}

// leave removes the client's membership from the registry and the session table. It is a no-op
// unless the client is in a room, so every session is removed exactly once no matter how often
// leave-room and the transport loss race.
func (h *Hub) leave(c *Client, notify bool) {
	if c.state != stateInRoom {
		return
	}
	c.state = stateClosing
	remaining, evicted := h.registry.Remove(c.roomId, c.userId)
	members := h.sessions[c.roomId]
	delete(members, c.userId)
	if len(members) == 0 {
		delete(h.sessions, c.roomId)
	}
	h.inRoom.Add(-1)
	c.logger.Info("left room", "room", c.roomId, "user", c.userId, "remaining", len(remaining), "evicted", evicted)
	if notify {
		h.broadcast(c.roomId, c, types.EventUserDisconnected, types.UserDisconnected{
			User: types.User{UserId: c.userId, UserName: c.userName},
		})
	}
}

// others returns the sorted user ids of the room's other members, as recorded by the registry.
func (h *Hub) others(c *Client) []string {
	members, err := h.registry.Members(c.roomId)
	if err != nil {
		c.logger.Error("room vanished while joining", "room", c.roomId, "error", err)
		return []string{}
	}
	ids := make([]string, 0, len(members))
	for _, userId := range members {
		if userId != c.userId {
			ids = append(ids, userId)
		}
	}
	return ids
}

// deliver sends a single event to one client.
func (h *Hub) deliver(c *Client, event string, data interface{}) {
	frame, err := types.Encode(event, data)
	if err != nil {
		h.logger.Error("could not marshal event", "event", event, "error", err)
		return
	}
	h.send(c, frame)
}

// broadcast sends the event to every session of the room except the sender. The frame is encoded
// once.
func (h *Hub) broadcast(roomId string, sender *Client, event string, data interface{}) {
	frame, err := types.Encode(event, data)
	if err != nil {
		h.logger.Error("could not marshal event", "event", event, "error", err)
		return
	}
	for _, c := range h.sessions[roomId] {
		if c == sender {
			continue
		}
		h.send(c, frame)
	}
}

// send never blocks the hub. A client whose queue is full is unreachable for this frame.
func (h *Hub) send(c *Client, frame []byte) {
	select {
	case c.Send <- frame:
	default:
		h.dropped.Add(1)
		c.logger.Warn("send queue full, dropping frame", "room", c.roomId, "user", c.userId)
	}
}
