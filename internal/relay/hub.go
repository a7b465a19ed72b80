// Package relay is a reference signaling relay for mesh rooms. It keeps the
// membership of each room, pushes membership snapshots to every member and
// forwards offers, answers and candidates between members.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/andrefsp/video-democry/internal/room"
	"github.com/andrefsp/video-democry/internal/signaling"
)

// DefaultPingInterval is how often the relay sends out/ping to clients.
const DefaultPingInterval = 20 * time.Second

// Hub owns every room. All room state is touched only by Run.
type Hub struct {
	rooms map[string]*Room

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	done       chan struct{}

	pingInterval time.Duration
	log          *slog.Logger
}

// NewHub creates a hub. A non-positive pingInterval disables out/ping.
func NewHub(pingInterval time.Duration, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:        make(map[string]*Room),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		inbound:      make(chan inbound),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		log:          logger.With("component", "relay"),
	}
}

func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) dispatch(in inbound) bool {
	select {
	case h.inbound <- in:
		return true
	case <-h.done:
		return false
	}
}

// Run is the hub's event loop. It returns when ctx is done, after closing
// every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	var pings <-chan time.Time
	if h.pingInterval > 0 {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	defer func() {
		close(h.done)
		for _, r := range h.rooms {
			for c := range r.clients {
				close(c.send)
			}
		}
		h.rooms = make(map[string]*Room)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			r, ok := h.rooms[c.roomID]
			if !ok {
				r = newRoom(c.roomID)
				h.rooms[c.roomID] = r
				h.log.Info("room created", "room", r.ID)
			}
			r.add(c)
			h.log.Debug("client registered", "room", r.ID, "remote", c.conn.RemoteAddr().String())

		case c := <-h.unregister:
			h.removeClient(c)

		case in := <-h.inbound:
			h.handle(in)

		case <-pings:
			h.pingAll()
		}
	}
}

func (h *Hub) removeClient(c *Client) {
	r, ok := h.rooms[c.roomID]
	if !ok {
		return
	}
	if _, ok := r.clients[c]; !ok {
		return
	}

	user := c.user
	if r.remove(c) && user != nil {
		h.log.Info("user left", "room", r.ID, "user", user.ID)
		h.broadcast(r, signaling.UserLeft{User: *user, RoomUsers: r.users()}, nil)
	}
	close(c.send)

	if r.empty() {
		delete(h.rooms, r.ID)
		h.log.Info("room deleted", "room", r.ID)
	}
}

func (h *Hub) handle(in inbound) {
	c := in.client
	r, ok := h.rooms[c.roomID]
	if !ok {
		return
	}
	if _, ok := r.clients[c]; !ok {
		return
	}

	msg, err := signaling.Decode(in.data)
	if err != nil {
		h.log.Debug("rejecting message", "room", r.ID, "err", err)
		h.reply(c, signaling.Error{Reason: err.Error()})
		return
	}

	switch m := msg.(type) {
	case signaling.Join:
		if m.User.ID == "" {
			h.reply(c, signaling.Error{Reason: "in/join requires a user id"})
			return
		}
		if replaced := r.join(c, m.User); replaced != nil {
			h.reply(replaced, signaling.Error{Reason: "user joined from another connection"})
		}
		h.log.Info("user joined", "room", r.ID, "user", m.User.ID, "members", len(r.members))
		h.broadcast(r, signaling.UserJoin{RoomUsers: r.users()}, nil)

	case signaling.Offer:
		h.forward(r, c, m.ToUser, func(from *room.User) signaling.Message {
			return signaling.RelayedOffer{FromUser: from, Offer: m.Offer}
		})

	case signaling.Answer:
		h.forward(r, c, m.ToUser, func(from *room.User) signaling.Message {
			return signaling.RelayedAnswer{FromUser: from, Answer: m.Answer}
		})

	case signaling.Candidate:
		h.forward(r, c, m.ToUser, func(from *room.User) signaling.Message {
			return signaling.RelayedCandidate{FromUser: from, Candidate: m.Candidate}
		})

	case signaling.Pong:
		// Keep-alive answer; the read deadline is refreshed by WebSocket
		// pongs.

	default:
		h.reply(c, signaling.Error{Reason: fmt.Sprintf("unexpected message %s", msg.URI())})
	}
}

// forward relays a negotiation message from c to the member named by to,
// or to every other member when to is nil.
func (h *Hub) forward(r *Room, c *Client, to *room.User, build func(from *room.User) signaling.Message) {
	if c.user == nil {
		h.reply(c, signaling.Error{Reason: "join the room first"})
		return
	}
	from := *c.user
	msg := build(&from)

	if to == nil {
		h.broadcast(r, msg, c)
		return
	}
	target := r.member(to.ID)
	if target == nil {
		h.reply(c, signaling.Error{Reason: fmt.Sprintf("user %s is not in room %s", to.ID, r.ID)})
		return
	}
	h.deliver(target, msg)
}

// broadcast sends msg to every member of r except skip.
func (h *Hub) broadcast(r *Room, msg signaling.Message, skip *Client) {
	data, err := signaling.Encode(msg)
	if err != nil {
		h.log.Error("encode message", "uri", msg.URI(), "err", err)
		return
	}
	for _, m := range r.members {
		if m != skip {
			h.push(m, data)
		}
	}
}

func (h *Hub) deliver(c *Client, msg signaling.Message) {
	data, err := signaling.Encode(msg)
	if err != nil {
		h.log.Error("encode message", "uri", msg.URI(), "err", err)
		return
	}
	h.push(c, data)
}

func (h *Hub) reply(c *Client, e signaling.Error) {
	h.deliver(c, e)
}

func (h *Hub) pingAll() {
	data, err := signaling.Encode(signaling.Ping{})
	if err != nil {
		return
	}
	for _, r := range h.rooms {
		for c := range r.clients {
			h.push(c, data)
		}
	}
}

// push never blocks the loop; a client that cannot keep up loses frames
// and recovers from the next membership snapshot.
func (h *Hub) push(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.log.Warn("client send buffer full, dropping frame", "room", c.roomID)
	}
}
