// Package server is the huddle relay: it tracks who is in which room and
// passes signaling messages between them. Media never goes through it.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/BioHazard786/huddle/internal/metrics"
	"github.com/BioHazard786/huddle/internal/signaling"
)

const presenceTimeout = 2 * time.Second

// Hub owns every room and client. All state is touched only by the goroutine
// running Run.
type Hub struct {
	clients  map[*Client]bool
	rooms    map[string]*Room
	presence Presence
	logger   *slog.Logger

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	queries    chan roomQuery
	done       chan struct{}
}

func NewHub(presence Presence, logger *slog.Logger) *Hub {
	if presence == nil {
		presence = NopPresence{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]*Room),
		presence:   presence,
		logger:     logger.With("component", "hub"),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		queries:    make(chan roomQuery),
		done:       make(chan struct{}),
	}
}

// Run processes hub events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
			}
			metrics.ConnectedClients.Sub(float64(len(h.clients)))
			metrics.ActiveRooms.Sub(float64(len(h.rooms)))
			return

		case client := <-h.register:
			h.clients[client] = true
			metrics.ConnectedClients.Inc()
			client.logger.Debug("client registered", "identity", client.identity)

		case client := <-h.unregister:
			if !h.clients[client] {
				continue
			}
			delete(h.clients, client)
			metrics.ConnectedClients.Dec()
			h.leave(client)
			close(client.send)
			client.logger.Debug("client unregistered")

		case in := <-h.inbound:
			h.handle(in.client, in.msg)

		case q := <-h.queries:
			var ids []string
			if room, ok := h.rooms[q.roomID]; ok {
				ids = room.userIDs()
			}
			q.reply <- ids
		}
	}
}

func (h *Hub) submit(ch chan *Client, c *Client) bool {
	select {
	case ch <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) submitInbound(in inbound) bool {
	select {
	case h.inbound <- in:
		return true
	case <-h.done:
		return false
	}
}

// Members returns the user ids in roomID, or nil when the room is empty.
func (h *Hub) Members(ctx context.Context, roomID string) ([]string, error) {
	q := roomQuery{roomID: roomID, reply: make(chan []string, 1)}
	select {
	case h.queries <- q:
	case <-h.done:
		return nil, signaling.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case ids := <-q.reply:
		return ids, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Exists reports whether roomID has members.
func (h *Hub) Exists(ctx context.Context, roomID string) (bool, error) {
	ids, err := h.Members(ctx, roomID)
	return len(ids) > 0, err
}

func (h *Hub) handle(c *Client, msg *signaling.Message) {
	switch msg.Type {
	case signaling.EventJoinRoom:
		h.join(c, msg)
	case signaling.EventOffer, signaling.EventAnswer, signaling.EventICECandidate:
		h.relay(c, msg)
	case signaling.EventRoomLeave:
		h.leave(c)
	default:
		c.logger.Debug("unknown message type", "type", msg.Type)
		h.reject(c, "unknown message type "+msg.Type)
	}
}

func (h *Hub) join(c *Client, msg *signaling.Message) {
	var p signaling.JoinRoomPayload
	if err := msg.Decode(&p); err != nil {
		h.reject(c, err.Error())
		return
	}

	userID := p.Participant()
	if c.identity != "" {
		userID = c.identity
	}

	if c.roomID != "" {
		h.leave(c)
	}

	room, ok := h.rooms[p.RoomID]
	if !ok {
		room = newRoom(p.RoomID)
		h.rooms[p.RoomID] = room
		metrics.ActiveRooms.Inc()
		h.logger.Info("room opened", "room", room.ID)
	}
	if prev, ok := room.Members[userID]; ok && prev != c {
		// Same user from a new connection; the old one stops receiving.
		prev.roomID = ""
		prev.logger.Info("replaced by a newer connection", "room", room.ID, "user", userID)
	}

	room.Members[userID] = c
	c.roomID = room.ID
	c.userID = userID
	metrics.JoinsTotal.Inc()
	h.setPresence(room.ID, userID, true)
	c.logger.Info("joined room", "room", room.ID, "user", userID, "members", len(room.Members))

	out, _ := signaling.NewMessage(signaling.EventJoinRoom, room.ID, signaling.JoinRoomPayload{RoomID: room.ID, OtherUserID: userID})
	for _, other := range room.others(userID) {
		h.deliver(other, out)
	}
}

// relay forwards a negotiation message to its target, or to every other
// member when it has none.
func (h *Hub) relay(c *Client, msg *signaling.Message) {
	room, ok := h.rooms[c.roomID]
	if c.roomID == "" || !ok {
		h.reject(c, "join a room first")
		return
	}

	route, err := msg.Route()
	if err != nil {
		h.reject(c, err.Error())
		return
	}
	if route.SenderUserID != c.userID {
		metrics.MessagesDroppedTotal.WithLabelValues("sender_mismatch").Inc()
		h.reject(c, "senderUserId does not match the joined user")
		return
	}
	msg.RoomID = room.ID

	if route.TargetUserID == "" {
		for _, other := range room.others(c.userID) {
			h.deliver(other, msg)
		}
		return
	}

	target, ok := room.Members[route.TargetUserID]
	if !ok {
		metrics.MessagesDroppedTotal.WithLabelValues("no_target").Inc()
		c.logger.Debug("target not in room", "room", room.ID, "target", route.TargetUserID, "type", msg.Type)
		return
	}
	h.deliver(target, msg)
}

// leave removes c from its room and tells the others. It does nothing when c
// was replaced by a newer connection of the same user.
func (h *Hub) leave(c *Client) {
	roomID, userID := c.roomID, c.userID
	c.roomID = ""
	if roomID == "" {
		return
	}

	room, ok := h.rooms[roomID]
	if !ok || room.Members[userID] != c {
		return
	}
	delete(room.Members, userID)
	h.setPresence(roomID, userID, false)
	c.logger.Info("left room", "room", roomID, "user", userID)

	if len(room.Members) == 0 {
		delete(h.rooms, roomID)
		metrics.ActiveRooms.Dec()
		h.logger.Info("room closed", "room", roomID)
		return
	}

	out, _ := signaling.NewMessage(signaling.EventRoomLeave, roomID, signaling.RoomLeavePayload{RoomID: roomID, UserID: userID})
	for _, other := range room.others(userID) {
		h.deliver(other, out)
	}
}

// deliver queues msg without blocking the hub. A client that cannot keep up
// loses the message.
func (h *Hub) deliver(c *Client, msg *signaling.Message) {
	select {
	case c.send <- msg:
		metrics.MessagesRelayedTotal.WithLabelValues(msg.Type).Inc()
	default:
		metrics.MessagesDroppedTotal.WithLabelValues("slow_client").Inc()
		c.logger.Warn("send buffer full, dropping message", "type", msg.Type)
	}
}

func (h *Hub) reject(c *Client, text string) {
	c.logger.Debug("rejecting message", "reason", text)
	h.deliver(c, errorMessage(text))
}

func (h *Hub) setPresence(roomID, userID string, present bool) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	var err error
	if present {
		err = h.presence.Join(ctx, roomID, userID)
	} else {
		err = h.presence.Leave(ctx, roomID, userID)
	}
	if err != nil {
		h.logger.Warn("presence update failed", "room", roomID, "user", userID, "error", err)
	}
}
