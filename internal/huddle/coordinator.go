package huddle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BioHazard786/huddle/internal/rtc"
	"github.com/BioHazard786/huddle/internal/signaling"
)

const emitTimeout = 5 * time.Second

// Bus is the shared signaling channel a session subscribes to.
// *signaling.Dispatcher implements it.
type Bus interface {
	Emit(ctx context.Context, msg *signaling.Message) error
	On(event string, h signaling.HandlerFunc)
	Off(event string)
}

// Coordinator turns inbound signaling into per-peer negotiation steps and
// emits the outbound half. It runs on the session loop.
type Coordinator struct {
	bus      Bus
	roomID   string
	userID   string
	registry *Registry
	logger   *slog.Logger
	ctx      context.Context

	// peerGone is called after a peer is closed or abandoned.
	peerGone func(remoteID string)
}

func (c *Coordinator) emit(event string, payload any) error {
	msg, err := signaling.NewMessage(event, c.roomID, payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.ctx, emitTimeout)
	defer cancel()

	if err := c.bus.Emit(ctx, msg); err != nil {
		if errors.Is(err, signaling.ErrClosed) {
			err = classify(ErrTransportClosed, err)
		}
		c.logger.Warn("emit failed", "event", event, "error", err)
		return err
	}
	return nil
}

func (c *Coordinator) route(remoteID string) signaling.Route {
	return signaling.Route{SenderUserID: c.userID, TargetUserID: remoteID}
}

// announce tells the room we joined. Members already present answer by
// offering to us.
func (c *Coordinator) announce() error {
	return c.emit(signaling.EventJoinRoom, signaling.JoinRoomPayload{RoomID: c.roomID, UserID: c.userID})
}

func (c *Coordinator) leave() error {
	return c.emit(signaling.EventRoomLeave, signaling.RoomLeavePayload{RoomID: c.roomID, UserID: c.userID})
}

func (c *Coordinator) decode(msg *signaling.Message, v signaling.Payload) bool {
	if err := msg.Decode(v); err != nil {
		c.logger.Warn("dropping signaling message", "type", msg.Type, "error", classify(ErrInvalidMessage, err))
		return false
	}
	return true
}

func (c *Coordinator) handleJoin(msg *signaling.Message) {
	var p signaling.JoinRoomPayload
	if !c.decode(msg, &p) {
		return
	}
	other := p.Participant()
	if p.RoomID != c.roomID || other == c.userID {
		return
	}

	// A join from a known participant means they reconnected; their old
	// connection is useless.
	if c.registry.Get(other) != nil {
		c.closePeer(other)
	}

	peer, _, err := c.registry.GetOrCreate(other)
	if err != nil {
		c.logger.Warn("cannot connect to participant", "peer", other, "error", err)
		return
	}
	c.negotiate(peer)
}

// negotiate creates and sends a fresh offer to peer.
func (c *Coordinator) negotiate(peer *Peer) {
	offer, err := peer.conn.CreateOffer()
	if err != nil {
		c.abandon(peer, "create offer", err)
		return
	}
	if err := peer.conn.SetLocalDescription(offer); err != nil {
		c.abandon(peer, "set local description", err)
		return
	}
	peer.setSignaling(PeerHaveLocalOffer)

	if local := peer.conn.LocalDescription(); local != nil {
		offer = *local
	}
	c.emit(signaling.EventOffer, signaling.OfferPayload{Offer: offer, Route: c.route(peer.RemoteUserID())})
}

// renegotiateAll swaps the local tracks on every live peer and offers again.
func (c *Coordinator) renegotiateAll(tracks []rtc.Outbound) {
	c.registry.Each(func(peer *Peer) {
		if !peer.usable() {
			return
		}
		if err := peer.conn.ReplaceTracks(tracks); err != nil {
			c.abandon(peer, "replace tracks", err)
			return
		}
		c.negotiate(peer)
	})
}

func (c *Coordinator) handleOffer(msg *signaling.Message) {
	var p signaling.OfferPayload
	if !c.decode(msg, &p) || !p.AddressedTo(c.userID) {
		return
	}
	sender := p.SenderUserID

	peer, _, err := c.registry.GetOrCreate(sender)
	if err != nil {
		c.logger.Warn("cannot answer participant", "peer", sender, "error", err)
		return
	}
	if peer.signaling == PeerHaveLocalOffer {
		c.logger.Warn("offer collision", "peer", sender)
	}

	if err := peer.conn.SetRemoteDescription(p.Offer); err != nil {
		c.abandon(peer, "set remote description", err)
		return
	}
	peer.setSignaling(PeerHaveRemoteOffer)

	answer, err := peer.conn.CreateAnswer()
	if err != nil {
		c.abandon(peer, "create answer", err)
		return
	}
	if err := peer.conn.SetLocalDescription(answer); err != nil {
		c.abandon(peer, "set local description", err)
		return
	}
	peer.setSignaling(PeerStable)

	if local := peer.conn.LocalDescription(); local != nil {
		answer = *local
	}
	c.emit(signaling.EventAnswer, signaling.AnswerPayload{Answer: answer, Route: c.route(sender)})
}

func (c *Coordinator) handleAnswer(msg *signaling.Message) {
	var p signaling.AnswerPayload
	if !c.decode(msg, &p) || !p.AddressedTo(c.userID) {
		return
	}
	sender := p.SenderUserID

	peer := c.registry.Get(sender)
	if peer == nil || !peer.usable() {
		c.logger.Debug("answer for unknown peer dropped", "peer", sender)
		return
	}
	if peer.signaling != PeerHaveLocalOffer {
		c.logger.Debug("unexpected answer dropped", "peer", sender, "state", peer.State())
		return
	}

	if err := peer.conn.SetRemoteDescription(p.Answer); err != nil {
		c.abandon(peer, "set remote description", err)
		return
	}
	peer.setSignaling(PeerStable)
}

// handleCandidate adds a trickled candidate. Candidates for peers we do not
// know yet are dropped.
func (c *Coordinator) handleCandidate(msg *signaling.Message) {
	var p signaling.CandidatePayload
	if !c.decode(msg, &p) || !p.AddressedTo(c.userID) {
		return
	}
	sender := p.SenderUserID

	peer := c.registry.Get(sender)
	if peer == nil || !peer.usable() {
		c.logger.Debug("candidate for unknown peer dropped", "peer", sender)
		return
	}
	if err := peer.conn.AddICECandidate(p.Candidate); err != nil {
		c.logger.Warn("candidate dropped", "error", NewPeerError("add ice candidate", sender, classify(ErrCandidate, err)))
	}
}

func (c *Coordinator) handleLeave(msg *signaling.Message) {
	var p signaling.RoomLeavePayload
	if !c.decode(msg, &p) {
		return
	}
	if p.RoomID != "" && p.RoomID != c.roomID {
		return
	}
	c.closePeer(p.UserID)
}

// handleDisconnect treats a lost transport as every participant leaving.
func (c *Coordinator) handleDisconnect(*signaling.Message) {
	c.logger.Warn("signaling transport disconnected, closing all peers", "peers", c.registry.Len())
	for _, id := range c.registry.ids() {
		c.closePeer(id)
	}
}

func (c *Coordinator) localCandidate(pctx peerContext, cand signaling.ICECandidate) {
	peer := c.registry.lookup(pctx)
	if peer == nil || !peer.usable() {
		return
	}
	c.emit(signaling.EventICECandidate, signaling.CandidatePayload{Candidate: cand, Route: c.route(pctx.remoteUserID)})
}

func (c *Coordinator) connectionState(pctx peerContext, s rtc.State) {
	peer := c.registry.lookup(pctx)
	if peer == nil || !peer.usable() {
		return
	}
	c.logger.Debug("connection state", "peer", pctx.remoteUserID, "state", s)

	switch s {
	case rtc.StateFailed:
		c.abandon(peer, "connect", errors.New("ice connection failed"))
	case rtc.StateClosed:
	default:
		peer.setTransport(s)
	}
}

func (c *Coordinator) closePeer(remoteID string) {
	c.registry.Close(remoteID)
	c.peerGone(remoteID)
}

// abandon fails one peer without touching the others.
func (c *Coordinator) abandon(peer *Peer, op string, err error) {
	herr := NewPeerError(op, peer.RemoteUserID(), classify(ErrNegotiation, err))
	c.logger.Warn("peer negotiation failed", "peer", peer.RemoteUserID(), "error", herr)
	peer.abandon(herr)
	c.peerGone(peer.RemoteUserID())
}
