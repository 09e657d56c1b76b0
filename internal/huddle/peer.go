package huddle

import (
	"time"

	"github.com/BioHazard786/huddle/internal/rtc"
	"github.com/BioHazard786/huddle/internal/signaling"
)

// PeerState is the negotiation state of one remote participant.
type PeerState string

const (
	PeerNew             PeerState = "new"
	PeerHaveLocalOffer  PeerState = "have-local-offer"
	PeerHaveRemoteOffer PeerState = "have-remote-offer"
	PeerStable          PeerState = "stable"
	PeerConnected       PeerState = "connected"
	PeerFailed          PeerState = "failed"
	PeerClosed          PeerState = "closed"
)

// peerContext travels with every connection callback. A callback whose
// context no longer matches the registry entry belongs to a closed or
// replaced connection and is ignored.
type peerContext struct {
	remoteUserID string
	generation   uint64
}

// Peer is the connection to one remote participant.
type Peer struct {
	ctx  peerContext
	conn rtc.Conn

	// signaling is one of new, have-local-offer, have-remote-offer, stable.
	signaling  PeerState
	transport  rtc.State
	failed     error
	closed     bool
	connClosed bool

	connectedCount int
	counted        bool
	createdAt      time.Time
}

func newPeer(ctx peerContext, conn rtc.Conn) *Peer {
	return &Peer{
		ctx:       ctx,
		conn:      conn,
		signaling: PeerNew,
		transport: rtc.StateNew,
		createdAt: time.Now(),
	}
}

func (p *Peer) RemoteUserID() string { return p.ctx.remoteUserID }

// State folds the negotiation and transport states into one value.
func (p *Peer) State() PeerState {
	switch {
	case p.closed:
		return PeerClosed
	case p.failed != nil:
		return PeerFailed
	case p.signaling == PeerStable && p.transport == rtc.StateConnected:
		return PeerConnected
	default:
		return p.signaling
	}
}

// Err is the reason the peer failed, if it did.
func (p *Peer) Err() error { return p.failed }

// ConnectedCount is how many times the peer entered the connected state.
func (p *Peer) ConnectedCount() int { return p.connectedCount }

func (p *Peer) LocalDescription() *signaling.SessionDescription {
	return p.conn.LocalDescription()
}

func (p *Peer) RemoteDescription() *signaling.SessionDescription {
	return p.conn.RemoteDescription()
}

// usable reports whether the peer can still negotiate.
func (p *Peer) usable() bool {
	return !p.closed && p.failed == nil
}

// update applies fn and counts transitions into connected. Renegotiating
// over a live transport does not count again.
func (p *Peer) update(fn func()) {
	fn()
	if p.transport != rtc.StateConnected {
		p.counted = false
		return
	}
	if !p.counted && p.State() == PeerConnected {
		p.counted = true
		p.connectedCount++
	}
}

func (p *Peer) setSignaling(s PeerState) {
	p.update(func() { p.signaling = s })
}

func (p *Peer) setTransport(s rtc.State) {
	p.update(func() { p.transport = s })
}

// abandon marks the peer failed and releases its connection. The entry stays
// in the registry so the failure is visible until the peer is replaced.
func (p *Peer) abandon(err error) {
	if p.failed == nil {
		p.failed = err
	}
	p.closeConn()
}

func (p *Peer) close() error {
	p.closed = true
	return p.closeConn()
}

func (p *Peer) closeConn() error {
	if p.connClosed {
		return nil
	}
	p.connClosed = true
	return p.conn.Close()
}
