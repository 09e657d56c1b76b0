package huddle

import (
	"log/slog"
	"slices"

	"github.com/BioHazard786/huddle/internal/rtc"
	"github.com/BioHazard786/huddle/internal/signaling"
)

// connEvents receives connection callbacks tagged with their peerContext.
// Implementations may be called from any goroutine.
type connEvents interface {
	localCandidate(peerContext, signaling.ICECandidate)
	remoteTrack(peerContext, rtc.RemoteTrack)
	connectionState(peerContext, rtc.State)
}

// Registry maps remote user ids to peer connections. It is only used from
// the session loop.
type Registry struct {
	factory rtc.Factory
	events  connEvents
	tracks  func() []rtc.Outbound
	logger  *slog.Logger

	peers   map[string]*Peer
	nextGen uint64
}

func newRegistry(factory rtc.Factory, events connEvents, tracks func() []rtc.Outbound, logger *slog.Logger) *Registry {
	return &Registry{
		factory: factory,
		events:  events,
		tracks:  tracks,
		logger:  logger,
		peers:   make(map[string]*Peer),
	}
}

// GetOrCreate returns the live peer for remoteID. A new connection is made
// when there is none or the previous one failed; it carries every current
// local track. The bool reports whether the peer was created.
func (r *Registry) GetOrCreate(remoteID string) (*Peer, bool, error) {
	if p, ok := r.peers[remoteID]; ok {
		if p.usable() {
			return p, false, nil
		}
		r.Close(remoteID)
	}

	conn, err := r.factory.NewConn()
	if err != nil {
		return nil, false, NewPeerError("create connection", remoteID, classify(ErrNegotiation, err))
	}

	r.nextGen++
	pctx := peerContext{remoteUserID: remoteID, generation: r.nextGen}

	conn.OnICECandidate(func(c signaling.ICECandidate) { r.events.localCandidate(pctx, c) })
	conn.OnTrack(func(t rtc.RemoteTrack) { r.events.remoteTrack(pctx, t) })
	conn.OnConnectionStateChange(func(s rtc.State) { r.events.connectionState(pctx, s) })

	for _, o := range r.tracks() {
		if err := conn.AddTrack(o); err != nil {
			conn.Close()
			return nil, false, NewPeerError("attach local track", remoteID, classify(ErrNegotiation, err))
		}
	}

	p := newPeer(pctx, conn)
	r.peers[remoteID] = p
	r.logger.Debug("peer created", "peer", remoteID, "generation", pctx.generation)
	return p, true, nil
}

// Get returns the peer for remoteID or nil.
func (r *Registry) Get(remoteID string) *Peer {
	return r.peers[remoteID]
}

// lookup resolves a callback context to its peer. It returns nil when the
// connection was closed or replaced since the callback was registered.
func (r *Registry) lookup(pctx peerContext) *Peer {
	p := r.peers[pctx.remoteUserID]
	if p == nil || p.ctx.generation != pctx.generation || p.closed {
		return nil
	}
	return p
}

// Close closes and removes the peer for remoteID. Unknown ids are a no-op.
func (r *Registry) Close(remoteID string) bool {
	p, ok := r.peers[remoteID]
	if !ok {
		return false
	}
	delete(r.peers, remoteID)
	if err := p.close(); err != nil {
		r.logger.Debug("close peer connection", "peer", remoteID, "error", err)
	}
	r.logger.Debug("peer closed", "peer", remoteID)
	return true
}

func (r *Registry) CloseAll() {
	for _, id := range r.ids() {
		r.Close(id)
	}
}

func (r *Registry) Len() int {
	return len(r.peers)
}

// Each visits peers in user id order.
func (r *Registry) Each(fn func(*Peer)) {
	for _, id := range r.ids() {
		if p, ok := r.peers[id]; ok {
			fn(p)
		}
	}
}

func (r *Registry) States() map[string]PeerState {
	out := make(map[string]PeerState, len(r.peers))
	for id, p := range r.peers {
		out[id] = p.State()
	}
	return out
}

func (r *Registry) ids() []string {
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
