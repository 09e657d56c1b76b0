package huddle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/BioHazard786/huddle/internal/media"
	"github.com/BioHazard786/huddle/internal/rtc"
	"github.com/BioHazard786/huddle/internal/signaling"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// fakeConn negotiates without a network. Its SDP lists the stream ids of its
// local tracks; setting a remote description fires OnTrack once per remote
// stream, and the connection reports connected once both descriptions are set.
type fakeConn struct {
	mu         sync.Mutex
	tracks     []rtc.Outbound
	local      *signaling.SessionDescription
	remote     *signaling.SessionDescription
	candidates []signaling.ICECandidate
	version    int
	offers     int
	connected  bool
	closed     bool

	failCreateOffer error
	failSetRemote   error

	onCandidate func(signaling.ICECandidate)
	onTrack     func(rtc.RemoteTrack)
	onState     func(rtc.State)
}

func (c *fakeConn) sdp() string {
	var streams []string
	for _, o := range c.tracks {
		if !slices.Contains(streams, o.Track.StreamID()) {
			streams = append(streams, o.Track.StreamID())
		}
	}
	c.version++
	return fmt.Sprintf("v=%d streams=%s", c.version, strings.Join(streams, ","))
}

func (c *fakeConn) CreateOffer() (signaling.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return signaling.SessionDescription{}, errors.New("connection closed")
	}
	if c.failCreateOffer != nil {
		return signaling.SessionDescription{}, c.failCreateOffer
	}
	c.offers++
	return signaling.SessionDescription{Type: signaling.SDPTypeOffer, SDP: c.sdp()}, nil
}

func (c *fakeConn) CreateAnswer() (signaling.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return signaling.SessionDescription{}, errors.New("connection closed")
	}
	if c.remote == nil || c.remote.Type != signaling.SDPTypeOffer {
		return signaling.SessionDescription{}, errors.New("no remote offer")
	}
	return signaling.SessionDescription{Type: signaling.SDPTypeAnswer, SDP: c.sdp()}, nil
}

func (c *fakeConn) SetLocalDescription(d signaling.SessionDescription) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("connection closed")
	}
	c.local = &d
	onCandidate := c.onCandidate
	c.mu.Unlock()

	if onCandidate != nil {
		mid := "0"
		onCandidate(signaling.ICECandidate{Candidate: "candidate:1 1 udp 2122260223 127.0.0.1 9 typ host", SDPMid: &mid})
	}
	c.maybeConnect()
	return nil
}

func (c *fakeConn) SetRemoteDescription(d signaling.SessionDescription) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("connection closed")
	}
	if c.failSetRemote != nil {
		c.mu.Unlock()
		return c.failSetRemote
	}
	c.remote = &d
	onTrack := c.onTrack
	c.mu.Unlock()

	if onTrack != nil {
		for _, stream := range remoteStreams(d.SDP) {
			onTrack(&fakeRemoteTrack{id: "video-" + stream, streamID: stream})
		}
	}
	c.maybeConnect()
	return nil
}

func remoteStreams(sdp string) []string {
	_, list, ok := strings.Cut(sdp, "streams=")
	if !ok || list == "" {
		return nil
	}
	return strings.Split(list, ",")
}

func (c *fakeConn) maybeConnect() {
	c.mu.Lock()
	if c.connected || c.local == nil || c.remote == nil {
		c.mu.Unlock()
		return
	}
	c.connected = true
	onState := c.onState
	c.mu.Unlock()

	if onState != nil {
		onState(rtc.StateConnecting)
		onState(rtc.StateConnected)
	}
}

func (c *fakeConn) LocalDescription() *signaling.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *fakeConn) RemoteDescription() *signaling.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

func (c *fakeConn) AddICECandidate(cand signaling.ICECandidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	if c.remote == nil {
		return errors.New("remote description not set")
	}
	c.candidates = append(c.candidates, cand)
	return nil
}

func (c *fakeConn) AddTrack(o rtc.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = append(c.tracks, o)
	return nil
}

func (c *fakeConn) ReplaceTracks(tracks []rtc.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = append([]rtc.Outbound(nil), tracks...)
	return nil
}

func (c *fakeConn) OnICECandidate(fn func(signaling.ICECandidate)) {
	c.mu.Lock()
	c.onCandidate = fn
	c.mu.Unlock()
}

func (c *fakeConn) OnTrack(fn func(rtc.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *fakeConn) OnConnectionStateChange(fn func(rtc.State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	onState := c.onState
	c.mu.Unlock()

	if onState != nil {
		onState(rtc.StateClosed)
	}
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) offerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offers
}

func (c *fakeConn) streamIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for _, o := range c.tracks {
		ids = append(ids, o.Track.StreamID())
	}
	return ids
}

// fire invokes the stored callbacks directly, as a late event from the
// connection would.
func (c *fakeConn) fire(st rtc.State) {
	c.mu.Lock()
	onState, onCandidate, onTrack := c.onState, c.onCandidate, c.onTrack
	c.mu.Unlock()

	mid := "0"
	onState(st)
	onCandidate(signaling.ICECandidate{Candidate: "candidate:late", SDPMid: &mid})
	onTrack(&fakeRemoteTrack{id: "late", streamID: "late-stream"})
}

// deliverTrack invokes the stored OnTrack callback only.
func (c *fakeConn) deliverTrack(id, streamID string) {
	c.mu.Lock()
	onTrack := c.onTrack
	c.mu.Unlock()
	onTrack(&fakeRemoteTrack{id: id, streamID: streamID})
}

type fakeRemoteTrack struct {
	id       string
	streamID string
}

func (t *fakeRemoteTrack) ID() string                { return t.id }
func (t *fakeRemoteTrack) StreamID() string          { return t.streamID }
func (t *fakeRemoteTrack) Kind() webrtc.RTPCodecType { return webrtc.RTPCodecTypeVideo }

func (t *fakeRemoteTrack) Codec() webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}}
}

func (t *fakeRemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	return nil, nil, io.EOF
}

type fakeFactory struct {
	mu        sync.Mutex
	conns     []*fakeConn
	fail      error
	configure func(*fakeConn)
}

func (f *fakeFactory) NewConn() (rtc.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	c := &fakeConn{}
	if f.configure != nil {
		f.configure(c)
	}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeFactory) all() []*fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeConn(nil), f.conns...)
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// fakeDevices hands out tracks without a capture pump.
type fakeDevices struct {
	mu      sync.Mutex
	deny    bool
	streams []*media.Stream
}

func (d *fakeDevices) UserMedia(_ context.Context, c media.Constraints) (*media.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deny {
		return nil, media.ErrPermissionDenied
	}

	var tracks []*media.LocalTrack
	if c.Audio {
		t, err := media.NewLocalTrack(media.SourceMicrophone, c.StreamID)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if c.Video {
		t, err := media.NewLocalTrack(media.SourceCamera, c.StreamID)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	s := media.NewStream(c.StreamID, tracks...)
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDevices) DisplayMedia(_ context.Context, c media.Constraints) (*media.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deny {
		return nil, media.ErrPermissionDenied
	}
	t, err := media.NewLocalTrack(media.SourceDisplay, c.StreamID)
	if err != nil {
		return nil, err
	}
	s := media.NewStream(c.StreamID, t)
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDevices) setDeny(deny bool) {
	d.mu.Lock()
	d.deny = deny
	d.mu.Unlock()
}

func (d *fakeDevices) allTracks() []*media.LocalTrack {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*media.LocalTrack
	for _, s := range d.streams {
		out = append(out, s.Tracks()...)
	}
	return out
}

type fakeSurface struct {
	participant string
	streamID    string

	mu       sync.Mutex
	attached []string
	closed   bool
}

func (s *fakeSurface) Participant() string { return s.participant }
func (s *fakeSurface) StreamID() string    { return s.streamID }

func (s *fakeSurface) Attach(t rtc.RemoteTrack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = append(s.attached, t.ID())
	return nil
}

func (s *fakeSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeSurfaces struct {
	mu     sync.Mutex
	opened []*fakeSurface
}

func (f *fakeSurfaces) Open(participantID, streamID string) (media.Surface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSurface{participant: participantID, streamID: streamID}
	f.opened = append(f.opened, s)
	return s, nil
}

// open returns the surfaces not yet closed.
func (f *fakeSurfaces) open() []*fakeSurface {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeSurface
	for _, s := range f.opened {
		s.mu.Lock()
		if !s.closed {
			out = append(out, s)
		}
		s.mu.Unlock()
	}
	return out
}

// relay is an in-process stand-in for the signaling server: join-room and
// room-leave go to every other member, the rest to the addressed member.
type relay struct {
	mu    sync.Mutex
	buses map[string]*fakeBus
}

func newRelay() *relay {
	return &relay{buses: make(map[string]*fakeBus)}
}

func (r *relay) bus(userID string) *fakeBus {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := &fakeBus{relay: r, userID: userID, handlers: make(map[string]signaling.HandlerFunc)}
	r.buses[userID] = b
	return b
}

func (r *relay) route(from string, msg *signaling.Message) {
	r.mu.Lock()
	var targets []*fakeBus
	switch msg.Type {
	case signaling.EventJoinRoom, signaling.EventRoomLeave:
		for id, b := range r.buses {
			if id != from {
				targets = append(targets, b)
			}
		}
	default:
		if rt, err := msg.Route(); err == nil {
			if b, ok := r.buses[rt.TargetUserID]; ok {
				targets = append(targets, b)
			}
		}
	}
	r.mu.Unlock()

	if msg.Type == signaling.EventJoinRoom {
		var p signaling.JoinRoomPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			msg, _ = signaling.NewMessage(msg.Type, msg.RoomID, signaling.JoinRoomPayload{RoomID: p.RoomID, OtherUserID: p.UserID})
		}
	}
	for _, b := range targets {
		b.deliver(msg)
	}
}

type fakeBus struct {
	relay  *relay
	userID string

	mu       sync.Mutex
	handlers map[string]signaling.HandlerFunc
	sent     []*signaling.Message
	closed   bool
}

func (b *fakeBus) Emit(_ context.Context, msg *signaling.Message) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return signaling.ErrClosed
	}
	b.sent = append(b.sent, msg)
	b.mu.Unlock()

	if b.relay != nil {
		b.relay.route(b.userID, msg)
	}
	return nil
}

func (b *fakeBus) On(event string, h signaling.HandlerFunc) {
	b.mu.Lock()
	b.handlers[event] = h
	b.mu.Unlock()
}

func (b *fakeBus) Off(event string) {
	b.mu.Lock()
	delete(b.handlers, event)
	b.mu.Unlock()
}

func (b *fakeBus) deliver(msg *signaling.Message) {
	b.mu.Lock()
	h := b.handlers[msg.Type]
	b.mu.Unlock()
	if h != nil {
		h(msg)
	}
}

// inject delivers msg as if it came from the relay.
func (b *fakeBus) inject(event string, payload any) {
	msg, err := signaling.NewMessage(event, testRoom, payload)
	if err != nil {
		panic(err)
	}
	b.deliver(msg)
}

func (b *fakeBus) sentOf(event string) []*signaling.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*signaling.Message
	for _, m := range b.sent {
		if m.Type == event {
			out = append(out, m)
		}
	}
	return out
}

func (b *fakeBus) sentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

func (b *fakeBus) handlerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}
