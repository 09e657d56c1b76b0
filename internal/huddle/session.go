// Package huddle implements the peer-to-peer call of a room: the session
// lifecycle, mesh signaling and the per-participant connection registry.
package huddle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BioHazard786/huddle/internal/media"
	"github.com/BioHazard786/huddle/internal/rtc"
	"github.com/BioHazard786/huddle/internal/signaling"
	"github.com/google/uuid"
)

// Options configures a Session.
type Options struct {
	RoomID string
	UserID string

	Bus      Bus
	Factory  rtc.Factory
	Devices  media.Devices
	Surfaces media.SurfaceFactory

	// Initial toggle values, kept across enable/disable cycles.
	AudioEnabled bool
	VideoEnabled bool

	Logger *slog.Logger
}

// Session is the huddle of one user in one room. All methods are safe for
// concurrent use; the work itself runs on the session loop.
type Session struct {
	roomID   string
	userID   string
	bus      Bus
	devices  media.Devices
	surfaces media.SurfaceFactory
	logger   *slog.Logger

	loop     *loop
	registry *Registry
	coord    *Coordinator
	cancel   context.CancelFunc

	enabled       bool
	epoch         uint64
	audioEnabled  bool
	videoEnabled  bool
	screenSharing bool
	stream        *media.Stream
	remote        map[string]media.Surface

	updates chan struct{}
}

// PeerInfo describes one remote participant.
type PeerInfo struct {
	UserID         string
	State          PeerState
	Error          string
	ConnectedCount int
	Since          time.Time
}

// Snapshot is a copy of the session state for display.
type Snapshot struct {
	RoomID        string
	UserID        string
	Enabled       bool
	AudioEnabled  bool
	VideoEnabled  bool
	ScreenSharing bool

	// Preview is the id of the local stream shown in the preview, if any.
	Preview       string
	PreviewSource media.Source

	Peers         []PeerInfo
	RemoteStreams int
}

func New(opts Options) (*Session, error) {
	switch {
	case opts.RoomID == "":
		return nil, errors.New("room id is required")
	case opts.UserID == "":
		return nil, errors.New("user id is required")
	case opts.Bus == nil || opts.Factory == nil || opts.Devices == nil || opts.Surfaces == nil:
		return nil, errors.New("bus, factory, devices and surfaces are required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("room", opts.RoomID, "user", opts.UserID)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		roomID:       opts.RoomID,
		userID:       opts.UserID,
		bus:          opts.Bus,
		devices:      opts.Devices,
		surfaces:     opts.Surfaces,
		logger:       logger,
		loop:         newLoop(),
		cancel:       cancel,
		audioEnabled: opts.AudioEnabled,
		videoEnabled: opts.VideoEnabled,
		remote:       make(map[string]media.Surface),
		updates:      make(chan struct{}, 1),
	}
	s.registry = newRegistry(opts.Factory, s, s.localTracks, logger)
	s.coord = &Coordinator{
		bus:      opts.Bus,
		roomID:   opts.RoomID,
		userID:   opts.UserID,
		registry: s.registry,
		logger:   logger,
		ctx:      ctx,
		peerGone: s.dropSurface,
	}
	return s, nil
}

// Enable acquires local media, joins the room and starts answering
// signaling. A media failure leaves the session disabled.
func (s *Session) Enable(ctx context.Context) error {
	var err error
	if !s.loop.call(func() { err = s.enable(ctx) }) {
		return ErrSessionClosed
	}
	return err
}

func (s *Session) enable(ctx context.Context) error {
	if s.enabled {
		return nil
	}

	stream, err := s.acquire(ctx, s.screenSharing)
	if err != nil {
		herr := NewError("acquire media", classify(ErrMediaAccess, err))
		s.logger.Error("cannot start huddle", "error", herr)
		return herr
	}
	s.stream = stream
	s.applyToggles()

	s.enabled = true
	s.epoch++
	s.subscribe(s.epoch)
	s.coord.announce()

	s.logger.Info("huddle started", "stream", stream.ID(), "source", stream.VideoSource())
	s.notify()
	return nil
}

// acquire captures a new local stream: microphone always, plus the camera or
// the screen.
func (s *Session) acquire(ctx context.Context, screen bool) (*media.Stream, error) {
	streamID := uuid.NewString()

	var display *media.Stream
	if screen {
		var err error
		if display, err = s.devices.DisplayMedia(ctx, media.Constraints{StreamID: streamID}); err != nil {
			return nil, err
		}
	}

	user, err := s.devices.UserMedia(ctx, media.Constraints{Audio: true, Video: !screen, StreamID: streamID})
	if err != nil {
		if display != nil {
			display.Stop()
		}
		return nil, err
	}

	tracks := user.Tracks()
	if display != nil {
		tracks = append(tracks, display.Tracks()...)
	}
	return media.NewStream(streamID, tracks...), nil
}

func (s *Session) subscribe(epoch uint64) {
	handlers := map[string]func(*signaling.Message){
		signaling.EventJoinRoom:     s.coord.handleJoin,
		signaling.EventOffer:        s.coord.handleOffer,
		signaling.EventAnswer:       s.coord.handleAnswer,
		signaling.EventICECandidate: s.coord.handleCandidate,
		signaling.EventRoomLeave:    s.coord.handleLeave,
		signaling.EventDisconnect:   s.coord.handleDisconnect,
	}
	for event, handle := range handlers {
		s.bus.On(event, func(msg *signaling.Message) {
			s.loop.post(func() {
				if !s.enabled || s.epoch != epoch {
					return
				}
				handle(msg)
				s.notify()
			})
		})
	}
}

func (s *Session) unsubscribe() {
	for _, event := range []string{
		signaling.EventJoinRoom,
		signaling.EventOffer,
		signaling.EventAnswer,
		signaling.EventICECandidate,
		signaling.EventRoomLeave,
		signaling.EventDisconnect,
	} {
		s.bus.Off(event)
	}
}

// Disable leaves the room and releases every local and remote resource.
// Calling it on a disabled session does nothing.
func (s *Session) Disable() {
	s.loop.call(s.disable)
}

func (s *Session) disable() {
	if !s.enabled {
		return
	}

	s.coord.leave()

	if s.stream != nil {
		s.stream.Stop()
		s.stream = nil
	}
	s.registry.CloseAll()
	for id := range s.remote {
		s.dropSurface(id)
	}
	s.unsubscribe()
	s.enabled = false

	s.logger.Info("huddle stopped")
	s.notify()
}

// ToggleAudio flips the microphone and returns the new value.
func (s *Session) ToggleAudio() bool {
	var on bool
	s.loop.call(func() {
		s.audioEnabled = !s.audioEnabled
		on = s.audioEnabled
		s.applyToggles()
		s.notify()
	})
	return on
}

// ToggleVideo flips the outgoing video and returns the new value.
func (s *Session) ToggleVideo() bool {
	var on bool
	s.loop.call(func() {
		s.videoEnabled = !s.videoEnabled
		on = s.videoEnabled
		s.applyToggles()
		s.notify()
	})
	return on
}

func (s *Session) applyToggles() {
	if s.stream == nil {
		return
	}
	for _, t := range s.stream.AudioTracks() {
		t.SetEnabled(s.audioEnabled)
	}
	for _, t := range s.stream.VideoTracks() {
		t.SetEnabled(s.videoEnabled)
	}
}

// ToggleScreenShare switches between camera and screen capture and offers
// the new tracks to every peer. On failure the current capture is kept.
func (s *Session) ToggleScreenShare(ctx context.Context) error {
	var err error
	if !s.loop.call(func() { err = s.toggleScreenShare(ctx) }) {
		return ErrSessionClosed
	}
	return err
}

func (s *Session) toggleScreenShare(ctx context.Context) error {
	next := !s.screenSharing
	if !s.enabled {
		s.screenSharing = next
		s.notify()
		return nil
	}

	stream, err := s.acquire(ctx, next)
	if err != nil {
		herr := NewError("switch capture", classify(ErrMediaAccess, err))
		s.logger.Warn("cannot switch capture", "screen", next, "error", herr)
		return herr
	}

	old := s.stream
	s.stream = stream
	s.screenSharing = next
	s.applyToggles()
	if old != nil {
		old.Stop()
	}

	s.coord.renegotiateAll(stream.Outbound())
	s.notify()
	return nil
}

func (s *Session) localTracks() []rtc.Outbound {
	if s.stream == nil {
		return nil
	}
	return s.stream.Outbound()
}

func (s *Session) attachRemote(remoteID string, track rtc.RemoteTrack) {
	surface := s.remote[remoteID]
	if surface != nil && surface.StreamID() != track.StreamID() {
		s.dropSurface(remoteID)
		surface = nil
	}

	if surface == nil {
		var err error
		if surface, err = s.surfaces.Open(remoteID, track.StreamID()); err != nil {
			s.logger.Warn("cannot open surface", "peer", remoteID, "error", err)
			return
		}
		s.remote[remoteID] = surface
	}

	if err := surface.Attach(track); err != nil {
		s.logger.Warn("cannot attach remote track", "peer", remoteID, "track", track.ID(), "error", err)
	}
}

func (s *Session) dropSurface(remoteID string) {
	surface, ok := s.remote[remoteID]
	if !ok {
		return
	}
	delete(s.remote, remoteID)
	if err := surface.Close(); err != nil {
		s.logger.Debug("close surface", "peer", remoteID, "error", err)
	}
}

func (s *Session) localCandidate(pctx peerContext, c signaling.ICECandidate) {
	s.loop.post(func() {
		if s.enabled {
			s.coord.localCandidate(pctx, c)
		}
	})
}

func (s *Session) connectionState(pctx peerContext, st rtc.State) {
	s.loop.post(func() {
		if s.enabled {
			s.coord.connectionState(pctx, st)
			s.notify()
		}
	})
}

func (s *Session) remoteTrack(pctx peerContext, t rtc.RemoteTrack) {
	s.loop.post(func() {
		if !s.enabled {
			return
		}
		if p := s.registry.lookup(pctx); p == nil || !p.usable() {
			return
		}
		s.attachRemote(pctx.remoteUserID, t)
		s.notify()
	})
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{RoomID: s.roomID, UserID: s.userID}
	s.loop.call(func() {
		snap.Enabled = s.enabled
		snap.AudioEnabled = s.audioEnabled
		snap.VideoEnabled = s.videoEnabled
		snap.ScreenSharing = s.screenSharing
		if s.stream != nil {
			snap.Preview = s.stream.ID()
			snap.PreviewSource = s.stream.VideoSource()
		}
		s.registry.Each(func(p *Peer) {
			info := PeerInfo{
				UserID:         p.RemoteUserID(),
				State:          p.State(),
				ConnectedCount: p.ConnectedCount(),
				Since:          p.createdAt,
			}
			if err := p.Err(); err != nil {
				info.Error = err.Error()
			}
			snap.Peers = append(snap.Peers, info)
		})
		snap.RemoteStreams = len(s.remote)
	})
	return snap
}

// Updates signals after every state change. Signals coalesce.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// Close disables the session and stops its loop. The session cannot be
// used afterwards.
func (s *Session) Close() {
	s.Disable()
	s.loop.stop()
	s.cancel()
}
