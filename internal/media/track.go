package media

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/BioHazard786/huddle/internal/rtc"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// Source is the capture device behind a local track.
type Source string

const (
	SourceMicrophone Source = "microphone"
	SourceCamera     Source = "camera"
	SourceDisplay    Source = "display"
)

func (s Source) codec() webrtc.RTPCodecCapability {
	if s == SourceMicrophone {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
}

// LocalTrack is a captured track shared by every peer connection. Disabling
// it drops samples but keeps its senders, so no renegotiation is needed.
type LocalTrack struct {
	source   Source
	track    *webrtc.TrackLocalStaticSample
	enabled  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

// NewLocalTrack creates an enabled track for source in stream streamID.
func NewLocalTrack(source Source, streamID string) (*LocalTrack, error) {
	id := fmt.Sprintf("%s-%s", source, uuid.NewString()[:8])
	track, err := webrtc.NewTrackLocalStaticSample(source.codec(), id, streamID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", source, err)
	}

	t := &LocalTrack{source: source, track: track, done: make(chan struct{})}
	t.enabled.Store(true)
	return t, nil
}

func (t *LocalTrack) ID() string                { return t.track.ID() }
func (t *LocalTrack) StreamID() string          { return t.track.StreamID() }
func (t *LocalTrack) Kind() webrtc.RTPCodecType { return t.track.Kind() }
func (t *LocalTrack) Source() Source            { return t.source }

func (t *LocalTrack) Enabled() bool         { return t.enabled.Load() }
func (t *LocalTrack) SetEnabled(on bool)    { t.enabled.Store(on) }
func (t *LocalTrack) Done() <-chan struct{} { return t.done }

// Outbound describes how the track is sent. Display capture is send-only.
func (t *LocalTrack) Outbound() rtc.Outbound {
	return rtc.Outbound{Track: t.track, SendOnly: t.source == SourceDisplay}
}

// WriteSample forwards s to every bound connection unless the track is
// disabled or stopped.
func (t *LocalTrack) WriteSample(s pionmedia.Sample) error {
	if !t.Enabled() || t.Stopped() {
		return nil
	}
	return t.track.WriteSample(s)
}

// Stop ends the capture. Safe to call more than once.
func (t *LocalTrack) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

func (t *LocalTrack) Stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Stream groups the local tracks captured together.
type Stream struct {
	id     string
	tracks []*LocalTrack
}

func NewStream(id string, tracks ...*LocalTrack) *Stream {
	return &Stream{id: id, tracks: tracks}
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Tracks() []*LocalTrack {
	return append([]*LocalTrack(nil), s.tracks...)
}

func (s *Stream) AudioTracks() []*LocalTrack { return s.byKind(webrtc.RTPCodecTypeAudio) }
func (s *Stream) VideoTracks() []*LocalTrack { return s.byKind(webrtc.RTPCodecTypeVideo) }

func (s *Stream) byKind(kind webrtc.RTPCodecType) []*LocalTrack {
	var out []*LocalTrack
	for _, t := range s.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// VideoSource reports where the stream's video comes from, or "" if none.
func (s *Stream) VideoSource() Source {
	if v := s.VideoTracks(); len(v) > 0 {
		return v[0].Source()
	}
	return ""
}

func (s *Stream) Outbound() []rtc.Outbound {
	out := make([]rtc.Outbound, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t.Outbound())
	}
	return out
}

// Stop stops every track.
func (s *Stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}
