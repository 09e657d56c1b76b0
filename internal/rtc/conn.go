// Package rtc wraps pion peer connections behind a small interface so the
// huddle state machine can run against fakes in tests.
package rtc

import (
	"github.com/BioHazard786/huddle/internal/signaling"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// State is the transport state of a connection.
type State int

const (
	StateNew State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Outbound is a local track to send on a connection.
type Outbound struct {
	Track webrtc.TrackLocal
	// SendOnly adds the track on a send-only transceiver, so the offer does
	// not ask the remote side for media on it.
	SendOnly bool
}

// RemoteTrack is the receiving side of a remote participant's track.
// *webrtc.TrackRemote satisfies it.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	Codec() webrtc.RTPCodecParameters
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Conn is one peer connection.
type Conn interface {
	CreateOffer() (signaling.SessionDescription, error)
	CreateAnswer() (signaling.SessionDescription, error)
	SetLocalDescription(signaling.SessionDescription) error
	SetRemoteDescription(signaling.SessionDescription) error
	LocalDescription() *signaling.SessionDescription
	RemoteDescription() *signaling.SessionDescription
	AddICECandidate(signaling.ICECandidate) error

	AddTrack(Outbound) error
	// ReplaceTracks removes every local track and adds tracks in their place.
	ReplaceTracks(tracks []Outbound) error

	OnICECandidate(func(signaling.ICECandidate))
	OnTrack(func(RemoteTrack))
	OnConnectionStateChange(func(State))

	Close() error
}

// Factory creates connections.
type Factory interface {
	NewConn() (Conn, error)
}
