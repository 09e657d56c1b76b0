package rtc

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/signaling"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"
)

// PionFactory creates pion peer connections sharing one API instance.
type PionFactory struct {
	api    *webrtc.API
	config webrtc.Configuration
	logger *slog.Logger
}

// NewPionFactory registers the default codecs and interceptors (NACK, RTCP
// reports, TWCC) plus a periodic PLI so late surfaces get keyframes.
func NewPionFactory(cfg *config.Config, logger *slog.Logger) (*PionFactory, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	pli, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create PLI interceptor: %w", err)
	}
	ir.Add(pli)

	se := webrtc.SettingEngine{}
	if cfg.PortMin > 0 && cfg.PortMax > 0 {
		if err := se.SetEphemeralUDPPortRange(cfg.PortMin, cfg.PortMax); err != nil {
			return nil, fmt.Errorf("set UDP port range: %w", err)
		}
	}

	return &PionFactory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithInterceptorRegistry(ir),
			webrtc.WithSettingEngine(se),
		),
		config: iceConfiguration(cfg, logger),
		logger: logger,
	}, nil
}

func iceConfiguration(cfg *config.Config, logger *slog.Logger) webrtc.Configuration {
	var iceServers []webrtc.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || behindTunnel()) {
		logger.Info("forcing TURN relay for ICE")
		policy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}

func (f *PionFactory) NewConn() (Conn, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return &pionConn{pc: pc, logger: f.logger}, nil
}

type pionConn struct {
	pc     *webrtc.PeerConnection
	logger *slog.Logger
}

func (c *pionConn) CreateOffer() (signaling.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return signaling.SessionDescription{}, err
	}
	return fromPion(offer), nil
}

func (c *pionConn) CreateAnswer() (signaling.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return signaling.SessionDescription{}, err
	}
	return fromPion(answer), nil
}

func (c *pionConn) SetLocalDescription(d signaling.SessionDescription) error {
	desc, err := toPion(d)
	if err != nil {
		return err
	}
	return c.pc.SetLocalDescription(desc)
}

func (c *pionConn) SetRemoteDescription(d signaling.SessionDescription) error {
	desc, err := toPion(d)
	if err != nil {
		return err
	}
	return c.pc.SetRemoteDescription(desc)
}

func (c *pionConn) LocalDescription() *signaling.SessionDescription {
	return fromPionPtr(c.pc.LocalDescription())
}

func (c *pionConn) RemoteDescription() *signaling.SessionDescription {
	return fromPionPtr(c.pc.RemoteDescription())
}

func (c *pionConn) AddICECandidate(cand signaling.ICECandidate) error {
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        cand.Candidate,
		SDPMid:           cand.SDPMid,
		SDPMLineIndex:    cand.SDPMLineIndex,
		UsernameFragment: cand.UsernameFragment,
	})
}

func (c *pionConn) AddTrack(o Outbound) error {
	var sender *webrtc.RTPSender
	if o.SendOnly {
		tr, err := c.pc.AddTransceiverFromTrack(o.Track, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendonly,
		})
		if err != nil {
			return err
		}
		sender = tr.Sender()
	} else {
		s, err := c.pc.AddTrack(o.Track)
		if err != nil {
			return err
		}
		sender = s
	}

	// RTCP has to be read for the interceptors to work.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *pionConn) ReplaceTracks(tracks []Outbound) error {
	var errs []error
	for _, s := range c.pc.GetSenders() {
		if s.Track() == nil {
			continue
		}
		if err := c.pc.RemoveTrack(s); err != nil {
			errs = append(errs, err)
		}
	}
	for _, o := range tracks {
		if err := c.AddTrack(o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *pionConn) OnICECandidate(fn func(signaling.ICECandidate)) {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if cand == nil {
			return
		}
		ci := cand.ToJSON()
		fn(signaling.ICECandidate{
			Candidate:        ci.Candidate,
			SDPMid:           ci.SDPMid,
			SDPMLineIndex:    ci.SDPMLineIndex,
			UsernameFragment: ci.UsernameFragment,
		})
	})
}

func (c *pionConn) OnTrack(fn func(RemoteTrack)) {
	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(track)
	})
}

func (c *pionConn) OnConnectionStateChange(fn func(State)) {
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Debug("peer connection state", "state", s.String())
		fn(stateFromPion(s))
	})
}

func (c *pionConn) Close() error {
	return c.pc.Close()
}

func stateFromPion(s webrtc.PeerConnectionState) State {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return StateFailed
	case webrtc.PeerConnectionStateClosed:
		return StateClosed
	default:
		return StateNew
	}
}

func toPion(d signaling.SessionDescription) (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch d.Type {
	case signaling.SDPTypeOffer:
		t = webrtc.SDPTypeOffer
	case signaling.SDPTypeAnswer:
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported description type %q", d.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: d.SDP}, nil
}

func fromPion(d webrtc.SessionDescription) signaling.SessionDescription {
	return signaling.SessionDescription{Type: d.Type.String(), SDP: d.SDP}
}

func fromPionPtr(d *webrtc.SessionDescription) *signaling.SessionDescription {
	if d == nil {
		return nil
	}
	sd := fromPion(*d)
	return &sd
}
