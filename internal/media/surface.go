package media

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BioHazard786/huddle/internal/rtc"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// Surface renders the remote stream of one participant.
type Surface interface {
	Participant() string
	StreamID() string
	Attach(track rtc.RemoteTrack) error
	Close() error
}

// SurfaceFactory opens a surface for a participant's stream.
type SurfaceFactory interface {
	Open(participantID, streamID string) (Surface, error)
}

type rtpWriter interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// FileSurfaces records every remote track to a file under dir: VP8 video to
// IVF, Opus audio to Ogg.
type FileSurfaces struct {
	dir    string
	logger *slog.Logger
}

func NewFileSurfaces(dir string, logger *slog.Logger) (*FileSurfaces, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &FileSurfaces{dir: dir, logger: logger.With("component", "surfaces")}, nil
}

func (f *FileSurfaces) Open(participantID, streamID string) (Surface, error) {
	return &fileSurface{
		dir:         f.dir,
		participant: participantID,
		streamID:    streamID,
		logger:      f.logger.With("peer", participantID, "stream", streamID),
	}, nil
}

type fileSurface struct {
	dir         string
	participant string
	streamID    string
	logger      *slog.Logger

	mu      sync.Mutex
	closed  bool
	writers []rtpWriter
}

func (s *fileSurface) Participant() string { return s.participant }
func (s *fileSurface) StreamID() string    { return s.streamID }

func (s *fileSurface) Attach(track rtc.RemoteTrack) error {
	base := filepath.Join(s.dir, fileName(s.participant, s.streamID, track.ID()))

	var w rtpWriter
	var err error
	switch mime := track.Codec().MimeType; {
	case strings.EqualFold(mime, webrtc.MimeTypeVP8):
		w, err = ivfwriter.New(base + ".ivf")
	case strings.EqualFold(mime, webrtc.MimeTypeOpus):
		w, err = oggwriter.New(base+".ogg", opusSampleRate, 2)
	default:
		return fmt.Errorf("%w: cannot record %s", ErrUnsupportedFormat, mime)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		w.Close()
		return fmt.Errorf("surface for %s is closed", s.participant)
	}
	s.writers = append(s.writers, w)

	go s.record(track, w)
	return nil
}

func (s *fileSurface) record(track rtc.RemoteTrack, w rtpWriter) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			s.logger.Debug("remote track ended", "track", track.ID(), "error", err)
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		err = w.WriteRTP(pkt)
		s.mu.Unlock()
		if err != nil {
			s.logger.Warn("write RTP", "track", track.ID(), "error", err)
			return
		}
	}
}

func (s *fileSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for _, w := range s.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func fileName(parts ...string) string {
	clean := make([]string, len(parts))
	for i, p := range parts {
		clean[i] = strings.Map(func(r rune) rune {
			if r == '/' || r == '\\' || r == ':' || r == ' ' {
				return '-'
			}
			return r
		}, p)
	}
	return strings.Join(clean, "_")
}
