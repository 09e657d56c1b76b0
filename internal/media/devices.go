package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const (
	defaultFrameDuration = 33 * time.Millisecond
	oggPageDuration      = 20 * time.Millisecond
	opusSampleRate       = 48000
)

// Constraints select which tracks to capture. StreamID groups the tracks of
// one capture; a fresh id is generated when empty.
type Constraints struct {
	Audio    bool
	Video    bool
	StreamID string
}

// Devices captures local media.
type Devices interface {
	UserMedia(ctx context.Context, c Constraints) (*Stream, error)
	// DisplayMedia captures the screen. Only StreamID is read from c.
	DisplayMedia(ctx context.Context, c Constraints) (*Stream, error)
}

// FileDevices plays IVF (VP8) and Ogg (Opus) files as capture devices,
// looping them until the track is stopped.
type FileDevices struct {
	Camera     string
	Microphone string
	Screen     string
	logger     *slog.Logger
}

func NewFileDevices(camera, microphone, screen string, logger *slog.Logger) *FileDevices {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileDevices{
		Camera:     camera,
		Microphone: microphone,
		Screen:     screen,
		logger:     logger.With("component", "devices"),
	}
}

func (d *FileDevices) UserMedia(ctx context.Context, c Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Audio && !c.Video {
		return nil, errors.New("at least one of audio or video must be requested")
	}

	var camera, mic string
	var err error
	if c.Video {
		if camera, err = probe(d.Camera, containerIVF); err != nil {
			return nil, err
		}
	}
	if c.Audio {
		if mic, err = probe(d.Microphone, containerOgg); err != nil {
			return nil, err
		}
	}

	streamID := c.StreamID
	if streamID == "" {
		streamID = uuid.NewString()
	}

	var tracks []*LocalTrack
	if c.Audio {
		t, err := NewLocalTrack(SourceMicrophone, streamID)
		if err != nil {
			return nil, err
		}
		go d.pumpOgg(t, mic)
		tracks = append(tracks, t)
	}
	if c.Video {
		t, err := NewLocalTrack(SourceCamera, streamID)
		if err != nil {
			NewStream(streamID, tracks...).Stop()
			return nil, err
		}
		go d.pumpIVF(t, camera)
		tracks = append(tracks, t)
	}
	return NewStream(streamID, tracks...), nil
}

func (d *FileDevices) DisplayMedia(ctx context.Context, c Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	screen, err := probe(d.Screen, containerIVF)
	if err != nil {
		return nil, err
	}

	streamID := c.StreamID
	if streamID == "" {
		streamID = uuid.NewString()
	}
	t, err := NewLocalTrack(SourceDisplay, streamID)
	if err != nil {
		return nil, err
	}
	go d.pumpIVF(t, screen)
	return NewStream(streamID, t), nil
}

func (d *FileDevices) pumpIVF(t *LocalTrack, path string) {
	logger := d.logger.With("track", t.ID(), "file", path)

	f, err := os.Open(path)
	if err != nil {
		logger.Warn("open video source", "error", err)
		return
	}
	defer f.Close()

	for {
		reader, header, err := ivfreader.NewWith(f)
		if err != nil {
			logger.Warn("read IVF header", "error", err)
			return
		}

		frame := defaultFrameDuration
		if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
			frame = time.Second * time.Duration(header.TimebaseNumerator) / time.Duration(header.TimebaseDenominator)
		}

		frames, rewind := playIVF(t, reader, frame)
		if !rewind {
			return
		}
		if frames == 0 {
			logger.Warn("video source has no frames")
			return
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return
		}
	}
}

// playIVF writes frames until the file ends (rewind) or the track stops.
func playIVF(t *LocalTrack, r *ivfreader.IVFReader, frame time.Duration) (int, bool) {
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	frames := 0
	for {
		select {
		case <-t.Done():
			return frames, false
		case <-ticker.C:
		}

		data, _, err := r.ParseNextFrame()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return frames, true
		}
		if err != nil {
			return frames, false
		}
		if err := t.WriteSample(pionmedia.Sample{Data: data, Duration: frame}); err != nil {
			return frames, false
		}
		frames++
	}
}

func (d *FileDevices) pumpOgg(t *LocalTrack, path string) {
	logger := d.logger.With("track", t.ID(), "file", path)

	f, err := os.Open(path)
	if err != nil {
		logger.Warn("open audio source", "error", err)
		return
	}
	defer f.Close()

	for {
		reader, _, err := oggreader.NewWith(f)
		if err != nil {
			logger.Warn("read Ogg header", "error", err)
			return
		}
		if !playOgg(t, reader) {
			return
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return
		}
	}
}

func playOgg(t *LocalTrack, r *oggreader.OggReader) bool {
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-t.Done():
			return false
		case <-ticker.C:
		}

		page, header, err := r.ParseNextPage()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return true
		}
		if err != nil {
			return false
		}

		var duration time.Duration
		if header.GranulePosition > lastGranule {
			samples := header.GranulePosition - lastGranule
			duration = time.Duration(samples) * time.Second / opusSampleRate
		}
		lastGranule = header.GranulePosition

		if err := t.WriteSample(pionmedia.Sample{Data: page, Duration: duration}); err != nil {
			return false
		}
	}
}
