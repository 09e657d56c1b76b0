package media

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeIVF(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "camera.ivf")
	w, err := ivfwriter.New(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return path
}

func writeOgg(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "mic.ogg")
	w, err := oggwriter.New(path, 48000, 2)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return path
}

func TestUserMediaAcquiresRequestedTracks(t *testing.T) {
	dir := t.TempDir()
	d := NewFileDevices(writeIVF(t, dir), writeOgg(t, dir), "", nil)

	stream, err := d.UserMedia(context.Background(), Constraints{Audio: true, Video: true, StreamID: "s1"})
	require.NoError(t, err)
	defer stream.Stop()

	assert.Equal(t, "s1", stream.ID())
	require.Len(t, stream.AudioTracks(), 1)
	require.Len(t, stream.VideoTracks(), 1)
	assert.Equal(t, SourceCamera, stream.VideoSource())
	assert.Equal(t, "s1", stream.VideoTracks()[0].StreamID())

	for _, o := range stream.Outbound() {
		assert.False(t, o.SendOnly)
	}
}

func TestUserMediaMissingDevice(t *testing.T) {
	dir := t.TempDir()
	d := NewFileDevices("", writeOgg(t, dir), "", nil)

	_, err := d.UserMedia(context.Background(), Constraints{Audio: true, Video: true})
	assert.ErrorIs(t, err, ErrDeviceUnavailable)

	_, err = d.DisplayMedia(context.Background(), Constraints{})
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestUserMediaWrongContainer(t *testing.T) {
	dir := t.TempDir()
	d := NewFileDevices(writeOgg(t, dir), "", "", nil)

	_, err := d.UserMedia(context.Background(), Constraints{Video: true})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestUserMediaPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	dir := t.TempDir()
	path := writeIVF(t, dir)
	require.NoError(t, os.Chmod(path, 0))

	d := NewFileDevices(path, "", "", nil)
	_, err := d.UserMedia(context.Background(), Constraints{Video: true})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestDisplayMediaIsSendOnly(t *testing.T) {
	d := NewFileDevices("", "", writeIVF(t, t.TempDir()), nil)

	stream, err := d.DisplayMedia(context.Background(), Constraints{StreamID: "screen"})
	require.NoError(t, err)
	defer stream.Stop()

	assert.Equal(t, SourceDisplay, stream.VideoSource())
	out := stream.Outbound()
	require.Len(t, out, 1)
	assert.True(t, out[0].SendOnly)
}

func TestLocalTrackEnableAndStop(t *testing.T) {
	track, err := NewLocalTrack(SourceMicrophone, "s1")
	require.NoError(t, err)

	assert.True(t, track.Enabled())
	assert.Equal(t, webrtc.RTPCodecTypeAudio, track.Kind())
	track.SetEnabled(false)
	assert.False(t, track.Enabled())

	assert.False(t, track.Stopped())
	track.Stop()
	track.Stop()
	assert.True(t, track.Stopped())
}

type fakeRemoteTrack struct {
	id      string
	mime    string
	packets []*rtp.Packet
}

func (f *fakeRemoteTrack) ID() string                { return f.id }
func (f *fakeRemoteTrack) StreamID() string          { return "remote-stream" }
func (f *fakeRemoteTrack) Kind() webrtc.RTPCodecType { return webrtc.RTPCodecTypeVideo }
func (f *fakeRemoteTrack) Codec() webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: f.mime}}
}

func (f *fakeRemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	if len(f.packets) == 0 {
		return nil, nil, io.EOF
	}
	p := f.packets[0]
	f.packets = f.packets[1:]
	return p, nil, nil
}

func TestFileSurfaceRecordsTracks(t *testing.T) {
	dir := t.TempDir()
	surfaces, err := NewFileSurfaces(dir, nil)
	require.NoError(t, err)

	s, err := surfaces.Open("U2", "stream/1")
	require.NoError(t, err)
	assert.Equal(t, "U2", s.Participant())
	assert.Equal(t, "stream/1", s.StreamID())

	require.NoError(t, s.Attach(&fakeRemoteTrack{id: "cam", mime: webrtc.MimeTypeVP8}))
	require.NoError(t, s.Attach(&fakeRemoteTrack{id: "mic", mime: webrtc.MimeTypeOpus}))
	assert.ErrorIs(t, s.Attach(&fakeRemoteTrack{id: "x", mime: "video/H265"}), ErrUnsupportedFormat)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Error(t, s.Attach(&fakeRemoteTrack{id: "late", mime: webrtc.MimeTypeVP8}))

	head, err := os.ReadFile(filepath.Join(dir, "U2_stream-1_cam.ivf"))
	require.NoError(t, err)
	assert.Equal(t, "DKIF", string(head[:4]))

	_, err = os.Stat(filepath.Join(dir, "U2_stream-1_mic.ogg"))
	assert.NoError(t, err)
}
