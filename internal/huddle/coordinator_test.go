package huddle

import (
	"context"
	"log/slog"
	"testing"

	"github.com/BioHazard786/huddle/internal/signaling"
	"github.com/stretchr/testify/assert"
)

func TestEmitOnClosedTransport(t *testing.T) {
	bus := &fakeBus{handlers: make(map[string]signaling.HandlerFunc), closed: true}
	c := &Coordinator{
		bus:      bus,
		roomID:   testRoom,
		userID:   "U1",
		registry: newTestRegistry(&fakeFactory{}),
		logger:   slog.Default(),
		ctx:      context.Background(),
		peerGone: func(string) {},
	}

	err := c.announce()
	assert.ErrorIs(t, err, ErrTransportClosed)
	assert.ErrorIs(t, err, signaling.ErrClosed)
}

func TestUnexpectedAnswerIsDropped(t *testing.T) {
	f := &fakeFactory{}
	c := &Coordinator{
		bus:      &fakeBus{handlers: make(map[string]signaling.HandlerFunc)},
		roomID:   testRoom,
		userID:   "U1",
		registry: newTestRegistry(f),
		logger:   slog.Default(),
		ctx:      context.Background(),
		peerGone: func(string) {},
	}

	peer, _, err := c.registry.GetOrCreate("U2")
	assert.NoError(t, err)

	msg, err := signaling.NewMessage(signaling.EventAnswer, testRoom, signaling.AnswerPayload{
		Answer: signaling.SessionDescription{Type: signaling.SDPTypeAnswer, SDP: "v=1"},
		Route:  signaling.Route{SenderUserID: "U2", TargetUserID: "U1"},
	})
	assert.NoError(t, err)

	c.handleAnswer(msg)
	assert.Equal(t, PeerNew, peer.State())
	assert.Nil(t, peer.RemoteDescription())
}
