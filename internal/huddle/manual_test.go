package huddle

import (
	"context"
	"testing"
	"time"

	"github.com/BioHazard786/huddle/internal/signaling"
	"github.com/stretchr/testify/require"
)

// manualMember runs a session over the polled transport, the way
// `huddle join --manual` does.
func manualMember(t *testing.T, ctx context.Context, store signaling.Store, id string) *member {
	t.Helper()

	tr := signaling.NewManual(store, testRoom, id, nil)
	require.NoError(t, tr.Connect(ctx))
	d := signaling.NewDispatcher(tr, nil)
	go d.Start()
	go tr.AutoPoll(ctx, 10*time.Millisecond)
	t.Cleanup(func() { tr.Close() })

	m := &member{
		id:       id,
		factory:  &fakeFactory{},
		devices:  &fakeDevices{},
		surfaces: &fakeSurfaces{},
	}
	s, err := New(Options{
		RoomID:       testRoom,
		UserID:       id,
		Bus:          d,
		Factory:      m.factory,
		Devices:      m.devices,
		Surfaces:     m.surfaces,
		AudioEnabled: true,
		VideoEnabled: true,
	})
	require.NoError(t, err)
	m.session = s
	t.Cleanup(s.Close)
	return m
}

func TestSessionsOverManualTransport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := signaling.NewMemoryStore()

	u1 := manualMember(t, ctx, store, "U1")
	u1.enable(t)

	// Joined after U1, so U1's announcement is history for U2.
	u2 := manualMember(t, ctx, store, "U2")
	u2.enable(t)

	waitConnected(t, u1, "U2")
	waitConnected(t, u2, "U1")
	require.Eventually(t, func() bool {
		return u1.session.Snapshot().RemoteStreams == 1 && u2.session.Snapshot().RemoteStreams == 1
	}, 2*time.Second, 10*time.Millisecond)

	u2.session.Disable()
	require.Eventually(t, func() bool {
		_, ok := u1.peer("U2")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
