package huddle

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/server"
	"github.com/BioHazard786/huddle/internal/signaling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// relayMember joins through a real relay, configured the way
// `huddle join --server URL --token T` is.
func relayMember(t *testing.T, wsURL, token string) *member {
	t.Helper()

	cfg, err := config.Load(config.Options{Server: wsURL, Token: token})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := signaling.NewClient(cfg.WebSocketURL, signaling.WithToken(cfg.Token))
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(func() { client.Close() })
	d := signaling.NewDispatcher(client, nil)
	go d.Start()

	m := &member{
		id:       cfg.UserID,
		factory:  &fakeFactory{},
		devices:  &fakeDevices{},
		surfaces: &fakeSurfaces{},
	}
	s, err := New(Options{
		RoomID:       testRoom,
		UserID:       cfg.UserID,
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

func TestSessionsOverAuthenticatedRelay(t *testing.T) {
	const secret = "relay-secret"
	t.Setenv("HUDDLE_USER", "")

	ctx, cancel := context.WithCancel(context.Background())
	hub := server.NewHub(nil, nil)
	go hub.Run(ctx)
	srv := httptest.NewServer(server.NewRouter(hub, server.RouterOptions{JWTSecret: secret}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	aliceToken, err := server.IssueToken(secret, "alice", time.Hour)
	require.NoError(t, err)
	bobToken, err := server.IssueToken(secret, "bob", time.Hour)
	require.NoError(t, err)

	alice := relayMember(t, wsURL, aliceToken)
	bob := relayMember(t, wsURL, bobToken)
	assert.Equal(t, "alice", alice.id)
	assert.Equal(t, "bob", bob.id)

	alice.enable(t)
	require.Eventually(t, func() bool {
		members, err := hub.Members(context.Background(), testRoom)
		return err == nil && len(members) == 1
	}, 2*time.Second, 10*time.Millisecond)
	bob.enable(t)

	waitConnected(t, alice, "bob")
	waitConnected(t, bob, "alice")
	require.Eventually(t, func() bool {
		return alice.session.Snapshot().RemoteStreams == 1 && bob.session.Snapshot().RemoteStreams == 1
	}, 2*time.Second, 10*time.Millisecond)
}
