package signaling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T, gotAuth chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if err := conn.WriteJSON(&msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRoundTrip(t *testing.T) {
	auth := make(chan string, 1)
	srv := echoServer(t, auth)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", WithToken("secret"))
	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, "Bearer secret", <-auth)

	out, err := NewMessage(EventJoinRoom, "C1", JoinRoomPayload{RoomID: "C1", UserID: "U1"})
	require.NoError(t, err)
	require.NoError(t, c.Send(ctx, out))

	select {
	case in := <-c.Incoming():
		require.NotNil(t, in)
		assert.Equal(t, EventJoinRoom, in.Type)
		assert.Equal(t, "C1", in.RoomID)
		assert.JSONEq(t, string(out.Payload), string(in.Payload))
	case <-ctx.Done():
		t.Fatal("no echo received")
	}

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send(ctx, out), ErrClosed)

	// the server drops the connection after the close frame
	select {
	case _, open := <-c.Incoming():
		assert.False(t, open)
	case <-ctx.Done():
		t.Fatal("incoming not closed")
	}
}

func TestSendFailsAfterServerDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewClient("ws" + strings.TrimPrefix(srv.URL, "http") + "/ws")
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	for range c.Incoming() {
	}

	msg, err := NewMessage(EventJoinRoom, "C1", JoinRoomPayload{RoomID: "C1", UserID: "U1"})
	require.NoError(t, err)
	for i := 0; i < 40; i++ {
		sendCtx, sendCancel := context.WithTimeout(ctx, 50*time.Millisecond)
		err := c.Send(sendCtx, msg)
		sendCancel()
		require.ErrorIs(t, err, ErrClosed, "send %d", i)
	}
}
