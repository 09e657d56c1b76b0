package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BioHazard786/huddle/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchMembers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/rooms/busy-room":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(server.RoomResponse{RoomID: "busy-room", Members: []string{"U1", "U2"}})
		case "/api/rooms/broken":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	members, err := fetchMembers(context.Background(), srv.URL+"/", "busy-room", "tok")
	require.NoError(t, err)
	assert.Equal(t, []string{"U1", "U2"}, members)

	_, err = fetchMembers(context.Background(), srv.URL, "empty-room", "")
	assert.ErrorIs(t, err, errRoomNotFound)

	_, err = fetchMembers(context.Background(), srv.URL, "broken", "")
	assert.ErrorContains(t, err, "503")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"join", "serve", "members", "token"} {
		assert.True(t, names[want], want)
	}
}
