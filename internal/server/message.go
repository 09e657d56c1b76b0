package server

import "github.com/BioHazard786/huddle/internal/signaling"

// inbound is a message read from a client, queued for the hub.
type inbound struct {
	msg    *signaling.Message
	client *Client
}

// roomQuery asks the hub for a room's members.
type roomQuery struct {
	roomID string
	reply  chan []string
}

func errorMessage(text string) *signaling.Message {
	msg, _ := signaling.NewMessage(signaling.EventError, "", signaling.ErrorPayload{Error: text})
	return msg
}
