package signaling

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestOfferWireFormat(t *testing.T) {
	msg, err := NewMessage(EventOffer, "C1", OfferPayload{
		Offer: SessionDescription{Type: SDPTypeOffer, SDP: "v=0"},
		Route: Route{SenderUserID: "U1", TargetUserID: "U2"},
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &raw))
	assert.Equal(t, "U1", raw["senderUserId"])
	assert.Equal(t, "U2", raw["targetUserId"])
	assert.Equal(t, map[string]any{"type": "offer", "sdp": "v=0"}, raw["offer"])
}

func TestDecodeRejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		payload string
		into    Payload
	}{
		{"offer without sdp", EventOffer, `{"offer":{"type":"offer"},"senderUserId":"U1"}`, &OfferPayload{}},
		{"answer typed as offer", EventAnswer, `{"answer":{"type":"offer","sdp":"x"},"senderUserId":"U1"}`, &AnswerPayload{}},
		{"offer without sender", EventOffer, `{"offer":{"type":"offer","sdp":"x"}}`, &OfferPayload{}},
		{"candidate without mid", EventICECandidate, `{"candidate":{"candidate":"candidate:1"},"senderUserId":"U1"}`, &CandidatePayload{}},
		{"join without user", EventJoinRoom, `{"roomId":"C1"}`, &JoinRoomPayload{}},
		{"leave without user", EventRoomLeave, `{"roomId":"C1"}`, &RoomLeavePayload{}},
		{"not json", EventOffer, `{`, &OfferPayload{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &Message{Type: tt.event, Payload: json.RawMessage(tt.payload)}
			err := msg.Decode(tt.into)
			assert.ErrorIs(t, err, ErrInvalidMessage)
		})
	}

	err := (&Message{Type: EventOffer}).Decode(&OfferPayload{})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestDecodeCandidate(t *testing.T) {
	msg, err := NewMessage(EventICECandidate, "C1", CandidatePayload{
		Candidate: ICECandidate{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMid: strPtr("0")},
		Route:     Route{SenderUserID: "U2", TargetUserID: "U1"},
	})
	require.NoError(t, err)

	var p CandidatePayload
	require.NoError(t, msg.Decode(&p))
	assert.Equal(t, "0", *p.Candidate.SDPMid)
	assert.Nil(t, p.Candidate.SDPMLineIndex)
	assert.Equal(t, "U2", p.SenderUserID)
}

func TestJoinRoomParticipant(t *testing.T) {
	assert.Equal(t, "U2", JoinRoomPayload{RoomID: "C1", OtherUserID: "U2"}.Participant())
	assert.Equal(t, "U3", JoinRoomPayload{RoomID: "C1", UserID: "U3"}.Participant())
	assert.Equal(t, "U2", JoinRoomPayload{RoomID: "C1", UserID: "U3", OtherUserID: "U2"}.Participant())
}

func TestRouteAddressedTo(t *testing.T) {
	assert.True(t, Route{SenderUserID: "U2", TargetUserID: "U1"}.AddressedTo("U1"))
	assert.True(t, Route{SenderUserID: "U2"}.AddressedTo("U1"))
	assert.False(t, Route{SenderUserID: "U2", TargetUserID: "U3"}.AddressedTo("U1"))
	assert.False(t, Route{SenderUserID: "U1"}.AddressedTo("U1"))
}

func TestMessageRoute(t *testing.T) {
	msg, err := NewMessage(EventAnswer, "C1", AnswerPayload{
		Answer: SessionDescription{Type: SDPTypeAnswer, SDP: "v=0"},
		Route:  Route{SenderUserID: "U1", TargetUserID: "U2"},
	})
	require.NoError(t, err)

	r, err := msg.Route()
	require.NoError(t, err)
	assert.Equal(t, Route{SenderUserID: "U1", TargetUserID: "U2"}, r)
}
