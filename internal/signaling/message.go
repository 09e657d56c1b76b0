package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message is the envelope exchanged with the relay and stored by the manual
// transport. Payload is decoded per event type.
type Message struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event type constants.
const (
	EventJoinRoom     = "join-room"
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice-candidate"
	EventRoomLeave    = "room-leave"
	EventError        = "error"

	// EventDisconnect is synthesized locally by the Dispatcher when the
	// transport stops delivering messages. It never crosses the wire.
	EventDisconnect = "disconnect"
)

var (
	ErrClosed         = errors.New("signaling transport closed")
	ErrInvalidMessage = errors.New("invalid signaling message")
)

// Payload is implemented by every variant payload.
type Payload interface {
	Validate() error
}

// NewMessage encodes payload into a message envelope.
func NewMessage(eventType, roomID string, payload any) (*Message, error) {
	msg := &Message{Type: eventType, RoomID: roomID}
	if payload == nil {
		return msg, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	msg.Payload = raw
	return msg, nil
}

// Decode unmarshals the payload into v and validates it.
func (m *Message) Decode(v Payload) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: %s without payload", ErrInvalidMessage, m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidMessage, m.Type, err)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidMessage, m.Type, err)
	}
	return nil
}

// Route reads only the addressing fields of a peer-to-peer message.
func (m *Message) Route() (Route, error) {
	var r Route
	if len(m.Payload) == 0 {
		return r, fmt.Errorf("%w: %s without payload", ErrInvalidMessage, m.Type)
	}
	if err := json.Unmarshal(m.Payload, &r); err != nil {
		return r, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, m.Type, err)
	}
	return r, nil
}

// Route carries the mesh addressing shared by offer, answer and ice-candidate.
// An empty TargetUserID means broadcast.
type Route struct {
	SenderUserID string `json:"senderUserId"`
	TargetUserID string `json:"targetUserId,omitempty"`
}

// AddressedTo reports whether a message with this route should be handled by
// userID. Messages from userID itself are never handled.
func (r Route) AddressedTo(userID string) bool {
	if r.SenderUserID == userID {
		return false
	}
	return r.TargetUserID == "" || r.TargetUserID == userID
}

func (r Route) validate() error {
	if r.SenderUserID == "" {
		return errors.New("senderUserId is required")
	}
	return nil
}

// SessionDescription is an SDP offer or answer.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

const (
	SDPTypeOffer  = "offer"
	SDPTypeAnswer = "answer"
)

// Expect validates the description and checks its type.
func (d SessionDescription) Expect(sdpType string) error {
	if d.Type != sdpType {
		return fmt.Errorf("description type %q, want %q", d.Type, sdpType)
	}
	if d.SDP == "" {
		return errors.New("description has empty sdp")
	}
	return nil
}

// ICECandidate mirrors RTCIceCandidateInit.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func (c ICECandidate) Validate() error {
	if c.Candidate == "" {
		return errors.New("candidate is required")
	}
	if c.SDPMid == nil && c.SDPMLineIndex == nil {
		return errors.New("candidate needs sdpMid or sdpMLineIndex")
	}
	return nil
}

// JoinRoomPayload is sent as {roomId, userId} and arrives from the relay as
// {roomId, otherUserId}.
type JoinRoomPayload struct {
	RoomID      string `json:"roomId"`
	UserID      string `json:"userId,omitempty"`
	OtherUserID string `json:"otherUserId,omitempty"`
}

// Participant returns the id of the user that joined. The manual transport
// delivers the sender's own {userId} form, so both are accepted.
func (p JoinRoomPayload) Participant() string {
	if p.OtherUserID != "" {
		return p.OtherUserID
	}
	return p.UserID
}

func (p JoinRoomPayload) Validate() error {
	if p.RoomID == "" {
		return errors.New("roomId is required")
	}
	if p.Participant() == "" {
		return errors.New("userId or otherUserId is required")
	}
	return nil
}

type OfferPayload struct {
	Offer SessionDescription `json:"offer"`
	Route
}

func (p OfferPayload) Validate() error {
	if err := p.Route.validate(); err != nil {
		return err
	}
	return p.Offer.Expect(SDPTypeOffer)
}

type AnswerPayload struct {
	Answer SessionDescription `json:"answer"`
	Route
}

func (p AnswerPayload) Validate() error {
	if err := p.Route.validate(); err != nil {
		return err
	}
	return p.Answer.Expect(SDPTypeAnswer)
}

type CandidatePayload struct {
	Candidate ICECandidate `json:"candidate"`
	Route
}

func (p CandidatePayload) Validate() error {
	if err := p.Route.validate(); err != nil {
		return err
	}
	return p.Candidate.Validate()
}

type RoomLeavePayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

func (p RoomLeavePayload) Validate() error {
	if p.UserID == "" {
		return errors.New("userId is required")
	}
	return nil
}

// ErrorPayload represents error messages from the relay.
type ErrorPayload struct {
	Error string `json:"error"`
}

func (p ErrorPayload) Validate() error { return nil }
