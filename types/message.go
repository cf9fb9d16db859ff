package types

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/mitchellh/hashstructure/v2"
)

// The different types of messages transferred from the client to here.

// JoinRoom is the data of a join-room event. RoomKind is optional, if set the join fails unless the
// room is of that kind.
type JoinRoom struct {
	RoomId   string `json:"roomId" mapstructure:"roomId"`
	UserId   string `json:"userId" mapstructure:"userId"`
	UserName string `json:"userName" mapstructure:"userName"`
	RoomKind string `json:"roomKind,omitempty" mapstructure:"roomKind"`
}

// ChatRequest is the object form of a send-message event, the plain string form is accepted as well.
type ChatRequest struct {
	Message string `json:"message" mapstructure:"message"`
}

// SignalRequest is the data of an offer, answer or ice-candidate event. Only the field matching the
// event is used, the payload is relayed as is.
type SignalRequest struct {
	To        string          `json:"to"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// Payload returns the negotiation payload belonging to event.
func (r *SignalRequest) Payload(event string) json.RawMessage {
	switch event {
	case EventOffer:
		return r.Offer
	case EventAnswer:
		return r.Answer
	case EventICECandidate:
		return r.Candidate
	}
	return nil
}

// The different types of messages sent from here to the clients.

// Signal is a relayed negotiation message, tagged with the sender's user id.
type Signal struct {
	From      string          `json:"from"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// NewSignal builds the outbound form of a negotiation event.
func NewSignal(event, from string, payload json.RawMessage) Signal {
	s := Signal{From: from}
	switch event {
	case EventOffer:
		s.Offer = payload
	case EventAnswer:
		s.Answer = payload
	case EventICECandidate:
		s.Candidate = payload
	}
	return s
}

// Payload returns the negotiation payload belonging to event.
func (s *Signal) Payload(event string) json.RawMessage {
	r := SignalRequest{Offer: s.Offer, Answer: s.Answer, Candidate: s.Candidate}
	return r.Payload(event)
}

// ReceiveMessage is a chat message as delivered to the other members of a room.
type ReceiveMessage struct {
	Id        string    `json:"id" hash:"ignore"`
	UserId    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// CreateId sets the message id to the hash of sender, text and timestamp.
func (m *ReceiveMessage) CreateId() error {
	hash, err := hashstructure.Hash(m, hashstructure.FormatV2, nil)
	if err != nil {
		return err
	}
	m.Id = strconv.FormatUint(hash, 16)
	return nil
}

// RoomError reports a failed admission to the requesting connection.
type RoomError struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}
