package types

// Client to server events.
const (
	EventJoinRoom     = "join-room"
	EventSendMessage  = "send-message"
	EventLeaveRoom    = "leave-room"
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice-candidate"
)

// Server to client events. offer, answer and ice-candidate use the same names in both directions.
const (
	EventRoomUsers        = "room-users"
	EventUserConnected    = "user-connected"
	EventUserDisconnected = "user-disconnected"
	EventReceiveMessage   = "receive-message"
	EventRoomError        = "room-error"
)

// Codes sent in RoomError.
const (
	ErrorCodeRoomNotFound   = "room_not_found"
	ErrorCodeWrongKind      = "wrong_kind"
	ErrorCodeRoomFull       = "room_full"
	ErrorCodeUserExists     = "user_exists"
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeAlreadyJoined  = "already_joined"
)

// IsSignal reports whether event is one of the negotiation events relayed to a single peer.
func IsSignal(event string) bool {
	switch event {
	case EventOffer, EventAnswer, EventICECandidate:
		return true
	}
	return false
}
