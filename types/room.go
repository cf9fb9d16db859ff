package types

import "time"

// Plain HTTP request and response bodies of the room endpoints. The kind of a room is sent under two
// names, roomKind/kind and roomType/type, so older web clients keep working.

type CreateRoomRequest struct {
	RoomKind string `json:"roomKind,omitempty"`
	RoomType string `json:"roomType,omitempty"`
}

// Kind returns the requested room kind, roomKind taking precedence over roomType.
func (r *CreateRoomRequest) Kind() string {
	if r.RoomKind != "" {
		return r.RoomKind
	}
	return r.RoomType
}

type CreateRoomResponse struct {
	RoomId   string `json:"roomId"`
	RoomKind string `json:"roomKind"`
	RoomType string `json:"roomType"`
}

// CheckRoomResponse describes an existing room, so a client can validate kind and capacity before
// it opens the websocket.
type CheckRoomResponse struct {
	Exists       bool   `json:"exists"`
	Kind         string `json:"kind"`
	Type         string `json:"type"`
	CurrentUsers int    `json:"currentUsers"`
	MaxUsers     int    `json:"maxUsers"`
}

type RoomSummary struct {
	RoomId       string    `json:"roomId"`
	RoomKind     string    `json:"roomKind"`
	RoomType     string    `json:"roomType"`
	CurrentUsers int       `json:"currentUsers"`
	MaxUsers     int       `json:"maxUsers"`
	Full         bool      `json:"full"`
	CreatedAt    time.Time `json:"createdAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
