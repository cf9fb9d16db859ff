package room

import "errors"

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrWrongKind    = errors.New("room is of a different kind")
	ErrRoomFull     = errors.New("room is full")
	ErrUserExists   = errors.New("user id already present in room")
	ErrUnknownKind  = errors.New("unknown room kind")

	// ErrCodeSpaceExhausted is returned by CreateRoom if no unused room code was found.
	ErrCodeSpaceExhausted = errors.New("could not generate an unused room code")
)
