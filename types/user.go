package types

import "time"

// User identifies a participant on the wire. Ids are chosen by the clients.
type User struct {
	UserId   string `json:"userId"`
	UserName string `json:"userName"`
}

// UserConnected is broadcast to the other members when a participant joined.
type UserConnected struct {
	User
	Timestamp time.Time `json:"timestamp"`
}

// UserDisconnected is broadcast to the remaining members when a participant left or lost its
// connection.
type UserDisconnected struct {
	User
}
