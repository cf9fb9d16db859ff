package room

import (
	"fmt"
	"strings"
)

// Kind is the type of a room. The capacity of a room is derived from its kind only.
type Kind string

const (
	// KindAny is only meaningful as the expected kind of an admission: it skips the kind check.
	KindAny     Kind = ""
	KindPrivate Kind = "private"
	KindGroup   Kind = "group"
)

const (
	privateCapacity = 2
	groupCapacity   = 10
)

// Capacity returns the maximum number of members of a room of kind k.
func (k Kind) Capacity() int {
	switch k {
	case KindPrivate:
		return privateCapacity
	case KindGroup:
		return groupCapacity
	}
	return 0
}

func (k Kind) String() string {
	return string(k)
}

// Valid reports whether k is a concrete room kind.
func (k Kind) Valid() bool {
	return k == KindPrivate || k == KindGroup
}

// ParseKind parses the wire representation of a room kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return KindAny, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}
