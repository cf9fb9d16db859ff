package room

import (
	"sort"
	"time"
)

// Room is the registry's record of a single room. It only knows member ids, the live connections
// belonging to those ids are tracked by the session manager.
type Room struct {
	Id        string
	Kind      Kind
	CreatedAt time.Time

	members map[string]struct{}
}

func newRoom(id string, kind Kind, createdAt time.Time) *Room {
	return &Room{
		Id:        id,
		Kind:      kind,
		CreatedAt: createdAt,
		members:   make(map[string]struct{}, kind.Capacity()),
	}
}

func (r *Room) full() bool {
	return len(r.members) >= r.Kind.Capacity()
}

func (r *Room) memberIds() []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Room) info() Info {
	return Info{
		Id:          r.Id,
		Kind:        r.Kind,
		MemberCount: len(r.members),
		Capacity:    r.Kind.Capacity(),
		CreatedAt:   r.CreatedAt,
	}
}

// Info is a point-in-time snapshot of a room.
type Info struct {
	Id          string
	Kind        Kind
	MemberCount int
	Capacity    int
	CreatedAt   time.Time
}

// Full reports whether the room had no free slot when the snapshot was taken.
func (i Info) Full() bool {
	return i.MemberCount >= i.Capacity
}
