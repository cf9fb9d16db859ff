package room

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// maxCodeAttempts bounds the number of collisions CreateRoom tolerates before giving up.
const maxCodeAttempts = 32

// Registry maps room ids to rooms. All operations are serialized by a single lock, which makes
// Admit and Remove atomic with respect to each other.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	newCode CodeGenerator
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithCodeGenerator replaces the default room code generator.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(r *Registry) {
		r.newCode = gen
	}
}

// WithClock replaces the clock used for the creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms: make(map[string]*Room),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.newCode == nil {
		r.newCode = mustCodeGenerator()
	}
	return r
}

// CreateRoom inserts an empty room of the given kind under a fresh id and returns the id.
func (r *Registry) CreateRoom(kind Kind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < maxCodeAttempts; i++ {
		id := r.newCode()
		if id == "" {
			continue
		}
		if _, ok := r.rooms[id]; ok {
			continue
		}
		r.rooms[id] = newRoom(id, kind, r.now())
		return id, nil
	}
	return "", ErrCodeSpaceExhausted
}

// Describe returns a snapshot of the room, or ErrRoomNotFound.
func (r *Registry) Describe(roomId string) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomId]
	if !ok {
		return Info{}, ErrRoomNotFound
	}
	return room.info(), nil
}

// Admit checks existence, kind and capacity of the room and adds userId to its members, all in
// one critical section. An expected kind of KindAny skips the kind check. A user id that is
// already a member is rejected with ErrUserExists.
func (r *Registry) Admit(roomId, userId string, expected Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomId]
	if !ok {
		return ErrRoomNotFound
	}
	if expected != KindAny && expected != room.Kind {
		return fmt.Errorf("%w: room %s is %s, not %s", ErrWrongKind, roomId, room.Kind, expected)
	}
	if _, ok := room.members[userId]; ok {
		return ErrUserExists
	}
	if room.full() {
		return fmt.Errorf("%w (max: %d)", ErrRoomFull, room.Kind.Capacity())
	}
	room.members[userId] = struct{}{}
	return nil
}

// Remove deletes userId from the room and returns the remaining member ids. If the room becomes
// empty it is deleted and evicted is true. Removing an absent member, or from an absent room, is a
// no-op.
func (r *Registry) Remove(roomId, userId string) (remaining []string, evicted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomId]
	if !ok {
		return []string{}, false
	}
	if _, ok := room.members[userId]; !ok {
		return room.memberIds(), false
	}
	delete(room.members, userId)
	if len(room.members) == 0 {
		delete(r.rooms, roomId)
		return []string{}, true
	}
	return room.memberIds(), false
}

// Members returns the sorted member ids of the room.
func (r *Registry) Members(roomId string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomId]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room.memberIds(), nil
}

// List returns snapshots of all rooms, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.rooms))
	for _, room := range r.rooms {
		infos = append(infos, room.info())
	}
	r.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].Id < infos[j].Id
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

type Stats struct {
	Rooms   int
	Members int
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{Rooms: len(r.rooms)}
	for _, room := range r.rooms {
		s.Members += len(room.members)
	}
	return s
}
