package runtime

import (
	"cmp"
	"slices"
	"sync"
	"whiteboard-relay/contract"
	"whiteboard-relay/domain"

	"github.com/samber/lo"
)

// Set is the membership of one room. Identity is the connection value itself,
// so two distinct connections from the same peer are two members.
type Set map[contract.Connection]struct{}

type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]Set
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[domain.RoomID]Set),
	}
}

// Join adds conn to the room, creating the room on its first member.
// Joining twice with the same connection is a no-op and reports false.
func (r *Registry) Join(roomID domain.RoomID, conn contract.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(Set)
		r.rooms[roomID] = members
	}
	if _, exists := members[conn]; exists {
		return false
	}
	members[conn] = struct{}{}
	return true
}

// Leave removes conn from the room. The room entry is dropped in the same
// critical section that empties it, so a room is never observable with zero
// members. Unknown rooms and non-members are ignored.
func (r *Registry) Leave(roomID domain.RoomID, conn contract.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, exists := members[conn]; !exists {
		return false
	}
	delete(members, conn)

	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
	return true
}

// MembersOf returns a copy of the room's members without exclude.
// Callers iterate the copy, never the live set, so sends can happen
// while other connections join or leave.
func (r *Registry) MembersOf(roomID domain.RoomID, exclude contract.Connection) []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return lo.Filter(lo.Keys(members), func(conn contract.Connection, _ int) bool {
		return conn != exclude
	})
}

func (r *Registry) MemberCount(roomID domain.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

func (r *Registry) Has(roomID domain.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Snapshot lists live rooms ordered by ID.
func (r *Registry) Snapshot() []domain.RoomStats {
	r.mu.RLock()
	stats := lo.MapToSlice(r.rooms, func(id domain.RoomID, members Set) domain.RoomStats {
		return domain.RoomStats{ID: id, Members: len(members)}
	})
	r.mu.RUnlock()

	slices.SortFunc(stats, func(a, b domain.RoomStats) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return stats
}

func (r *Registry) Stats() (rooms, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, members := range r.rooms {
		connections += len(members)
	}
	return len(r.rooms), connections
}
