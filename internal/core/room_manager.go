package core

import (
	"slices"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

const shardCount = 32

type roomShard struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomImpl
}

// Tracker owns the live room membership. Rooms are spread over shards so that
// lookups of different rooms rarely contend, and each room carries its own
// lock for mutations. Lock order is Session.mu, then roomImpl.mu, then
// roomShard.mu.
type Tracker struct {
	shards [shardCount]roomShard
	emit   PresenceEmitter
}

func NewTracker(emit PresenceEmitter) *Tracker {
	t := &Tracker{emit: emit}
	for i := range t.shards {
		t.shards[i].rooms = make(map[domain.RoomID]*roomImpl)
	}
	return t
}

func (t *Tracker) shardFor(id domain.RoomID) *roomShard {
	return &t.shards[xxhash.Sum64String(string(id))%shardCount]
}

func (t *Tracker) lookup(id domain.RoomID) (*roomImpl, bool) {
	sh := t.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	r, ok := sh.rooms[id]
	return r, ok
}

func (t *Tracker) getOrCreate(id domain.RoomID) *roomImpl {
	if r, ok := t.lookup(id); ok {
		return r
	}
	sh := t.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if r, ok := sh.rooms[id]; ok {
		return r
	}
	r := newRoom(id, func(dead *roomImpl) {
		sh.mu.Lock()
		if sh.rooms[id] == dead {
			delete(sh.rooms, id)
		}
		sh.mu.Unlock()
		log.Debug().Str("module", "core.tracker").Str("room", string(id)).Msg("room retired")
	})
	sh.rooms[id] = r
	return r
}

// Join adds the connection to the room. Joining again is a no-op that still
// returns a fresh snapshot; presence is emitted only when the user was not
// already present through another connection, which is what changed reports.
func (t *Tracker) Join(roomID domain.RoomID, s *Session) (Snapshot, bool, error) {
	if roomID == "" {
		return Snapshot{}, false, ErrInvalidPayload
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, false, ErrSessionClosed
	}
	var (
		r       *roomImpl
		snap    Snapshot
		seq     uint64
		changed bool
	)
	for {
		var ok bool
		r = t.getOrCreate(roomID)
		if snap, seq, changed, ok = r.add(s); ok {
			break
		}
	}
	s.rooms[roomID] = struct{}{}
	s.mu.Unlock()

	if changed {
		t.publish(r, seq, snap)
	}
	return snap, changed, nil
}

// Leave detaches the connection from the room. The user leaves the room when
// their last joined connection does. It returns false when the connection was
// not joined or the room was emptied and removed.
func (t *Tracker) Leave(roomID domain.RoomID, s *Session) (Snapshot, bool) {
	s.mu.Lock()
	if _, ok := s.rooms[roomID]; !ok {
		s.mu.Unlock()
		return Snapshot{}, false
	}
	delete(s.rooms, roomID)
	snap, ok, publish := t.leave(roomID, s)
	s.mu.Unlock()
	publish()
	return snap, ok
}

// Purge removes a disconnecting connection from every room it joined and
// refuses any later Join. Calling it again is a no-op.
func (t *Tracker) Purge(s *Session) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	rooms := make([]domain.RoomID, 0, len(s.rooms))
	for id := range s.rooms {
		rooms = append(rooms, id)
	}
	clear(s.rooms)
	s.mu.Unlock()

	for _, id := range rooms {
		_, _, publish := t.leave(id, s)
		publish()
	}
	log.Debug().Str("module", "core.tracker").Str("sid", string(s.ID())).Int("rooms", len(rooms)).Msg("purged connection")
}

// leave mutates membership and hands back the presence publication so the
// caller can run it after releasing the session lock.
func (t *Tracker) leave(roomID domain.RoomID, s *Session) (Snapshot, bool, func()) {
	r, ok := t.lookup(roomID)
	if !ok {
		return Snapshot{}, false, func() {}
	}
	snap, seq, changed, empty := r.remove(s)
	if empty {
		return Snapshot{}, false, func() {}
	}
	if !changed {
		return snap, true, func() {}
	}
	return snap, true, func() { t.publish(r, seq, snap) }
}

func (t *Tracker) publish(r *roomImpl, seq uint64, snap Snapshot) {
	r.publish(seq, func() {
		if t.emit != nil {
			t.emit.EmitPresence(snap)
		}
	})
}

// Snapshot returns a copy of the room's current members and connections.
// An unknown or emptied room yields an empty snapshot.
func (t *Tracker) Snapshot(roomID domain.RoomID) Snapshot {
	r, ok := t.lookup(roomID)
	if !ok {
		return Snapshot{RoomID: roomID}
	}
	return r.snapshot()
}

// List reports every live room with its member count, ordered by id.
func (t *Tracker) List() []RoomInfo {
	var rooms []*roomImpl
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.RLock()
		for _, r := range sh.rooms {
			rooms = append(rooms, r)
		}
		sh.mu.RUnlock()
	}
	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		if n := r.memberCount(); n > 0 {
			out = append(out, RoomInfo{ID: r.id, MemberCount: n})
		}
	}
	slices.SortFunc(out, func(a, b RoomInfo) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out
}

// MemberCount returns the number of distinct users present in the room.
func (t *Tracker) MemberCount(roomID domain.RoomID) int {
	r, ok := t.lookup(roomID)
	if !ok {
		return 0
	}
	return r.memberCount()
}
