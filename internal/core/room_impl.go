package core

import (
	"slices"
	"sync"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

type memberEntry struct {
	member   domain.Member
	order    uint64
	sessions map[SessionID]*Session
}

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	id domain.RoomID

	mu      sync.RWMutex
	members map[domain.UserID]*memberEntry
	joins   uint64
	seq     uint64
	dead    bool
	onEmpty func(*roomImpl)

	// Presence emission is serialized in seq order without holding mu.
	emitMu   sync.Mutex
	emitCond *sync.Cond
	emitted  uint64
}

func newRoom(id domain.RoomID, onEmpty func(*roomImpl)) *roomImpl {
	r := &roomImpl{
		id:      id,
		members: make(map[domain.UserID]*memberEntry),
		onEmpty: onEmpty,
	}
	r.emitCond = sync.NewCond(&r.emitMu)
	return r
}

// add joins s to the room. ok is false when the room was already retired and
// the caller must look it up again. changed is true only when the user was
// not present before; seq is then the presence sequence to publish with.
func (r *roomImpl) add(s *Session) (snap Snapshot, seq uint64, changed, ok bool) {
	uid := s.UserID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead {
		return Snapshot{}, 0, false, false
	}
	e, exists := r.members[uid]
	if !exists {
		r.joins++
		e = &memberEntry{
			member:   domain.NewMember(s.User()),
			order:    r.joins,
			sessions: make(map[SessionID]*Session, 1),
		}
		r.members[uid] = e
		changed = true
	}
	e.sessions[s.ID()] = s
	if changed {
		r.seq++
		seq = r.seq
		log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("user", string(uid)).Msg("member added")
	}
	return r.snapshotLocked(), seq, changed, true
}

// remove detaches s. changed is true when the user's last connection left and
// the room still has members; empty is true when the room was retired.
func (r *roomImpl) remove(s *Session) (snap Snapshot, seq uint64, changed, empty bool) {
	uid := s.UserID()
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.members[uid]
	if !ok {
		return Snapshot{}, 0, false, false
	}
	if _, ok := e.sessions[s.ID()]; !ok {
		return Snapshot{}, 0, false, false
	}
	delete(e.sessions, s.ID())
	if len(e.sessions) > 0 {
		return r.snapshotLocked(), 0, false, false
	}
	delete(r.members, uid)
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("user", string(uid)).Msg("member removed")
	if len(r.members) == 0 {
		r.dead = true
		if r.onEmpty != nil {
			r.onEmpty(r)
		}
		return Snapshot{RoomID: r.id}, 0, false, true
	}
	r.seq++
	return r.snapshotLocked(), r.seq, true, false
}

func (r *roomImpl) snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.dead {
		return Snapshot{RoomID: r.id}
	}
	return r.snapshotLocked()
}

func (r *roomImpl) snapshotLocked() Snapshot {
	entries := make([]*memberEntry, 0, len(r.members))
	targets := 0
	for _, e := range r.members {
		entries = append(entries, e)
		targets += len(e.sessions)
	}
	slices.SortFunc(entries, func(a, b *memberEntry) int {
		switch {
		case a.order < b.order:
			return -1
		case a.order > b.order:
			return 1
		}
		return 0
	})
	snap := Snapshot{
		RoomID:  r.id,
		Members: make([]domain.Member, 0, len(entries)),
		Targets: make([]*Session, 0, targets),
	}
	for _, e := range entries {
		snap.Members = append(snap.Members, e.member)
		for _, s := range e.sessions {
			snap.Targets = append(snap.Targets, s)
		}
	}
	return snap
}

func (r *roomImpl) memberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// publish runs fn once every presence change with a lower seq has been
// published. Membership mutations never wait here.
func (r *roomImpl) publish(seq uint64, fn func()) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	for r.emitted+1 != seq {
		r.emitCond.Wait()
	}
	defer func() {
		r.emitted = seq
		r.emitCond.Broadcast()
	}()
	fn()
}
