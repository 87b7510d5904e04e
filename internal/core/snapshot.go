package core

import (
	"iter"

	"github.com/dkeye/Chat/internal/domain"
)

// Snapshot is a copy of a room's membership taken under the room lock.
// Members are ordered by join time; Targets holds every live connection
// joined to the room, so a user with two devices appears once in Members
// and twice in Targets.
type Snapshot struct {
	RoomID  domain.RoomID
	Members []domain.Member
	Targets []*Session
}

func (s Snapshot) Count() int { return len(s.Members) }

// All yields the members in order. Every call starts over from the copy.
func (s Snapshot) All() iter.Seq[domain.Member] {
	return func(yield func(domain.Member) bool) {
		for _, m := range s.Members {
			if !yield(m) {
				return
			}
		}
	}
}

// PresentUserIDs returns the set of users in the snapshot.
func (s Snapshot) PresentUserIDs() map[domain.UserID]struct{} {
	out := make(map[domain.UserID]struct{}, len(s.Members))
	for m := range s.All() {
		out[m.ID] = struct{}{}
	}
	return out
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"memberCount"`
}

// PresenceEmitter delivers a presence snapshot to the room's connections.
type PresenceEmitter interface {
	EmitPresence(snap Snapshot)
}
