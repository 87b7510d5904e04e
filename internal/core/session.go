package core

import (
	"slices"
	"sync"

	"github.com/dkeye/Chat/internal/domain"
)

type SessionID string

// Session binds a verified identity to one transport connection.
// The identity is immutable for the lifetime of the connection; the set of
// joined rooms is owned by the Tracker.
type Session struct {
	id   SessionID
	user domain.User
	sig  SignalConnection

	mu     sync.Mutex
	rooms  map[domain.RoomID]struct{}
	closed bool
}

func NewSession(id SessionID, user domain.User, sig SignalConnection) *Session {
	return &Session{
		id:    id,
		user:  user,
		sig:   sig,
		rooms: make(map[domain.RoomID]struct{}),
	}
}

func (s *Session) ID() SessionID            { return s.id }
func (s *Session) User() domain.User        { return s.user }
func (s *Session) UserID() domain.UserID    { return s.user.ID }
func (s *Session) Signal() SignalConnection { return s.sig }

// Rooms returns the rooms this connection is joined to, sorted.
func (s *Session) Rooms() []domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RoomID, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Closed reports whether the session has been purged by a disconnect.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
