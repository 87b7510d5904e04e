package app

import (
	"fmt"
	"sync"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Purger removes a connection from every room it occupies.
type Purger interface {
	Purge(s *core.Session)
}

// Registry binds live connections to identities. One user may hold several
// connections at once.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*core.Session
	byUser   map[domain.UserID]map[core.SessionID]*core.Session
	rooms    Purger
}

func NewRegistry(rooms Purger) *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*core.Session),
		byUser:   make(map[domain.UserID]map[core.SessionID]*core.Session),
		rooms:    rooms,
	}
}

// Connect validates the handshake identity and binds it to sig.
func (r *Registry) Connect(sig core.SignalConnection, userID, username string) (*core.Session, error) {
	user, err := domain.NewUser(userID, username)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidHandshake, err)
	}
	sid := core.SessionID(uuid.NewString())
	sess := core.NewSession(sid, *user, sig)

	r.mu.Lock()
	r.sessions[sid] = sess
	conns, ok := r.byUser[user.ID]
	if !ok {
		conns = make(map[core.SessionID]*core.Session, 1)
		r.byUser[user.ID] = conns
	}
	conns[sid] = sess
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", string(user.ID)).Msg("connected")
	return sess, nil
}

// Disconnect purges the connection from its rooms, then releases the binding.
// Unknown connections are ignored.
func (r *Registry) Disconnect(sid core.SessionID) {
	r.mu.RLock()
	sess, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if r.rooms != nil {
		r.rooms.Purge(sess)
	}

	r.mu.Lock()
	if cur, ok := r.sessions[sid]; ok && cur == sess {
		delete(r.sessions, sid)
		uid := sess.UserID()
		if conns, ok := r.byUser[uid]; ok {
			delete(conns, sid)
			if len(conns) == 0 {
				delete(r.byUser, uid)
			}
		}
	}
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", string(sess.UserID())).Msg("disconnected")
}

func (r *Registry) GetSession(sid core.SessionID) (*core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sid]
	return s, ok
}

// SessionsOf returns every live connection of the user.
func (r *Registry) SessionsOf(uid domain.UserID) []*core.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.byUser[uid]
	out := make([]*core.Session, 0, len(conns))
	for _, s := range conns {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Kick closes the transport of a live connection; its read loop finishes
// the disconnect. It reports false for unknown connections.
func (r *Registry) Kick(sid core.SessionID) bool {
	s, ok := r.GetSession(sid)
	if !ok {
		return false
	}
	s.Signal().Close()
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", string(s.UserID())).Msg("kicked")
	return true
}

// CloseAll closes every bound transport; read loops then disconnect them.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	all := make([]*core.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()
	for _, s := range all {
		s.Signal().Close()
	}
	log.Info().Str("module", "app.registry").Int("sessions", len(all)).Msg("closed all sessions")
}
