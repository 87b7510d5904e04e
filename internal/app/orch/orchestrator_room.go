package orch

import (
	"errors"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join puts the connection into the room. A missing room id is answered with
// an error event; a connection already being torn down is ignored. When the
// join did not change presence, only the joining connection gets the list.
func (o *Orchestrator) Join(s *core.Session, roomID domain.RoomID) (core.Snapshot, error) {
	snap, changed, err := o.Rooms.Join(roomID, s)
	switch {
	case errors.Is(err, core.ErrInvalidPayload):
		o.Emitter.SendError(s, "roomId is required")
		return core.Snapshot{}, err
	case err != nil:
		return core.Snapshot{}, err
	}
	if !changed {
		_ = o.Emitter.Send(s, core.EventRoomUsersUpdated, core.NewPresencePayload(snap))
	}
	log.Info().Str("module", "orch").Str("sid", string(s.ID())).Str("room", string(roomID)).Int("count", snap.Count()).Bool("changed", changed).Msg("joined room")
	return snap, nil
}

// Leave takes the connection out of the room. Leaving a room the connection
// is not in is a no-op.
func (o *Orchestrator) Leave(s *core.Session, roomID domain.RoomID) (core.Snapshot, bool) {
	if roomID == "" {
		o.Emitter.SendError(s, "roomId is required")
		return core.Snapshot{}, false
	}
	snap, ok := o.Rooms.Leave(roomID, s)
	log.Info().Str("module", "orch").Str("sid", string(s.ID())).Str("room", string(roomID)).Bool("room_alive", ok).Msg("left room")
	return snap, ok
}

func (o *Orchestrator) Disconnect(sid core.SessionID) {
	o.Registry.Disconnect(sid)
}
