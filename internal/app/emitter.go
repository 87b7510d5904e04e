package app

import (
	"errors"

	"github.com/dkeye/Chat/internal/core"
	"github.com/rs/zerolog/log"
)

// Kicker drops a connection from the server side.
type Kicker interface {
	Kick(sid core.SessionID) bool
}

// Emitter encodes events and enqueues them on connection outboxes.
// It never touches the network; write pumps own that.
type Emitter struct {
	Policy Policy
	// Kicker is set once the registry exists. Without it, or for a
	// connection it does not know, the transport is closed directly.
	Kicker Kicker
}

func NewEmitter(policy Policy) *Emitter {
	if policy == nil {
		policy = DropPolicy{}
	}
	return &Emitter{Policy: policy}
}

// Send enqueues one event for a single connection.
func (e *Emitter) Send(s *core.Session, event string, data any) error {
	frame, err := core.EncodeEvent(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "app.emitter").Str("event", event).Msg("encode event")
		return err
	}
	return e.deliver(s, frame)
}

// SendError enqueues an error event carrying msg.
func (e *Emitter) SendError(s *core.Session, msg string) {
	_ = e.Send(s, core.EventError, core.ErrorPayload{Message: msg})
}

// Broadcast encodes once and enqueues for every target.
func (e *Emitter) Broadcast(targets []*core.Session, event string, data any) core.PublishResult {
	res := core.PublishResult{}
	if len(targets) == 0 {
		return res
	}
	frame, err := core.EncodeEvent(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "app.emitter").Str("event", event).Msg("encode event")
		return res
	}
	for _, s := range targets {
		if err := e.deliver(s, frame); err != nil {
			res.Dropped = append(res.Dropped, s)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "app.emitter").Str("event", event).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// EmitPresence implements core.PresenceEmitter.
func (e *Emitter) EmitPresence(snap core.Snapshot) {
	e.Broadcast(snap.Targets, core.EventRoomUsersUpdated, core.NewPresencePayload(snap))
}

func (e *Emitter) deliver(s *core.Session, frame core.Frame) error {
	err := s.Signal().TrySend(frame)
	if err == nil || !errors.Is(err, core.ErrBackpressure) {
		return err
	}
	switch e.Policy.OnBackPressure(s) {
	case KickMember:
		log.Warn().Str("module", "app.emitter").Str("sid", string(s.ID())).Msg("slow connection kicked")
		if e.Kicker == nil || !e.Kicker.Kick(s.ID()) {
			s.Signal().Close()
		}
	case DropFrame, NoAction:
		log.Debug().Str("module", "app.emitter").Str("sid", string(s.ID())).Msg("frame dropped")
	}
	return err
}
