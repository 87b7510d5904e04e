package signal

import (
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

type roomPayload struct {
	RoomID string `json:"roomId" validate:"required,max=64"`
}

func (ctl *SignalWSController) handleJoin(sess *core.Session, data []byte) {
	var p roomPayload
	if err := ctl.decode(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.Orch.Emitter.SendError(sess, "roomId is required")
		return
	}
	_, _ = ctl.Orch.Join(sess, domain.RoomID(p.RoomID))
}

// handleLeave leaves one room; the connection itself stays open.
func (ctl *SignalWSController) handleLeave(sess *core.Session, data []byte) {
	var p roomPayload
	if err := ctl.decode(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad leave payload")
		ctl.Orch.Emitter.SendError(sess, "roomId is required")
		return
	}
	ctl.Orch.Leave(sess, domain.RoomID(p.RoomID))
}
