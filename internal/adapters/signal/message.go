package signal

import (
	"context"
	"encoding/base64"

	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

type attachmentPayload struct {
	FileName string `json:"fileName" validate:"required,max=255"`
	Data     string `json:"data" validate:"required,base64"`
}

// sendPayload leaves emptiness rules to the dispatcher, which owns them.
type sendPayload struct {
	RoomID      string              `json:"roomId" validate:"max=64"`
	Content     string              `json:"content" validate:"max=4000"`
	Attachments []attachmentPayload `json:"attachments" validate:"max=10,dive"`
}

func (ctl *SignalWSController) handleSend(ctx context.Context, sess *core.Session, data []byte) {
	var p sendPayload
	if err := ctl.decode(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad send payload")
		ctl.Orch.Emitter.SendError(sess, "Invalid message payload")
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(sess.UserID()) {
		log.Warn().Str("module", "signal").Str("sid", string(sess.ID())).Msg("rate limit exceeded")
		ctl.Orch.Emitter.SendError(sess, "Too many messages, slow down")
		return
	}

	in := orch.SendInput{
		RoomID:  domain.RoomID(p.RoomID),
		Content: p.Content,
	}
	for _, a := range p.Attachments {
		raw, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			ctl.Orch.Emitter.SendError(sess, "Invalid attachment encoding")
			return
		}
		in.Attachments = append(in.Attachments, domain.Upload{FileName: a.FileName, Data: raw})
	}
	_, _ = ctl.Orch.SendMessage(ctx, sess, in)
}
