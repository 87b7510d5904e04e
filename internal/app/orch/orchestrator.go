package orch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

const defaultFanOutTimeout = 10 * time.Second

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *core.Tracker
	Emitter  *app.Emitter
	Store    core.Gateway
	Uploader core.Uploader
	FanOut   *FanOut

	// FanOutTimeout bounds notification bookkeeping after a broadcast. It is
	// detached from the sender's context so a disconnect does not cut it short.
	FanOutTimeout time.Duration
}

func New(reg *app.Registry, rooms *core.Tracker, em *app.Emitter, store core.Gateway, up core.Uploader) *Orchestrator {
	return &Orchestrator{
		Registry:      reg,
		Rooms:         rooms,
		Emitter:       em,
		Store:         store,
		Uploader:      up,
		FanOut:        &FanOut{Store: store, Sessions: reg, Emitter: em},
		FanOutTimeout: defaultFanOutTimeout,
	}
}

type SendInput struct {
	RoomID      domain.RoomID
	Content     string
	Attachments []domain.Upload
}

// SendMessage validates, persists and broadcasts a message from s, then runs
// the notification fan-out with the room snapshot used for the broadcast.
// On failure exactly one error event goes to the sender and nothing is
// broadcast.
func (o *Orchestrator) SendMessage(ctx context.Context, s *core.Session, in SendInput) (domain.Message, error) {
	if in.RoomID == "" || s.UserID() == "" || (strings.TrimSpace(in.Content) == "" && len(in.Attachments) == 0) {
		o.Emitter.SendError(s, "Invalid message payload")
		return domain.Message{}, core.ErrInvalidPayload
	}

	logger := log.With().
		Str("module", "orch").
		Str("sid", string(s.ID())).
		Str("room", string(in.RoomID)).
		Logger()

	attachments, err := o.upload(ctx, in.RoomID, in.Attachments)
	if err != nil {
		logger.Error().Err(err).Msg("attachment upload failed")
		o.Emitter.SendError(s, "Failed to upload attachment")
		return domain.Message{}, fmt.Errorf("%w: upload: %w", core.ErrPersistence, err)
	}

	msg, err := o.Store.CreateMessage(ctx, domain.NewMessage{
		RoomID:      in.RoomID,
		Sender:      s.User(),
		Content:     in.Content,
		Attachments: attachments,
	})
	if err != nil {
		logger.Error().Err(err).Msg("create message failed")
		o.discard(ctx, attachments)
		o.Emitter.SendError(s, "Failed to send message")
		return domain.Message{}, fmt.Errorf("%w: create message: %w", core.ErrPersistence, err)
	}

	snap := o.Rooms.Snapshot(in.RoomID)
	res := o.Emitter.Broadcast(snap.Targets, core.EventReceiveMessage, msg)
	logger.Info().Str("message", string(msg.ID)).Int("sent_to", res.SendTo).Msg("message broadcast")

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.FanOutTimeout)
	defer cancel()
	o.FanOut.Dispatch(fctx, msg, snap)
	return msg, nil
}

func (o *Orchestrator) upload(ctx context.Context, roomID domain.RoomID, ups []domain.Upload) ([]domain.Attachment, error) {
	if len(ups) == 0 {
		return nil, nil
	}
	if o.Uploader == nil {
		return nil, fmt.Errorf("attachments are not supported")
	}
	out := make([]domain.Attachment, 0, len(ups))
	for _, up := range ups {
		att, err := o.Uploader.Upload(ctx, roomID, up)
		if err != nil {
			o.discard(ctx, out)
			return nil, err
		}
		out = append(out, att)
	}
	return out, nil
}

// discard removes stored attachments that no message owns.
func (o *Orchestrator) discard(ctx context.Context, atts []domain.Attachment) {
	for _, a := range atts {
		if err := o.Uploader.Remove(context.WithoutCancel(ctx), a); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("attachment", a.ID).Msg("orphan attachment not removed")
		}
	}
}
