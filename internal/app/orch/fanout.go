package orch

import (
	"context"
	"slices"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// SessionLookup finds every live connection of a user, across all rooms.
type SessionLookup interface {
	SessionsOf(uid domain.UserID) []*core.Session
}

// FanOut notifies subscribers that were absent from the room when a message
// was broadcast.
type FanOut struct {
	Store    core.Gateway
	Sessions SessionLookup
	Emitter  *app.Emitter
}

type DispatchResult struct {
	Recipients []domain.UserID
	Pushed     int
	StoreErr   error
}

// Recipients returns subscribers that are neither the sender nor present in
// the snapshot, deduplicated and sorted.
func Recipients(subscribers []domain.UserID, sender domain.UserID, snap core.Snapshot) []domain.UserID {
	present := snap.PresentUserIDs()
	seen := make(map[domain.UserID]struct{}, len(subscribers))
	out := make([]domain.UserID, 0, len(subscribers))
	for _, uid := range subscribers {
		if uid == "" || uid == sender {
			continue
		}
		if _, ok := present[uid]; ok {
			continue
		}
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		out = append(out, uid)
	}
	slices.Sort(out)
	return out
}

// Dispatch stores notification records for absent subscribers and pushes a
// live notification to each of their connections. A failed batch insert is
// logged and does not stop the pushes.
func (f *FanOut) Dispatch(ctx context.Context, msg domain.Message, snap core.Snapshot) DispatchResult {
	logger := log.With().
		Str("module", "orch.fanout").
		Str("room", string(msg.RoomID)).
		Str("message", string(msg.ID)).
		Logger()

	subs, err := f.Store.ListRoomSubscribers(ctx, msg.RoomID)
	if err != nil {
		logger.Error().Err(err).Msg("list subscribers failed")
		return DispatchResult{StoreErr: err}
	}
	res := DispatchResult{Recipients: Recipients(subs, msg.UserID, snap)}
	if len(res.Recipients) == 0 {
		return res
	}

	batch := make([]domain.NewNotification, 0, len(res.Recipients))
	for _, uid := range res.Recipients {
		batch = append(batch, domain.NewNotification{
			UserID:    uid,
			RoomID:    msg.RoomID,
			MessageID: msg.ID,
			Type:      domain.NotificationNewMessage,
		})
	}
	if err := f.Store.CreateNotifications(ctx, batch); err != nil {
		res.StoreErr = err
		logger.Error().Err(err).Int("recipients", len(batch)).Msg("create notifications failed")
	}

	var roomName string
	if room, err := f.Store.GetRoom(ctx, msg.RoomID); err != nil {
		logger.Warn().Err(err).Msg("room lookup failed")
	} else {
		roomName = room.Name
	}

	payload := core.NotificationPayload{
		Type:         domain.NotificationNewMessage,
		RoomID:       msg.RoomID,
		RoomName:     roomName,
		Content:      msg.Content,
		FromUserID:   msg.UserID,
		FromUsername: msg.User.Username,
		CreatedAt:    msg.CreatedAt,
		MessageID:    msg.ID,
		IsRead:       false,
	}
	for _, uid := range res.Recipients {
		conns := f.Sessions.SessionsOf(uid)
		if len(conns) == 0 {
			continue
		}
		res.Pushed += f.Emitter.Broadcast(conns, core.EventNotification, payload).SendTo
	}
	logger.Info().Int("recipients", len(res.Recipients)).Int("pushed", res.Pushed).Msg("notifications dispatched")
	return res
}
