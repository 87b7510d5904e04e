package signal

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dkeye/Chat/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(ctl.opts.WriteWait)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping failed")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sess *core.Session, c *WsSignalConn) {
	sid := sess.ID()
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Orch.Disconnect(sid)
		if ctl.Limiter != nil && len(ctl.Orch.Registry.SessionsOf(sess.UserID())) == 0 {
			ctl.Limiter.Release(sess.UserID())
		}
		c.Close()
	}()

	pongWait := ctl.opts.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if errors.Is(err, websocket.ErrReadLimit) {
					log.Warn().Str("module", "signal").Str("sid", string(sid)).Int64("limit", ctl.opts.ReadLimit).Msg("message too large")
				} else if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(ctx, sess, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sess *core.Session, data []byte) {
	env, err := core.DecodeEnvelope(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.Orch.Emitter.SendError(sess, "Malformed event")
		return
	}

	switch env.Event {
	case core.EventJoinRoom:
		ctl.handleJoin(sess, env.Data)
	case core.EventLeaveRoom:
		ctl.handleLeave(sess, env.Data)
	case core.EventSendMessage:
		ctl.handleSend(ctx, sess, env.Data)
	case core.EventPing:
		ctl.handlePing(sess)
	case core.EventWhoAmI:
		ctl.handleWhoAmI(sess)
	default:
		log.Warn().Str("module", "signal").Str("event", env.Event).Msg("unknown signal")
		ctl.Orch.Emitter.SendError(sess, "Unknown event")
	}
}

// decode unmarshals and validates an event payload. An absent payload decodes
// to the zero value so that required-field checks report it.
func (ctl *SignalWSController) decode(raw []byte, v any) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, v); err != nil {
			return err
		}
	}
	return ctl.validate.Struct(v)
}
