package signal

import "github.com/dkeye/Chat/internal/core"

func (ctl *SignalWSController) handleWhoAmI(sess *core.Session) {
	user := sess.User()
	_ = ctl.Orch.Emitter.Send(sess, core.EventWhoAmI, core.WhoAmIPayload{
		ID:       user.ID,
		Username: user.Username,
		Rooms:    sess.Rooms(),
	})
}
