package signal

import "github.com/dkeye/Chat/internal/core"

func (ctl *SignalWSController) handlePing(sess *core.Session) {
	_ = ctl.Orch.Emitter.Send(sess, core.EventPong, struct{}{})
}
