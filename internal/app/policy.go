package app

import "github.com/dkeye/Chat/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a connection whose outbound queue is full.
type Policy interface {
	OnBackPressure(member *core.Session) BackpressureAction
}

// DropPolicy keeps slow connections and discards the frame.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(*core.Session) BackpressureAction { return DropFrame }

// KickPolicy closes slow connections; their read loop then disconnects them.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(*core.Session) BackpressureAction { return KickMember }

// PolicyFor maps the config value to a policy. Unknown names drop.
func PolicyFor(name string) Policy {
	if name == "kick" {
		return KickPolicy{}
	}
	return DropPolicy{}
}
