package orch

import (
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/core/mocks"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) events() []core.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env core.Envelope
		_ = json.Unmarshal(f, &env)
		out = append(out, env)
	}
	return out
}

// count returns how many events named event the connection received.
func (c *fakeConn) count(event string) int {
	n := 0
	for _, e := range c.events() {
		if e.Event == event {
			n++
		}
	}
	return n
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

type fixture struct {
	orch  *Orchestrator
	store *mocks.MockGateway
	up    *mocks.MockUploader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockGateway(ctrl)
	up := mocks.NewMockUploader(ctrl)

	em := app.NewEmitter(app.DropPolicy{})
	tracker := core.NewTracker(em)
	reg := app.NewRegistry(tracker)
	return &fixture{orch: New(reg, tracker, em, store, up), store: store, up: up}
}

func (f *fixture) connect(t *testing.T, uid string) (*core.Session, *fakeConn) {
	t.Helper()
	c := &fakeConn{}
	s, err := f.orch.Registry.Connect(c, uid, "name-"+uid)
	if err != nil {
		t.Fatalf("connect %s: %v", uid, err)
	}
	return s, c
}
