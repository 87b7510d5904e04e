package signal

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Context keys set by the HTTP identity middleware.
const (
	CtxUserID   = "user_id"
	CtxUsername = "username"
)

const DefaultUploadMaxBytes = 2 << 20

type Options struct {
	// ReadLimit is raised to the frame budget of UploadMaxBytes when lower.
	ReadLimit      int64
	UploadMaxBytes int64
	PingPeriod     time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	AllowOrigin    string
}

func (o Options) withDefaults() Options {
	if o.UploadMaxBytes <= 0 {
		o.UploadMaxBytes = DefaultUploadMaxBytes
	}
	o.ReadLimit = max(o.ReadLimit, core.FrameBudget(o.UploadMaxBytes))
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	Limiter  *RoomRateLimiter
	opts     Options
	upgrader websocket.Upgrader
	validate *validator.Validate
}

func NewSignalWSController(o *orch.Orchestrator, limiter *RoomRateLimiter, opts Options) *SignalWSController {
	opts = opts.withDefaults()
	return &SignalWSController{
		Orch:     o,
		Limiter:  limiter,
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(opts.AllowOrigin)},
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func originChecker(allowed string) func(r *http.Request) bool {
	if allowed == "" || allowed == "*" {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || strings.EqualFold(origin, allowed)
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleSignal validates the handshake identity, upgrades the request and runs
// the connection until either side closes it. A missing identity is rejected
// before the upgrade.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	userID, username := c.GetString(CtxUserID), c.GetString(CtxUsername)
	if _, err := domain.NewUser(userID, username); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("handshake rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": core.ErrInvalidHandshake.Error() + ": " + err.Error()})
		return
	}

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}
	sess, err := ctl.Orch.Registry.Connect(conn, userID, username)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("connect")
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, sess, conn)
	}()
}
