package signal

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// RoomRateLimiter throttles send_message per user, across all of the user's
// connections. A bucket outlives the user's connections until it refills.
type RoomRateLimiter struct {
	mu       sync.Mutex
	limiters map[domain.UserID]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRoomRateLimiter allows perSecond messages with the given burst.
// perSecond <= 0 disables limiting.
func NewRoomRateLimiter(perSecond float64, burst int) *RoomRateLimiter {
	rl := &RoomRateLimiter{limiters: make(map[domain.UserID]*rate.Limiter)}
	rl.limit, rl.burst = toLimit(perSecond, burst)
	return rl
}

func toLimit(perSecond float64, burst int) (rate.Limit, int) {
	if perSecond <= 0 {
		return rate.Inf, 0
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.Limit(perSecond), burst
}

func (rl *RoomRateLimiter) Allow(uid domain.UserID) bool {
	rl.mu.Lock()
	l, ok := rl.limiters[uid]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[uid] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}

// SetLimit applies a new rate. Buckets start over full.
func (rl *RoomRateLimiter) SetLimit(perSecond float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limit, rl.burst = toLimit(perSecond, burst)
	clear(rl.limiters)
}

// full reports whether l is indistinguishable from a fresh bucket.
func (rl *RoomRateLimiter) full(l *rate.Limiter, now time.Time) bool {
	return rl.limit == rate.Inf || l.TokensAt(now) >= float64(rl.burst)
}

// Release drops the user's bucket if it has refilled. The caller has no
// connections of the user left; a drained bucket stays for Sweep.
func (rl *RoomRateLimiter) Release(uid domain.UserID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if l, ok := rl.limiters[uid]; ok && rl.full(l, time.Now()) {
		delete(rl.limiters, uid)
	}
}

// Sweep drops every refilled bucket and returns how many remain.
func (rl *RoomRateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for uid, l := range rl.limiters {
		if rl.full(l, now) {
			delete(rl.limiters, uid)
		}
	}
	return len(rl.limiters)
}

// Run sweeps on every tick until ctx is done.
func (rl *RoomRateLimiter) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			left := rl.Sweep()
			log.Debug().Str("module", "signal").Int("buckets", left).Msg("rate limiter swept")
		}
	}
}
