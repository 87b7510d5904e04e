package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// NotificationPruner deletes read notifications created before a cutoff.
type NotificationPruner interface {
	PruneReadNotifications(ctx context.Context, before time.Time) (int64, error)
}

// Pruner runs notification retention on a cron schedule.
type Pruner struct {
	store     NotificationPruner
	retention time.Duration
	c         *cron.Cron
	now       func() time.Time
}

func NewPruner(store NotificationPruner, schedule string, retention time.Duration) (*Pruner, error) {
	p := &Pruner{
		store:     store,
		retention: retention,
		c:         cron.New(),
		now:       time.Now,
	}
	if _, err := p.c.AddFunc(schedule, func() { p.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("bad prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

func (p *Pruner) Start() { p.c.Start() }

// Stop waits for a running prune to finish or ctx to expire.
func (p *Pruner) Stop(ctx context.Context) {
	done := p.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (p *Pruner) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.PruneReadNotifications(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Str("module", "app.pruner").Msg("prune notifications")
		return
	}
	log.Info().Str("module", "app.pruner").Int64("deleted", n).Time("before", cutoff).Msg("pruned read notifications")
}
