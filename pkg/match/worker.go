package match

import (
	"context"
)

// Run starts background workers, they stop with ctx.
func (c *Coordinator) Run(ctx context.Context) {
	go c.statsWorker(ctx)
	go c.sweepWorker(ctx)
}

func (c *Coordinator) statsWorker(ctx context.Context) {
	ticker := c.newTicker(c.config.NotifyStatsInterval())
	defer ticker.Stop()

	for {
		c.refreshStats(ctx)
		stats := c.stats.Snapshot()
		c.logger.Debugf("current stats[%+v]", stats)

		select {
		case c.NotifyStats <- stats:
		default:
			c.logger.Warnf("notify stats channel full, dropped stats")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}
	}
}

func (c *Coordinator) refreshStats(ctx context.Context) {
	waitingTickets, err := c.store.Len(ctx)
	if err != nil {
		c.logger.Errorf("cannot count waiting tickets %v", err)
	}

	c.lock.Lock()
	searchingUsers := 0
	for _, s := range c.sessions {
		if s.state == searching || s.state == claimed {
			searchingUsers++
		}
	}
	activeCalls := len(c.calls)
	c.lock.Unlock()

	c.stats.setGauges(waitingTickets, searchingUsers, activeCalls)
}

// sweepWorker removes orphaned tickets from the store and timed out
// sessions nobody came back to read.
func (c *Coordinator) sweepWorker(ctx context.Context) {
	ticker := c.newTicker(c.config.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}

		c.sweep(ctx)
	}
}

func (c *Coordinator) sweep(ctx context.Context) {
	removed, err := c.store.Sweep(ctx)
	if err != nil {
		c.logger.Errorf("cannot sweep stale tickets %v", err)
	} else if removed > 0 {
		c.logger.Infof("removed stale tickets cnt[%v]", removed)
	}

	expiredBefore := c.clock.Now().Add(-c.config.TicketStalePeriod())
	c.lock.Lock()
	defer c.lock.Unlock()
	for userId, s := range c.sessions {
		if s.state == timedOut && s.finishedAt.Before(expiredBefore) {
			delete(c.sessions, userId)
		}
	}
}
