package session

import (
	"context"
	"time"
)

// RunSweeper removes idle Sessions every SweepInterval until ctx is done.
// It blocks; run it in its own goroutine.
func (c *Coordinator) RunSweeper(ctx context.Context) {
	t := time.NewTicker(c.cfg.SweepInterval)
	defer t.Stop()

	c.log.Info("session.sweeper.start", "interval", c.cfg.SweepInterval.String(), "idle_timeout", c.cfg.IdleTimeout.String())
	for {
		select {
		case <-ctx.Done():
			c.log.Info("session.sweeper.stop")
			return
		case <-t.C:
			c.Sweep(c.now())
		}
	}
}
