package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultCleanupInterval is how often the background sweep runs unless configured.
const DefaultCleanupInterval = time.Minute

// Run sweeps expired entries every interval until ctx is done.
// A non-positive interval returns immediately.
func (c *ResponseCache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		logrus.Debugf("Cache sweep disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := c.Cleanup(); removed > 0 {
				logrus.Debugf("Cache sweep removed %d expired entries", removed)
			}
		}
	}
}

// Start runs the sweep loop on its own goroutine. The returned function stops the
// loop and waits for it to exit.
func (c *ResponseCache) Start(ctx context.Context, interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx, interval)
	}()
	return func() {
		cancel()
		<-done
	}
}
