package animation

import (
	"context"
	"time"
)

// FrameClock calls tick once immediately and then every interval until
// stopped. Ticks run one at a time on the clock goroutine; a tick that
// overruns the interval drops the ticks it missed.
type FrameClock struct {
	interval time.Duration
	tick     func(ctx context.Context)
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewFrameClock(interval time.Duration, tick func(ctx context.Context)) *FrameClock {
	ctx, cancel := context.WithCancel(context.Background())
	return &FrameClock{
		interval: interval,
		tick:     tick,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start launches the clock goroutine. It does nothing if the clock was
// already stopped.
func (c *FrameClock) Start() {
	if c.ctx.Err() != nil {
		close(c.done)
		return
	}
	go c.run()
}

func (c *FrameClock) run() {
	defer close(c.done)

	c.tick(c.ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.ctx.Err() != nil {
				return
			}
			c.tick(c.ctx)
		}
	}
}

// Stop cancels the clock without waiting for a running tick, so it is safe to
// call from inside one.
func (c *FrameClock) Stop() {
	c.cancel()
}

// Done is closed once the clock goroutine has exited after Start.
func (c *FrameClock) Done() <-chan struct{} {
	return c.done
}
