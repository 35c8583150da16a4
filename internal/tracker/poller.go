package tracker

import (
	"context"
	"log/slog"
	"time"
)

// Poller runs a cycle on a fixed interval until stopped.
// Stop is only observed between cycles: a running cycle always completes, bounded by
// its own timeout.
type Poller struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	cycle    func(ctx context.Context)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller for one session
func NewPoller(name string, interval, timeout time.Duration, cycle func(ctx context.Context)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultCycleTimeout
	}

	return &Poller{
		name:     name,
		interval: interval,
		timeout:  timeout,
		cycle:    cycle,
		done:     make(chan struct{}),
	}
}

// Start begins polling in a goroutine
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
}

// Stop requests the loop to exit and waits for the in-flight cycle
func (p *Poller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

// Done is closed once the loop has exited
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// run is the main loop for the poller
func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	slog.Info("poller started", "session", p.name, "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller stopped", "session", p.name)
			return
		case <-ticker.C:
		}

		// A stop can race with a pending tick
		if ctx.Err() != nil {
			slog.Info("poller stopped", "session", p.name)
			return
		}

		cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		p.cycle(cycleCtx)
		cancel()
	}
}
