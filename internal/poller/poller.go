package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Runner is a single executable cycle
type Runner interface {
	Run(ctx context.Context)
}

// Poller triggers one full code check cycle on a fixed interval. A
// trigger that fires while the previous cycle is still running is
// skipped, never run concurrently: both would mutate the same ledger
// and tenant state.
type Poller struct {
	cycle    Runner
	interval time.Duration

	inFlight atomic.Bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new Poller
func New(cycle Runner, interval time.Duration) *Poller {
	return &Poller{
		cycle:    cycle,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the polling loop
func (p *Poller) Start(ctx context.Context) {
	slog.Info("Starting poller", "interval", p.interval)

	p.wg.Add(1)
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Initial cycle
	p.trigger(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Poller stopped (context cancelled)")
			return
		case <-p.stopChan:
			slog.Info("Poller stopped")
			return
		case <-ticker.C:
			p.trigger(ctx)
		}
	}
}

// Stop signals the poller to stop and waits for any in-flight cycle
func (p *Poller) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}

// trigger starts a cycle unless one is still running
func (p *Poller) trigger(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		slog.Warn("Previous cycle still running, skipping this trigger")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Store(false)
		p.cycle.Run(ctx)
	}()
}
