package application

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ReconciliationPoller re-aggregates on a fixed interval while a trigger
// holds and stops itself as soon as none does. No timer exists while idle.
type ReconciliationPoller struct {
	interval time.Duration
	trigger  func() bool
	tick     func(ctx context.Context) error
	logger   *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	stopped bool
	wg      sync.WaitGroup
}

// NewReconciliationPoller creates an idle poller. trigger is consulted before
// starting and after every tick; tick performs one aggregation.
func NewReconciliationPoller(
	interval time.Duration,
	trigger func() bool,
	tick func(ctx context.Context) error,
	logger *slog.Logger,
) *ReconciliationPoller {
	ctx, cancel := context.WithCancel(context.Background())
	return &ReconciliationPoller{
		interval: interval,
		trigger:  trigger,
		tick:     tick,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Evaluate starts the loop when a trigger holds and it is not already
// running. It reports whether the loop is running on return.
func (p *ReconciliationPoller) Evaluate() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || p.stopped {
		return p.running
	}
	if !p.trigger() {
		return false
	}

	p.running = true
	p.wg.Add(1)
	go p.loop()
	p.logger.Debug("reconciliation polling started", "interval", p.interval)
	return true
}

// Running reports whether the loop is active.
func (p *ReconciliationPoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stop terminates the loop and prevents restarts. It waits for an in-flight
// tick to return.
func (p *ReconciliationPoller) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

func (p *ReconciliationPoller) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.setIdle()
			return
		case <-ticker.C:
			if err := p.tick(p.ctx); err != nil {
				p.logger.Warn("reconciliation poll failed", "error", err)
			}

			p.mu.Lock()
			if p.stopped || !p.trigger() {
				p.running = false
				p.mu.Unlock()
				p.logger.Debug("reconciliation polling stopped")
				return
			}
			p.mu.Unlock()
		}
	}
}

func (p *ReconciliationPoller) setIdle() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}
