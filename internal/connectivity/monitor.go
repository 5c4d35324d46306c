// Package connectivity decides whether the sync backend is reachable.
package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/shiftsync/internal/bus"
	"github.com/matheus3301/shiftsync/internal/status"
)

// Prober performs one reachability probe.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor owns the process-wide online flag. A probe that fails or outlives
// its timeout means offline; it is never an error for the caller.
type Monitor struct {
	prober   Prober
	tracker  *status.Tracker
	bus      *bus.Bus
	logger   *zap.Logger
	timeout  time.Duration
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a monitor. interval <= 0 disables periodic checks.
func NewMonitor(p Prober, tracker *status.Tracker, b *bus.Bus, logger *zap.Logger, timeout, interval time.Duration) *Monitor {
	return &Monitor{
		prober:   p,
		tracker:  tracker,
		bus:      b,
		logger:   logger,
		timeout:  timeout,
		interval: interval,
	}
}

// IsOnline returns the last observed connectivity without probing.
func (m *Monitor) IsOnline() bool {
	return m.tracker.Online()
}

// Check probes the backend, records the outcome and announces a change.
// When ctx ends before the probe does, nothing is recorded and the last known
// state is returned; a caller giving up says nothing about the network.
func (m *Monitor) Check(ctx context.Context) bool {
	if ctx.Err() != nil {
		return m.IsOnline()
	}
	err := m.probe(ctx)
	if ctx.Err() != nil {
		return m.IsOnline()
	}
	online := err == nil
	if m.tracker.SetOnline(online) {
		m.logger.Info("connectivity changed", zap.Bool("online", online))
		m.bus.Emit(bus.ConnectivityChanged, online)
	}
	return online
}

// probe runs the prober under the timeout and gives up on it when the
// deadline passes even if the prober ignores its context.
func (m *Monitor) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.prober.Ping(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			m.logger.Debug("probe failed", zap.Error(err))
		}
		return err
	case <-ctx.Done():
		m.logger.Debug("probe timed out", zap.Duration("timeout", m.timeout))
		return ctx.Err()
	}
}

// Start begins periodic checks.
func (m *Monitor) Start(ctx context.Context) {
	if m.interval <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}

// Stop halts periodic checks and waits for an in-flight one to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}
