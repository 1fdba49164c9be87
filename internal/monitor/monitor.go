// Package monitor tracks connectivity to the remote store as an explicit
// state machine with three states: offline, checking and online. Reachability
// is probed with a bounded number of retries; an explicit offline signal
// always wins over any in-flight check.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tillsync/tillsync/internal/notify"
	"github.com/tillsync/tillsync/internal/remote"
)

// State is the connectivity state of the terminal.
type State string

const (
	StateOffline  State = "offline"
	StateChecking State = "checking"
	StateOnline   State = "online"
)

// Monitor owns the connectivity state. All transitions go through it.
type Monitor struct {
	remote   remote.Store
	notifier notify.Notifier
	logger   *slog.Logger
	attempts int
	delay    time.Duration

	// onOnline runs after every successful check, outside the state lock.
	// reconnected is true when the check moved the state to online from
	// offline or checking.
	onOnline func(ctx context.Context, reconnected bool)

	mu         sync.Mutex
	state      State
	generation uint64

	warnedFatal atomic.Bool
	sleep       func(ctx context.Context, d time.Duration) error
}

// New creates a monitor starting in the offline state. attempts bounds the
// probe retries per check; delay is the pause between retries.
func New(r remote.Store, notifier notify.Notifier, attempts int, delay time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		remote:   r,
		notifier: notifier,
		logger:   logger.With("component", "monitor"),
		attempts: attempts,
		delay:    delay,
		state:    StateOffline,
		sleep:    sleepCtx,
	}
}

// OnOnline registers the hook invoked after each successful check, typically
// the sync processor kick. Must be set before the monitor runs.
func (m *Monitor) OnOnline(fn func(ctx context.Context, reconnected bool)) {
	m.onOnline = fn
}

// State returns the current connectivity state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsOnline reports whether the remote store was reachable at the last check.
func (m *Monitor) IsOnline() bool {
	return m.State() == StateOnline
}

// SetOffline records an explicit offline signal. It takes effect immediately
// and invalidates any check in flight.
func (m *Monitor) SetOffline() {
	m.mu.Lock()
	m.generation++
	changed := m.state != StateOffline
	m.state = StateOffline
	m.mu.Unlock()

	if changed {
		m.logger.Info("Connection lost, working offline")
	}
	m.notifier.ConnectionStatus(notify.ConnectionOffline, "Offline. Changes are saved locally.")
}

// SetOnline records a network online signal and verifies actual reachability
// with a fresh check.
func (m *Monitor) SetOnline(ctx context.Context) bool {
	return m.Check(ctx)
}

// Check probes the remote store. The state moves to checking for the duration
// of the probe; a successful probe moves it to online and fires the online
// hook. Transient failures are retried up to the configured bound with a
// fixed delay. A policy or permission failure is not a connectivity problem:
// it is reported once and ends the check without consuming retries.
func (m *Monitor) Check(ctx context.Context) bool {
	m.mu.Lock()
	gen := m.generation
	wasOnline := m.state == StateOnline
	m.state = StateChecking
	m.mu.Unlock()
	m.notifier.ConnectionStatus(notify.ConnectionChecking, "Checking connection...")

	for attempt := 1; ; attempt++ {
		err := m.remote.Ping(ctx)

		m.mu.Lock()
		if m.generation != gen {
			// An offline signal arrived mid-check and already settled the state.
			m.mu.Unlock()
			return false
		}
		if err == nil {
			m.state = StateOnline
			m.mu.Unlock()

			m.logger.Info("Remote store reachable", "attempt", attempt)
			m.notifier.ConnectionStatus(notify.ConnectionConnected, "Connected")
			if m.onOnline != nil {
				m.onOnline(ctx, !wasOnline)
			}
			return true
		}
		m.mu.Unlock()

		if remote.IsFatal(err) {
			m.settleOffline(gen)
			m.logger.Error("Remote store misconfigured or access denied, staying offline", "error", err)
			if m.warnedFatal.CompareAndSwap(false, true) {
				m.notifier.Toast(notify.SeverityError, "Server problem detected. Working with locally saved data.")
			}
			return false
		}

		m.logger.Warn("Connectivity probe failed", "attempt", attempt, "max_attempts", m.attempts, "error", err)
		if attempt >= m.attempts {
			break
		}
		if err := m.sleep(ctx, m.delay); err != nil {
			break
		}
	}

	m.settleOffline(gen)
	m.notifier.ConnectionStatus(notify.ConnectionOffline, "Offline. Changes are saved locally.")
	return false
}

// Run re-checks connectivity on a fixed interval until the context ends.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// settleOffline moves the state to offline unless a newer signal already
// owns it.
func (m *Monitor) settleOffline(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation == gen {
		m.state = StateOffline
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
