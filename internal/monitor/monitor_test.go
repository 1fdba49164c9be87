package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tillsync/tillsync/internal/notify"
	"github.com/tillsync/tillsync/internal/remote"
)

// mockPinger is a mock implementation of the remote.Store interface; only
// Ping is exercised by the monitor.
type mockPinger struct {
	pings   int
	results []error
	onPing  func(attempt int)
}

func (m *mockPinger) Ping(_ context.Context) error {
	m.pings++
	if m.onPing != nil {
		m.onPing(m.pings)
	}
	if len(m.results) == 0 {
		return nil
	}
	err := m.results[0]
	if len(m.results) > 1 {
		m.results = m.results[1:]
	}
	return err
}

func (m *mockPinger) Select(_ context.Context, _ string, _ remote.Filters) ([]map[string]any, error) {
	return nil, nil
}

func (m *mockPinger) Insert(_ context.Context, _ string, _ map[string]any) ([]map[string]any, error) {
	return nil, nil
}

func (m *mockPinger) Update(_ context.Context, _ string, _ remote.Filters, _ map[string]any) error {
	return nil
}

func (m *mockPinger) Delete(_ context.Context, _ string, _ remote.Filters) error {
	return nil
}

func newTestMonitor(pinger *mockPinger) *Monitor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New(pinger, notify.NewLogNotifier(logger), 3, 5*time.Second, logger)
	m.sleep = func(_ context.Context, _ time.Duration) error { return nil }
	return m
}

func Test_Monitor_Check_Success(t *testing.T) {
	// given
	pinger := &mockPinger{}
	m := newTestMonitor(pinger)
	var hookCalls int
	m.OnOnline(func(_ context.Context, _ bool) { hookCalls++ })

	// when
	ok := m.Check(context.Background())

	// then
	assert.True(t, ok)
	assert.Equal(t, StateOnline, m.State())
	assert.Equal(t, 1, pinger.pings)
	assert.Equal(t, 1, hookCalls)
}

func Test_Monitor_Check_HookFiresOnEverySuccessfulCheck(t *testing.T) {
	// given: a monitor that is already online with the hook counting calls
	pinger := &mockPinger{}
	m := newTestMonitor(pinger)
	var hookCalls int
	var reconnects []bool
	m.OnOnline(func(_ context.Context, reconnected bool) {
		hookCalls++
		reconnects = append(reconnects, reconnected)
	})
	m.Check(context.Background())
	assert.Equal(t, 1, hookCalls)

	// when: a later check succeeds without the state ever dropping
	ok := m.Check(context.Background())

	// then: the hook fires again so pending operations keep getting retried,
	// but only the first check counts as a reconnect
	assert.True(t, ok)
	assert.Equal(t, 2, hookCalls)
	assert.Equal(t, []bool{true, false}, reconnects)
}

func Test_Monitor_Check_RetriesTransientFailures(t *testing.T) {
	// given: two transient failures, then success
	pinger := &mockPinger{results: []error{
		errors.New("connection reset"),
		errors.New("connection reset"),
		nil,
	}}
	m := newTestMonitor(pinger)

	// when
	ok := m.Check(context.Background())

	// then
	assert.True(t, ok)
	assert.Equal(t, 3, pinger.pings)
	assert.Equal(t, StateOnline, m.State())
}

func Test_Monitor_Check_ExhaustsRetryBound(t *testing.T) {
	// given: a remote store that never answers
	pinger := &mockPinger{results: []error{errors.New("connection reset")}}
	m := newTestMonitor(pinger)

	// when
	ok := m.Check(context.Background())

	// then
	assert.False(t, ok)
	assert.Equal(t, 3, pinger.pings)
	assert.Equal(t, StateOffline, m.State())
}

func Test_Monitor_Check_PolicyErrorNotRetried(t *testing.T) {
	// given: a recursive-policy failure, a misconfiguration rather than an outage
	pinger := &mockPinger{results: []error{
		&remote.Error{Code: remote.CodePolicyRecursion, Message: "infinite recursion detected"},
	}}
	m := newTestMonitor(pinger)

	// when
	ok := m.Check(context.Background())

	// then: exactly one probe, no retries consumed
	assert.False(t, ok)
	assert.Equal(t, 1, pinger.pings)
	assert.Equal(t, StateOffline, m.State())
}

func Test_Monitor_Check_PermissionErrorNotRetried(t *testing.T) {
	// given
	pinger := &mockPinger{results: []error{
		&remote.Error{Code: remote.CodePermissionDenied, Message: "permission denied"},
	}}
	m := newTestMonitor(pinger)

	// when
	ok := m.Check(context.Background())

	// then
	assert.False(t, ok)
	assert.Equal(t, 1, pinger.pings)
}

func Test_Monitor_SetOffline_WinsOverInFlightCheck(t *testing.T) {
	// given: the offline signal lands while the probe is in flight
	pinger := &mockPinger{}
	m := newTestMonitor(pinger)
	pinger.onPing = func(int) { m.SetOffline() }

	// when
	ok := m.Check(context.Background())

	// then: the successful probe result is discarded
	assert.False(t, ok)
	assert.Equal(t, StateOffline, m.State())
}

func Test_Monitor_SetOffline_FromOnline(t *testing.T) {
	// given
	pinger := &mockPinger{}
	m := newTestMonitor(pinger)
	m.Check(context.Background())
	assert.Equal(t, StateOnline, m.State())

	// when
	m.SetOffline()

	// then
	assert.Equal(t, StateOffline, m.State())
}

func Test_Monitor_SetOnline_Rechecks(t *testing.T) {
	// given
	pinger := &mockPinger{}
	m := newTestMonitor(pinger)

	// when
	ok := m.SetOnline(context.Background())

	// then
	assert.True(t, ok)
	assert.Equal(t, 1, pinger.pings)
}
