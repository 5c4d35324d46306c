package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matheus3301/shiftsync/internal/bus"
	"github.com/matheus3301/shiftsync/internal/status"
)

type fakeProber struct {
	err   atomic.Value // error wrapper
	calls atomic.Int32
	block chan struct{}
}

var _ Prober = (*fakeProber)(nil)

type probeErr struct{ err error }

func (p *fakeProber) setErr(err error) { p.err.Store(probeErr{err}) }

func (p *fakeProber) Ping(ctx context.Context) error {
	p.calls.Add(1)
	if p.block != nil {
		<-p.block
	}
	if v, ok := p.err.Load().(probeErr); ok {
		return v.err
	}
	return nil
}

func newMonitor(p Prober, b *bus.Bus, timeout, interval time.Duration) *Monitor {
	tr := status.NewTracker(b, nil)
	return NewMonitor(p, tr, b, zap.NewNop(), timeout, interval)
}

func TestCheckOnlineAnnouncesChange(t *testing.T) {
	b := bus.New()
	events, unsub := b.Subscribe("connectivity.", 4)
	defer unsub()

	m := newMonitor(&fakeProber{}, b, time.Second, 0)
	require.True(t, m.Check(context.Background()))
	require.True(t, m.IsOnline())

	select {
	case evt := <-events:
		require.Equal(t, bus.ConnectivityChanged, evt.Kind)
		require.Equal(t, true, evt.Payload)
	case <-time.After(time.Second):
		t.Fatal("no connectivity event")
	}

	// Same state again: no second event.
	require.True(t, m.Check(context.Background()))
	select {
	case evt := <-events:
		t.Fatalf("unexpected event %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCheckFailureMeansOffline(t *testing.T) {
	p := &fakeProber{}
	m := newMonitor(p, bus.New(), time.Second, 0)
	require.True(t, m.Check(context.Background()))

	p.setErr(errors.New("connection refused"))
	require.False(t, m.Check(context.Background()))
	require.False(t, m.IsOnline())
}

func TestCheckTimesOutWhenProbeHangs(t *testing.T) {
	p := &fakeProber{block: make(chan struct{})}
	defer close(p.block)

	m := newMonitor(p, bus.New(), 50*time.Millisecond, 0)
	m.tracker.SetOnline(true)

	start := time.Now()
	online := m.Check(context.Background())
	require.False(t, online)
	require.False(t, m.IsOnline())
	require.Less(t, time.Since(start), time.Second)
}

func TestPeriodicChecks(t *testing.T) {
	p := &fakeProber{}
	m := newMonitor(p, bus.New(), time.Second, 10*time.Millisecond)

	m.Start(context.Background())
	require.Eventually(t, func() bool { return p.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	m.Stop()

	after := p.calls.Load()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, after, p.calls.Load(), "probes continued after Stop")
}

func TestCheckWithEndedContextKeepsState(t *testing.T) {
	p := &fakeProber{}
	p.setErr(errors.New("connection refused"))
	b := bus.New()
	events, unsub := b.Subscribe(bus.ConnectivityChanged, 4)
	defer unsub()

	m := newMonitor(p, b, 50*time.Millisecond, 0)
	m.tracker.SetOnline(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.True(t, m.Check(ctx))
	require.True(t, m.IsOnline())
	require.Zero(t, p.calls.Load())

	select {
	case evt := <-events:
		t.Fatalf("unexpected event %+v", evt)
	default:
	}
}
