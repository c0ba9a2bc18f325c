package network

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transitions struct {
	mu     sync.Mutex
	states []State
}

func (tr *transitions) record(state State) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.states = append(tr.states, state)
}

func (tr *transitions) snapshot() []State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]State(nil), tr.states...)
}

func TestGoOnlineSettlesToConnected(t *testing.T) {
	clock := clockwork.NewFakeClock()
	monitor := NewMonitor(StateDisconnected, WithClock(clock))
	seen := &transitions{}
	monitor.Subscribe(seen.record)

	monitor.GoOnline()
	assert.Equal(t, StateReconnecting, monitor.State())

	clock.Advance(999 * time.Millisecond)
	assert.Equal(t, StateReconnecting, monitor.State())

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return monitor.State() == StateConnected }, time.Second, time.Millisecond)
	assert.Equal(t, []State{StateReconnecting, StateConnected}, seen.snapshot())
}

func TestGoOfflineCancelsPendingSettle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	monitor := NewMonitor(StateDisconnected, WithClock(clock))
	seen := &transitions{}
	monitor.Subscribe(seen.record)

	monitor.GoOnline()
	monitor.GoOffline()
	clock.Advance(2 * time.Second)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, StateDisconnected, monitor.State())
	assert.Equal(t, []State{StateReconnecting, StateDisconnected}, seen.snapshot())
}

func TestRepeatedOnlineRestartsSettleDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	monitor := NewMonitor(StateDisconnected, WithClock(clock))

	monitor.GoOnline()
	clock.Advance(600 * time.Millisecond)
	monitor.GoOnline()
	clock.Advance(600 * time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, StateReconnecting, monitor.State())

	clock.Advance(400 * time.Millisecond)
	require.Eventually(t, func() bool { return monitor.State() == StateConnected }, time.Second, time.Millisecond)
}

func TestGoOnlineWhileConnectedIsNoop(t *testing.T) {
	monitor := NewMonitor(StateConnected, WithClock(clockwork.NewFakeClock()))
	seen := &transitions{}
	monitor.Subscribe(seen.record)

	monitor.GoOnline()

	assert.Equal(t, StateConnected, monitor.State())
	assert.Empty(t, seen.snapshot())
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	monitor := NewMonitor(StateConnected, WithClock(clockwork.NewFakeClock()))
	seen := &transitions{}
	cancel := monitor.Subscribe(seen.record)
	cancel()

	monitor.GoOffline()

	assert.Empty(t, seen.snapshot())
}
