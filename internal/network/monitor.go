// Package network tracks the push transport's connectivity as a
// tri-state signal. Going online is debounced by a settle delay before
// the monitor reports connected.
package network

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/saeid-a/MedLinkBack/internal/metrics"
)

type State string

const (
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateReconnecting State = "reconnecting"
)

var allStates = []string{string(StateConnected), string(StateDisconnected), string(StateReconnecting)}

const DefaultSettleDelay = time.Second

type Listener func(State)

type Monitor struct {
	mu        sync.Mutex
	state     State
	settle    time.Duration
	clock     clockwork.Clock
	timer     clockwork.Timer
	pending   uint64
	listeners map[int]Listener
	nextID    int

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Monitor)

func WithClock(clock clockwork.Clock) Option {
	return func(m *Monitor) {
		m.clock = clock
	}
}

func WithSettleDelay(delay time.Duration) Option {
	return func(m *Monitor) {
		m.settle = delay
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = mt
	}
}

// NewMonitor starts in the given state; a fresh process usually starts
// disconnected until its change feed reports online.
func NewMonitor(initial State, opts ...Option) *Monitor {
	m := &Monitor{
		state:     initial,
		settle:    DefaultSettleDelay,
		clock:     clockwork.NewRealClock(),
		listeners: make(map[int]Listener),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.metrics.NetworkState(string(initial), allStates...)
	return m
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn for every later transition and returns a
// function that removes it.
func (m *Monitor) Subscribe(fn Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// GoOnline enters reconnecting and schedules connected after the settle
// delay. A repeated signal while reconnecting restarts the delay.
func (m *Monitor) GoOnline() {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.pending++
	pending := m.pending
	m.timer = m.clock.AfterFunc(m.settle, func() {
		m.settled(pending)
	})
	listeners := m.transitionLocked(StateReconnecting)
	m.mu.Unlock()

	notify(listeners, StateReconnecting)
}

// GoOffline enters disconnected immediately and cancels a pending settle.
func (m *Monitor) GoOffline() {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.pending++
	listeners := m.transitionLocked(StateDisconnected)
	m.mu.Unlock()

	notify(listeners, StateDisconnected)
}

func (m *Monitor) settled(pending uint64) {
	m.mu.Lock()
	if m.pending != pending || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	listeners := m.transitionLocked(StateConnected)
	m.mu.Unlock()

	notify(listeners, StateConnected)
}

// transitionLocked returns the listeners to notify, or nil when the state
// did not change.
func (m *Monitor) transitionLocked(next State) []Listener {
	if m.state == next {
		return nil
	}
	m.logger.Info("network state changed", "from", string(m.state), "to", string(next))
	m.state = next
	m.metrics.NetworkState(string(next), allStates...)

	listeners := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	return listeners
}

func notify(listeners []Listener, state State) {
	for _, fn := range listeners {
		fn(state)
	}
}
