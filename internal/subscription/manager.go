// Package subscription owns push channel lifecycles: one live channel per
// topic key, deterministic teardown, and collision-free channel names.
package subscription

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saeid-a/MedLinkBack/internal/realtime"
)

type channelBroker interface {
	OpenChannel(name string) *realtime.Channel
	CloseChannel(ch *realtime.Channel) error
}

// Handle identifies one subscription. A handle outlived by a newer
// subscription on the same topic is stale; unsubscribing it does nothing.
type Handle struct {
	topic   string
	channel string
}

func (h *Handle) Topic() string {
	return h.topic
}

func (h *Handle) ChannelName() string {
	return h.channel
}

type spec struct {
	table   string
	filter  realtime.Filter
	events  realtime.EventMask
	handler realtime.Handler
}

type entry struct {
	handle  *Handle
	channel *realtime.Channel
	spec    spec
	status  realtime.Status
}

type Manager struct {
	broker channelBroker
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

func NewManager(broker channelBroker, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		broker:  broker,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Subscribe opens a channel for topic bound to table changes passing
// filter and events. A live channel for the same topic is closed first.
func (m *Manager) Subscribe(
	topic string,
	table string,
	filter realtime.Filter,
	events realtime.EventMask,
	handler realtime.Handler,
) (*Handle, error) {
	return m.subscribe(topic, spec{
		table:   table,
		filter:  filter,
		events:  events,
		handler: handler,
	}, nil)
}

// subscribe installs a channel for topic. A non-nil expect makes the swap
// conditional on expect still being the live entry; otherwise nothing is
// installed and the returned handle is nil.
func (m *Manager) subscribe(topic string, s spec, expect *entry) (*Handle, error) {
	name := m.channelName(topic)
	handle := &Handle{topic: topic, channel: name}
	ch := m.broker.OpenChannel(name).OnChange(s.table, s.events, s.filter, s.handler)

	m.mu.Lock()
	previous := m.entries[topic]
	if expect != nil && previous != expect {
		m.mu.Unlock()
		m.logger.Debug("topic changed during resubscribe; skipping", "topic", topic)
		return nil, nil
	}
	m.entries[topic] = &entry{handle: handle, channel: ch, spec: s}
	m.mu.Unlock()

	if previous != nil {
		m.logger.Debug("replacing live channel", "topic", topic, "old_channel", previous.handle.channel, "channel", name)
		_ = m.broker.CloseChannel(previous.channel)
	}

	if err := ch.Subscribe(func(status realtime.Status, err error) {
		m.observe(handle, status, err)
	}); err != nil {
		m.mu.Lock()
		if current, ok := m.entries[topic]; ok && current.handle == handle {
			current.status = realtime.StatusChannelError
		}
		m.mu.Unlock()
		return handle, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return handle, nil
}

// Unsubscribe closes the handle's channel if it is still the live one for
// its topic.
func (m *Manager) Unsubscribe(handle *Handle) {
	if handle == nil {
		return
	}
	m.mu.Lock()
	current, ok := m.entries[handle.topic]
	if !ok || current.handle != handle {
		m.mu.Unlock()
		return
	}
	delete(m.entries, handle.topic)
	m.mu.Unlock()

	_ = m.broker.CloseChannel(current.channel)
}

// UnsubscribeTopic closes whatever channel is live for topic.
func (m *Manager) UnsubscribeTopic(topic string) {
	m.mu.Lock()
	current, ok := m.entries[topic]
	if ok {
		delete(m.entries, topic)
	}
	m.mu.Unlock()

	if ok {
		_ = m.broker.CloseChannel(current.channel)
	}
}

// UnsubscribeAll closes every channel owned by the manager.
func (m *Manager) UnsubscribeAll() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range entries {
		_ = m.broker.CloseChannel(e.channel)
	}
}

// ResubscribeAll recreates the channel of every known topic, including
// topics whose channel failed. Topics unsubscribed or replaced while it
// runs are left as they are. It returns the first subscribe error.
func (m *Manager) ResubscribeAll() error {
	m.mu.Lock()
	snapshot := make(map[string]*entry, len(m.entries))
	for topic, e := range m.entries {
		snapshot[topic] = e
	}
	m.mu.Unlock()

	var firstErr error
	for _, topic := range sortedKeys(snapshot) {
		e := snapshot[topic]
		if _, err := m.subscribe(topic, e.spec, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Topics returns the known topic keys in order.
func (m *Manager) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]string, 0, len(m.entries))
	for topic := range m.entries {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Live reports whether topic has a subscribed, healthy channel.
func (m *Manager) Live(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[topic]
	return ok && e.status == realtime.StatusSubscribed
}

func (m *Manager) observe(handle *Handle, status realtime.Status, err error) {
	m.mu.Lock()
	if current, ok := m.entries[handle.topic]; ok && current.handle == handle {
		current.status = status
	}
	m.mu.Unlock()

	switch status {
	case realtime.StatusChannelError, realtime.StatusTimedOut:
		m.logger.Warn("push channel failed; waiting for resubscribe",
			"topic", handle.topic,
			"channel", handle.channel,
			"status", status.String(),
			"error", err,
		)
	default:
		m.logger.Debug("push channel status",
			"topic", handle.topic,
			"channel", handle.channel,
			"status", status.String(),
		)
	}
}

func (m *Manager) channelName(topic string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s:%d:%s", topic, m.now().UnixMilli(), suffix)
}

func sortedKeys(entries map[string]*entry) []string {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
