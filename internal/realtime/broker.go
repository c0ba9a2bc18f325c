package realtime

import (
	"log/slog"
	"sync"

	"github.com/saeid-a/MedLinkBack/internal/metrics"
)

const defaultBuffer = 256

// Broker routes published changes to subscribed channels. Every channel
// owns a bounded queue; a channel that falls behind is timed out and
// closed, and its owner must subscribe again.
type Broker struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	closed   bool

	buffer  int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Broker)

func WithBuffer(size int) Option {
	return func(b *Broker) {
		if size > 0 {
			b.buffer = size
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) {
		b.metrics = m
	}
}

func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		channels: make(map[string]*Channel),
		buffer:   defaultBuffer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OpenChannel returns an unsubscribed channel. Nothing is delivered until
// Subscribe is called on it.
func (b *Broker) OpenChannel(name string) *Channel {
	return &Channel{name: name, broker: b}
}

// CloseChannel stops delivery to ch. Closing an already closed channel is
// a no-op.
func (b *Broker) CloseChannel(ch *Channel) error {
	if ch == nil {
		return nil
	}
	b.mu.Lock()
	if current, ok := b.channels[ch.name]; ok && current == ch {
		delete(b.channels, ch.name)
		b.metrics.ChannelClosed()
	}
	b.mu.Unlock()

	ch.shutdown(StatusClosed, nil)
	return nil
}

// Publish fans change out to every subscribed channel with a matching
// binding.
func (b *Broker) Publish(change Change) {
	b.metrics.EventPublished(change.Table, change.Type.String())

	var overflowed []*Channel
	b.mu.RLock()
	for _, ch := range b.channels {
		if !ch.wants(change) {
			continue
		}
		if !ch.enqueue(change) {
			overflowed = append(overflowed, ch)
		}
	}
	b.mu.RUnlock()

	for _, ch := range overflowed {
		b.drop(ch, StatusTimedOut, ErrSlowConsumer)
	}
}

// Fail reports err to every subscribed channel and closes them. Sources
// call it when the upstream change feed is lost.
func (b *Broker) Fail(err error) {
	b.mu.Lock()
	failed := make([]*Channel, 0, len(b.channels))
	for name, ch := range b.channels {
		failed = append(failed, ch)
		delete(b.channels, name)
		b.metrics.ChannelClosed()
	}
	b.mu.Unlock()

	for _, ch := range failed {
		ch.shutdown(StatusChannelError, err)
	}
}

// Close fails all channels and rejects further subscriptions.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.Fail(ErrBrokerClosed)
}

// ChannelCount returns the number of subscribed channels.
func (b *Broker) ChannelCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels)
}

func (b *Broker) register(ch *Channel) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBrokerClosed
	}
	previous, exists := b.channels[ch.name]
	b.channels[ch.name] = ch
	if !exists {
		b.metrics.ChannelOpened()
	}
	b.mu.Unlock()

	if exists && previous != ch {
		previous.shutdown(StatusClosed, nil)
	}
	return nil
}

func (b *Broker) drop(ch *Channel, status Status, err error) {
	b.mu.Lock()
	if current, ok := b.channels[ch.name]; ok && current == ch {
		delete(b.channels, ch.name)
		b.metrics.ChannelClosed()
	}
	b.mu.Unlock()

	ch.shutdown(status, err)
}
