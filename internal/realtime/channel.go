package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Status is reported to a channel's status callback.
type Status int

const (
	StatusSubscribed Status = iota + 1
	StatusChannelError
	StatusTimedOut
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusSubscribed:
		return "SUBSCRIBED"
	case StatusChannelError:
		return "CHANNEL_ERROR"
	case StatusTimedOut:
		return "TIMED_OUT"
	case StatusClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// StatusFunc receives channel lifecycle transitions. err is non-nil for
// StatusChannelError and StatusTimedOut.
type StatusFunc func(status Status, err error)

// Handler receives a change matching one of the channel's bindings.
type Handler func(Change)

var (
	ErrChannelClosed     = errors.New("realtime: channel closed")
	ErrAlreadySubscribed = errors.New("realtime: channel already subscribed")
	ErrBrokerClosed      = errors.New("realtime: broker closed")
	ErrSlowConsumer      = errors.New("realtime: channel buffer overflow")
)

type binding struct {
	table   string
	mask    EventMask
	filter  Filter
	handler Handler
}

func (b binding) matches(change Change) bool {
	return b.table == change.Table && b.mask.Has(change.Type) && b.filter.Matches(change.Row())
}

type channelState int

const (
	channelIdle channelState = iota
	channelSubscribed
	channelClosed
)

// Channel is a named set of bindings delivered by one goroutine, in the
// order the broker published them.
type Channel struct {
	name   string
	broker *Broker

	mu       sync.Mutex
	state    channelState
	bindings []binding
	status   StatusFunc
	queue    chan Change
	done     chan struct{}
}

func (c *Channel) Name() string {
	return c.name
}

// OnChange adds a binding. Bindings added after Subscribe are ignored.
func (c *Channel) OnChange(table string, mask EventMask, filter Filter, handler Handler) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != channelIdle {
		c.broker.logger.Warn("realtime binding added after subscribe ignored",
			"channel", c.name,
			"table", table,
		)
		return c
	}
	c.bindings = append(c.bindings, binding{
		table:   table,
		mask:    mask,
		filter:  filter,
		handler: handler,
	})
	return c
}

// Subscribe starts delivery. status is called with StatusSubscribed on
// success and with every later transition.
func (c *Channel) Subscribe(status StatusFunc) error {
	c.mu.Lock()
	switch c.state {
	case channelSubscribed:
		c.mu.Unlock()
		return ErrAlreadySubscribed
	case channelClosed:
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.status = status
	c.queue = make(chan Change, c.broker.buffer)
	c.done = make(chan struct{})
	c.state = channelSubscribed
	c.mu.Unlock()

	if err := c.broker.register(c); err != nil {
		c.mu.Lock()
		c.state = channelClosed
		c.mu.Unlock()
		c.report(StatusChannelError, err)
		return err
	}

	go c.deliver(c.queue, c.done)
	c.report(StatusSubscribed, nil)
	return nil
}

func (c *Channel) wants(change Change) bool {
	for _, b := range c.bindings {
		if b.matches(change) {
			return true
		}
	}
	return false
}

// enqueue must be called with the broker read lock held.
func (c *Channel) enqueue(change Change) bool {
	select {
	case c.queue <- change:
		return true
	default:
		return false
	}
}

func (c *Channel) deliver(queue <-chan Change, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case change := <-queue:
			select {
			case <-done:
				return
			default:
			}
			for _, b := range c.bindings {
				if b.matches(change) {
					c.invoke(b.handler, change)
				}
			}
		}
	}
}

func (c *Channel) invoke(handler Handler, change Change) {
	defer func() {
		if r := recover(); r != nil {
			c.broker.logger.Error("realtime handler panic",
				"channel", c.name,
				"table", change.Table,
				"type", change.Type.String(),
				"panic", r,
			)
		}
	}()
	handler(change)
}

// shutdown stops delivery and reports status once. It reports false when
// the channel was not subscribed.
func (c *Channel) shutdown(status Status, err error) bool {
	c.mu.Lock()
	if c.state != channelSubscribed {
		c.state = channelClosed
		c.mu.Unlock()
		return false
	}
	c.state = channelClosed
	close(c.done)
	c.mu.Unlock()

	c.report(status, err)
	return true
}

func (c *Channel) report(status Status, err error) {
	c.broker.metrics.ChannelStatus(status.String())

	level := slog.LevelDebug
	if status == StatusChannelError || status == StatusTimedOut {
		level = slog.LevelWarn
	}
	c.broker.logger.Log(context.Background(), level, "realtime channel status",
		"channel", c.name,
		"status", status.String(),
		"error", err,
	)

	c.mu.Lock()
	fn := c.status
	c.mu.Unlock()
	if fn != nil {
		fn(status, err)
	}
}
