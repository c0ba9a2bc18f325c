package subscription

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saeid-a/MedLinkBack/internal/realtime"
)

type row struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
}

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) handle(realtime.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func (c *counter) value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func publish(t *testing.T, broker *realtime.Broker, conversationID string) {
	t.Helper()
	change, err := realtime.NewChange("messages", realtime.EventInsert, row{ID: "m", ConversationID: conversationID}, nil)
	require.NoError(t, err)
	broker.Publish(change)
}

func TestSubscribeSameTopicKeepsOneLiveChannel(t *testing.T) {
	broker := realtime.NewBroker()
	manager := NewManager(broker, nil)
	first := &counter{}
	second := &counter{}

	h1, err := manager.Subscribe("messages:c-1", "messages", realtime.Eq("conversation_id", "c-1"), realtime.MaskAll, first.handle)
	require.NoError(t, err)
	h2, err := manager.Subscribe("messages:c-1", "messages", realtime.Eq("conversation_id", "c-1"), realtime.MaskAll, second.handle)
	require.NoError(t, err)

	assert.NotEqual(t, h1.ChannelName(), h2.ChannelName())
	assert.Equal(t, 1, broker.ChannelCount())

	publish(t, broker, "c-1")

	require.Eventually(t, func() bool { return second.value() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, first.value())
}

func TestChannelNamesAreUniqueAcrossRapidResubscribes(t *testing.T) {
	manager := NewManager(realtime.NewBroker(), nil)
	fixed := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return fixed }

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		handle, err := manager.Subscribe("notifications:u-1", "notifications", realtime.Filter{}, realtime.MaskAll, func(realtime.Change) {})
		require.NoError(t, err)
		_, dup := seen[handle.ChannelName()]
		require.False(t, dup, "duplicate channel name %s", handle.ChannelName())
		seen[handle.ChannelName()] = struct{}{}
	}
}

func TestStaleHandleUnsubscribeIsNoop(t *testing.T) {
	broker := realtime.NewBroker()
	manager := NewManager(broker, nil)
	live := &counter{}

	stale, err := manager.Subscribe("messages:c-1", "messages", realtime.Filter{}, realtime.MaskAll, func(realtime.Change) {})
	require.NoError(t, err)
	_, err = manager.Subscribe("messages:c-1", "messages", realtime.Filter{}, realtime.MaskAll, live.handle)
	require.NoError(t, err)

	manager.Unsubscribe(stale)
	assert.True(t, manager.Live("messages:c-1"))

	publish(t, broker, "c-1")
	require.Eventually(t, func() bool { return live.value() == 1 }, time.Second, 5*time.Millisecond)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	broker := realtime.NewBroker()
	manager := NewManager(broker, nil)

	handle, err := manager.Subscribe("messages:c-1", "messages", realtime.Filter{}, realtime.MaskAll, func(realtime.Change) {})
	require.NoError(t, err)

	manager.Unsubscribe(handle)

	assert.Equal(t, 0, broker.ChannelCount())
	assert.Empty(t, manager.Topics())
	assert.False(t, manager.Live("messages:c-1"))
}

func TestFailedChannelIsNotRetriedUntilResubscribe(t *testing.T) {
	broker := realtime.NewBroker()
	manager := NewManager(broker, nil)
	got := &counter{}

	_, err := manager.Subscribe("messages:c-1", "messages", realtime.Filter{}, realtime.MaskAll, got.handle)
	require.NoError(t, err)

	broker.Fail(assert.AnError)
	assert.False(t, manager.Live("messages:c-1"))
	assert.Equal(t, []string{"messages:c-1"}, manager.Topics())

	publish(t, broker, "c-1")
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, got.value())

	require.NoError(t, manager.ResubscribeAll())
	assert.True(t, manager.Live("messages:c-1"))

	publish(t, broker, "c-1")
	require.Eventually(t, func() bool { return got.value() == 1 }, time.Second, 5*time.Millisecond)
}

func TestUnsubscribeAll(t *testing.T) {
	broker := realtime.NewBroker()
	manager := NewManager(broker, nil)

	for _, topic := range []string{"a", "b", "c"} {
		_, err := manager.Subscribe(topic, "messages", realtime.Filter{}, realtime.MaskAll, func(realtime.Change) {})
		require.NoError(t, err)
	}
	require.Equal(t, 3, broker.ChannelCount())

	manager.UnsubscribeAll()

	assert.Equal(t, 0, broker.ChannelCount())
	assert.Empty(t, manager.Topics())
}

// hookedBroker runs onOpen once, before handing out the next channel.
type hookedBroker struct {
	*realtime.Broker
	onOpen func()
}

func (b *hookedBroker) OpenChannel(name string) *realtime.Channel {
	if hook := b.onOpen; hook != nil {
		b.onOpen = nil
		hook()
	}
	return b.Broker.OpenChannel(name)
}

func TestResubscribeAllSkipsTopicDroppedMidway(t *testing.T) {
	broker := &hookedBroker{Broker: realtime.NewBroker()}
	manager := NewManager(broker, nil)
	got := &counter{}

	_, err := manager.Subscribe("messages:c-1", "messages", realtime.Filter{}, realtime.MaskAll, got.handle)
	require.NoError(t, err)
	broker.onOpen = func() { manager.UnsubscribeTopic("messages:c-1") }

	require.NoError(t, manager.ResubscribeAll())

	assert.Empty(t, manager.Topics())
	assert.Equal(t, 0, broker.ChannelCount())

	publish(t, broker.Broker, "c-1")
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, got.value())
}

func TestResubscribeAllKeepsTopicReplacedMidway(t *testing.T) {
	broker := &hookedBroker{Broker: realtime.NewBroker()}
	manager := NewManager(broker, nil)
	stale := &counter{}
	fresh := &counter{}

	_, err := manager.Subscribe("messages:c-1", "messages", realtime.Filter{}, realtime.MaskAll, stale.handle)
	require.NoError(t, err)

	var replaced *Handle
	broker.onOpen = func() {
		replaced, err = manager.Subscribe("messages:c-1", "messages", realtime.Filter{}, realtime.MaskAll, fresh.handle)
	}

	require.NoError(t, manager.ResubscribeAll())
	require.NoError(t, err)
	require.NotNil(t, replaced)
	assert.Equal(t, 1, broker.ChannelCount())
	assert.True(t, manager.Live("messages:c-1"))

	publish(t, broker.Broker, "c-1")
	require.Eventually(t, func() bool { return fresh.value() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, stale.value())
}
