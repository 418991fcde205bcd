package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInOrderToEachSubscriber(t *testing.T) {
	topic := NewTopic[int](8)
	sub := topic.Subscribe()
	defer sub.Unsubscribe()

	topic.Publish(1)
	topic.Publish(2)
	topic.Publish(3)

	for _, want := range []int{1, 2, 3} {
		select {
		case env := <-sub.Events():
			require.Nil(t, env.Lag)
			assert.Equal(t, want, env.Value)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestMultipleSubscribersEachReceiveEveryEvent(t *testing.T) {
	topic := NewTopic[string](8)
	a := topic.Subscribe()
	b := topic.Subscribe()
	defer a.Unsubscribe()
	defer b.Unsubscribe()

	topic.Publish("hello")

	for _, sub := range []*Subscription[string]{a, b} {
		select {
		case env := <-sub.Events():
			assert.Equal(t, "hello", env.Value)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

// TestSlowSubscriberLagsWithoutBlockingPublisher covers spec.md §4.6:
// "Publishers never block: when the buffer is full, the slowest
// consumer is dropped with a Lagged{missed} signal."
func TestSlowSubscriberLagsWithoutBlockingPublisher(t *testing.T) {
	topic := NewTopic[int](2)
	slow := topic.Subscribe()
	defer slow.Unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			topic.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	var sawLag bool
	drain:
	for {
		select {
		case env := <-slow.Events():
			if env.Lag != nil {
				sawLag = true
			}
		default:
			break drain
		}
	}
	assert.True(t, sawLag, "slow subscriber should have observed a Lagged marker")
}

func TestUnsubscribeStopsFurtherDelivery(t *testing.T) {
	topic := NewTopic[int](4)
	sub := topic.Subscribe()
	sub.Unsubscribe()

	assert.Equal(t, 0, topic.SubscriberCount())
	topic.Publish(1) // must not panic or deadlock after unsubscribe

	_, ok := <-sub.Events()
	assert.False(t, ok, "channel should be closed after Unsubscribe")
}

func TestCloseClosesAllSubscriberChannels(t *testing.T) {
	topic := NewTopic[int](4)
	a := topic.Subscribe()
	b := topic.Subscribe()

	topic.Close()

	_, okA := <-a.Events()
	_, okB := <-b.Events()
	assert.False(t, okA)
	assert.False(t, okB)
	assert.Equal(t, 0, topic.SubscriberCount())
}
