package realtime

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

type countingObserver struct {
	added, removed, dropped atomic.Int64
}

func (o *countingObserver) SubscriberAdded()   { o.added.Add(1) }
func (o *countingObserver) SubscriberRemoved() { o.removed.Add(1) }
func (o *countingObserver) EventDropped()      { o.dropped.Add(1) }

func TestPublishReachesOnlyRecipients(t *testing.T) {
	hub := NewHub(nil, nil)
	alice := hub.Subscribe("alice")
	aliceTab := hub.Subscribe("alice")
	bob := hub.Subscribe("bob")
	defer alice.Close()
	defer aliceTab.Close()
	defer bob.Close()

	hub.Publish([]string{"alice"}, chat.Event{Type: chat.EventMessageCreated, ConversationID: "c1"})

	for _, sub := range []*Subscription{alice, aliceTab} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, "c1", ev.ConversationID)
		default:
			t.Fatal("expected an event for alice")
		}
	}
	assert.Empty(t, bob.Events())
}

func TestFullQueueDropsEvents(t *testing.T) {
	obs := &countingObserver{}
	hub := NewHub(nil, obs)
	hub.buffer = 1
	sub := hub.Subscribe("alice")
	defer sub.Close()

	hub.Publish([]string{"alice"}, chat.Event{Type: chat.EventMessageCreated})
	hub.Publish([]string{"alice"}, chat.Event{Type: chat.EventMessageDeleted})

	ev := <-sub.Events()
	assert.Equal(t, chat.EventMessageCreated, ev.Type)
	assert.Equal(t, int64(1), obs.dropped.Load())
}

func TestCloseIsIdempotent(t *testing.T) {
	obs := &countingObserver{}
	hub := NewHub(nil, obs)
	sub := hub.Subscribe("alice")
	require.Equal(t, 1, hub.Subscribers("alice"))

	sub.Close()
	sub.Close()

	_, open := <-sub.Events()
	assert.False(t, open)
	assert.Zero(t, hub.Subscribers("alice"))
	assert.Equal(t, int64(1), obs.removed.Load())

	hub.Publish([]string{"alice"}, chat.Event{Type: chat.EventMessageCreated})
}
