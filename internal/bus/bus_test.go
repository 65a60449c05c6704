package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	b := New(nil)

	var order []int
	b.Subscribe("tick", func(any) { order = append(order, 1) })
	b.Subscribe("tick", func(any) { order = append(order, 2) })
	b.Subscribe("tick", func(any) { order = append(order, 3) })

	b.Publish("tick", nil)

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestPublishWithoutSubscribersIsNoOp(t *testing.T) {
	b := New(nil)
	b.Publish("nobody-listens", "payload")
}

func TestPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	b := New(nil)

	var delivered []string
	b.Subscribe("tick", func(any) { delivered = append(delivered, "first") })
	b.Subscribe("tick", func(any) { panic("handler blew up") })
	b.Subscribe("tick", func(any) { delivered = append(delivered, "third") })

	b.Publish("tick", nil)

	assert.Equal(t, []string{"first", "third"}, delivered)
}

func TestUnsubscribeRemovesHandler(t *testing.T) {
	b := New(nil)

	var calls int
	sub := b.Subscribe("tick", func(any) { calls++ })
	b.Publish("tick", nil)
	require.Equal(t, 1, calls)

	b.Unsubscribe(sub)
	b.Publish("tick", nil)
	assert.Equal(t, 1, calls)
}

func TestUnsubscribeUnknownIsNoOp(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe("tick", func(any) {})
	b.Unsubscribe(sub)
	b.Unsubscribe(sub) // second removal of the same handle
	b.Unsubscribe(nil)
}

func TestPayloadReachesHandler(t *testing.T) {
	b := New(nil)

	var got any
	b.Subscribe(EventPostSelected, func(payload any) { got = payload })
	b.Publish(EventPostSelected, PostSelected{PostID: "p1"})

	require.IsType(t, PostSelected{}, got)
	assert.Equal(t, "p1", got.(PostSelected).PostID)
}

func TestSubscribeDuringPublishDoesNotAffectCurrentDelivery(t *testing.T) {
	b := New(nil)

	var lateCalls int
	b.Subscribe("tick", func(any) {
		b.Subscribe("tick", func(any) { lateCalls++ })
	})

	b.Publish("tick", nil)
	assert.Zero(t, lateCalls)

	b.Publish("tick", nil)
	assert.Equal(t, 1, lateCalls)
}
