package signal_test

import (
	"testing"

	"github.com/Travelintrips/travelpage-sub004/internal/signal"
	"github.com/stretchr/testify/assert"
)

func TestPublishOrderAndKindIsolation(t *testing.T) {
	bus := signal.NewBus()

	var got []string
	bus.Subscribe(signal.SessionRestored, func(e signal.Event) { got = append(got, "a:"+e.UserID) })
	bus.Subscribe(signal.SessionRestored, func(e signal.Event) { got = append(got, "b:"+e.UserID) })
	bus.Subscribe(signal.CheckoutCompleted, func(signal.Event) { got = append(got, "checkout") })

	bus.Publish(signal.Event{Kind: signal.SessionRestored, UserID: "u1"})

	assert.Equal(t, []string{"a:u1", "b:u1"}, got)
}

func TestCancel(t *testing.T) {
	bus := signal.NewBus()

	calls := 0
	cancel := bus.Subscribe(signal.BookingFormCleared, func(signal.Event) { calls++ })

	bus.Publish(signal.Event{Kind: signal.BookingFormCleared})
	cancel()
	cancel()
	bus.Publish(signal.Event{Kind: signal.BookingFormCleared})

	assert.Equal(t, 1, calls)
}

func TestHandlerMaySubscribeDuringPublish(t *testing.T) {
	bus := signal.NewBus()

	nested := 0
	bus.Subscribe(signal.CheckoutCompleted, func(signal.Event) {
		bus.Subscribe(signal.CheckoutCompleted, func(signal.Event) { nested++ })
	})

	bus.Publish(signal.Event{Kind: signal.CheckoutCompleted})
	assert.Zero(t, nested)

	bus.Publish(signal.Event{Kind: signal.CheckoutCompleted})
	assert.Equal(t, 1, nested)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "sessionRestored", signal.SessionRestored.String())
	assert.Equal(t, "checkoutCompleted", signal.CheckoutCompleted.String())
	assert.Equal(t, "bookingFormCleared", signal.BookingFormCleared.String())
	assert.Equal(t, "unknown", signal.Kind(0).String())
}
