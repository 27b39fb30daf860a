package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type testEvent struct {
	BaseEvent
	Value string
}

func TestBus_Publish(t *testing.T) {
	t.Run("dispatches to handlers of the event type", func(t *testing.T) {
		bus := NewBus(zap.NewNop())

		var got []string
		bus.Register(NewHandlerFunc([]string{"PaymentStatusChanged"}, func(e Event) error {
			got = append(got, e.(testEvent).Value)
			return nil
		}))
		bus.Register(NewHandlerFunc([]string{"Other"}, func(e Event) error {
			t.Fatal("unexpected dispatch")
			return nil
		}))

		bus.Publish(testEvent{
			BaseEvent: NewBaseEvent("PaymentStatusChanged", "pay_1", "Payment"),
			Value:     "captured",
		})

		assert.Equal(t, []string{"captured"}, got)
	})

	t.Run("handler errors do not stop other handlers", func(t *testing.T) {
		bus := NewBus(nil)

		calls := 0
		bus.Register(NewHandlerFunc([]string{"E"}, func(Event) error {
			calls++
			return errors.New("boom")
		}))
		bus.Register(NewHandlerFunc([]string{"E"}, func(Event) error {
			calls++
			return nil
		}))

		bus.PublishAll([]Event{
			testEvent{BaseEvent: NewBaseEvent("E", "a", "Payment")},
			testEvent{BaseEvent: NewBaseEvent("E", "b", "Payment")},
		})

		assert.Equal(t, 4, calls)
	})

	t.Run("no handlers is a no-op", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		assert.NotPanics(t, func() {
			bus.Publish(testEvent{BaseEvent: NewBaseEvent("Unhandled", "x", "Session")})
		})
	})
}

func TestNewBaseEvent(t *testing.T) {
	e := NewBaseEvent("PaymentStatusChanged", "pay_1", "Payment")

	assert.NotEqual(t, "", e.EventID().String())
	assert.Equal(t, "PaymentStatusChanged", e.EventType())
	assert.Equal(t, "pay_1", e.AggregateID())
	assert.Equal(t, "Payment", e.AggregateType())
	assert.False(t, e.OccurredAt().IsZero())
}

type otherEvent struct {
	BaseEvent
}

func TestOn(t *testing.T) {
	var got []string
	h := On("PaymentStatusChanged", func(e testEvent) error {
		got = append(got, e.Value)
		return nil
	})

	assert.Equal(t, []string{"PaymentStatusChanged"}, h.Handles())
	assert.NoError(t, h.Handle(testEvent{BaseEvent: NewBaseEvent("PaymentStatusChanged", "pay_1", "Payment"), Value: "voided"}))
	assert.NoError(t, h.Handle(otherEvent{BaseEvent: NewBaseEvent("PaymentStatusChanged", "pay_1", "Payment")}))
	assert.Equal(t, []string{"voided"}, got)
}

func TestGroup(t *testing.T) {
	var got []string
	boom := errors.New("boom")
	record := func(prefix string, err error) func(testEvent) error {
		return func(e testEvent) error {
			got = append(got, prefix+":"+e.Value)
			return err
		}
	}
	g := Group{
		On("A", record("a", boom)),
		On("B", record("b", nil)),
		On("A", record("a2", nil)),
	}

	assert.Equal(t, []string{"A", "B"}, g.Handles())

	bus := NewBus(nil)
	bus.Register(g)
	bus.Publish(testEvent{BaseEvent: NewBaseEvent("B", "x", "T"), Value: "1"})
	assert.Equal(t, []string{"b:1"}, got)

	got = nil
	err := g.Handle(testEvent{BaseEvent: NewBaseEvent("A", "x", "T"), Value: "2"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a:2", "a2:2"}, got)
}
