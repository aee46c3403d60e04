package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishNotifiesSubscribers(t *testing.T) {
	bus := NewEventBus()

	var got []Event
	bus.Subscribe(TypeBookingSubmitted, func(e Event) error {
		got = append(got, e)
		return nil
	})
	bus.Subscribe(TypeBookingFailed, func(Event) error {
		t.Fatal("wrong event type delivered")
		return nil
	})

	bus.Publish(Event{Type: TypeBookingSubmitted, Payload: map[string]string{"room_id": "7"}})

	assert.Len(t, got, 1)
	assert.Equal(t, "7", got[0].Payload["room_id"])
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewEventBus()
	assert.NotPanics(t, func() {
		bus.Publish(Event{Type: TypeScheduleViewed})
	})
}

func TestHandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewEventBus()

	called := false
	bus.Subscribe(TypeBookingFailed, func(Event) error { return errors.New("boom") })
	bus.Subscribe(TypeBookingFailed, func(Event) error {
		called = true
		return nil
	})

	bus.Publish(Event{Type: TypeBookingFailed})
	assert.True(t, called)
}
