package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectedOptions(t *testing.T) {
	req := &BookingRequest{
		Slots: []string{"slot-12", "slot-10", "slot-unknown"},
		Options: []SlotOption{
			{Value: "slot-10", Label: "10:00-11:00 (₽500)"},
			{Value: "slot-12", Label: "12:00-13:00 (₽300)"},
		},
	}

	selected := req.SelectedOptions()
	assert.Len(t, selected, 2)
	// Selection order is preserved; unknown values are skipped.
	assert.Equal(t, "slot-12", selected[0].Value)
	assert.Equal(t, "slot-10", selected[1].Value)
}

func TestSelectedOptionsEmpty(t *testing.T) {
	req := &BookingRequest{
		Options: []SlotOption{{Value: "slot-10", Label: "10:00-11:00"}},
	}
	assert.Empty(t, req.SelectedOptions())
}

func TestBookingIsCancelled(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"confirmed", false},
		{"cancelled", true},
		{"Canceled", true},
		{"CANCELLED by admin", true},
		{"", false},
	}

	for _, tt := range tests {
		b := &Booking{Status: tt.status}
		assert.Equal(t, tt.want, b.IsCancelled(), "status %q", tt.status)
	}
}
