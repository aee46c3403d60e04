package models

import "strings"

// SlotOption is one bookable time interval offered by the booking site.
// Value is the opaque form value the site expects back; Label is the human
// text shown on the availability page, possibly embedding a price.
type SlotOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// BookingRequest carries everything collected across the booking dialog.
// It is built incrementally step by step and consumed exactly once by Submit.
type BookingRequest struct {
	RoomID   int64
	RoomName string
	Date     string // YYYY-MM-DD
	Slots    []string
	// Options are the slots discovered for (RoomID, Date); the selected
	// Slots values are looked up here for labels and prices.
	Options []SlotOption
	Name    string
	Phone   string
	Comment string
}

// SelectedOptions returns the discovered options matching the selected slot
// values, preserving selection order. Values with no matching option are
// skipped.
func (r *BookingRequest) SelectedOptions() []SlotOption {
	byValue := make(map[string]SlotOption, len(r.Options))
	for _, opt := range r.Options {
		byValue[opt.Value] = opt
	}
	selected := make([]SlotOption, 0, len(r.Slots))
	for _, v := range r.Slots {
		if opt, ok := byValue[v]; ok {
			selected = append(selected, opt)
		}
	}
	return selected
}

// BookingResult is what the dialog driver shows to the user after Submit.
type BookingResult struct {
	Success bool
	Message string
}

// Booking is one record from the read-only schedule API.
type Booking struct {
	RoomID  int64  `json:"room_id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Status  string `json:"status"`
	Times   string `json:"times"`
	Comment string `json:"comment"`
}

// IsCancelled reports whether the booking status marks it as cancelled.
func (b *Booking) IsCancelled() bool {
	return strings.Contains(strings.ToLower(b.Status), "cancel")
}
