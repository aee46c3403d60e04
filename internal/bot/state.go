package bot

import (
	"context"
	"encoding/json"

	"bigzbot/internal/models"
	"bigzbot/internal/persistence"
)

// dialogBooking names the multi-step booking conversation in the store.
const dialogBooking = "booking"

// Booking dialog steps. The step is persisted after every turn so a restart
// resumes the dialog where it stopped.
const (
	stepRoom    = "room"
	stepDate    = "date"
	stepSlots   = "slots"
	stepName    = "name"
	stepPhone   = "phone"
	stepComment = "comment"
)

// Scoped-data keys for the in-flight booking draft.
const (
	keyRoomID        = "booking_room_id"
	keyRoomName      = "booking_room_name"
	keyDate          = "booking_date"
	keySlots         = "booking_slots"
	keySelectedSlots = "selected_slots"
	keyName          = "booking_name"
	keyPhone         = "booking_phone"
	keyComment       = "booking_comment"
	keySelectedRoom  = "selected_room"
)

var draftKeys = []string{
	keyRoomID, keyRoomName, keyDate, keySlots, keySelectedSlots,
	keyName, keyPhone, keyComment, keySelectedRoom,
}

// draft wraps the user-scoped data map for one booking dialog.
type draft struct {
	data map[string]any
}

func newDraft(data map[string]any) *draft {
	if data == nil {
		data = make(map[string]any)
	}
	return &draft{data: data}
}

func (d *draft) getString(key string) string {
	if v, ok := d.data[key].(string); ok {
		return v
	}
	return ""
}

func (d *draft) getInt64(key string) int64 {
	switch v := d.data[key].(type) {
	case int64:
		return v
	case float64:
		// JSON round trip stores numbers as float64.
		return int64(v)
	}
	return 0
}

func (d *draft) set(key string, value any) {
	d.data[key] = value
}

// slotOptions decodes the discovered options stored under keySlots.
func (d *draft) slotOptions() []models.SlotOption {
	raw, ok := d.data[keySlots].(string)
	if !ok || raw == "" {
		return nil
	}
	var opts []models.SlotOption
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		return nil
	}
	return opts
}

func (d *draft) setSlotOptions(opts []models.SlotOption) {
	raw, err := json.Marshal(opts)
	if err != nil {
		return
	}
	d.data[keySlots] = string(raw)
}

// selectedSlots returns the currently toggled slot values in order.
func (d *draft) selectedSlots() []string {
	raw, ok := d.data[keySelectedSlots].([]any)
	if !ok {
		return nil
	}
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			values = append(values, s)
		}
	}
	return values
}

func (d *draft) setSelectedSlots(values []string) {
	raw := make([]any, 0, len(values))
	for _, v := range values {
		raw = append(raw, v)
	}
	d.data[keySelectedSlots] = raw
}

func (d *draft) toggleSlot(value string) {
	selected := d.selectedSlots()
	for i, v := range selected {
		if v == value {
			d.setSelectedSlots(append(selected[:i], selected[i+1:]...))
			return
		}
	}
	d.setSelectedSlots(append(selected, value))
}

// clearDraft removes all booking keys from the user scope, keeping any
// unrelated values the scope may hold.
func (d *draft) clearDraft() {
	for _, key := range draftKeys {
		delete(d.data, key)
	}
}

// loadDraft reads the user scope for the dialog. Storage failure aborts the
// turn upstream.
func (b *Bot) loadDraft(ctx context.Context, userID int64) (*draft, error) {
	data, err := b.store.Get(ctx, persistence.ScopeUser, userID)
	if err != nil {
		return nil, err
	}
	return newDraft(data), nil
}

// saveDraft writes the user scope back wholesale.
func (b *Bot) saveDraft(ctx context.Context, userID int64, d *draft) error {
	return b.store.Put(ctx, persistence.ScopeUser, userID, d.data)
}

// setStep persists the dialog step; an empty step clears the conversation
// record (terminal transition).
func (b *Bot) setStep(ctx context.Context, key persistence.ConversationKey, step string) error {
	if step == "" {
		return b.store.SetConversationState(ctx, dialogBooking, key, nil)
	}
	return b.store.SetConversationState(ctx, dialogBooking, key, &persistence.ConversationState{Step: step})
}

// currentStep returns the persisted dialog step, or "" when no dialog is
// active.
func (b *Bot) currentStep(ctx context.Context, key persistence.ConversationKey) (string, error) {
	state, err := b.store.ConversationState(ctx, dialogBooking, key)
	if err != nil {
		return "", err
	}
	if state == nil {
		return "", nil
	}
	return state.Step, nil
}
