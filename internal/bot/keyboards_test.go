package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigzbot/internal/models"
)

func TestMonthWeeks(t *testing.T) {
	// May 2024 starts on a Wednesday and has 31 days.
	weeks := monthWeeks(2024, time.May)
	require.Len(t, weeks, 5)

	assert.Equal(t, [7]int{0, 0, 1, 2, 3, 4, 5}, weeks[0])
	assert.Equal(t, [7]int{6, 7, 8, 9, 10, 11, 12}, weeks[1])
	assert.Equal(t, [7]int{27, 28, 29, 30, 31, 0, 0}, weeks[4])
}

func TestMonthWeeksMondayStart(t *testing.T) {
	// July 2024 starts on a Monday, so the first cell is day 1.
	weeks := monthWeeks(2024, time.July)
	require.NotEmpty(t, weeks)
	assert.Equal(t, 1, weeks[0][0])
}

func TestMonthWeeksFebruaryLeap(t *testing.T) {
	weeks := monthWeeks(2024, time.February)
	last := weeks[len(weeks)-1]
	max := 0
	for _, d := range last {
		if d > max {
			max = d
		}
	}
	assert.Equal(t, 29, max)
}

func TestCalendarKeyboardCallbacks(t *testing.T) {
	kb := calendarKeyboard(2024, time.May, purposeBook)

	// Title row, header row, at least four week rows, navigation row.
	require.GreaterOrEqual(t, len(kb.InlineKeyboard), 7)

	var dayData []string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			require.NotNil(t, btn.CallbackData)
			if *btn.CallbackData != "ignore" {
				dayData = append(dayData, *btn.CallbackData)
			}
		}
	}
	assert.Contains(t, dayData, "cal_book_2024_5_1")
	assert.Contains(t, dayData, "cal_book_2024_5_31")
	assert.Contains(t, dayData, "nav_book_2024_5_prev")
	assert.Contains(t, dayData, "nav_book_2024_5_next")
}

func TestParseCalendarDate(t *testing.T) {
	d, err := parseCalendarDate("2024_5_1")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC), d)

	_, err = parseCalendarDate("2024_5")
	assert.Error(t, err)
	_, err = parseCalendarDate("2024_5_x")
	assert.Error(t, err)
}

func TestSlotKeyboardMarksSelected(t *testing.T) {
	options := []models.SlotOption{
		{Value: "slot-10", Label: "10:00-11:00 (₽500)"},
		{Value: "slot-12", Label: "12:00-13:00 (₽300)"},
	}
	keyFor := func(value string) string { return "k_" + value }

	kb := slotKeyboard(options, []string{"slot-12"}, keyFor)
	require.Len(t, kb.InlineKeyboard, 3)

	assert.Equal(t, "10:00-11:00 (₽500)", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "slot_k_slot-10", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "✅ 12:00-13:00 (₽300)", kb.InlineKeyboard[1][0].Text)

	// Confirm appears only when something is selected.
	actions := kb.InlineKeyboard[2]
	assert.Equal(t, "slots_confirm", *actions[0].CallbackData)

	kb = slotKeyboard(options, nil, keyFor)
	actions = kb.InlineKeyboard[2]
	assert.Equal(t, "retry_date", *actions[0].CallbackData)
}

func TestRoomKeyboard(t *testing.T) {
	rooms := map[int64]string{2: "Малый зал", 1: "Большой зал"}

	kb := roomKeyboard(rooms, purposeView)
	require.Len(t, kb.InlineKeyboard, 3)
	// Sorted by id.
	assert.Equal(t, "Большой зал", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "room_view_1", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "room_view_all", *kb.InlineKeyboard[2][0].CallbackData)

	kb = roomKeyboard(rooms, purposeBook)
	assert.Equal(t, "room_book_1", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "cancel_booking", *kb.InlineKeyboard[2][0].CallbackData)
}
