package bot

import (
	"fmt"
	"sort"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bigzbot/internal/models"
)

// Calendar purposes distinguish schedule viewing from booking.
const (
	purposeView = "view"
	purposeBook = "book"
)

var mainMenu = tgbotapi.NewReplyKeyboard(
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton("Просмотр расписания"),
		tgbotapi.NewKeyboardButton("Бронировать"),
	),
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton("❓ Помощь"),
		tgbotapi.NewKeyboardButton("ℹ️ О боте"),
	),
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton("Отмена"),
	),
)

var monthTitles = [13]string{
	"", "Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

var weekdayHeaders = []string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}

// roomKeyboard lists rooms sorted by id. For viewing, an extra "all rooms"
// button is added; for booking, a cancel button instead.
func roomKeyboard(rooms map[int64]string, purpose string) tgbotapi.InlineKeyboardMarkup {
	ids := make([]int64, 0, len(rooms))
	for id := range rooms {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, id := range ids {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(rooms[id], fmt.Sprintf("room_%s_%d", purpose, id)),
		))
	}
	if purpose == purposeView {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Все залы", "room_view_all"),
		))
	} else {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "cancel_booking"),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// monthWeeks returns the weeks of a month as 7-day rows starting Monday;
// zero marks a day outside the month.
func monthWeeks(year int, month time.Month) [][7]int {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	// Monday-based offset of the first day.
	offset := (int(first.Weekday()) + 6) % 7
	daysInMonth := first.AddDate(0, 1, -1).Day()

	var weeks [][7]int
	var week [7]int
	pos := offset
	for day := 1; day <= daysInMonth; day++ {
		week[pos] = day
		pos++
		if pos == 7 {
			weeks = append(weeks, week)
			week = [7]int{}
			pos = 0
		}
	}
	if pos > 0 {
		weeks = append(weeks, week)
	}
	return weeks
}

// calendarKeyboard renders an interactive month grid. Day taps produce
// "cal_<purpose>_<y>_<m>_<d>", navigation "nav_<purpose>_<y>_<m>_prev|next".
func calendarKeyboard(year int, month time.Month, purpose string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	title := fmt.Sprintf("%s %d", monthTitles[int(month)], year)
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(title, "ignore"),
	))

	var headers []tgbotapi.InlineKeyboardButton
	for _, day := range weekdayHeaders {
		headers = append(headers, tgbotapi.NewInlineKeyboardButtonData(day, "ignore"))
	}
	rows = append(rows, headers)

	for _, week := range monthWeeks(year, month) {
		var row []tgbotapi.InlineKeyboardButton
		for _, day := range week {
			if day == 0 {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(" ", "ignore"))
				continue
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%d", day),
				fmt.Sprintf("cal_%s_%d_%d_%d", purpose, year, int(month), day),
			))
		}
		rows = append(rows, row)
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️", fmt.Sprintf("nav_%s_%d_%d_prev", purpose, year, int(month))),
		tgbotapi.NewInlineKeyboardButtonData("➡️", fmt.Sprintf("nav_%s_%d_%d_next", purpose, year, int(month))),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// slotKeyboard renders the discovered slots with the selected ones marked.
// Slot values can exceed Telegram's callback data limit, so buttons carry
// short keys resolved through the callback cache.
func slotKeyboard(options []models.SlotOption, selected []string, keyFor func(value string) string) tgbotapi.InlineKeyboardMarkup {
	chosen := make(map[string]bool, len(selected))
	for _, v := range selected {
		chosen[v] = true
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, opt := range options {
		label := opt.Label
		if chosen[opt.Value] {
			label = "✅ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "slot_"+keyFor(opt.Value)),
		))
	}

	var actions []tgbotapi.InlineKeyboardButton
	if len(selected) > 0 {
		actions = append(actions, tgbotapi.NewInlineKeyboardButtonData("📝 Подтвердить", "slots_confirm"))
	}
	actions = append(actions,
		tgbotapi.NewInlineKeyboardButtonData("🔄 Другая дата", "retry_date"),
		tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "cancel_booking"),
	)
	rows = append(rows, actions)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

var retryDateKeyboard = tgbotapi.NewInlineKeyboardMarkup(
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Выбрать другую дату", "retry_date"),
	),
)

var skipCommentKeyboard = tgbotapi.NewInlineKeyboardMarkup(
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Пропустить", "skip_comment"),
	),
)
