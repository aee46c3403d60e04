package bot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bigzbot/internal/events"
	"bigzbot/internal/metrics"
	"bigzbot/internal/models"
	"bigzbot/internal/schedule"
)

// AuditExporter writes the submission audit trail as an xlsx workbook.
type AuditExporter interface {
	ExportExcel(ctx context.Context, w io.Writer, since time.Time) error
}

// UseAuditExporter enables the admin /export command.
func (b *Bot) UseAuditExporter(exp AuditExporter) {
	b.auditExp = exp
}

func (b *Bot) handleViewRoom(ctx context.Context, chatID, userID int64, selection string) {
	d, err := b.loadDraft(ctx, userID)
	if err != nil {
		b.abortTurn(chatID, err)
		return
	}
	d.set(keySelectedRoom, selection)
	if err := b.saveDraft(ctx, userID, d); err != nil {
		b.abortTurn(chatID, err)
		return
	}

	text := "📅 Выберите дату для просмотра расписания"
	if selection != "all" {
		if roomID, err := strconv.ParseInt(selection, 10, 64); err == nil {
			text += " зала " + b.cfg.RoomName(roomID)
		}
	}
	now := time.Now()
	b.sendWithMarkup(chatID, text, calendarKeyboard(now.Year(), now.Month(), purposeView))
}

func (b *Bot) handleViewDate(ctx context.Context, chatID, userID int64, data string) {
	selected, err := parseCalendarDate(data)
	if err != nil {
		return
	}
	if !b.cfg.IsAdmin(userID) && selected.Before(time.Now().Truncate(24*time.Hour)) {
		b.reply(chatID, "⚠️ Вы не можете просматривать прошедшие даты")
		return
	}

	d, err := b.loadDraft(ctx, userID)
	if err != nil {
		b.abortTurn(chatID, err)
		return
	}
	selectedRoom := d.getString(keySelectedRoom)
	if selectedRoom == "" {
		selectedRoom = "all"
	}

	b.reply(chatID, fmt.Sprintf("⏳ Ищу бронирования на %s...", selected.Format("02.01.2006")))

	bookings, err := b.schedule.FetchBookings(ctx, selected.Format("20060102"))
	if err != nil {
		b.logger.Error().Err(err).Str("date", data).Msg("fetch bookings failed")
		b.reply(chatID, "❌ Не удалось получить данные с сервера. Попробуйте позже.")
		return
	}

	metrics.IncScheduleViewed()
	b.publish(events.TypeScheduleViewed, map[string]string{
		"user_id": strconv.FormatInt(userID, 10),
		"date":    selected.Format("2006-01-02"),
	})
	b.sendBookings(chatID, userID, bookings, selectedRoom)
}

// sendBookings renders the schedule grouped by room, earliest start first.
// Phones and comments are shown only to admins of the room.
func (b *Bot) sendBookings(chatID, userID int64, bookings []models.Booking, selectedRoom string) {
	if selectedRoom != "all" {
		filtered := bookings[:0]
		for _, bk := range bookings {
			if strconv.FormatInt(bk.RoomID, 10) == selectedRoom {
				filtered = append(filtered, bk)
			}
		}
		bookings = filtered
	}

	if len(bookings) == 0 {
		roomText := "во всех залах"
		if selectedRoom != "all" {
			if roomID, err := strconv.ParseInt(selectedRoom, 10, 64); err == nil {
				roomText = "в " + b.cfg.RoomName(roomID)
			}
		}
		b.reply(chatID, fmt.Sprintf("📭 На выбранную дату %s бронирований не найдено.", roomText))
		return
	}

	byRoom := make(map[int64][]models.Booking)
	for _, bk := range bookings {
		byRoom[bk.RoomID] = append(byRoom[bk.RoomID], bk)
	}
	roomIDs := make([]int64, 0, len(byRoom))
	for id := range byRoom {
		roomIDs = append(roomIDs, id)
	}
	sort.Slice(roomIDs, func(i, j int) bool { return roomIDs[i] < roomIDs[j] })

	b.reply(chatID, fmt.Sprintf("📋 Найдено %d бронирований в %d залах:", len(bookings), len(byRoom)))

	for _, roomID := range roomIDs {
		roomBookings := byRoom[roomID]
		showDetails := b.cfg.IsRoomAdmin(userID, roomID)

		header := fmt.Sprintf("🚪 %s (%d бронир.)", b.cfg.RoomName(roomID), len(roomBookings))
		if showDetails {
			header += " 👑"
		}
		b.reply(chatID, header)

		sort.SliceStable(roomBookings, func(i, j int) bool {
			return schedule.StartTimeKey(roomBookings[i].Times) < schedule.StartTimeKey(roomBookings[j].Times)
		})

		for i, bk := range roomBookings {
			b.reply(chatID, formatBooking(i+1, &bk, showDetails))
		}
	}
}

func formatBooking(n int, bk *models.Booking, showDetails bool) string {
	var parts []string
	if bk.IsCancelled() {
		parts = append(parts, "🟨🟨🟨 [ОТМЕНЕНО] 🟨🟨🟨")
	}

	name := bk.Name
	if name == "" {
		name = "Без имени"
	}
	parts = append(parts, fmt.Sprintf("#%d: %s", n, name))

	if showDetails {
		phone := bk.Phone
		if phone == "" {
			phone = "Не указан"
		}
		parts = append(parts, "📞: "+phone)
	}

	parts = append(parts, "🕒: "+schedule.ExtractTimes(bk.Times))
	parts = append(parts, "Статус: "+bk.Status)

	if showDetails && bk.Comment != "" {
		parts = append(parts, "💬: "+bk.Comment)
	}
	return strings.Join(parts, "\n")
}

// handleExport sends the audit trail for the last 30 days as an xlsx
// document; admins only.
func (b *Bot) handleExport(ctx context.Context, chatID, userID int64) {
	if b.auditExp == nil {
		return
	}
	if !b.cfg.IsAdmin(userID) {
		b.reply(chatID, "⚠️ Команда доступна только администраторам")
		return
	}

	var buf bytes.Buffer
	since := time.Now().AddDate(0, 0, -30)
	if err := b.auditExp.ExportExcel(ctx, &buf, since); err != nil {
		b.logger.Error().Err(err).Msg("audit export failed")
		b.reply(chatID, "❌ Не удалось сформировать выгрузку")
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("bookings_%s.xlsx", time.Now().Format("20060102")),
		Bytes: buf.Bytes(),
	})
	if _, err := b.tg.Send(doc); err != nil {
		b.logger.Error().Err(err).Msg("send export failed")
	}
}
