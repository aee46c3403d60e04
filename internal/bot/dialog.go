package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bigzbot/internal/events"
	"bigzbot/internal/metrics"
	"bigzbot/internal/models"
	"bigzbot/internal/persistence"
)

// startBookingDialog enters the booking conversation at the room step.
func (b *Bot) startBookingDialog(ctx context.Context, chatID int64, key persistence.ConversationKey) {
	if err := b.setStep(ctx, key, stepRoom); err != nil {
		b.abortTurn(chatID, err)
		return
	}
	b.sendWithMarkup(chatID, "🏢 Выберите зал для бронирования:", roomKeyboard(b.cfg.Rooms, purposeBook))
}

func (b *Bot) handleBookingRoom(ctx context.Context, chatID, userID int64, key persistence.ConversationKey, data string) {
	step, err := b.currentStep(ctx, key)
	if err != nil {
		b.abortTurn(chatID, err)
		return
	}
	if step != stepRoom {
		return
	}

	roomID, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		return
	}

	d, err := b.loadDraft(ctx, userID)
	if err != nil {
		b.abortTurn(chatID, err)
		return
	}
	d.set(keyRoomID, roomID)
	d.set(keyRoomName, b.cfg.RoomName(roomID))
	if err := b.saveDraft(ctx, userID, d); err != nil {
		b.abortTurn(chatID, err)
		return
	}
	if err := b.setStep(ctx, key, stepDate); err != nil {
		b.abortTurn(chatID, err)
		return
	}

	now := time.Now()
	text := fmt.Sprintf("📅 Выберите дату для бронирования зала %s", b.cfg.RoomName(roomID))
	b.sendWithMarkup(chatID, text, calendarKeyboard(now.Year(), now.Month(), purposeBook))
}

func (b *Bot) handleBookingDate(ctx context.Context, chatID, userID int64, key persistence.ConversationKey, data string) {
	step, err := b.currentStep(ctx, key)
	if err != nil {
		b.abortTurn(chatID, err)
		return
	}
	if step != stepDate {
		return
	}

	selected, err := parseCalendarDate(data)
	if err != nil {
		return
	}
	if selected.Before(time.Now().Truncate(24 * time.Hour)) {
		b.reply(chatID, "⚠️ Нельзя бронировать на прошедшую дату")
		return
	}

	d, err := b.loadDraft(ctx, userID)
	if err != nil {
		b.abortTurn(chatID, err)
		return
	}
	roomID := d.getInt64(keyRoomID)
	roomName := d.getString(keyRoomName)
	date := selected.Format("2006-01-02")

	b.reply(chatID, fmt.Sprintf("⏳ Проверяю доступные слоты для %s на %s...",
		roomName, selected.Format("02.01.2006")))

	options, err := b.bookings.Discover(ctx, roomID, date)
	if err != nil {
		metrics.IncSlotsDiscovered("error")
		b.logger.Error().Err(err).Int64("room", roomID).Str("date", date).Msg("discover failed")
		b.reply(chatID, "❌ Не удалось получить данные с сервера. Попробуйте позже.")
		return
	}
	if len(options) == 0 {
		metrics.IncSlotsDiscovered("empty")
		text := fmt.Sprintf("❌ На %s в %s нет доступных слотов.", selected.Format("02.01.2006"), roomName)
		b.sendWithMarkup(chatID, text, retryDateKeyboard)
		return
	}
	metrics.IncSlotsDiscovered("ok")

	d.set(keyDate, date)
	d.setSlotOptions(options)
	d.setSelectedSlots(nil)
	if err := b.saveDraft(ctx, userID, d); err != nil {
		b.abortTurn(chatID, err)
		return
	}
	if err := b.setStep(ctx, key, stepSlots); err != nil {
		b.abortTurn(chatID, err)
		return
	}
	b.showSlots(ctx, chatID, d)
}

func (b *Bot) showSlots(ctx context.Context, chatID int64, d *draft) {
	keyFor := func(value string) string {
		key, err := b.cacheCallbackValue(ctx, value)
		if err != nil {
			b.logger.Error().Err(err).Msg("callback cache write failed")
			return "unavailable"
		}
		return key
	}

	date, _ := time.Parse("2006-01-02", d.getString(keyDate))
	text := fmt.Sprintf("🕒 Выберите временные слоты:\n🏢 Зал: %s\n📅 Дата: %s",
		d.getString(keyRoomName), date.Format("02.01.2006"))
	b.sendWithMarkup(chatID, text, slotKeyboard(d.slotOptions(), d.selectedSlots(), keyFor))
}

func (b *Bot) handleSlotToggle(ctx context.Context, chatID, userID int64, key persistence.ConversationKey, shortKey string) {
	step, err := b.currentStep(ctx, key)
	if err != nil {
		b.abortTurn(chatID, err)
		return
	}
	if step != stepSlots {
		return
	}

	value, err := b.resolveCallbackValue(ctx, shortKey)
	if err != nil {
		b.logger.Warn().Err(err).Msg("stale slot callback")
		return
	}

	d, err := b.loadDraft(ctx, userID)
	if err != nil {
		b.abortTurn(chatID, err)
		return
	}
	d.toggleSlot(value)
	if err := b.saveDraft(ctx, userID, d); err != nil {
		b.abortTurn(chatID, err)
		return
	}
	b.showSlots(ctx, chatID, d)
}

func (b *Bot) handleSlotsConfirm(ctx context.Context, chatID, userID int64, key persistence.ConversationKey) {
	step, err := b.currentStep(ctx, key)
	if err != nil {
		b.abortTurn(chatID, err)
		return
	}
	if step != stepSlots {
		return
	}

	d, err := b.loadDraft(ctx, userID)
	if err != nil {
		b.abortTurn(chatID, err)
		return
	}
	if len(d.selectedSlots()) == 0 {
		b.reply(chatID, "⚠️ Вы не выбрали ни одного слота. Выберите хотя бы один.")
		return
	}
	if err := b.setStep(ctx, key, stepName); err != nil {
		b.abortTurn(chatID, err)
		return
	}
	b.reply(chatID, "📝 Отлично! Теперь введите ваше имя или название команды.")
}

// handleDialogText consumes a free-text answer for the current step.
func (b *Bot) handleDialogText(ctx context.Context, chatID, userID int64, key persistence.ConversationKey, step, text string) {
	d, err := b.loadDraft(ctx, userID)
	if err != nil {
		b.abortTurn(chatID, err)
		return
	}

	switch step {
	case stepName:
		d.set(keyName, text)
		if err := b.saveDraft(ctx, userID, d); err != nil {
			b.abortTurn(chatID, err)
			return
		}
		if err := b.setStep(ctx, key, stepPhone); err != nil {
			b.abortTurn(chatID, err)
			return
		}
		b.reply(chatID, fmt.Sprintf("Отлично, %s! Теперь введите ваш номер телефона.", text))

	case stepPhone:
		d.set(keyPhone, text)
		if err := b.saveDraft(ctx, userID, d); err != nil {
			b.abortTurn(chatID, err)
			return
		}
		if err := b.setStep(ctx, key, stepComment); err != nil {
			b.abortTurn(chatID, err)
			return
		}
		b.sendWithMarkup(chatID, "Спасибо! Введите комментарий к заявке или нажмите «Пропустить».", skipCommentKeyboard)

	case stepComment:
		d.set(keyComment, text)
		if err := b.saveDraft(ctx, userID, d); err != nil {
			b.abortTurn(chatID, err)
			return
		}
		b.finalizeBooking(ctx, chatID, userID, key, d)
	}
}

// finalizeBooking assembles the request from the draft and submits it.
func (b *Bot) finalizeBooking(ctx context.Context, chatID, userID int64, key persistence.ConversationKey, d *draft) {
	if !b.limiter.Allow(userID) {
		b.reply(chatID, "⚠️ Слишком много заявок подряд. Подождите немного и попробуйте снова.")
		return
	}

	req := &models.BookingRequest{
		RoomID:   d.getInt64(keyRoomID),
		RoomName: d.getString(keyRoomName),
		Date:     d.getString(keyDate),
		Slots:    d.selectedSlots(),
		Options:  d.slotOptions(),
		Name:     d.getString(keyName),
		Phone:    d.getString(keyPhone),
		Comment:  d.getString(keyComment),
	}

	b.reply(chatID, "✅ Заявка собрана! Отправляю на сайт...")
	result := b.bookings.Submit(ctx, req)

	outcome := "rejected"
	evType := events.TypeBookingFailed
	prefix := "❌ "
	if result.Success {
		outcome = "accepted"
		evType = events.TypeBookingSubmitted
		prefix = "✅ "
	}
	metrics.IncBookingSubmitted(outcome)
	b.publish(evType, map[string]string{
		"user_id":   strconv.FormatInt(userID, 10),
		"room_id":   strconv.FormatInt(req.RoomID, 10),
		"room_name": req.RoomName,
		"date":      req.Date,
		"slots":     strings.Join(req.Slots, ","),
		"message":   result.Message,
	})
	b.reply(chatID, prefix+result.Message)

	// Terminal transition: clear the dialog and the draft.
	d.clearDraft()
	if err := b.saveDraft(ctx, userID, d); err != nil {
		b.abortTurn(chatID, err)
		return
	}
	if err := b.setStep(ctx, key, ""); err != nil {
		b.abortTurn(chatID, err)
	}
}

func (b *Bot) handleRetryDate(ctx context.Context, chatID, userID int64, key persistence.ConversationKey) {
	step, err := b.currentStep(ctx, key)
	if err != nil {
		b.abortTurn(chatID, err)
		return
	}
	// A stale button from an old message must not re-enter the dialog.
	if step != stepDate && step != stepSlots {
		return
	}

	d, err := b.loadDraft(ctx, userID)
	if err != nil {
		b.abortTurn(chatID, err)
		return
	}
	if d.getInt64(keyRoomID) == 0 {
		b.startBookingDialog(ctx, chatID, key)
		return
	}
	if err := b.setStep(ctx, key, stepDate); err != nil {
		b.abortTurn(chatID, err)
		return
	}
	now := time.Now()
	b.sendWithMarkup(chatID, "📅 Выберите дату", calendarKeyboard(now.Year(), now.Month(), purposeBook))
}

func (b *Bot) cancelBooking(ctx context.Context, chatID int64, key persistence.ConversationKey) {
	d, err := b.loadDraft(ctx, key.UserID)
	if err != nil {
		b.abortTurn(chatID, err)
		return
	}
	d.clearDraft()
	if err := b.saveDraft(ctx, key.UserID, d); err != nil {
		b.abortTurn(chatID, err)
		return
	}
	if err := b.setStep(ctx, key, ""); err != nil {
		b.abortTurn(chatID, err)
		return
	}
	b.sendWithMarkup(chatID, "❌ Бронирование отменено", mainMenu)
}
