// Package bot drives the Telegram dialogs: schedule viewing and the
// multi-step booking conversation. Every dialog turn is persisted before it
// is advanced, so a restart resumes in-flight conversations.
package bot

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"bigzbot/internal/config"
	"bigzbot/internal/events"
	"bigzbot/internal/metrics"
	"bigzbot/internal/models"
	"bigzbot/internal/persistence"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

// BookingClient is the stateful external-booking client.
type BookingClient interface {
	Discover(ctx context.Context, roomID int64, date string) ([]models.SlotOption, error)
	Submit(ctx context.Context, req *models.BookingRequest) models.BookingResult
}

// ScheduleClient reads the booking schedule for a date.
type ScheduleClient interface {
	FetchBookings(ctx context.Context, date string) ([]models.Booking, error)
}

// Bot wires the dialog driver to the store, the booking client and the
// schedule API.
type Bot struct {
	tg       telegramClient
	cfg      *config.Config
	store    *persistence.Store
	bookings BookingClient
	schedule ScheduleClient
	bus      *events.EventBus
	limiter  *submitLimiter
	auditExp AuditExporter
	logger   *zerolog.Logger
}

// New connects to Telegram and constructs the bot.
func New(
	cfg *config.Config,
	store *persistence.Store,
	bookings BookingClient,
	schedule ScheduleClient,
	bus *events.EventBus,
	logger *zerolog.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return nil, err
	}
	api.Debug = cfg.Telegram.Debug
	return newBot(&realTelegramClient{api: api}, cfg, store, bookings, schedule, bus, logger)
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(
	tg telegramClient,
	cfg *config.Config,
	store *persistence.Store,
	bookings BookingClient,
	schedule ScheduleClient,
	bus *events.EventBus,
	logger *zerolog.Logger,
) (*Bot, error) {
	return newBot(tg, cfg, store, bookings, schedule, bus, logger)
}

func newBot(
	tg telegramClient,
	cfg *config.Config,
	store *persistence.Store,
	bookings BookingClient,
	schedule ScheduleClient,
	bus *events.EventBus,
	logger *zerolog.Logger,
) (*Bot, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("state store is nil")
	}
	return &Bot{
		tg:       tg,
		cfg:      cfg,
		store:    store,
		bookings: bookings,
		schedule: schedule,
		bus:      bus,
		limiter:  newSubmitLimiter(cfg.RateLimit.SubmissionsPerMinute, cfg.RateLimit.Burst),
		logger:   logger,
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := b.tg.GetUpdatesChan(updateCfg)

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, &update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Msg("recovered in update handler")
		}
	}()

	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID
	key := persistence.ConversationKey{ChatID: chatID, UserID: userID}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.sendWithMarkup(chatID, "👋 Добро пожаловать в бот бронирования bigZ!\nВыберите действие из меню ниже:", mainMenu)
		case "cancel":
			b.cancelBooking(ctx, chatID, key)
		case "export":
			b.handleExport(ctx, chatID, userID)
		default:
			b.reply(chatID, "Неизвестная команда. Используйте меню ниже ⬇️")
		}
		return
	}

	// Text answers belong to the booking dialog when one is active.
	step, err := b.currentStep(ctx, key)
	if err != nil {
		b.abortTurn(chatID, err)
		return
	}
	if step == stepName || step == stepPhone || step == stepComment {
		b.handleDialogText(ctx, chatID, userID, key, step, msg.Text)
		return
	}

	switch strings.ToLower(strings.TrimSpace(msg.Text)) {
	case "просмотр расписания":
		b.sendWithMarkup(chatID, "🏢 Выберите зал:", roomKeyboard(b.cfg.Rooms, purposeView))
	case "бронировать":
		b.startBookingDialog(ctx, chatID, key)
	case "отмена":
		b.cancelBooking(ctx, chatID, key)
	case "❓ помощь":
		b.reply(chatID, helpText)
	case "ℹ️ о боте":
		b.reply(chatID, aboutText)
	default:
		b.sendWithMarkup(chatID, "Я не понимаю эту команду. Используйте меню ниже ⬇️", mainMenu)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	b.answerCallback(cq.ID)
	if cq.Message == nil {
		return
	}

	chatID := cq.Message.Chat.ID
	userID := cq.From.ID
	key := persistence.ConversationKey{ChatID: chatID, UserID: userID}
	data := cq.Data

	switch {
	case data == "ignore":
	case data == "cancel_booking":
		b.cancelBooking(ctx, chatID, key)
	case data == "retry_date":
		b.handleRetryDate(ctx, chatID, userID, key)
	case data == "slots_confirm":
		b.handleSlotsConfirm(ctx, chatID, userID, key)
	case data == "skip_comment":
		b.handleDialogText(ctx, chatID, userID, key, stepComment, "Пропущено")
	case strings.HasPrefix(data, "room_view_"):
		b.handleViewRoom(ctx, chatID, userID, strings.TrimPrefix(data, "room_view_"))
	case strings.HasPrefix(data, "room_book_"):
		b.handleBookingRoom(ctx, chatID, userID, key, strings.TrimPrefix(data, "room_book_"))
	case strings.HasPrefix(data, "cal_view_"):
		b.handleViewDate(ctx, chatID, userID, strings.TrimPrefix(data, "cal_view_"))
	case strings.HasPrefix(data, "cal_book_"):
		b.handleBookingDate(ctx, chatID, userID, key, strings.TrimPrefix(data, "cal_book_"))
	case strings.HasPrefix(data, "nav_"):
		b.handleCalendarNav(chatID, strings.TrimPrefix(data, "nav_"))
	case strings.HasPrefix(data, "slot_"):
		b.handleSlotToggle(ctx, chatID, userID, key, strings.TrimPrefix(data, "slot_"))
	}
}

// handleCalendarNav re-renders the calendar for the previous or next month.
func (b *Bot) handleCalendarNav(chatID int64, data string) {
	parts := strings.Split(data, "_")
	if len(parts) != 4 {
		return
	}
	purpose := parts[0]
	year, _ := strconv.Atoi(parts[1])
	month, _ := strconv.Atoi(parts[2])

	t := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	if parts[3] == "prev" {
		t = t.AddDate(0, -1, 0)
	} else {
		t = t.AddDate(0, 1, 0)
	}
	b.sendWithMarkup(chatID, "📅 Выберите дату", calendarKeyboard(t.Year(), t.Month(), purpose))
}

// parseCalendarDate parses "y_m_d" callback payloads.
func parseCalendarDate(data string) (time.Time, error) {
	parts := strings.Split(data, "_")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("bad calendar payload %q", data)
	}
	year, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	day, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, fmt.Errorf("bad calendar payload %q", data)
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}

// abortTurn is the storage failure path: the turn is dropped, state is not
// advanced and the user is asked to retry the same step.
func (b *Bot) abortTurn(chatID int64, err error) {
	if errors.Is(err, persistence.ErrStorageUnavailable) {
		metrics.IncStorageError()
	}
	b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("turn aborted")
	b.reply(chatID, "⚠️ Временная ошибка хранения. Повторите последнее действие.")
}

func (b *Bot) publish(evType string, payload map[string]string) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(events.Event{Type: evType, Payload: payload})
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.tg.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

func (b *Bot) sendWithMarkup(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

func (b *Bot) answerCallback(id string) {
	if _, err := b.tg.Request(tgbotapi.NewCallback(id, "")); err != nil {
		b.logger.Debug().Err(err).Msg("answer callback failed")
	}
}

// cacheCallbackValue stores a slot value under a short key in the callback
// cache; slot values are opaque site-issued strings that may not fit in
// Telegram callback data.
func (b *Bot) cacheCallbackValue(ctx context.Context, value string) (string, error) {
	cache, err := b.store.CallbackCache(ctx)
	if err != nil {
		return "", err
	}
	if cache == nil {
		cache = make(map[string]string)
	}
	key := fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte(value)))
	cache[key] = value
	if err := b.store.SetCallbackCache(ctx, cache); err != nil {
		return "", err
	}
	return key, nil
}

func (b *Bot) resolveCallbackValue(ctx context.Context, key string) (string, error) {
	cache, err := b.store.CallbackCache(ctx)
	if err != nil {
		return "", err
	}
	value, ok := cache[key]
	if !ok {
		return "", fmt.Errorf("unknown callback key %q", key)
	}
	return value, nil
}

const helpText = `ℹ️ Помощь по использованию бота

1. «Просмотр расписания» — выберите зал и дату, бот покажет бронирования
2. «Бронировать» — выберите зал, дату и свободные слоты, затем укажите имя и телефон
3. Для навигации по месяцам используйте кнопки «⬅️» и «➡️»
4. «Отмена» прерывает текущее бронирование

Если остались вопросы, обратитесь к администратору.`

const aboutText = `🤖 Бот бронирования залов bigZ

Возможности:
— просмотр расписания бронирований по залам
— бронирование свободных слотов с подтверждением на сайте

Версия: 3.0`
