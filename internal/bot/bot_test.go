package bot

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"path/filepath"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigzbot/internal/config"
	"bigzbot/internal/events"
	"bigzbot/internal/models"
	"bigzbot/internal/persistence"
)

type fakeTelegram struct {
	sent []tgbotapi.Chattable
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegram) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTelegram) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

// texts returns the plain message texts sent so far.
func (f *fakeTelegram) texts() []string {
	var out []string
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg.Text)
		}
	}
	return out
}

func (f *fakeTelegram) lastText() string {
	texts := f.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

type fakeBookingClient struct {
	options     []models.SlotOption
	discoverErr error
	submitted   *models.BookingRequest
	result      models.BookingResult
}

func (f *fakeBookingClient) Discover(_ context.Context, _ int64, _ string) ([]models.SlotOption, error) {
	return f.options, f.discoverErr
}

func (f *fakeBookingClient) Submit(_ context.Context, req *models.BookingRequest) models.BookingResult {
	f.submitted = req
	return f.result
}

type fakeScheduleClient struct {
	bookings []models.Booking
	err      error
}

func (f *fakeScheduleClient) FetchBookings(context.Context, string) ([]models.Booking, error) {
	return f.bookings, f.err
}

func testConfig() *config.Config {
	cfg := &config.Config{
		Rooms:  map[int64]string{7: "Большой зал", 8: "Малый зал"},
		Admins: []int64{900},
	}
	cfg.RateLimit.SubmissionsPerMinute = 60
	cfg.RateLimit.Burst = 10
	return cfg
}

func newTestBot(t *testing.T, bookings BookingClient, sched ScheduleClient) (*Bot, *fakeTelegram) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	store, err := persistence.Open(filepath.Join(t.TempDir(), "state.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tg := &fakeTelegram{}
	b, err := NewWithTelegramClient(tg, testConfig(), store, bookings, sched, events.NewEventBus(), &logger)
	require.NoError(t, err)
	return b, tg
}

func textUpdate(chatID, userID int64, text string) *tgbotapi.Update {
	return &tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: userID},
		Text: text,
	}}
}

func commandUpdate(chatID, userID int64, cmd string) *tgbotapi.Update {
	text := "/" + cmd
	return &tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		From:     &tgbotapi.User{ID: userID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}}
}

func callbackUpdate(chatID, userID int64, data string) *tgbotapi.Update {
	return &tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Data:    data,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
	}}
}

func slotCallbackKey(value string) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte(value)))
}

func TestBookingDialogEndToEnd(t *testing.T) {
	bookings := &fakeBookingClient{
		options: []models.SlotOption{
			{Value: "slot-10", Label: "10:00-11:00 (₽500)"},
			{Value: "slot-12", Label: "12:00-13:00 (₽300)"},
		},
		result: models.BookingResult{Success: true, Message: "Бронирование принято!"},
	}
	b, tg := newTestBot(t, bookings, &fakeScheduleClient{})
	ctx := context.Background()
	key := persistence.ConversationKey{ChatID: 1, UserID: 2}

	b.handleUpdate(ctx, textUpdate(1, 2, "Бронировать"))
	step, err := b.currentStep(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, stepRoom, step)

	b.handleUpdate(ctx, callbackUpdate(1, 2, "room_book_7"))
	step, _ = b.currentStep(ctx, key)
	assert.Equal(t, stepDate, step)

	tomorrow := time.Now().AddDate(0, 0, 1)
	b.handleUpdate(ctx, callbackUpdate(1, 2,
		fmt.Sprintf("cal_book_%d_%d_%d", tomorrow.Year(), int(tomorrow.Month()), tomorrow.Day())))
	step, _ = b.currentStep(ctx, key)
	assert.Equal(t, stepSlots, step)

	b.handleUpdate(ctx, callbackUpdate(1, 2, "slot_"+slotCallbackKey("slot-10")))
	b.handleUpdate(ctx, callbackUpdate(1, 2, "slot_"+slotCallbackKey("slot-12")))
	b.handleUpdate(ctx, callbackUpdate(1, 2, "slots_confirm"))
	step, _ = b.currentStep(ctx, key)
	assert.Equal(t, stepName, step)

	b.handleUpdate(ctx, textUpdate(1, 2, "Иван"))
	step, _ = b.currentStep(ctx, key)
	assert.Equal(t, stepPhone, step)

	b.handleUpdate(ctx, textUpdate(1, 2, "+79990001122"))
	step, _ = b.currentStep(ctx, key)
	assert.Equal(t, stepComment, step)

	b.handleUpdate(ctx, textUpdate(1, 2, "репетиция"))

	require.NotNil(t, bookings.submitted)
	req := bookings.submitted
	assert.Equal(t, int64(7), req.RoomID)
	assert.Equal(t, "Большой зал", req.RoomName)
	assert.Equal(t, tomorrow.Format("2006-01-02"), req.Date)
	assert.Equal(t, []string{"slot-10", "slot-12"}, req.Slots)
	assert.Equal(t, "Иван", req.Name)
	assert.Equal(t, "+79990001122", req.Phone)
	assert.Equal(t, "репетиция", req.Comment)

	assert.Equal(t, "✅ Бронирование принято!", tg.lastText())

	// Terminal transition: dialog and draft are gone.
	step, err = b.currentStep(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, step)
	d, err := b.loadDraft(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, d.getString(keyName))
}

func TestBookingDialogSurvivesRestart(t *testing.T) {
	logger := zerolog.New(io.Discard)
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()
	key := persistence.ConversationKey{ChatID: 1, UserID: 2}

	store, err := persistence.Open(path, &logger)
	require.NoError(t, err)
	tg := &fakeTelegram{}
	bookings := &fakeBookingClient{}
	b, err := NewWithTelegramClient(tg, testConfig(), store, bookings, &fakeScheduleClient{}, nil, &logger)
	require.NoError(t, err)

	b.handleUpdate(ctx, textUpdate(1, 2, "Бронировать"))
	b.handleUpdate(ctx, callbackUpdate(1, 2, "room_book_7"))
	require.NoError(t, store.Close())

	// Reopen the store: the dialog resumes at the date step.
	store, err = persistence.Open(path, &logger)
	require.NoError(t, err)
	defer store.Close()
	b, err = NewWithTelegramClient(tg, testConfig(), store, bookings, &fakeScheduleClient{}, nil, &logger)
	require.NoError(t, err)

	step, err := b.currentStep(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, stepDate, step)

	d, err := b.loadDraft(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(7), d.getInt64(keyRoomID))
	assert.Equal(t, "Большой зал", d.getString(keyRoomName))
}

func TestBookingPastDateRejected(t *testing.T) {
	b, tg := newTestBot(t, &fakeBookingClient{}, &fakeScheduleClient{})
	ctx := context.Background()
	key := persistence.ConversationKey{ChatID: 1, UserID: 2}

	b.handleUpdate(ctx, textUpdate(1, 2, "Бронировать"))
	b.handleUpdate(ctx, callbackUpdate(1, 2, "room_book_7"))
	b.handleUpdate(ctx, callbackUpdate(1, 2, "cal_book_2020_1_15"))

	assert.Contains(t, tg.lastText(), "прошедшую дату")
	step, _ := b.currentStep(ctx, key)
	assert.Equal(t, stepDate, step)
}

func TestBookingNoSlotsOffersRetry(t *testing.T) {
	b, tg := newTestBot(t, &fakeBookingClient{options: nil}, &fakeScheduleClient{})
	ctx := context.Background()
	key := persistence.ConversationKey{ChatID: 1, UserID: 2}

	b.handleUpdate(ctx, textUpdate(1, 2, "Бронировать"))
	b.handleUpdate(ctx, callbackUpdate(1, 2, "room_book_7"))

	tomorrow := time.Now().AddDate(0, 0, 1)
	b.handleUpdate(ctx, callbackUpdate(1, 2,
		fmt.Sprintf("cal_book_%d_%d_%d", tomorrow.Year(), int(tomorrow.Month()), tomorrow.Day())))

	assert.Contains(t, tg.lastText(), "нет доступных слотов")
	// The dialog stays at the date step so the user can pick another date.
	step, _ := b.currentStep(ctx, key)
	assert.Equal(t, stepDate, step)
}

func TestConfirmWithoutSelectionRefused(t *testing.T) {
	bookings := &fakeBookingClient{
		options: []models.SlotOption{{Value: "slot-10", Label: "10:00-11:00"}},
	}
	b, tg := newTestBot(t, bookings, &fakeScheduleClient{})
	ctx := context.Background()
	key := persistence.ConversationKey{ChatID: 1, UserID: 2}

	b.handleUpdate(ctx, textUpdate(1, 2, "Бронировать"))
	b.handleUpdate(ctx, callbackUpdate(1, 2, "room_book_7"))
	tomorrow := time.Now().AddDate(0, 0, 1)
	b.handleUpdate(ctx, callbackUpdate(1, 2,
		fmt.Sprintf("cal_book_%d_%d_%d", tomorrow.Year(), int(tomorrow.Month()), tomorrow.Day())))

	b.handleUpdate(ctx, callbackUpdate(1, 2, "slots_confirm"))

	assert.Contains(t, tg.lastText(), "не выбрали ни одного слота")
	step, _ := b.currentStep(ctx, key)
	assert.Equal(t, stepSlots, step)
}

func TestCancelClearsDialog(t *testing.T) {
	b, tg := newTestBot(t, &fakeBookingClient{}, &fakeScheduleClient{})
	ctx := context.Background()
	key := persistence.ConversationKey{ChatID: 1, UserID: 2}

	b.handleUpdate(ctx, textUpdate(1, 2, "Бронировать"))
	b.handleUpdate(ctx, callbackUpdate(1, 2, "room_book_7"))
	b.handleUpdate(ctx, commandUpdate(1, 2, "cancel"))

	assert.Contains(t, tg.lastText(), "отменено")
	step, err := b.currentStep(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, step)
}

func TestStaleSlotCallbackIgnored(t *testing.T) {
	bookings := &fakeBookingClient{
		options: []models.SlotOption{{Value: "slot-10", Label: "10:00-11:00"}},
	}
	b, _ := newTestBot(t, bookings, &fakeScheduleClient{})
	ctx := context.Background()
	key := persistence.ConversationKey{ChatID: 1, UserID: 2}

	b.handleUpdate(ctx, textUpdate(1, 2, "Бронировать"))
	b.handleUpdate(ctx, callbackUpdate(1, 2, "room_book_7"))
	tomorrow := time.Now().AddDate(0, 0, 1)
	b.handleUpdate(ctx, callbackUpdate(1, 2,
		fmt.Sprintf("cal_book_%d_%d_%d", tomorrow.Year(), int(tomorrow.Month()), tomorrow.Day())))

	b.handleUpdate(ctx, callbackUpdate(1, 2, "slot_deadbeef"))

	d, err := b.loadDraft(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, d.selectedSlots())
	step, _ := b.currentStep(ctx, key)
	assert.Equal(t, stepSlots, step)
}

func TestStorageFailureAbortsTurn(t *testing.T) {
	logger := zerolog.New(io.Discard)
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()
	key := persistence.ConversationKey{ChatID: 1, UserID: 2}

	store, err := persistence.Open(path, &logger)
	require.NoError(t, err)
	tg := &fakeTelegram{}
	b, err := NewWithTelegramClient(tg, testConfig(), store, &fakeBookingClient{}, &fakeScheduleClient{}, nil, &logger)
	require.NoError(t, err)

	b.handleUpdate(ctx, textUpdate(1, 2, "Бронировать"))
	step, err := b.currentStep(ctx, key)
	require.NoError(t, err)
	require.Equal(t, stepRoom, step)

	// The store goes away mid-dialog; the next turn must be dropped, not
	// advanced.
	require.NoError(t, store.Close())
	b.handleUpdate(ctx, callbackUpdate(1, 2, "room_book_7"))
	assert.Contains(t, tg.lastText(), "Временная ошибка хранения")

	// Reopen: the dialog is still at the room step and the draft is empty.
	store, err = persistence.Open(path, &logger)
	require.NoError(t, err)
	defer store.Close()
	b, err = NewWithTelegramClient(tg, testConfig(), store, &fakeBookingClient{}, &fakeScheduleClient{}, nil, &logger)
	require.NoError(t, err)

	step, err = b.currentStep(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, stepRoom, step)

	d, err := b.loadDraft(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, d.getInt64(keyRoomID))
}

func TestStaleRetryDateIgnored(t *testing.T) {
	b, tg := newTestBot(t, &fakeBookingClient{}, &fakeScheduleClient{})
	ctx := context.Background()
	key := persistence.ConversationKey{ChatID: 1, UserID: 2}

	// No dialog is active: a leftover button from an old message.
	b.handleUpdate(ctx, callbackUpdate(1, 2, "retry_date"))

	assert.Empty(t, tg.texts())
	step, err := b.currentStep(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, step)
}

func TestRetryDateFromEmptySlots(t *testing.T) {
	b, tg := newTestBot(t, &fakeBookingClient{options: nil}, &fakeScheduleClient{})
	ctx := context.Background()
	key := persistence.ConversationKey{ChatID: 1, UserID: 2}

	b.handleUpdate(ctx, textUpdate(1, 2, "Бронировать"))
	b.handleUpdate(ctx, callbackUpdate(1, 2, "room_book_7"))
	tomorrow := time.Now().AddDate(0, 0, 1)
	b.handleUpdate(ctx, callbackUpdate(1, 2,
		fmt.Sprintf("cal_book_%d_%d_%d", tomorrow.Year(), int(tomorrow.Month()), tomorrow.Day())))

	b.handleUpdate(ctx, callbackUpdate(1, 2, "retry_date"))

	assert.Contains(t, tg.lastText(), "Выберите дату")
	step, _ := b.currentStep(ctx, key)
	assert.Equal(t, stepDate, step)
}

func TestFormatBooking(t *testing.T) {
	bk := &models.Booking{
		Name:    "Иван",
		Phone:   "+79990001122",
		Status:  "confirmed",
		Times:   "10:00-11:00 (₽500)\r\n-12:00-13:00 (₽300)",
		Comment: "репетиция",
	}

	public := formatBooking(1, bk, false)
	assert.Contains(t, public, "#1: Иван")
	assert.NotContains(t, public, "+79990001122")
	assert.NotContains(t, public, "репетиция")

	admin := formatBooking(1, bk, true)
	assert.Contains(t, admin, "📞: +79990001122")
	assert.Contains(t, admin, "💬: репетиция")
}

func TestFormatBookingCancelled(t *testing.T) {
	bk := &models.Booking{Name: "Иван", Status: "cancelled", Times: ""}
	out := formatBooking(2, bk, false)
	assert.Contains(t, out, "[ОТМЕНЕНО]")
}

func TestExportRequiresAdmin(t *testing.T) {
	b, tg := newTestBot(t, &fakeBookingClient{}, &fakeScheduleClient{})
	b.UseAuditExporter(exporterFunc(func(context.Context, io.Writer, time.Time) error {
		t.Fatal("exporter must not run for non-admins")
		return nil
	}))

	b.handleUpdate(context.Background(), commandUpdate(1, 2, "export"))
	assert.Contains(t, tg.lastText(), "только администраторам")
}

type exporterFunc func(context.Context, io.Writer, time.Time) error

func (f exporterFunc) ExportExcel(ctx context.Context, w io.Writer, since time.Time) error {
	return f(ctx, w, since)
}
