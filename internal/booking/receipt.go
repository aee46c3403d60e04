package booking

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bigzbot/internal/models"
)

// Day and month names for the receipt, local language only.
// Weekdays are indexed 0-6 starting from Sunday, months 1-12.
var weekdayNames = [7]string{
	"Воскресенье", "Понедельник", "Вторник", "Среда", "Четверг", "Пятница", "Суббота",
}

var monthNames = [13]string{
	"", "Января", "Февраля", "Марта", "Апреля", "Мая", "Июня",
	"Июля", "Августа", "Сентября", "Октября", "Ноября", "Декабря",
}

var priceRe = regexp.MustCompile(`\(₽(\d+)\)`)

const cancellationNotice = "Отмена бронирования возможна не позднее чем за 24 часа. " +
	"По вопросам обращайтесь к администратору."

// FormatDateRu renders a YYYY-MM-DD date as "Среда, 1, Мая, 2024".
func FormatDateRu(date string) (string, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", date, err)
	}
	return fmt.Sprintf("%s, %d, %s, %d",
		weekdayNames[int(t.Weekday())], t.Day(), monthNames[int(t.Month())], t.Year()), nil
}

// SlotPrice extracts the embedded "(₽<digits>)" price from a slot label.
// A label without a parsable price contributes 0.
func SlotPrice(label string) (int, bool) {
	m := priceRe.FindStringSubmatch(label)
	if m == nil {
		return 0, false
	}
	price, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return price, true
}

func (c *Client) totalPrice(selected []models.SlotOption) int {
	total := 0
	for _, opt := range selected {
		price, ok := SlotPrice(opt.Label)
		if !ok {
			c.logger.Debug().Str("label", opt.Label).Msg("slot label has no parsable price")
			continue
		}
		total += price
	}
	return total
}

func buildReceipt(req *models.BookingRequest, localizedDate string, total int, selected []models.SlotOption) string {
	labels := make([]string, 0, len(selected))
	for _, opt := range selected {
		labels = append(labels, opt.Label)
	}

	var b strings.Builder
	b.WriteString("Бронирование принято!\n\n")
	fmt.Fprintf(&b, "🏢 Зал: %s\n", req.RoomName)
	fmt.Fprintf(&b, "📅 Дата: %s\n", localizedDate)
	fmt.Fprintf(&b, "🕒 Слоты:\n%s\n", strings.Join(labels, "\n"))
	fmt.Fprintf(&b, "👤 Имя: %s\n", req.Name)
	fmt.Fprintf(&b, "💰 Итого: %d ₽\n\n", total)
	b.WriteString(cancellationNotice)
	return b.String()
}
