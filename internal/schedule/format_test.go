package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTimes(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			name:     "single interval with suffix",
			raw:      "10:00-11:00 (500₽)\r\n",
			expected: "10:00-11:00 ",
		},
		{
			name:     "multiple intervals",
			raw:      "10:00-11:00 (500₽)\r\n12:00-13:00 (700₽)",
			expected: "10:00-11:00 \n12:00-13:00 ",
		},
		{
			name:     "empty input",
			raw:      "",
			expected: NoTimePlaceholder,
		},
		{
			name:     "no digit-bearing dash lines",
			raw:      "привет\r\nкак дела - хорошо",
			expected: NoTimePlaceholder,
		},
		{
			name:     "short line kept whole",
			raw:      "1-2\r\n",
			expected: "1-2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractTimes(tt.raw))
		})
	}
}

func TestStartTimeKey(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			name:     "earliest of several",
			raw:      "12:00-13:00 (700₽)\r\n10:00-11:00 (500₽)",
			expected: "10:00",
		},
		{
			name:     "empty input sorts last",
			raw:      "",
			expected: "99:99",
		},
		{
			name:     "no time lines sorts last",
			raw:      "без времени",
			expected: "99:99",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StartTimeKey(tt.raw))
		})
	}
}

func TestTimelessBookingsSortLast(t *testing.T) {
	timed := StartTimeKey("09:00-10:00 (500₽)")
	timeless := StartTimeKey("")
	assert.Less(t, timed, timeless)
}
