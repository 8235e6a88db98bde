package analytics

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dek0rta/homework-bot/internal/schedule"
	"github.com/Dek0rta/homework-bot/internal/store"
)

var monday = time.Date(2025, time.September, 1, 10, 0, 0, 0, time.UTC)

func ev(day int, subject string) *store.Event {
	return &store.Event{
		UserID:  7,
		Subject: subject,
		Date:    time.Date(2025, time.September, day, 0, 0, 0, 0, time.UTC),
		Start:   schedule.ClockTime{Hour: 8},
		Task:    "задание",
	}
}

func TestWeekLoad(t *testing.T) {
	events := []*store.Event{
		ev(3, "Математика"),
		ev(3, "Физика"),
		ev(5, "Химия"),
		ev(1, "Русский"),  // сегодня — остаётся
		ev(15, "История"), // за горизонтом недели
	}

	loads := WeekLoad(events, monday, 7)
	require.Len(t, loads, 3)
	assert.Equal(t, []string{"Русский"}, loads[0].Subjects)
	assert.Equal(t, []string{"Математика", "Физика"}, loads[1].Subjects)
	assert.Equal(t, 5, loads[2].Date.Day())
}

func TestFormatLoad(t *testing.T) {
	loads := WeekLoad([]*store.Event{
		ev(3, "Математика"),
		ev(3, "Физика"),
		ev(5, "Химия"),
	}, monday, 7)

	out := FormatLoad(loads)
	assert.Contains(t, out, "🟡 Ср 03.09 — 2 задания: Математика, Физика")
	assert.Contains(t, out, "🟢 Пт 05.09 — 1 задание: Химия")

	assert.Equal(t, "На неделю вперёд дедлайнов нет. 🎉", FormatLoad(nil))
}

func TestCountRu(t *testing.T) {
	assert.Equal(t, "1 задание", countRu(1))
	assert.Equal(t, "2 задания", countRu(2))
	assert.Equal(t, "5 заданий", countRu(5))
	assert.Equal(t, "11 заданий", countRu(11))
	assert.Equal(t, "21 задание", countRu(21))
}

func TestCSV(t *testing.T) {
	body, err := CSV([]*store.Event{ev(3, "Математика"), ev(5, "Химия")})
	require.NoError(t, err)

	trimmed := bytes.TrimPrefix(body, []byte("\uFEFF"))
	rows, err := csv.NewReader(bytes.NewReader(trimmed)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"дата", "день", "время", "предмет", "задание", "точность"}, rows[0])
	assert.Equal(t, "2025-09-03", rows[1][0])
	assert.Equal(t, "Ср", rows[1][1])
	assert.Equal(t, "Математика", rows[1][3])
	assert.True(t, strings.HasPrefix(string(body), "\uFEFF"))
}
