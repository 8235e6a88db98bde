package telegram

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dek0rta/homework-bot/internal/ai"
	"github.com/Dek0rta/homework-bot/internal/schedule"
	"github.com/Dek0rta/homework-bot/internal/scheduler"
)

func TestRenderOutcome(t *testing.T) {
	wed := time.Date(2025, time.September, 3, 0, 0, 0, 0, time.UTC)
	parsed := ai.Parsed{Subject: "Математика", Task: "стр. 45 упр. 7"}

	cases := []struct {
		name string
		out  scheduler.Outcome
		want string
	}{
		{
			"scheduled",
			scheduler.Outcome{Status: scheduler.Scheduled, Subject: "Математика", Date: wed, Start: schedule.ClockTime{Hour: 8}, SlotMatched: true},
			"Ср, 03.09 в 8:00",
		},
		{
			"no slot warning",
			scheduler.Outcome{Status: scheduler.Scheduled, Subject: "Математика", Date: wed, Start: schedule.ClockTime{Hour: 9}},
			"не нашёлся в расписании",
		},
		{
			"already scheduled",
			scheduler.Outcome{Status: scheduler.AlreadyScheduled, Subject: "Математика", Date: wed, Start: schedule.ClockTime{Hour: 8}},
			"уже в календаре",
		},
		{
			"not configured",
			scheduler.Outcome{Status: scheduler.NotConfigured},
			"/schedule",
		},
		{
			"auth required",
			scheduler.Outcome{Status: scheduler.AuthRequired},
			"/auth",
		},
		{
			"write failed",
			scheduler.Outcome{Status: scheduler.CalendarWriteFailed},
			"попробуй ещё раз",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Contains(t, renderOutcome(parsed, tc.out), tc.want)
		})
	}
}

// Truncation must land on a rune boundary: a split Cyrillic rune makes
// the whole message invalid UTF-8 and the API rejects it.
func TestShort_KeepsValidUTF8(t *testing.T) {
	long := strings.Repeat("Прочитать параграф двенадцать и ответить на вопросы ", 3)

	got := short(long, 80)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 81, utf8.RuneCountInString(got)) // 80 runes + ellipsis
	assert.True(t, strings.HasSuffix(got, "…"))

	assert.Equal(t, "Химия", short("Химия", 80), "short strings pass through unchanged")
}

func TestRouterNowUsesLocation(t *testing.T) {
	msk := time.FixedZone("MSK", 3*3600)
	r := &Router{Loc: msk}
	assert.Equal(t, msk, r.now().Location())
	assert.Equal(t, time.Now().Location(), (&Router{}).now().Location())
}

func TestWeekdayRu(t *testing.T) {
	assert.Equal(t, "Пн", weekdayRu(time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Вс", weekdayRu(time.Date(2025, 9, 7, 0, 0, 0, 0, time.UTC)))
}

func TestSniffMime(t *testing.T) {
	assert.Equal(t, "image/jpeg", sniffMime([]byte{0xFF, 0xD8, 0xFF}))
	assert.Equal(t, "image/png", sniffMime([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0}))
	assert.Equal(t, "application/octet-stream", sniffMime([]byte("hello")))
}

func TestSubjectList(t *testing.T) {
	week, err := schedule.ParseText("Пн: Математика 8:00, Физика 9:45\nСр: Математика 8:00")
	require.NoError(t, err)
	assert.Equal(t, []string{"Математика", "Физика"}, subjectList(week))
}
