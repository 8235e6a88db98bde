package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dek0rta/homework-bot/internal/ai"
	"github.com/Dek0rta/homework-bot/internal/schedule"
)

func monday() time.Time {
	return time.Date(2025, time.September, 1, 10, 0, 0, 0, time.UTC)
}

func TestNeedsDayChoice(t *testing.T) {
	week, err := schedule.ParseText("Пн: Математика 8:00\nСр: Математика 9:45\nПт: Физика 11:30")
	require.NoError(t, err)

	cases := []struct {
		name   string
		parsed ai.Parsed
		want   bool
	}{
		{"subject on two days, no due phrase", ai.Parsed{Subject: "Математика"}, true},
		{"due phrase present", ai.Parsed{Subject: "Математика", DueExpression: "к среде"}, false},
		{"concrete date present", ai.Parsed{Subject: "Математика", DueDate: "2025-09-03"}, false},
		{"subject on one day", ai.Parsed{Subject: "Физика"}, false},
		{"unknown subject", ai.Parsed{Subject: "Химия"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, needsDayChoice(tc.parsed, week))
		})
	}
}

func TestDueDayKeyboard(t *testing.T) {
	week, err := schedule.ParseText("Пн: Математика 8:00\nСр: Математика 9:45")
	require.NoError(t, err)

	// Monday 10:00: today's lesson already started, next ones are
	// Wednesday and next Monday.
	kb := dueDayKeyboard(week, "Математика", monday())
	require.Len(t, kb.InlineKeyboard, 3)

	first := kb.InlineKeyboard[0][0]
	assert.Equal(t, "Ср 03.09", first.Text)
	assert.Equal(t, "due:2025-09-03", *first.CallbackData)

	second := kb.InlineKeyboard[1][0]
	assert.Equal(t, "Пн 08.09", second.Text)
	assert.Equal(t, "due:2025-09-08", *second.CallbackData)

	last := kb.InlineKeyboard[2][0]
	assert.Equal(t, "Ближайший урок", last.Text)
	assert.Equal(t, "due:auto", *last.CallbackData)
}
