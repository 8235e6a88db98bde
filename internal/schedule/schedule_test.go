package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseText(t *testing.T) {
	w, err := ParseText("Пн: Математика 8:00, Физика 9:45\nВт: Алгебра 8:00\n\nнепонятная строка\nСр: История 10:30")
	require.NoError(t, err)

	require.Len(t, w.Days[Monday], 2)
	assert.Equal(t, "Математика", w.Days[Monday][0].Subject)
	assert.Equal(t, ClockTime{8, 0}, w.Days[Monday][0].Start)
	assert.Equal(t, ClockTime{8, 45}, w.Days[Monday][0].End)
	assert.Equal(t, "Физика", w.Days[Monday][1].Subject)

	require.Len(t, w.Days[Tuesday], 1)
	require.Len(t, w.Days[Wednesday], 1)
	assert.Equal(t, ClockTime{10, 30}, w.Days[Wednesday][0].Start)
}

func TestParseText_SortsWithinDay(t *testing.T) {
	w, err := ParseText("Чт: Физика 9:45, Математика 8:00")
	require.NoError(t, err)
	assert.Equal(t, "Математика", w.Days[Thursday][0].Subject)
	assert.Equal(t, "Физика", w.Days[Thursday][1].Subject)
}

func TestParseText_RejectsOverlap(t *testing.T) {
	_, err := ParseText("Пн: Математика 8:00, Физика 8:30")
	assert.Error(t, err)
}

func TestParseText_Empty(t *testing.T) {
	_, err := ParseText("привет")
	assert.ErrorIs(t, err, ErrNoLessons)
}

func TestFormatRoundTrip(t *testing.T) {
	src := "Пн: Математика 8:00, Физика 9:45\nСр: История 10:30"
	w, err := ParseText(src)
	require.NoError(t, err)
	assert.Equal(t, src, w.Format())
}

func TestSubjectMatches(t *testing.T) {
	assert.True(t, SubjectMatches("Математика", "математика"))
	assert.True(t, SubjectMatches("Математика", "матем"))   // abbreviation
	assert.True(t, SubjectMatches("Физика", "физика (л/р)")) // extra noise
	assert.False(t, SubjectMatches("Математика", "история"))
	assert.False(t, SubjectMatches("", "математика"))
	assert.False(t, SubjectMatches("Математика", ""))
}

func TestFromTime(t *testing.T) {
	assert.Equal(t, Monday, FromTime(time.Monday))
	assert.Equal(t, Sunday, FromTime(time.Sunday))
	assert.Equal(t, Saturday, FromTime(time.Saturday))
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("8:05")
	require.NoError(t, err)
	assert.Equal(t, ClockTime{8, 5}, c)
	assert.Equal(t, "8:05", c.String())

	_, err = ParseClock("25:00")
	assert.Error(t, err)
	_, err = ParseClock("8.00")
	assert.Error(t, err)
}
