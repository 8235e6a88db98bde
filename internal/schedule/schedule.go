// Package schedule holds the weekly lesson timetable model and the
// date/slot resolution logic that turns fuzzy due-date phrases into
// concrete lesson deadlines.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Day is a weekday index, 0=Пн … 6=Вс (как в расписании дневника).
type Day int

const (
	Monday Day = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var dayNamesShort = [7]string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}
var dayNamesFull = [7]string{"понедельник", "вторник", "среда", "четверг", "пятница", "суббота", "воскресенье"}

func (d Day) String() string {
	if d < 0 || d > 6 {
		return fmt.Sprintf("Day(%d)", int(d))
	}
	return dayNamesShort[d]
}

// FullName возвращает полное русское название дня.
func (d Day) FullName() string {
	if d < 0 || d > 6 {
		return d.String()
	}
	return dayNamesFull[d]
}

// FromTime converts time.Weekday (0=Sunday) to Day (0=Monday).
func FromTime(w time.Weekday) Day {
	return Day((int(w) + 6) % 7)
}

// ClockTime is a time of day with minute precision.
type ClockTime struct {
	Hour   int
	Minute int
}

var reClock = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseClock parses "8:00" / "08:00".
func ParseClock(s string) (ClockTime, error) {
	m := reClock.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ClockTime{}, fmt.Errorf("bad clock time %q", s)
	}
	h := atoi(m[1])
	mn := atoi(m[2])
	if h > 23 || mn > 59 {
		return ClockTime{}, fmt.Errorf("clock time out of range %q", s)
	}
	return ClockTime{Hour: h, Minute: mn}, nil
}

func (c ClockTime) String() string { return fmt.Sprintf("%d:%02d", c.Hour, c.Minute) }

// HHMM is the zero-padded storage form; it sorts lexicographically.
func (c ClockTime) HHMM() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// Minutes since midnight; used for ordering and overlap checks.
func (c ClockTime) Minutes() int { return c.Hour*60 + c.Minute }

// Add returns the clock time d later, clamped to the same day.
func (c ClockTime) Add(d time.Duration) ClockTime {
	total := c.Minutes() + int(d.Minutes())
	if total > 23*60+59 {
		total = 23*60 + 59
	}
	return ClockTime{Hour: total / 60, Minute: total % 60}
}

// On anchors the clock time to a concrete date in loc.
func (c ClockTime) On(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour, c.Minute, 0, 0, loc)
}

// LessonDuration is assumed when the timetable names only a start time.
const LessonDuration = 45 * time.Minute

// Slot is one recurring weekly lesson.
type Slot struct {
	Subject string
	Start   ClockTime
	End     ClockTime
}

// Weekly is a user's recurring timetable: ordered slots per day.
// Slots within a day are sorted by start and non-overlapping.
type Weekly struct {
	Days [7][]Slot
}

// IsEmpty reports whether the timetable has no lessons at all.
func (w *Weekly) IsEmpty() bool {
	for _, slots := range w.Days {
		if len(slots) > 0 {
			return false
		}
	}
	return true
}

// Add appends a slot; End defaults to Start+45m when zero.
func (w *Weekly) Add(day Day, s Slot) error {
	if day < 0 || day > 6 {
		return fmt.Errorf("bad day %d", day)
	}
	if s.End == (ClockTime{}) {
		s.End = s.Start.Add(LessonDuration)
	}
	w.Days[day] = append(w.Days[day], s)
	return nil
}

// Normalize sorts each day by start time and rejects overlapping slots.
func (w *Weekly) Normalize() error {
	for d := range w.Days {
		slots := w.Days[d]
		sort.SliceStable(slots, func(i, j int) bool {
			return slots[i].Start.Minutes() < slots[j].Start.Minutes()
		})
		for i := 1; i < len(slots); i++ {
			if slots[i].Start.Minutes() < slots[i-1].End.Minutes() {
				return fmt.Errorf("%s: уроки «%s» и «%s» пересекаются по времени",
					Day(d), slots[i-1].Subject, slots[i].Subject)
			}
		}
	}
	return nil
}

// ── Timetable text grammar ──────────────────────────────────────────

// dayAliases: названия дней → номер (0=Пн).
var dayAliases = map[string]Day{
	"пн": Monday, "понедельник": Monday,
	"вт": Tuesday, "вторник": Tuesday,
	"ср": Wednesday, "среда": Wednesday, "среду": Wednesday,
	"чт": Thursday, "четверг": Thursday,
	"пт": Friday, "пятница": Friday, "пятницу": Friday,
	"сб": Saturday, "суббота": Saturday, "субботу": Saturday,
	"вс": Sunday, "воскресенье": Sunday,
}

var reSlotLine = regexp.MustCompile(`^(.+?)\s+(\d{1,2}:\d{2})$`)

var ErrNoLessons = errors.New("в тексте не нашлось ни одного урока")

// ParseText parses a timetable written as lines of
//
//	Пн: Математика 8:00, Физика 9:45
//	Вт: Алгебра 8:00, История 9:45
//
// Unknown days and malformed entries are skipped, the rest is kept.
func ParseText(text string) (*Weekly, error) {
	w := &Weekly{}
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		idx := strings.Index(line, ":")
		if line == "" || idx < 0 {
			continue
		}
		day, ok := dayAliases[strings.ToLower(strings.TrimSpace(line[:idx]))]
		if !ok {
			continue
		}
		for _, part := range strings.Split(line[idx+1:], ",") {
			m := reSlotLine.FindStringSubmatch(strings.TrimSpace(part))
			if m == nil {
				continue
			}
			start, err := ParseClock(m[2])
			if err != nil {
				continue
			}
			_ = w.Add(day, Slot{Subject: strings.TrimSpace(m[1]), Start: start})
		}
	}
	if w.IsEmpty() {
		return nil, ErrNoLessons
	}
	if err := w.Normalize(); err != nil {
		return nil, err
	}
	return w, nil
}

// Format renders the timetable back as the same line grammar.
func (w *Weekly) Format() string {
	var b strings.Builder
	for d, slots := range w.Days {
		if len(slots) == 0 {
			continue
		}
		parts := make([]string, 0, len(slots))
		for _, s := range slots {
			parts = append(parts, fmt.Sprintf("%s %s", s.Subject, s.Start))
		}
		fmt.Fprintf(&b, "%s: %s\n", Day(d), strings.Join(parts, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// SubjectMatches reports whether a timetable subject matches an extracted
// hint. OCR/AI output abbreviates and varies case, so matching is a
// case-insensitive substring check in both directions.
func SubjectMatches(slotSubject, hint string) bool {
	a := strings.ToLower(strings.TrimSpace(slotSubject))
	b := strings.ToLower(strings.TrimSpace(hint))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// FindSubject returns all slots across the week matching the subject hint.
func (w *Weekly) FindSubject(hint string) []struct {
	Day  Day
	Slot Slot
} {
	var out []struct {
		Day  Day
		Slot Slot
	}
	for d, slots := range w.Days {
		for _, s := range slots {
			if SubjectMatches(s.Subject, hint) {
				out = append(out, struct {
					Day  Day
					Slot Slot
				}{Day(d), s})
			}
		}
	}
	return out
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
