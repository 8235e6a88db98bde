package schedule

import "time"

// MatchKind tells whether the deadline landed on a real lesson slot.
type MatchKind int

const (
	SlotMatched MatchKind = iota
	NoSlotMatch
)

func (k MatchKind) String() string {
	if k == SlotMatched {
		return "slot_matched"
	}
	return "no_slot_match"
}

// SlotResult is a fully resolved deadline: a date plus the lesson time
// (slot start — the homework is due at the start of that lesson).
type SlotResult struct {
	Date    time.Time
	Start   ClockTime
	End     ClockTime
	Subject string // timetable spelling, not the raw hint
	Match   MatchKind
}

// SlotResolver maps a resolved due date plus a subject hint onto the
// weekly timetable.
type SlotResolver struct {
	// ScanDays bounds the forward scan for inferred dates with no
	// matching slot on the provisional day.
	ScanDays int
	// DefaultTime is used when no lesson slot matches at all.
	DefaultTime ClockTime
}

// NewSlotResolver applies the default policy: 14-day scan, 09:00 fallback.
func NewSlotResolver() *SlotResolver {
	return &SlotResolver{ScanDays: 14, DefaultTime: ClockTime{Hour: 9}}
}

// Resolve picks the lesson slot for the deadline.
//
// An Exact date is honored: if that day has no matching lesson the event
// still lands there at the default time, flagged NoSlotMatch. An Inferred
// date is provisional: the resolver scans forward day by day for the next
// lesson of the subject and moves the deadline onto it.
func (r *SlotResolver) Resolve(d ResolvedDeadline, subject string, week *Weekly) SlotResult {
	if s, ok := findSlot(week, d.Date, subject); ok {
		return SlotResult{Date: d.Date, Start: s.Start, End: s.End, Subject: s.Subject, Match: SlotMatched}
	}

	if d.Confidence == Inferred {
		for i := 1; i <= r.ScanDays; i++ {
			date := d.Date.AddDate(0, 0, i)
			if s, ok := findSlot(week, date, subject); ok {
				return SlotResult{Date: date, Start: s.Start, End: s.End, Subject: s.Subject, Match: SlotMatched}
			}
		}
	}

	return SlotResult{
		Date:    d.Date,
		Start:   r.DefaultTime,
		End:     r.DefaultTime.Add(LessonDuration),
		Subject: subject,
		Match:   NoSlotMatch,
	}
}

func findSlot(week *Weekly, date time.Time, subject string) (Slot, bool) {
	if week == nil {
		return Slot{}, false
	}
	for _, s := range week.Days[FromTime(date.Weekday())] {
		if SubjectMatches(s.Subject, subject) {
			return s, true
		}
	}
	return Slot{}, false
}

// NextLesson returns the nearest future occurrence of a weekly slot,
// rolling a week ahead when today's lesson already started.
func NextLesson(day Day, start ClockTime, now time.Time) time.Time {
	ahead := (int(day) - int(FromTime(now.Weekday())) + 7) % 7
	if ahead == 0 {
		lesson := start.On(now, now.Location())
		if !now.Before(lesson) {
			ahead = 7
		}
	}
	return start.On(now.AddDate(0, 0, ahead), now.Location())
}

// FutureLessons returns the n nearest occurrences of a weekly slot, one
// week apart.
func FutureLessons(day Day, start ClockTime, now time.Time, n int) []time.Time {
	first := NextLesson(day, start, now)
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, first.AddDate(0, 0, 7*i))
	}
	return out
}
