// Package export renders a user's timetable and upcoming homework
// deadlines as an ICS calendar for import into any calendar app.
package export

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/Dek0rta/homework-bot/internal/schedule"
	"github.com/Dek0rta/homework-bot/internal/store"
)

var rruleDays = [7]rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// ICS builds a calendar with the weekly timetable as FREQ=WEEKLY recurring
// lessons plus one concrete event per stored homework deadline.
func ICS(userID int64, week *schedule.Weekly, events []*store.Event, now time.Time) (string, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//homework-bot//RU")

	if week != nil {
		for d, slots := range week.Days {
			for _, s := range slots {
				day := schedule.Day(d)
				first := schedule.NextLesson(day, s.Start, now)

				r, err := rrule.NewRRule(rrule.ROption{
					Freq:      rrule.WEEKLY,
					Byweekday: []rrule.Weekday{rruleDays[d]},
					Dtstart:   first,
				})
				if err != nil {
					return "", fmt.Errorf("rrule %s %s: %w", day, s.Subject, err)
				}

				ev := cal.AddEvent(fmt.Sprintf("lesson-%d-%d-%s@homework-bot", userID, d, s.Start))
				ev.SetDtStampTime(now)
				ev.SetStartAt(first)
				ev.SetEndAt(s.End.On(first, first.Location()))
				ev.SetSummary(s.Subject)
				ev.AddRrule(rruleString(r))
			}
		}
	}

	for _, e := range events {
		ev := cal.AddEvent(fmt.Sprintf("hw-%d@homework-bot", e.ID))
		ev.SetDtStampTime(now)
		ev.SetStartAt(e.Start.On(e.Date, now.Location()))
		ev.SetEndAt(e.End.On(e.Date, now.Location()))
		ev.SetSummary(fmt.Sprintf("📚 %s: %s", e.Subject, e.Task))
		if !e.SlotMatched {
			ev.SetDescription("Урок не найден в расписании, время условное")
		}
	}

	return cal.Serialize(), nil
}

// rruleString strips the DTSTART line rrule-go prepends: in ICS the event
// already carries its own DTSTART property.
func rruleString(r *rrule.RRule) string {
	return r.OrigOptions.RRuleString()
}
