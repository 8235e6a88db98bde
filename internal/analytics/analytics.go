// Package analytics summarizes the stored homework: per-day load for the
// coming week and a CSV dump of the deadlines.
package analytics

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/Dek0rta/homework-bot/internal/schedule"
	"github.com/Dek0rta/homework-bot/internal/store"
)

// DayLoad is one day's homework load.
type DayLoad struct {
	Date     time.Time
	Subjects []string
}

// WeekLoad groups the events due within `days` days of `from` by due date,
// in date order. Days without homework are skipped.
func WeekLoad(events []*store.Event, from time.Time, days int) []DayLoad {
	start := schedule.Midnight(from)
	end := start.AddDate(0, 0, days)

	byDate := map[string]*DayLoad{}
	var order []string
	for _, e := range events {
		d := schedule.Midnight(e.Date)
		if d.Before(start) || !d.Before(end) {
			continue
		}
		k := d.Format("2006-01-02")
		dl, ok := byDate[k]
		if !ok {
			dl = &DayLoad{Date: d}
			byDate[k] = dl
			order = append(order, k)
		}
		dl.Subjects = append(dl.Subjects, e.Subject)
	}

	out := make([]DayLoad, 0, len(order))
	for _, k := range order {
		out = append(out, *byDate[k])
	}
	return out
}

var daysRu = [7]string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}

// FormatLoad renders the weekly load summary for the chat.
func FormatLoad(loads []DayLoad) string {
	if len(loads) == 0 {
		return "На неделю вперёд дедлайнов нет. 🎉"
	}
	var b strings.Builder
	b.WriteString("📊 Нагрузка на неделю:\n")
	for _, dl := range loads {
		day := daysRu[(int(dl.Date.Weekday())+6)%7]
		fmt.Fprintf(&b, "%s %s %s — %s: %s\n",
			loadMark(len(dl.Subjects)), day, dl.Date.Format("02.01"),
			countRu(len(dl.Subjects)), strings.Join(dl.Subjects, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// loadMark: зелёный до одного ДЗ, жёлтый два, красный от трёх.
func loadMark(n int) string {
	switch {
	case n >= 3:
		return "🔴"
	case n == 2:
		return "🟡"
	default:
		return "🟢"
	}
}

func countRu(n int) string {
	switch {
	case n%100 >= 11 && n%100 <= 14:
		return fmt.Sprintf("%d заданий", n)
	case n%10 == 1:
		return fmt.Sprintf("%d задание", n)
	case n%10 >= 2 && n%10 <= 4:
		return fmt.Sprintf("%d задания", n)
	default:
		return fmt.Sprintf("%d заданий", n)
	}
}

// CSV dumps the events as a UTF-8 CSV with a header row, oldest first.
// The BOM keeps Excel from mangling the Cyrillic columns.
func CSV(events []*store.Event) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("\uFEFF")

	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"дата", "день", "время", "предмет", "задание", "точность"}); err != nil {
		return nil, err
	}
	for _, e := range events {
		day := daysRu[(int(e.Date.Weekday())+6)%7]
		rec := []string{
			e.Date.Format("2006-01-02"),
			day,
			e.Start.String(),
			e.Subject,
			e.Task,
			e.Confidence.String(),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
