package schedule

import (
	"regexp"
	"strings"
	"time"
)

// Confidence marks how a due date was obtained.
type Confidence int

const (
	// Inferred means a heuristic default was applied.
	Inferred Confidence = iota
	// Exact means the expression named an unambiguous date or weekday.
	Exact
)

func (c Confidence) String() string {
	if c == Exact {
		return "exact"
	}
	return "inferred"
}

// ResolvedDeadline is the output of ResolveDueDate: a candidate calendar
// date plus how sure we are about it.
type ResolvedDeadline struct {
	Date       time.Time // date only, midnight in the reference location
	Confidence Confidence
}

// dueRule is one entry of the due-date grammar: first matching rule wins.
type dueRule struct {
	name    string
	re      *regexp.Regexp
	resolve func(m []string, ref time.Time) (time.Time, bool)
}

// Grammar, in priority order. Выражения уже приведены к нижнему регистру.
var dueRules = []dueRule{
	{
		// «15.03», «15.3» — день и месяц
		name: "day-dot-month",
		re:   regexp.MustCompile(`(?:^|\s|к |до )(\d{1,2})\.(\d{1,2})(?:\s|$|\.)`),
		resolve: func(m []string, ref time.Time) (time.Time, bool) {
			day, month := atoi(m[1]), atoi(m[2])
			if month < 1 || month > 12 || day < 1 || day > 31 {
				return time.Time{}, false
			}
			t := time.Date(ref.Year(), time.Month(month), day, 0, 0, 0, 0, ref.Location())
			if t.Day() != day { // 31.04 и подобное
				return time.Time{}, false
			}
			if t.Before(ref) {
				t = t.AddDate(1, 0, 0)
			}
			return t, true
		},
	},
	{
		// «15 числа», «15-го числа», «до 15 числа»
		name: "day-of-month",
		re:   regexp.MustCompile(`(\d{1,2})(?:-?го)?\s*числа`),
		resolve: func(m []string, ref time.Time) (time.Time, bool) {
			return nextDayOfMonth(atoi(m[1]), ref)
		},
	},
	{
		// Голое число: «15», «к 15», «до 15»
		name: "bare-day",
		re:   regexp.MustCompile(`^(?:к|до)?\s*(\d{1,2})\s*$`),
		resolve: func(m []string, ref time.Time) (time.Time, bool) {
			return nextDayOfMonth(atoi(m[1]), ref)
		},
	},
	{
		name: "after-tomorrow",
		re:   regexp.MustCompile(`послезавтра`),
		resolve: func(_ []string, ref time.Time) (time.Time, bool) {
			return ref.AddDate(0, 0, 2), true
		},
	},
	{
		name: "tomorrow",
		re:   regexp.MustCompile(`завтра`),
		resolve: func(_ []string, ref time.Time) (time.Time, bool) {
			return ref.AddDate(0, 0, 1), true
		},
	},
	{
		// «через 3 дня», «через день», «через неделю»
		name: "relative-offset",
		re:   regexp.MustCompile(`через\s+(?:(\d+)\s+)?(день|дня|дней|неделю|недели|недель)`),
		resolve: func(m []string, ref time.Time) (time.Time, bool) {
			n := 1
			if m[1] != "" {
				n = atoi(m[1])
			}
			if strings.HasPrefix(m[2], "недел") {
				n *= 7
			}
			return ref.AddDate(0, 0, n), true
		},
	},
	{
		// Название дня недели: «среда», «к среде», «во вторник»
		name: "weekday",
		re:   reWeekday,
		resolve: func(m []string, ref time.Time) (time.Time, bool) {
			day, ok := weekdayForms[m[1]]
			if !ok {
				return time.Time{}, false
			}
			// Дедлайн по дню недели всегда в будущем: тот же день → +7.
			ahead := (int(day) - int(FromTime(ref.Weekday())) + 7) % 7
			if ahead == 0 {
				ahead = 7
			}
			return ref.AddDate(0, 0, ahead), true
		},
	},
}

// weekdayForms covers nominative and the dative/accusative forms that show
// up after «к» and «в».
var weekdayForms = map[string]Day{
	"понедельник": Monday, "понедельнику": Monday,
	"вторник": Tuesday, "вторнику": Tuesday,
	"среда": Wednesday, "среду": Wednesday, "среде": Wednesday,
	"четверг": Thursday, "четвергу": Thursday,
	"пятница": Friday, "пятницу": Friday, "пятнице": Friday,
	"суббота": Saturday, "субботу": Saturday, "субботе": Saturday,
	"воскресенье": Sunday, "воскресенью": Sunday,
}

var reWeekday = regexp.MustCompile(`(понедельник[у]?|вторник[у]?|сред[ауе]|четверг[у]?|пятниц[ауе]|суббот[ауе]|воскресень[юе])`)

// ResolveDueDate parses a raw due-date expression against a reference date
// (the message's received date). It never fails: anything unparseable
// degrades to reference+1 with Inferred confidence, to be refined by the
// slot resolver.
func ResolveDueDate(raw string, ref time.Time) ResolvedDeadline {
	ref = Midnight(ref)
	expr := strings.ToLower(strings.TrimSpace(raw))
	if expr != "" {
		for _, r := range dueRules {
			m := r.re.FindStringSubmatch(expr)
			if m == nil {
				continue
			}
			if t, ok := r.resolve(m, ref); ok {
				return ResolvedDeadline{Date: t, Confidence: Exact}
			}
		}
	}
	return ResolvedDeadline{Date: ref.AddDate(0, 0, 1), Confidence: Inferred}
}

// nextDayOfMonth: ближайшее будущее число месяца on/after ref; если в
// этом месяце уже прошло (или такого числа нет) — катимся вперёд.
func nextDayOfMonth(day int, ref time.Time) (time.Time, bool) {
	if day < 1 || day > 31 {
		return time.Time{}, false
	}
	year, month := ref.Year(), ref.Month()
	for i := 0; i < 12; i++ {
		t := time.Date(year, month, day, 0, 0, 0, 0, ref.Location())
		if t.Day() == day && !t.Before(ref) {
			return t, true
		}
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
	return time.Time{}, false
}

// Midnight truncates t to its date in the same location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
