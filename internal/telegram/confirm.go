package telegram

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Dek0rta/homework-bot/internal/ai"
	"github.com/Dek0rta/homework-bot/internal/schedule"
)

// Parsed assignments awaiting a due-day choice, one per chat. A new
// submission replaces the previous pending one.
var pendingHW sync.Map // chatID -> pendingSubmission

type pendingSubmission struct {
	uid    int64
	parsed ai.Parsed
}

const (
	cbDuePrefix = "due:"
	cbDueAuto   = "auto"
)

// needsDayChoice: срок не назван, а предмет стоит в расписании несколько
// раз в неделю — день сдачи неоднозначен, спрашиваем пользователя.
func needsDayChoice(parsed ai.Parsed, week *schedule.Weekly) bool {
	if parsed.DueExpression != "" || parsed.DueDate != "" {
		return false
	}
	days := map[schedule.Day]bool{}
	for _, hit := range week.FindSubject(parsed.Subject) {
		days[hit.Day] = true
	}
	return len(days) >= 2
}

// dueDayKeyboard lists the subject's next lessons (up to three days) plus
// the automatic nearest-lesson choice.
func dueDayKeyboard(week *schedule.Weekly, subject string, now time.Time) tgbotapi.InlineKeyboardMarkup {
	seen := map[string]bool{}
	var occs []time.Time
	for _, hit := range week.FindSubject(subject) {
		at := schedule.NextLesson(hit.Day, hit.Slot.Start, now)
		k := at.Format("2006-01-02")
		if !seen[k] {
			seen[k] = true
			occs = append(occs, at)
		}
	}
	sort.Slice(occs, func(i, j int) bool { return occs[i].Before(occs[j]) })
	if len(occs) > 3 {
		occs = occs[:3]
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, at := range occs {
		label := fmt.Sprintf("%s %s", weekdayRu(at), at.Format("02.01"))
		data := cbDuePrefix + at.Format("2006-01-02")
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, data)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Ближайший урок", cbDuePrefix+cbDueAuto)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// submitOrConfirm schedules right away when the due day is unambiguous,
// otherwise asks the user to pick the lesson day.
func (r *Router) submitOrConfirm(cid, uid int64, parsed ai.Parsed, week *schedule.Weekly) {
	if !needsDayChoice(parsed, week) {
		r.submit(cid, uid, parsed)
		return
	}
	pendingHW.Store(cid, pendingSubmission{uid: uid, parsed: parsed})
	msg := tgbotapi.NewMessage(cid, fmt.Sprintf("К какому уроку «%s» записать это ДЗ?", parsed.Subject))
	msg.ReplyMarkup = dueDayKeyboard(week, parsed.Subject, r.now())
	if _, err := r.Bot.Send(msg); err != nil {
		r.Log.Warn().Err(err).Int64("chat", cid).Msg("send failed")
	}
}

func (r *Router) handleCallback(cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil || !strings.HasPrefix(cq.Data, cbDuePrefix) {
		return
	}
	cid := cq.Message.Chat.ID
	if _, err := r.Bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		r.Log.Warn().Err(err).Msg("answer callback")
	}

	v, ok := pendingHW.LoadAndDelete(cid)
	if !ok {
		r.send(cid, "Это ДЗ уже обработано.")
		return
	}
	p := v.(pendingSubmission)
	if d := strings.TrimPrefix(cq.Data, cbDuePrefix); d != cbDueAuto {
		p.parsed.DueDate = d
	}
	r.submit(cid, p.uid, p.parsed)
}
