package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Dek0rta/homework-bot/internal/analytics"
	"github.com/Dek0rta/homework-bot/internal/export"
	"github.com/Dek0rta/homework-bot/internal/schedule"
	"github.com/Dek0rta/homework-bot/internal/store"
)

// handleTimetableText parses and saves the /schedule text, replacing the
// old timetable wholesale.
func (r *Router) handleTimetableText(cid, uid int64, text string) {
	week, err := schedule.ParseText(text)
	if err != nil {
		if errors.Is(err, schedule.ErrNoLessons) {
			r.send(cid, "Не нашёл ни одного урока. Формат:\n\nПн: Математика 8:00, Физика 9:45")
			return
		}
		r.send(cid, "Ошибка в расписании: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.Schedules.Set(ctx, uid, week); err != nil {
		r.Log.Error().Err(err).Int64("user", uid).Msg("save schedule")
		r.send(cid, "Не получилось сохранить расписание, попробуй ещё раз.")
		return
	}
	clearMode(cid)
	r.send(cid, "✅ Расписание сохранено:\n\n"+week.Format())
}

func (r *Router) showTimetable(cid, uid int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	week, err := r.Schedules.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotConfigured) {
			r.send(cid, "Расписание ещё не задано: /schedule")
			return
		}
		r.send(cid, "Не получилось загрузить расписание.")
		return
	}
	r.send(cid, "📅 Твоё расписание:\n\n"+week.Format())
}

func (r *Router) listHomework(cid, uid int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	events, err := r.Events.Upcoming(ctx, uid, r.now(), 30)
	if err != nil {
		r.send(cid, "Не получилось загрузить список ДЗ.")
		return
	}
	if len(events) == 0 {
		r.send(cid, "Ближайших дедлайнов нет. 🎉")
		return
	}
	var b strings.Builder
	b.WriteString("📋 Ближайшие дедлайны:\n")
	for _, e := range events {
		fmt.Fprintf(&b, "• %s %s в %s — %s: %s\n",
			weekdayRu(e.Date), e.Date.Format("02.01"), e.Start, e.Subject, short(e.Task, 80))
	}
	r.send(cid, b.String())
}

func (r *Router) showLoad(cid, uid int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	events, err := r.Events.Upcoming(ctx, uid, r.now(), 100)
	if err != nil {
		r.send(cid, "Не получилось посчитать нагрузку.")
		return
	}
	r.send(cid, analytics.FormatLoad(analytics.WeekLoad(events, r.now(), 7)))
}

func (r *Router) exportCSV(cid, uid int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	events, err := r.Events.Upcoming(ctx, uid, r.now(), 500)
	if err != nil {
		r.send(cid, "Не получилось загрузить дедлайны.")
		return
	}
	if len(events) == 0 {
		r.send(cid, "Выгружать нечего: дедлайнов нет.")
		return
	}
	body, err := analytics.CSV(events)
	if err != nil {
		r.Log.Error().Err(err).Int64("user", uid).Msg("csv export")
		r.send(cid, "Не получилось собрать файл.")
		return
	}
	doc := tgbotapi.NewDocument(cid, tgbotapi.FileBytes{
		Name:  "homework.csv",
		Bytes: body,
	})
	if _, err := r.Bot.Send(doc); err != nil {
		r.Log.Warn().Err(err).Int64("chat", cid).Msg("send document")
	}
}

func (r *Router) startAuth(cid int64) {
	url, err := r.Auth.AuthURL()
	if err != nil {
		r.Log.Error().Err(err).Msg("auth url")
		r.send(cid, "Не настроен файл credentials.json — авторизация недоступна.")
		return
	}
	setMode(cid, modeAwaitAuthCode)
	r.send(cid, "1. Открой ссылку и разреши доступ к календарю:\n"+url+"\n\n2. Пришли сюда код со страницы.")
}

func (r *Router) handleAuthCode(cid int64, code string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.Auth.Exchange(ctx, strings.TrimSpace(code)); err != nil {
		r.Log.Warn().Err(err).Msg("oauth exchange")
		r.send(cid, "Код не подошёл. Попробуй /auth ещё раз.")
		return
	}
	clearMode(cid)
	r.send(cid, "✅ Google Calendar подключён.")
}

func (r *Router) exportICS(cid, uid int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	week, err := r.Schedules.Get(ctx, uid)
	if err != nil && !errors.Is(err, store.ErrNotConfigured) {
		r.send(cid, "Не получилось загрузить расписание.")
		return
	}
	events, err := r.Events.Upcoming(ctx, uid, r.now(), 100)
	if err != nil {
		r.send(cid, "Не получилось загрузить дедлайны.")
		return
	}

	body, err := export.ICS(uid, week, events, r.now())
	if err != nil {
		r.Log.Error().Err(err).Int64("user", uid).Msg("ics export")
		r.send(cid, "Не получилось собрать файл.")
		return
	}
	doc := tgbotapi.NewDocument(cid, tgbotapi.FileBytes{
		Name:  "schedule.ics",
		Bytes: []byte(body),
	})
	doc.Caption = "Импортируй в любой календарь."
	if _, err := r.Bot.Send(doc); err != nil {
		r.Log.Warn().Err(err).Int64("chat", cid).Msg("send document")
	}
}

// handleHomeworkText: обычное сообщение в личке — считаем, что это ДЗ.
func (r *Router) handleHomeworkText(msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	uid := userID(msg)

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	week, err := r.Schedules.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotConfigured) {
			r.send(cid, "Сначала настрой расписание уроков: /schedule")
			return
		}
		r.send(cid, "Не получилось загрузить расписание.")
		return
	}

	r.send(cid, "Анализирую задание...")
	parsed, err := r.Engines.Get(cid).ParseText(ctx, msg.Text, week)
	if err != nil {
		r.Log.Warn().Err(err).Int64("chat", cid).Msg("parse text")
		r.send(cid, "Ошибка при анализе текста: "+err.Error())
		return
	}
	r.submitOrConfirm(cid, uid, parsed, week)
}

// handleGroupText watches a class chat: the engine decides whether the
// message is homework at all; chatter is dropped silently.
func (r *Router) handleGroupText(msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	uid := userID(msg)

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	week, err := r.Schedules.Get(ctx, uid)
	if err != nil {
		return // no timetable, nothing to match against
	}
	subjects := subjectList(week)

	parsed, err := r.Engines.Get(cid).DetectHomework(ctx, msg.Text, subjects)
	if err != nil {
		r.Log.Warn().Err(err).Int64("chat", cid).Msg("group detect")
		return
	}
	if parsed == nil {
		return
	}
	r.submit(cid, uid, *parsed)
}

func subjectList(week *schedule.Weekly) []string {
	seen := map[string]bool{}
	var out []string
	for _, slots := range week.Days {
		for _, s := range slots {
			if !seen[s.Subject] {
				seen[s.Subject] = true
				out = append(out, s.Subject)
			}
		}
	}
	return out
}
