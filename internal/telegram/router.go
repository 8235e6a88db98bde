package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Dek0rta/homework-bot/internal/ai"
	"github.com/Dek0rta/homework-bot/internal/calendar"
	"github.com/Dek0rta/homework-bot/internal/scheduler"
	"github.com/Dek0rta/homework-bot/internal/store"
)

// Router wires Telegram updates into the scheduler and the store.
type Router struct {
	Bot       *tgbotapi.BotAPI
	Engines   *ai.Manager
	Scheduler *scheduler.Scheduler
	Schedules *store.ScheduleRepo
	Events    *store.EventRepo
	Auth      *calendar.Auth
	// Loc is the users' timezone: due-date references must be taken in it,
	// not in the server clock's zone.
	Loc *time.Location
	Log zerolog.Logger
}

// now is the reference moment for due-date resolution, in the users' zone.
func (r *Router) now() time.Time {
	if r.Loc != nil {
		return time.Now().In(r.Loc)
	}
	return time.Now()
}

const submitTimeout = 90 * time.Second

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	cid := msg.Chat.ID

	if msg.IsCommand() {
		clearMode(cid)
		r.handleCommand(msg)
		return
	}

	switch getMode(cid) {
	case modeAwaitTimetable:
		if msg.Text != "" {
			r.handleTimetableText(cid, userID(msg), msg.Text)
			return
		}
	case modeAwaitAuthCode:
		if msg.Text != "" {
			r.handleAuthCode(cid, msg.Text)
			return
		}
	}

	if len(msg.Photo) > 0 {
		r.acceptPhoto(msg)
		return
	}
	if msg.Text != "" {
		if msg.Chat.IsGroup() || msg.Chat.IsSuperGroup() {
			r.handleGroupText(msg)
			return
		}
		r.handleHomeworkText(msg)
	}
}

func (r *Router) handleCommand(msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		r.send(cid, "Пришли фото или текст домашнего задания — я определю предмет, найду ближайший урок и поставлю дедлайн в Google Calendar.\n\n"+
			"Команды:\n"+
			"/schedule — задать расписание уроков\n"+
			"/my_schedule — показать расписание\n"+
			"/hw — ближайшие дедлайны\n"+
			"/load — нагрузка на неделю\n"+
			"/auth — подключить Google Calendar\n"+
			"/export — выгрузить календарь (.ics)\n"+
			"/export_csv — выгрузить дедлайны (.csv)\n"+
			"/cancel — отменить текущий шаг")
	case "cancel":
		clearMode(cid)
		pendingHW.Delete(cid)
		r.send(cid, "Ок, отменил.")
	case "schedule":
		setMode(cid, modeAwaitTimetable)
		r.send(cid, "Пришли расписание, по строке на день:\n\nПн: Математика 8:00, Физика 9:45\nВт: Алгебра 8:00\n\nСтарое расписание будет заменено целиком.")
	case "my_schedule":
		r.showTimetable(cid, userID(msg))
	case "hw":
		r.listHomework(cid, userID(msg))
	case "load":
		r.showLoad(cid, userID(msg))
	case "auth":
		r.startAuth(cid)
	case "export":
		r.exportICS(cid, userID(msg))
	case "export_csv":
		r.exportCSV(cid, userID(msg))
	default:
		r.send(cid, "Неизвестная команда. /help")
	}
}

// userID: в личке это автор, расписание привязано к пользователю.
func userID(msg *tgbotapi.Message) int64 {
	if msg.From != nil {
		return msg.From.ID
	}
	return msg.Chat.ID
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := r.Bot.Send(msg)
	if err != nil {
		r.Log.Warn().Err(err).Int64("chat", chatID).Msg("send failed")
	}
}

// submit runs the parsed assignment through the scheduler and renders the
// outcome for the chat.
func (r *Router) submit(cid int64, uid int64, parsed ai.Parsed) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	out := r.Scheduler.Submit(ctx, scheduler.Request{
		UserID:           uid,
		SubjectHint:      parsed.Subject,
		Task:             parsed.Task,
		RawDueExpression: parsed.DueExpression,
		DetectedDate:     parsed.DueDate,
		ReceivedAt:       r.now(),
	})
	r.send(cid, renderOutcome(parsed, out))
}

func renderOutcome(parsed ai.Parsed, out scheduler.Outcome) string {
	when := func() string {
		return fmt.Sprintf("%s, %s в %s",
			weekdayRu(out.Date), out.Date.Format("02.01"), out.Start)
	}
	switch out.Status {
	case scheduler.Scheduled:
		if out.SlotMatched {
			return fmt.Sprintf("✅ Добавлено в Google Calendar!\n\n📚 Предмет: %s\n📝 Задание: %s\n📅 Урок: %s",
				out.Subject, parsed.Task, when())
		}
		return fmt.Sprintf("⚠️ Урок «%s» не нашёлся в расписании на эту дату.\nСобытие всё равно создано: %s.\nПроверь расписание: /my_schedule",
			out.Subject, when())
	case scheduler.AlreadyScheduled:
		return fmt.Sprintf("Это ДЗ уже в календаре: %s — %s.", out.Subject, when())
	case scheduler.NotConfigured:
		return "Сначала настрой расписание уроков: /schedule"
	case scheduler.AuthRequired:
		return "Google Calendar не подключён. Нажми /auth и выполни авторизацию."
	default:
		return "Не получилось записать в календарь, попробуй ещё раз чуть позже."
	}
}

var daysRu = [7]string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}

func weekdayRu(t time.Time) string {
	return daysRu[(int(t.Weekday())+6)%7]
}

func short(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) > n {
		return string(r[:n]) + "…"
	}
	return s
}
