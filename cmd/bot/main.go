package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Dek0rta/homework-bot/internal/ai"
	"github.com/Dek0rta/homework-bot/internal/ai/gemini"
	"github.com/Dek0rta/homework-bot/internal/calendar"
	"github.com/Dek0rta/homework-bot/internal/config"
	"github.com/Dek0rta/homework-bot/internal/schedule"
	"github.com/Dek0rta/homework-bot/internal/scheduler"
	"github.com/Dek0rta/homework-bot/internal/store"
	"github.com/Dek0rta/homework-bot/internal/telegram"
)

func main() {
	cfg := config.Load()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if os.Getenv("LOG_PRETTY") != "" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.Timezone).Msg("bad timezone")
	}

	// --- Postgres ---
	dsn := resolveDSN()
	if dsn == "" {
		logger.Fatal().Msg("database DSN is empty: set DATABASE_URL or POSTGRES_* env vars")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := store.Open(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	if err := store.Migrate(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
	cancel()
	logger.Info().Str("db", safeDSNSummary(dsn)).Msg("db connected")

	schedules := store.NewScheduleRepo(db)
	events := store.NewEventRepo(db)

	// --- Google Calendar ---
	auth := calendar.NewAuth(cfg.CredentialsPath, cfg.TokenPath)
	sink := calendar.NewGoogleSink(auth, cfg.CalendarID, cfg.Timezone)

	// --- AI engines ---
	manager := ai.NewManager(gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, loc))

	// --- Scheduler ---
	defaultTime, err := schedule.ParseClock(cfg.DefaultTime)
	if err != nil {
		logger.Fatal().Err(err).Str("value", cfg.DefaultTime).Msg("bad SCHEDULE_DEFAULT_TIME")
	}
	resolver := &schedule.SlotResolver{ScanDays: cfg.ScanDays, DefaultTime: defaultTime}
	sched := scheduler.New(schedules, events, sink, resolver, logger)

	// --- Telegram bot ---
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram connect")
	}
	bot.Debug = false
	logger.Info().Str("bot", bot.Self.UserName).Msg("authorized")

	r := &telegram.Router{
		Bot:       bot,
		Engines:   manager,
		Scheduler: sched,
		Schedules: schedules,
		Events:    events,
		Auth:      auth,
		Loc:       loc,
		Log:       logger,
	}

	startCron(loc, logger, events, bot)

	// --- HTTP mux (DefaultServeMux) ---
	// ListenForWebhook registers on the default mux, so healthz lives there too.
	http.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := "0.0.0.0:" + cfg.Port

	// --- Choose mode: Webhook vs Polling ---
	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		startWebhookMode(addr, bot, r, webhookURL, logger)
	} else {
		startPollingMode(addr, bot, r, logger)
	}
}

// ---------------- Cron jobs -----------------

// startCron schedules the nightly purge of past deadlines and the morning
// "what is due today" digest.
func startCron(loc *time.Location, logger zerolog.Logger, events *store.EventRepo, bot *tgbotapi.BotAPI) {
	c := cron.New(cron.WithLocation(loc))

	// Deadlines older than a week are noise; drop them at night.
	_, err := c.AddFunc("30 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := events.PurgeBefore(ctx, time.Now().In(loc).AddDate(0, 0, -7))
		if err != nil {
			logger.Error().Err(err).Msg("purge old events")
			return
		}
		logger.Info().Int64("deleted", n).Msg("purged old events")
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("cron: purge job")
	}

	_, err = c.AddFunc("30 7 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		due, err := events.DueOn(ctx, time.Now().In(loc))
		if err != nil {
			logger.Error().Err(err).Msg("morning digest query")
			return
		}
		for userID, lines := range digestByUser(due) {
			msg := tgbotapi.NewMessage(userID, "📅 Сегодня сдаём:\n"+strings.Join(lines, "\n"))
			if _, err := bot.Send(msg); err != nil {
				logger.Warn().Err(err).Int64("user", userID).Msg("send digest")
			}
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("cron: digest job")
	}

	c.Start()
}

func digestByUser(due []*store.Event) map[int64][]string {
	out := map[int64][]string{}
	for _, e := range due {
		out[e.UserID] = append(out[e.UserID],
			fmt.Sprintf("• %s в %s — %s", e.Subject, e.Start, e.Task))
	}
	return out
}

// ---------------- Modes -----------------

func startWebhookMode(addr string, bot *tgbotapi.BotAPI, r *telegram.Router, baseURL string, logger zerolog.Logger) {
	path := "/webhook/" + shortHash(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		logger.Fatal().Err(err).Msg("webhook config")
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		logger.Fatal().Err(err).Msg("webhook register")
	}

	// tgbotapi.ListenForWebhook registers its handler on DefaultServeMux.
	updates := bot.ListenForWebhook(path)

	go func() {
		for upd := range updates {
			r.HandleUpdate(upd)
		}
		logger.Warn().Msg("webhook updates channel closed")
	}()

	logger.Info().Str("addr", addr).Str("path", path).Msg("webhook listening")
	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Fatal().Err(err).Msg("http server")
	}
}

func startPollingMode(addr string, bot *tgbotapi.BotAPI, r *telegram.Router, logger zerolog.Logger) {
	// healthz is optional in polling mode but costs nothing.
	go func() {
		logger.Info().Str("addr", addr).Msg("health server listening")
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	runPolling(context.Background(), bot, logger, r.HandleUpdate)
}

// ---------------- Polling loop -----------------

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") { // HTTP 429 from Telegram
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return 1 * time.Second
}

func runPolling(ctx context.Context, bot *tgbotapi.BotAPI, logger zerolog.Logger, handle func(tgbotapi.Update)) {
	offset := 0
	baseDelay := 1 * time.Second
	maxDelay := 15 * time.Second

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("polling: context cancelled")
			return
		default:
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30 // long polling timeout (sec)

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := retryDelayFromError(err)
			if d < baseDelay {
				d = baseDelay
			}
			if d > maxDelay {
				d = maxDelay
			}
			logger.Warn().Err(err).Dur("retry_in", d).Msg("polling error")
			time.Sleep(d)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}

		if len(updates) == 0 {
			time.Sleep(200 * time.Millisecond)
		}
	}
}

// ---------------- Helpers -----------------

func resolveDSN() string {
	// Prefer DATABASE_URL if provided
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		return v
	}
	// Build DSN from POSTGRES_* / PG* env vars (single-container default)
	user := getenvDefault("POSTGRES_USER", "homework")
	pass := os.Getenv("POSTGRES_PASSWORD")
	host := getenvDefault("PGHOST", "db")
	port := getenvDefault("PGPORT", "5432")
	db := getenvDefault("POSTGRES_DB", "homework")

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + db,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func getenvDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func shortHash(s string) string {
	// FNV-1a; non-crypto but stable for a token-derived webhook path.
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[h&0xF]
		h >>= 4
	}
	return string(out)
}

func safeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
