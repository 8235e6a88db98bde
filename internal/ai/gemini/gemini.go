package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Dek0rta/homework-bot/internal/ai"
	"github.com/Dek0rta/homework-bot/internal/schedule"
)

type Engine struct {
	APIKey string
	Model  string
	// Loc is the users' timezone; "сегодня" in the prompt must be their
	// day, not the server's.
	Loc *time.Location
}

func New(apiKey, model string, loc *time.Location) *Engine {
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
		Loc:    loc,
	}
}

func (e *Engine) now() time.Time {
	if e.Loc != nil {
		return time.Now().In(e.Loc)
	}
	return time.Now()
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

const parseJSONHint = `Ответь СТРОГО одним JSON-объектом без markdown-блоков:
{"subject":"...","task":"...","due_expression":"...","due_date":"<YYYY-MM-DD или пустая строка>"}

subject: предмет из расписания (пустая строка, если не определён)
task: краткое описание задания
due_expression: ДОСЛОВНАЯ фраза срока из текста («к среде», «через неделю», «до 15 числа»), пустая строка если срока нет
due_date: конкретная дата из текста в формате YYYY-MM-DD, пустая строка если не указана`

const detectExamples = `ПРИМЕРЫ — ЧТО ЯВЛЯЕТСЯ ДЗ:
✅ «ДЗ по физике: §8 задачи 1-3»
✅ «На пятницу выучить стихотворение (литература)»
✅ «Математика — стр.45 упр.7, сдать в четверг»
✅ «Не забудьте параграф 12 прочитать к завтрашнему уроку химии»

ПРИМЕРЫ — ЧТО НЕ ЯВЛЯЕТСЯ ДЗ:
❌ «Кто сделал домашку по математике?» — вопрос, не задание
❌ «Завтра контрольная по физике» — объявление, не ДЗ
❌ «Привет всем!» — переписка
❌ «Спасибо за помощь» — переписка`

func todayCtx(now time.Time) string {
	return fmt.Sprintf("%s, %s", schedule.FromTime(now.Weekday()).FullName(), now.Format("02.01.2006"))
}

func scheduleCtx(week *schedule.Weekly) string {
	if week == nil || week.IsEmpty() {
		return "(расписание не задано)"
	}
	return week.Format()
}

func (e *Engine) ParseText(ctx context.Context, text string, week *schedule.Weekly) (ai.Parsed, error) {
	prompt := "Ты помощник школьника. Тебе дан текст с домашним заданием и расписание уроков.\n\n" +
		"Сегодня: " + todayCtx(e.now()) + "\n" +
		"Расписание (формат «День: Предмет ЧЧ:ММ»):\n" + scheduleCtx(week) +
		"\n\nТекст домашнего задания:\n" + text +
		"\n\nЗадача:\n" +
		"1. Определи предмет из расписания (subject).\n" +
		"2. Извлеки краткое описание задания (task).\n" +
		"3. Выпиши дословно фразу срока сдачи, если она есть (due_expression).\n\n" +
		parseJSONHint
	return e.generateParsed(ctx, []genai.Part{genai.Text(prompt)})
}

func (e *Engine) ParseImage(ctx context.Context, image []byte, mime string, week *schedule.Weekly) (ai.Parsed, error) {
	prompt := "Ты помощник школьника. На изображении записано домашнее задание.\n\n" +
		"Сегодня: " + todayCtx(e.now()) + "\n" +
		"Расписание уроков (формат «День: Предмет ЧЧ:ММ»):\n" + scheduleCtx(week) +
		"\n\nЗадача:\n" +
		"1. Прочитай текст на изображении.\n" +
		"2. Определи предмет из расписания (subject).\n" +
		"3. Извлеки краткое описание задания (task).\n" +
		"4. Выпиши дословно фразу срока сдачи, если она есть (due_expression).\n\n" +
		parseJSONHint
	parts := []genai.Part{
		genai.Text(prompt),
		&genai.Blob{MIMEType: mime, Data: image},
	}
	return e.generateParsed(ctx, parts)
}

func (e *Engine) DetectHomework(ctx context.Context, text string, subjects []string) (*ai.Parsed, error) {
	prompt := "Ты определяешь, является ли сообщение из школьного чата домашним заданием.\n\n" +
		"Сегодня: " + todayCtx(e.now()) + "\n" +
		"Предметы класса: " + strings.Join(subjects, ", ") + "\n\n" +
		detectExamples + "\n\n" +
		"Сообщение для анализа:\n«" + text + "»\n\n" +
		"Если это НЕ ДЗ — ответь ровно null.\nЕсли ДЗ:\n" + parseJSONHint
	raw, err := e.generate(ctx, []genai.Part{genai.Text(prompt)})
	if err != nil {
		return nil, err
	}
	if ai.IsNullAnswer(raw) {
		return nil, nil
	}
	p, err := decodeParsed(raw)
	if err != nil {
		// Невнятный ответ трактуем как «не ДЗ», а не как сбой.
		return nil, nil
	}
	return &p, nil
}

func (e *Engine) generateParsed(ctx context.Context, parts []genai.Part) (ai.Parsed, error) {
	raw, err := e.generate(ctx, parts)
	if err != nil {
		return ai.Parsed{}, err
	}
	return decodeParsed(raw)
}

// generate runs one prompt with strict-JSON generation config and a small
// retry loop for transient API failures.
func (e *Engine) generate(ctx context.Context, parts []genai.Part) (string, error) {
	if e.APIKey == "" {
		return "", errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}

	const attempts = 3
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err == nil {
			txt := firstText(resp)
			if txt == "" {
				return "", fmt.Errorf("gemini: empty response")
			}
			return txt, nil
		}
		lastErr = err
		if attempt < attempts {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return "", err
			}
		}
	}
	return "", lastErr
}

// sleepBackoff waits attempt*300ms or returns early when ctx is done.
func sleepBackoff(ctx context.Context, attempt int) error {
	select {
	case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func decodeParsed(raw string) (ai.Parsed, error) {
	js, err := ai.ExtractJSON(raw)
	if err != nil {
		return ai.Parsed{}, err
	}
	var p ai.Parsed
	if err := json.Unmarshal([]byte(js), &p); err != nil {
		return ai.Parsed{}, fmt.Errorf("gemini: bad JSON: %w", err)
	}
	p.Subject = strings.TrimSpace(p.Subject)
	p.Task = strings.TrimSpace(p.Task)
	p.DueExpression = strings.TrimSpace(p.DueExpression)
	if strings.EqualFold(p.DueDate, "null") {
		p.DueDate = ""
	}
	return p, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
