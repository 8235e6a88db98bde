// Package ai wraps the LLM engines that turn homework text or photos into
// a structured assignment. Extraction is best-effort: both the subject and
// the due expression come back as untrusted, possibly-empty strings.
package ai

import (
	"context"
	"sync"

	"github.com/Dek0rta/homework-bot/internal/schedule"
)

// Parsed is the engine's answer for one assignment.
type Parsed struct {
	Subject string `json:"subject"`
	Task    string `json:"task"`
	// DueExpression is the verbatim due-date phrase from the source text
	// ("к среде", "через неделю"), empty when none was present.
	DueExpression string `json:"due_expression"`
	// DueDate is set only when the text named a concrete date, YYYY-MM-DD.
	DueDate string `json:"due_date"`
}

type Engine interface {
	Name() string
	GetModel() string
	// ParseText extracts an assignment from typed text; the timetable is
	// passed as context so the model picks subjects the user actually has.
	ParseText(ctx context.Context, text string, week *schedule.Weekly) (Parsed, error)
	// ParseImage does the same for a photographed notice.
	ParseImage(ctx context.Context, image []byte, mime string, week *schedule.Weekly) (Parsed, error)
	// DetectHomework decides whether a group-chat message is homework at
	// all. Returns nil (no error) for chatter.
	DetectHomework(ctx context.Context, text string, subjects []string) (*Parsed, error)
}

// Manager keeps a per-chat engine choice with a shared default.
type Manager struct {
	def Engine
	m   sync.Map // chatID -> Engine
}

func NewManager(defaultEngine Engine) *Manager {
	return &Manager{def: defaultEngine}
}

func (m *Manager) Get(chatID int64) Engine {
	if v, ok := m.m.Load(chatID); ok {
		return v.(Engine)
	}
	return m.def
}

func (m *Manager) Set(chatID int64, e Engine) {
	m.m.Store(chatID, e)
}
