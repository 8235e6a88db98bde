package telegram

import "sync"

// Chat modes for multi-step flows.
const (
	modeNone           = ""
	modeAwaitTimetable = "await_timetable"
	modeAwaitAuthCode  = "await_auth_code"
)

var chatMode sync.Map // chatID -> string

func setMode(chatID int64, mode string) { chatMode.Store(chatID, mode) }

func getMode(chatID int64) string {
	if v, ok := chatMode.Load(chatID); ok {
		if s, _ := v.(string); s != "" {
			return s
		}
	}
	return modeNone
}

func clearMode(chatID int64) { chatMode.Delete(chatID) }
