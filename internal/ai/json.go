package ai

import (
	"fmt"
	"regexp"
	"strings"
)

var reJSONObject = regexp.MustCompile(`(?s)\{.*\}`)

// StripCodeFences removes the ```json fences models like to add.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ExtractJSON pulls the first {...} object out of a model answer that may
// be wrapped in prose or fences.
func ExtractJSON(raw string) (string, error) {
	raw = StripCodeFences(raw)
	m := reJSONObject.FindString(raw)
	if m == "" {
		short := raw
		if len(short) > 200 {
			short = short[:200]
		}
		return "", fmt.Errorf("no JSON object in model answer: %q", short)
	}
	return m, nil
}

// IsNullAnswer: модель отвечает «null», когда сообщение — не ДЗ.
func IsNullAnswer(raw string) bool {
	s := strings.ToLower(StripCodeFences(raw))
	return s == "" || s == "null" || s == "none"
}
