package emitter

import "strings"

// FallbackEmoji is used for labels without an entry.
const FallbackEmoji = "😐"

var emojis = map[string]string{
	"smiling":       "😄",
	"laughing":      "😂",
	"surprised":     "😲",
	"angry":         "😠",
	"neutral":       "😐",
	"winking":       "😉",
	"kissing":       "💋",
	"speaking":      "🗣️",
	"sleepy":        "😴",
	"yawning":       "🥱",
	"eyebrow raise": "🤨",
}

// Emoji returns the emoji for a label, case-insensitively.
func Emoji(label string) string {
	if e, ok := emojis[strings.ToLower(strings.TrimSpace(label))]; ok {
		return e
	}
	return FallbackEmoji
}
