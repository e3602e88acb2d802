package session

import "github.com/yungbote/crawlshastra-backend/internal/domain/chat"

// ApologyText replaces the reply when the assistant could not answer.
const ApologyText = "I apologize, but I encountered an error. Please try again."

const titleRunes = 30

// Turn is one user message awaiting its reply. ThreadID is the thread id at
// the time the turn began; the turn keeps following the thread if it is
// re-keyed to its server id.
type Turn struct {
	ThreadID string
	Message  chat.ChatMessage

	first bool
	e     *entry
}

// titleFrom is the first 30 characters of the message followed by "...".
func titleFrom(text string) string {
	r := []rune(text)
	if len(r) > titleRunes {
		r = r[:titleRunes]
	}
	return string(r) + "..."
}
