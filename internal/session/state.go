package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/crawlshastra-backend/internal/domain/chat"
)

// State is where a thread sits relative to the server.
type State int

const (
	// StateLocalOnly threads have never been stored on the server.
	StateLocalOnly State = iota
	StateSynced
	// StatePending threads have a user message waiting for its reply.
	StatePending
)

func (s State) String() string {
	switch s {
	case StateLocalOnly:
		return "local-only"
	case StateSynced:
		return "synced"
	case StatePending:
		return "pending"
	default:
		return "unknown"
	}
}

const localPrefix = "local-"

// IsLocalID reports whether id was minted by the controller rather than the server.
func IsLocalID(id string) bool { return strings.HasPrefix(id, localPrefix) }

// Thread is a read-only copy of a thread held by the controller.
type Thread struct {
	ID        string
	Title     *string
	Messages  []chat.ChatMessage
	CreatedAt time.Time
	UpdatedAt time.Time
	State     State
}

// entry is the mutable thread record. Fields other than save are guarded by
// Controller.mu. save orders server writes for this thread.
type entry struct {
	id        string
	serverID  uuid.UUID
	title     *string
	messages  []chat.ChatMessage
	createdAt time.Time
	updatedAt time.Time

	pending *Turn
	saving  bool
	deleted bool

	save sync.Mutex
}

func newLocalEntry(now time.Time) *entry {
	return &entry{
		id:        localPrefix + uuid.NewString(),
		messages:  []chat.ChatMessage{chat.Greeting(now)},
		createdAt: now,
		updatedAt: now,
	}
}

func newRemoteEntry(t chat.ChatThread) *entry {
	e := &entry{}
	e.apply(t)
	return e
}

// apply overwrites the entry with the server's copy.
func (e *entry) apply(t chat.ChatThread) {
	e.id = t.ID.String()
	e.serverID = t.ID
	e.title = copyTitle(t.Title)
	e.messages = copyMessages(t.Messages)
	e.createdAt = t.CreatedAt
	e.updatedAt = t.UpdatedAt
}

func (e *entry) state() State {
	switch {
	case e.pending != nil:
		return StatePending
	case e.serverID == uuid.Nil:
		return StateLocalOnly
	default:
		return StateSynced
	}
}

func (e *entry) snapshot() Thread {
	return Thread{
		ID:        e.id,
		Title:     copyTitle(e.title),
		Messages:  copyMessages(e.messages),
		CreatedAt: e.createdAt,
		UpdatedAt: e.updatedAt,
		State:     e.state(),
	}
}

func (e *entry) hasUserMessage() bool {
	for _, m := range e.messages {
		if m.Sender == chat.SenderUser {
			return true
		}
	}
	return false
}

func (e *entry) nextMessageID() int64 {
	var last int64
	for _, m := range e.messages {
		if m.MessageID > last {
			last = m.MessageID
		}
	}
	return last + 1
}

func copyTitle(t *string) *string {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyMessages(in []chat.ChatMessage) []chat.ChatMessage {
	out := make([]chat.ChatMessage, len(in))
	for i, m := range in {
		m.Sources = append([]chat.Source{}, m.Sources...)
		out[i] = m
	}
	return out
}
