package conversation

import (
	"time"

	"github.com/harunnryd/wakecall/pkg/transports"
)

// Kind classifies a chat-log entry.
type Kind string

const (
	KindTranscription Kind = "transcription"
	KindResponse      Kind = "response"
	KindSystem        Kind = "system"
)

// Message is one chat-log entry. Role is empty for system messages.
type Message struct {
	ID        uint64
	Kind      Kind
	Role      transports.Role
	Text      string
	Complete  bool
	CreatedAt time.Time
}

// Log is the append-only message log. At most one incomplete entry exists
// per (kind, role); completed entries are never modified.
type Log struct {
	nextID   uint64
	messages []Message
}

// Fragment replaces the text of role's incomplete transcription or starts a new one.
func (l *Log) Fragment(role transports.Role, text string, now time.Time) {
	l.upsert(KindTranscription, role, text, now)
}

// Response applies a streaming assistant response the same way.
func (l *Log) Response(text string, now time.Time) {
	l.upsert(KindResponse, transports.RoleAssistant, text, now)
}

// System appends a completed system notice.
func (l *Log) System(text string, now time.Time) {
	l.append(Message{Kind: KindSystem, Text: text, Complete: true, CreatedAt: now})
}

// CompleteOldest marks the oldest incomplete entry complete.
func (l *Log) CompleteOldest() bool {
	for i := range l.messages {
		if !l.messages[i].Complete {
			l.messages[i].Complete = true
			return true
		}
	}
	return false
}

// CompleteAll marks every incomplete entry complete and returns how many changed.
func (l *Log) CompleteAll() int {
	n := 0
	for i := range l.messages {
		if !l.messages[i].Complete {
			l.messages[i].Complete = true
			n++
		}
	}
	return n
}

// Messages returns a copy of the log.
func (l *Log) Messages() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Len() int { return len(l.messages) }

func (l *Log) upsert(kind Kind, role transports.Role, text string, now time.Time) {
	for i := len(l.messages) - 1; i >= 0; i-- {
		m := &l.messages[i]
		if !m.Complete && m.Kind == kind && m.Role == role {
			m.Text = text
			return
		}
	}
	l.append(Message{Kind: kind, Role: role, Text: text, CreatedAt: now})
}

func (l *Log) append(m Message) {
	l.nextID++
	m.ID = l.nextID
	l.messages = append(l.messages, m)
}
