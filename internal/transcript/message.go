package transcript

import (
	"slices"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

type Message struct {
	ID               string   `json:"id,omitempty"`
	Role             Role     `json:"role"`
	Content          string   `json:"content"`
	ExecutedCommands []string `json:"executed_commands,omitempty"`
}

func NewMessage(role Role, content string) Message {
	return Message{ID: uuid.NewString(), Role: role, Content: content}
}

// HasExecuted reports whether the directive was already run for this message.
func (m Message) HasExecuted(command string) bool {
	return slices.Contains(m.ExecutedCommands, command)
}

// MarkExecuted records command in the executed set. It is a no-op for
// commands already present.
func (m *Message) MarkExecuted(command string) {
	if m.HasExecuted(command) {
		return
	}
	m.ExecutedCommands = append(m.ExecutedCommands, command)
}

// Transcript is the ordered conversation. A system message, when present,
// is always at index 0.
type Transcript []Message

func (t Transcript) HasSystem() bool {
	return len(t) > 0 && t[0].Role == RoleSystem
}

// ChatMessages returns the messages after the optional system preamble.
func (t Transcript) ChatMessages() []Message {
	if t.HasSystem() {
		return t[1:]
	}
	return t
}

// System returns the leading system message, if any.
func (t Transcript) System() (Message, bool) {
	if t.HasSystem() {
		return t[0], true
	}
	return Message{}, false
}

// Index returns the position of the message with the given id, or -1.
func (t Transcript) Index(id string) int {
	return slices.IndexFunc(t, func(m Message) bool { return m.ID == id })
}

func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	for i, m := range t {
		m.ExecutedCommands = slices.Clone(m.ExecutedCommands)
		out[i] = m
	}
	return out
}

// Validate checks the role and system placement invariants.
func (t Transcript) Validate() bool {
	for i, m := range t {
		if !m.Role.Valid() {
			return false
		}
		if m.Role == RoleSystem && i != 0 {
			return false
		}
	}
	return true
}

// Truncate keeps the most recent limit non-system messages and the leading
// system message. A limit of zero or less keeps everything.
func Truncate(t Transcript, limit int) Transcript {
	chat := t.ChatMessages()
	if limit <= 0 || len(chat) <= limit {
		return t
	}

	recent := chat[len(chat)-limit:]
	if system, ok := t.System(); ok {
		out := make(Transcript, 0, limit+1)
		out = append(out, system)
		return append(out, recent...)
	}
	return slices.Clone(Transcript(recent))
}
