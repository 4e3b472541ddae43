// Package session holds conversation state: the append-only [Ledger] of
// spoken turns and the [Manager] that maps session identifiers to ledgers.
//
// A ledger is never trimmed. Only its rendered view is bounded: Render
// returns the most recent window of turns, which is what the agent prompt
// embeds. The full history stays available for the lifetime of the process.
package session

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// DefaultWindow is the number of turns shown to the model when no explicit
// window is requested.
const DefaultWindow = 20

// DefaultAssistantName labels assistant turns in the rendered transcript.
const DefaultAssistantName = "CuraAI"

// ErrEmptyTurn is returned when appending a turn without text.
var ErrEmptyTurn = errors.New("session: turn text must not be empty")

// Speaker identifies who produced a turn.
type Speaker int

const (
	// User is the patient speaking into the microphone.
	User Speaker = iota
	// Assistant is the agent speaking through the response tool.
	Assistant
)

// String implements fmt.Stringer.
func (s Speaker) String() string {
	switch s {
	case User:
		return "user"
	case Assistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// Turn is one (speaker, text) entry of the conversation.
type Turn struct {
	Speaker Speaker   `json:"-"`
	Role    string    `json:"role"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Ledger is an ordered, append-only record of conversation turns.
// Insertion order is conversation order.
//
// All methods are safe for concurrent use, but concurrent writers still
// interleave their turns in one conversation.
type Ledger struct {
	assistantName string

	mu    sync.RWMutex
	turns []Turn
}

// NewLedger creates an empty ledger. Assistant turns render with
// assistantName as their prefix; empty means DefaultAssistantName.
func NewLedger(assistantName string) *Ledger {
	if assistantName == "" {
		assistantName = DefaultAssistantName
	}
	return &Ledger{assistantName: assistantName}
}

// Append adds a turn at the end of the ledger. Surrounding whitespace is
// trimmed; a turn that is empty afterwards is rejected.
func (l *Ledger) Append(speaker Speaker, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyTurn
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, Turn{
		Speaker: speaker,
		Role:    speaker.String(),
		Text:    text,
		At:      time.Now(),
	})
	return nil
}

// Len returns the total number of turns ever appended.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Turns returns a copy of the full history.
func (l *Ledger) Turns() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Render formats the last window turns, oldest first, one per line:
//
//	User: I have a headache.
//	CuraAI: How long have you had it?
//
// The output depends only on those turns. A window of zero or less uses
// DefaultWindow.
func (l *Ledger) Render(window int) string {
	if window <= 0 {
		window = DefaultWindow
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	start := max(len(l.turns)-window, 0)
	var b strings.Builder
	for i, t := range l.turns[start:] {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.prefix(t.Speaker))
		b.WriteString(t.Text)
	}
	return b.String()
}

func (l *Ledger) prefix(s Speaker) string {
	if s == Assistant {
		return l.assistantName + ": "
	}
	return "User: "
}
