// Package assist implements the automated reply core of standin: per-sender
// conversation transcripts, the debounce coordinator that collapses message
// bursts into a single LLM call, and the responder that orchestrates the
// whole reply cycle.
package assist

import (
	"strings"
	"time"
)

// Role identifies who produced a transcript turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single entry in a conversation transcript.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Transcript is an ordered conversation history for one sender.
// The first turn is always the system turn inserted at creation.
type Transcript struct {
	Turns []Turn `json:"turns"`

	// UpdatedAt is when the transcript was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTranscript creates a transcript seeded with the given system prompt.
// The system turn is inserted exactly once, at creation.
func NewTranscript(systemPrompt string) *Transcript {
	return &Transcript{
		Turns:     []Turn{{Role: RoleSystem, Content: systemPrompt}},
		UpdatedAt: time.Now(),
	}
}

// MergeUserText folds a new user message into the transcript. If the last
// turn is a user turn the text is joined onto it with a newline, so a burst
// of messages becomes one prompt turn. Otherwise a fresh user turn is
// appended. The transcript never ends with more than one user turn.
func (t *Transcript) MergeUserText(text string) {
	t.UpdatedAt = time.Now()

	if n := len(t.Turns); n > 0 && t.Turns[n-1].Role == RoleUser {
		t.Turns[n-1].Content += "\n" + text
		return
	}
	t.Turns = append(t.Turns, Turn{Role: RoleUser, Content: text})
}

// AppendAssistant appends an assistant reply as a new turn. Assistant turns
// are never merged.
func (t *Transcript) AppendAssistant(text string) {
	t.UpdatedAt = time.Now()
	t.Turns = append(t.Turns, Turn{Role: RoleAssistant, Content: text})
}

// LastUserText returns the content of the trailing user turn, or "" if the
// transcript does not end with one.
func (t *Transcript) LastUserText() string {
	if n := len(t.Turns); n > 0 && t.Turns[n-1].Role == RoleUser {
		return t.Turns[n-1].Content
	}
	return ""
}

// Empty reports whether the transcript holds nothing beyond the seed turn.
func (t *Transcript) Empty() bool {
	return len(t.Turns) <= 1
}

// sanitizeSenderKey reduces a sender identifier to a filesystem-safe key.
// WhatsApp JIDs look like "5511999999999@s.whatsapp.net"; everything outside
// [a-zA-Z0-9._-] is replaced with "_".
func sanitizeSenderKey(sender string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, sender)
}
