package models

import (
	"strings"
	"time"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// DefaultUsageLimit is the number of processed turns allowed per session.
const DefaultUsageLimit = 50

// Turn is a single message in a session. Turns are never modified after being appended.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the ordered turn list of one chat, together with its phase and usage counter.
type Session struct {
	ID         string    `json:"id"`
	Phase      Phase     `json:"phase"`
	Turns      []Turn    `json:"turns"`
	UsageCount int       `json:"usage_count"`
	UsageLimit int       `json:"usage_limit"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewSession creates an empty session in the initial phase.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:         id,
		Phase:      PhaseInitial,
		Turns:      []Turn{},
		UsageLimit: DefaultUsageLimit,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Append adds a turn to the end of the session.
func (s *Session) Append(t Turn) {
	s.Turns = append(s.Turns, t)
	if t.Timestamp.After(s.UpdatedAt) {
		s.UpdatedAt = t.Timestamp
	}
}

// Len returns the number of turns.
func (s *Session) Len() int {
	return len(s.Turns)
}

// LimitReached reports whether the usage counter hit the configured limit.
// A non-positive limit disables the check.
func (s *Session) LimitReached() bool {
	return s.UsageLimit > 0 && s.UsageCount >= s.UsageLimit
}

// RecentAssistantReplies returns up to n of the latest assistant texts, oldest first.
func (s *Session) RecentAssistantReplies(n int) []string {
	return RecentAssistantReplies(s.Turns, n)
}

// LastAssistantReply returns the latest assistant text and whether one exists.
func (s *Session) LastAssistantReply() (string, bool) {
	replies := RecentAssistantReplies(s.Turns, 1)
	if len(replies) == 0 {
		return "", false
	}
	return replies[0], true
}

// RecentAssistantReplies returns up to n of the latest assistant texts in turns, oldest first.
func RecentAssistantReplies(turns []Turn, n int) []string {
	if n <= 0 {
		return nil
	}
	var out []string
	for i := len(turns) - 1; i >= 0 && len(out) < n; i-- {
		if turns[i].Speaker == SpeakerAssistant {
			out = append(out, turns[i].Text)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Truncate shortens text to at most max runes.
func Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max])
}

// IsBlank reports whether text has no visible characters.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
