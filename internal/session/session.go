// Package session manages conversation identity, interaction logs, and
// rate-limit state for the chat gateway. Sessions are keyed by an opaque
// client-issued identifier; at most one session is active per client at any
// time, and starting a new one discards the previous signature and honeypot
// token.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Language identifies the negotiated conversation language.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageSpanish Language = "es"
)

// ParseLanguage normalizes a raw language code, defaulting to English.
func ParseLanguage(raw string) Language {
	switch Language(raw) {
	case LanguageSpanish:
		return LanguageSpanish
	default:
		return LanguageEnglish
	}
}

// Interaction roles. RoleSystem interactions carry structured metadata and
// are excluded from memory and analytics counts.
const (
	RoleUser   = "user"
	RoleBot    = "bot"
	RoleSystem = "system"
)

// Interaction is an immutable entry in a session's conversation log.
type Interaction struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// RateLimitState tracks the token bucket for one session.
type RateLimitState struct {
	Tokens      int       `json:"tokens"`
	WindowStart time.Time `json:"windowStart"`
}

// Session is the stateful identity for one ongoing conversation.
type Session struct {
	ID            string         `json:"id"`
	Language      Language       `json:"language"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	Signature     string         `json:"-"`
	HoneypotToken string         `json:"-"`
	Interactions  []Interaction  `json:"interactions"`
	RateLimit     RateLimitState `json:"rateLimit"`
}

// clone returns a copy safe to hand to callers outside the store lock.
func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Interactions = append([]Interaction(nil), s.Interactions...)
	return &out
}

// randomID generates a prefixed random identifier such as "sess_a1b2...".
func randomID(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return prefix + "_" + uuid.NewString()
	}
	return prefix + "_" + hex.EncodeToString(b)
}
