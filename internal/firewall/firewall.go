// Package firewall is the first defensive stage of the chat pipeline: input
// sanitation, per-session rate limiting, honeypot replay detection, and
// injection pattern screening.
package firewall

import (
	"regexp"
	"strings"
	"time"

	"github.com/ops-online-support/chattia-gateway/internal/session"
	"github.com/ops-online-support/chattia-gateway/pkg/logging"
)

// Rejection reasons surfaced to the caller. Policy rejections are expected
// traffic shaping, not errors.
const (
	ReasonEmpty      = "Please enter a question about OPS services."
	ReasonThrottled  = "Rate limit reached. Please wait a moment before asking again."
	ReasonAutomation = "Potential automation detected. Session locked."
	ReasonInjection  = "Security policy prevents processing that request."
)

const (
	defaultWindow    = 60 * time.Second
	defaultMaxTokens = 8
	botContextLimit  = 3
)

var (
	forbiddenChars = regexp.MustCompile(`[<>{}]`)
	whitespaceRuns = regexp.MustCompile(`\s+`)

	injectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bselect\b`),
		regexp.MustCompile(`(?i)\binsert\b`),
		regexp.MustCompile(`(?i)\bdrop\b`),
		regexp.MustCompile(`(?i)\bunion\b`),
		regexp.MustCompile(`(?i)<script`),
	}
)

// Decision is the firewall verdict for one message. A rejected decision is
// terminal: the message never reaches retrieval.
type Decision struct {
	Allowed       bool
	SanitizedText string
	Reason        string
}

// Firewall screens inbound messages against the owning session's state.
type Firewall struct {
	sessions  *session.Store
	window    time.Duration
	maxTokens int
	logger    *logging.Logger
}

// Option configures the firewall.
type Option func(*Firewall)

// WithRateLimit overrides the token-bucket window and capacity.
func WithRateLimit(window time.Duration, maxTokens int) Option {
	return func(f *Firewall) {
		if window > 0 {
			f.window = window
		}
		if maxTokens > 0 {
			f.maxTokens = maxTokens
		}
	}
}

// New creates a firewall bound to the session store.
func New(sessions *session.Store, logger *logging.Logger, opts ...Option) *Firewall {
	if sessions == nil {
		panic("firewall: session store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	f := &Firewall{
		sessions:  sessions,
		window:    defaultWindow,
		maxTokens: defaultMaxTokens,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func sanitize(text string) string {
	text = forbiddenChars.ReplaceAllString(text, "")
	text = whitespaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func containsInjectionPattern(text string) bool {
	for _, pattern := range injectionPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// Filter runs the ordered firewall checks for one message. The rate-limit
// counter increments before the honeypot and injection checks, so blocked
// abuse still consumes a token. On acceptance the sanitized user message and
// the last three bot replies from the caller history are appended to the
// session log.
func (f *Firewall) Filter(clientID string, sess *session.Session, userInput string, history []session.Interaction) Decision {
	sanitized := sanitize(userInput)
	if sanitized == "" {
		return Decision{Allowed: false, SanitizedText: sanitized, Reason: ReasonEmpty}
	}

	count, ok := f.sessions.TakeToken(clientID, f.window)
	if ok && count > f.maxTokens {
		f.logger.Debug("rate limit exceeded", "client_id", clientID, "count", count)
		return Decision{Allowed: false, SanitizedText: sanitized, Reason: ReasonThrottled}
	}

	if sess.HoneypotToken != "" && strings.Contains(sanitized, sess.HoneypotToken) {
		f.logger.Warn("honeypot token echoed back", "client_id", clientID, "session_id", sess.ID)
		return Decision{Allowed: false, SanitizedText: sanitized, Reason: ReasonAutomation}
	}

	if containsInjectionPattern(sanitized) {
		f.logger.Warn("injection pattern detected", "client_id", clientID)
		return Decision{Allowed: false, SanitizedText: sanitized, Reason: ReasonInjection}
	}

	f.sessions.Append(clientID, session.Interaction{Role: session.RoleUser, Text: sanitized})

	var botReplies []session.Interaction
	for _, in := range history {
		if in.Role == session.RoleBot && in.Text != "" {
			botReplies = append(botReplies, in)
		}
	}
	if len(botReplies) > botContextLimit {
		botReplies = botReplies[len(botReplies)-botContextLimit:]
	}
	for _, in := range botReplies {
		f.sessions.Append(clientID, session.Interaction{Role: session.RoleBot, Text: in.Text})
	}

	return Decision{Allowed: true, SanitizedText: sanitized}
}
