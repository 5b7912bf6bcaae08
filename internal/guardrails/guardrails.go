// Package guardrails enforces the allow/deny topic policy. It is a pure
// function of the sanitized text and two static policy tables; blocked
// patterns always win over the allow list. Plain greetings are allowed so a
// first "Hello" reaches the intent classifier instead of bouncing off the
// topic filter.
package guardrails

import (
	"regexp"
	"strings"

	"github.com/ops-online-support/chattia-gateway/internal/session"
)

var allowedTopics = []string{
	"hello",
	"hola",
	"greetings",
	"buenos días",
	"buenas tardes",
	"ops",
	"operations",
	"business operations",
	"contact center",
	"it support",
	"professional services",
	"cybersecurity",
	"pricing",
	"membership",
	"join ops",
	"support portal",
	"service catalog",
	"ai assistant",
}

var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bitcoin|crypto`),
	regexp.MustCompile(`(?i)politic`),
	regexp.MustCompile(`(?i)religion`),
	regexp.MustCompile(`(?i)personal advice`),
	regexp.MustCompile(`(?i)medical`),
}

// Decision is the guardrail verdict. Rejections carry a language-appropriate
// user-facing message.
type Decision struct {
	Allowed bool
	Reason  string
}

// Enforce applies the topic policy to sanitized text. Blocked patterns are
// checked first; otherwise the text must contain at least one allowed topic
// substring.
func Enforce(language session.Language, sanitizedText string) Decision {
	lower := strings.ToLower(sanitizedText)

	for _, pattern := range blockedPatterns {
		if pattern.MatchString(lower) {
			return Decision{Allowed: false, Reason: blockedMessage(language)}
		}
	}

	for _, topic := range allowedTopics {
		if strings.Contains(lower, topic) {
			return Decision{Allowed: true}
		}
	}
	return Decision{Allowed: false, Reason: offTopicMessage(language)}
}

func blockedMessage(language session.Language) string {
	if language == session.LanguageSpanish {
		return "Solo puedo ayudar con información del sitio OPS en línea. Por favor formula preguntas sobre nuestros servicios."
	}
	return "I can only assist with information from the OPS Online Support site. Please ask about our services."
}

func offTopicMessage(language session.Language) string {
	if language == session.LanguageSpanish {
		return "Para mantener la seguridad, Chattia solo responde a temas del sitio OPS. Pregunta sobre Operaciones, TI, Contact Center o Servicios Profesionales."
	}
	return "To keep things secure, Chattia only answers about the OPS site. Ask about Business Operations, IT Support, the Contact Center, or Professional Services."
}
