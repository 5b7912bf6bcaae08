// Package intelligence answers common OPS questions locally, without any
// network round trip. It classifies the sanitized message into an intent and
// either composes an answer from a knowledge hit or falls back to canned copy.
// Anything it cannot handle is left for cloud escalation.
package intelligence

import (
	"fmt"
	"strings"

	"github.com/ops-online-support/chattia-gateway/internal/knowledge"
	"github.com/ops-online-support/chattia-gateway/internal/session"
)

const maxAnswerTags = 2

// Result is the outcome of the local answering attempt. When Handled is
// false Answer is empty and the message must be escalated.
type Result struct {
	Handled bool
	Answer  string
	Intent  Intent
}

// Respond classifies the message and tries to answer it locally. A knowledge
// hit always produces a composed answer; otherwise the intent's canned
// fallback is used when one exists.
func Respond(language session.Language, sanitizedText string, hit *knowledge.Hit) Result {
	intent := Classify(sanitizedText)
	if hit != nil {
		return Result{Handled: true, Answer: composeFromKnowledge(intent, hit, language), Intent: intent}
	}
	if fallback, ok := fallbackAnswer(intent, language); ok {
		return Result{Handled: true, Answer: fallback, Intent: intent}
	}
	return Result{Handled: false, Intent: intent}
}

func composeFromKnowledge(intent Intent, hit *knowledge.Hit, language session.Language) string {
	tags := hit.Document.Tags
	if len(tags) > maxAnswerTags {
		tags = tags[:maxAnswerTags]
	}
	tagLine := strings.Join(tags, ", ")

	parts := []string{fmt.Sprintf("**%s**", hit.Document.Title), hit.Highlight}
	if language == session.LanguageSpanish {
		if tagLine != "" {
			parts = append(parts, fmt.Sprintf("Etiquetas clave: %s.", tagLine))
		}
		if intent == IntentContact {
			parts = append(parts, "Para conectarte con OPS, utiliza el botón Contactar en la esquina inferior derecha o agenda una llamada.")
		} else {
			parts = append(parts, "Explora más opciones en nuestro portal OPS o abre el menú de servicios para navegar por categorías.")
		}
		return strings.Join(parts, "\n\n")
	}

	if tagLine != "" {
		parts = append(parts, fmt.Sprintf("Key tags: %s.", tagLine))
	}
	if intent == IntentContact {
		parts = append(parts, "To reach OPS experts, tap Contact in the floating actions or schedule a session from the Join modal.")
	} else {
		parts = append(parts, "Browse additional OPS service details from the Services menu or the hero quick actions.")
	}
	return strings.Join(parts, "\n\n")
}

var fallbackAnswers = map[Intent]map[session.Language]string{
	IntentGreeting: {
		session.LanguageEnglish: "Hello! I can help you explore OPS services—ask about Business Operations, the Contact Center, IT Support, or Professional Services.",
		session.LanguageSpanish: "¡Hola! Estoy aquí para ayudarte con los servicios de OPS. Pregunta sobre Operaciones, Contact Center, TI o Servicios Profesionales.",
	},
	IntentServiceInfo: {
		session.LanguageEnglish: "OPS delivers Business Operations, Contact Center, IT Support, and Professional Services engagements. Ask about any of them for specifics.",
		session.LanguageSpanish: "OPS ofrece servicios de Operaciones, Contact Center, Soporte TI y Servicios Profesionales. Pregunta por cualquiera de ellos para más detalles.",
	},
	IntentContact: {
		session.LanguageEnglish: "You can open the Contact modal or use the support button to connect with an OPS specialist.",
		session.LanguageSpanish: "Puedes abrir el modal de Contacto o utilizar el botón de soporte para conectar con un especialista OPS.",
	},
	IntentJoin: {
		session.LanguageEnglish: "To join OPS, open the Join modal and submit your profile—our team will review it with human oversight.",
		session.LanguageSpanish: "Para unirte a OPS, abre el modal Únete y completa la solicitud. Nuestro equipo revisará tu perfil con supervisión humana.",
	},
	IntentPricing: {
		session.LanguageEnglish: "Engagements are tailored to your SLA and service mix. Schedule a consult via the Contact modal to receive a custom proposal.",
		session.LanguageSpanish: "Las tarifas se personalizan según el servicio y el SLA requerido. Agenda una sesión consultiva desde el modal Contacto para recibir una propuesta.",
	},
	IntentPolicies: {
		session.LanguageEnglish: "OPS enforces full-stack security: AES-256 encryption, SIEM monitoring, and PCI DSS/NIST alignment. See the Security section on the main page for details.",
		session.LanguageSpanish: "OPS aplica ciberseguridad integral: cifrado AES-256, monitoreo SIEM y cumplimiento PCI DSS/NIST. Consulta la sección Seguridad en la página principal para más detalles.",
	},
}

func fallbackAnswer(intent Intent, language session.Language) (string, bool) {
	byLanguage, ok := fallbackAnswers[intent]
	if !ok {
		return "", false
	}
	answer, ok := byLanguage[language]
	return answer, ok
}
