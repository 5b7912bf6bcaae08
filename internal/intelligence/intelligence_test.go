package intelligence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ops-online-support/chattia-gateway/internal/knowledge"
	"github.com/ops-online-support/chattia-gateway/internal/session"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"Hello there", IntentGreeting},
		{"hola, buenos dias", IntentGreeting},
		{"Tell me about your IT Support plans", IntentServiceInfo},
		{"How do I contact you?", IntentContact},
		{"I want to apply for a role", IntentJoin},
		{"What does it cost?", IntentPricing},
		{"Are you PCI compliant?", IntentPolicies},
		{"Something entirely unrelated", IntentUnknown},
		{"", IntentUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.text), "Classify(%q)", tt.text)
	}
}

func TestClassifyPrecedence(t *testing.T) {
	// Greeting outranks contact even though both keyword sets match.
	assert.Equal(t, IntentGreeting, Classify("hello, how do I contact support?"))
	// Service info outranks contact for "it support".
	assert.Equal(t, IntentServiceInfo, Classify("it support pricing"))
}

func TestRespondComposesFromKnowledge(t *testing.T) {
	hit := &knowledge.Hit{
		Document: knowledge.Document{
			Title: "IT Support",
			Tags:  []string{"sla", "monitoring", "helpdesk"},
		},
		Highlight: "Managed IT support with proactive monitoring.",
	}

	res := Respond(session.LanguageEnglish, "tell me about it support", hit)
	require.True(t, res.Handled)
	assert.Equal(t, IntentServiceInfo, res.Intent)

	parts := strings.Split(res.Answer, "\n\n")
	require.Len(t, parts, 4)
	assert.Equal(t, "**IT Support**", parts[0])
	assert.Equal(t, hit.Highlight, parts[1])
	assert.Equal(t, "Key tags: sla, monitoring.", parts[2], "only the first two tags are surfaced")
	assert.Contains(t, parts[3], "Services menu")
}

func TestRespondContactCallToAction(t *testing.T) {
	hit := &knowledge.Hit{
		Document:  knowledge.Document{Title: "Contact OPS"},
		Highlight: "Reach our specialists around the clock.",
	}

	res := Respond(session.LanguageEnglish, "how do I reach you", hit)
	require.True(t, res.Handled)
	assert.Equal(t, IntentContact, res.Intent)
	assert.Contains(t, res.Answer, "tap Contact in the floating actions")
	assert.NotContains(t, res.Answer, "Key tags", "no tag line without tags")

	resES := Respond(session.LanguageSpanish, "quiero llamar a soporte", hit)
	require.True(t, resES.Handled)
	assert.Contains(t, resES.Answer, "botón Contactar")
}

func TestRespondFallbacks(t *testing.T) {
	tests := []struct {
		text     string
		language session.Language
		intent   Intent
		contains string
	}{
		{"hello", session.LanguageEnglish, IntentGreeting, "Hello! I can help you explore OPS services"},
		{"hola", session.LanguageSpanish, IntentGreeting, "¡Hola! Estoy aquí para ayudarte"},
		{"business operations", session.LanguageEnglish, IntentServiceInfo, "Business Operations, Contact Center, IT Support"},
		{"contact", session.LanguageEnglish, IntentContact, "Contact modal"},
		{"join", session.LanguageSpanish, IntentJoin, "modal Únete"},
		{"pricing", session.LanguageEnglish, IntentPricing, "custom proposal"},
		{"gdpr", session.LanguageSpanish, IntentPolicies, "cifrado AES-256"},
	}
	for _, tt := range tests {
		res := Respond(tt.language, tt.text, nil)
		require.True(t, res.Handled, "Respond(%q) should be handled", tt.text)
		assert.Equal(t, tt.intent, res.Intent)
		assert.Contains(t, res.Answer, tt.contains)
	}
}

func TestRespondUnknownIsNotHandled(t *testing.T) {
	res := Respond(session.LanguageEnglish, "please summarize the quarterly report", nil)
	assert.False(t, res.Handled)
	assert.Empty(t, res.Answer)
	assert.Equal(t, IntentUnknown, res.Intent)
}

func TestRespondKnowledgeBeatsFallback(t *testing.T) {
	hit := &knowledge.Hit{
		Document:  knowledge.Document{Title: "Pricing"},
		Highlight: "Tailored per SLA.",
	}
	res := Respond(session.LanguageEnglish, "pricing", hit)
	require.True(t, res.Handled)
	assert.Contains(t, res.Answer, "**Pricing**")
	assert.NotContains(t, res.Answer, "custom proposal")
}
