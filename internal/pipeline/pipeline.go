// Package pipeline runs one chat turn through the ordered defensive stages:
// firewall, guardrails, knowledge retrieval, local intelligence, and cloud
// escalation. Every terminal path appends exactly one bot interaction and
// writes exactly one encrypted memory record.
package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ops-online-support/chattia-gateway/internal/escalation"
	"github.com/ops-online-support/chattia-gateway/internal/firewall"
	"github.com/ops-online-support/chattia-gateway/internal/guardrails"
	"github.com/ops-online-support/chattia-gateway/internal/intelligence"
	"github.com/ops-online-support/chattia-gateway/internal/knowledge"
	"github.com/ops-online-support/chattia-gateway/internal/memory"
	"github.com/ops-online-support/chattia-gateway/internal/observability/metrics"
	"github.com/ops-online-support/chattia-gateway/internal/session"
	"github.com/ops-online-support/chattia-gateway/pkg/logging"
)

// Request is one inbound chat turn. History is the caller's view of the
// conversation; the session log is resynchronized from it before filtering.
type Request struct {
	ClientID string
	History  []session.Interaction
	Message  string
}

// Pipeline wires the chat stages together. All dependencies are fixed at
// construction.
type Pipeline struct {
	sessions  *session.Store
	firewall  *firewall.Firewall
	knowledge *knowledge.Searcher
	memory    *memory.Memory
	escalator *escalation.Escalator
	logger    *logging.Logger
	metrics   *metrics.PipelineMetrics
	tracer    trace.Tracer
}

func New(sessions *session.Store, fw *firewall.Firewall, searcher *knowledge.Searcher, mem *memory.Memory, esc *escalation.Escalator, logger *logging.Logger, m *metrics.PipelineMetrics) *Pipeline {
	if sessions == nil || fw == nil || searcher == nil || mem == nil || esc == nil {
		panic("pipeline: all stage dependencies are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{
		sessions:  sessions,
		firewall:  fw,
		knowledge: searcher,
		memory:    mem,
		escalator: esc,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("chattia.internal.pipeline"),
	}
}

// languageMetadata is the system-role history entry carrying the negotiated
// language, e.g. {"language":"es"}.
type languageMetadata struct {
	Language string `json:"language"`
}

// inferLanguage scans history for a system entry with language metadata.
func inferLanguage(history []session.Interaction) session.Language {
	for _, in := range history {
		if in.Role != session.RoleSystem || !strings.Contains(in.Text, "language") {
			continue
		}
		var meta languageMetadata
		if err := json.Unmarshal([]byte(in.Text), &meta); err != nil {
			continue
		}
		if meta.Language == string(session.LanguageSpanish) || meta.Language == string(session.LanguageEnglish) {
			return session.Language(meta.Language)
		}
	}
	return session.LanguageEnglish
}

// Handle runs one turn to completion. Chunks are cumulative; the final chunk
// is always the complete response text. onProgress may be nil.
func (p *Pipeline) Handle(ctx context.Context, req Request, onChunk func(string), onProgress func(escalation.Progress)) {
	started := time.Now()
	ctx, span := p.tracer.Start(ctx, "pipeline.handle")
	defer span.End()

	language := inferLanguage(req.History)
	sess := p.sessions.Ensure(req.ClientID, language, req.History)
	span.SetAttributes(
		attribute.String("chattia.session_id", sess.ID),
		attribute.String("chattia.language", string(language)),
	)

	decision := p.firewall.Filter(req.ClientID, sess, req.Message, req.History)
	if !decision.Allowed {
		p.metrics.ObserveDecision("firewall", "rejected")
		response := decision.Reason
		if response == "" {
			if language == session.LanguageSpanish {
				response = "No se pudo procesar tu mensaje."
			} else {
				response = "Your message could not be processed."
			}
		}
		p.finish(ctx, req.ClientID, sess, decision.SanitizedText, response, memory.Metadata{Intent: intelligence.IntentUnknown}, onChunk)
		p.observeLatency("firewall_rejected", started)
		return
	}
	p.metrics.ObserveDecision("firewall", "accepted")

	guardDecision := guardrails.Enforce(language, decision.SanitizedText)
	if !guardDecision.Allowed {
		p.metrics.ObserveDecision("guardrails", "rejected")
		response := guardDecision.Reason
		if response == "" {
			if language == session.LanguageSpanish {
				response = "Solo puedo hablar sobre el contenido del sitio OPS."
			} else {
				response = "I can only discuss OPS site content."
			}
		}
		p.finish(ctx, req.ClientID, sess, decision.SanitizedText, response, memory.Metadata{Intent: intelligence.IntentUnknown}, onChunk)
		p.observeLatency("guardrails_rejected", started)
		return
	}
	p.metrics.ObserveDecision("guardrails", "accepted")

	hit := p.knowledge.Search(ctx, decision.SanitizedText, language)
	result := intelligence.Respond(language, decision.SanitizedText, hit)
	p.metrics.ObserveIntent(string(result.Intent))

	meta := memory.Metadata{Intent: result.Intent}
	if hit != nil {
		meta.KnowledgeDocID = hit.Document.DocID
	}

	if result.Handled && result.Answer != "" {
		p.metrics.ObserveDecision("local_intelligence", "handled")
		p.finish(ctx, req.ClientID, sess, decision.SanitizedText, result.Answer, meta, onChunk)
		p.observeLatency("handled", started)
		return
	}
	p.metrics.ObserveDecision("local_intelligence", "escalated")

	var finalResponse string
	escalated := p.escalator.Escalate(ctx, *sess, req.History, decision.SanitizedText, func(chunk string) {
		finalResponse = chunk
		onChunk(chunk)
	}, onProgress)
	p.metrics.ObserveEscalation(p.escalator.Target(), escalated)

	if finalResponse == "" {
		if language == session.LanguageSpanish {
			finalResponse = "No obtuve respuesta del servicio en la nube. Inténtalo nuevamente."
		} else {
			finalResponse = "The sealed cloud fallback did not return a response. Please try again."
		}
		onChunk(finalResponse)
	}

	meta.Escalated = escalated
	p.sessions.Append(req.ClientID, session.Interaction{Role: session.RoleBot, Text: finalResponse})
	p.memory.Record(ctx, *sess, decision.SanitizedText, finalResponse, meta)
	p.metrics.ObserveMemoryWrite(escalated)
	p.observeLatency("escalated", started)
}

// finish emits the terminal response, appends it to the session log, and
// seals the memory record.
func (p *Pipeline) finish(ctx context.Context, clientID string, sess *session.Session, question, response string, meta memory.Metadata, onChunk func(string)) {
	onChunk(response)
	p.sessions.Append(clientID, session.Interaction{Role: session.RoleBot, Text: response})
	p.memory.Record(ctx, *sess, question, response, meta)
	p.metrics.ObserveMemoryWrite(meta.Escalated)
}

func (p *Pipeline) observeLatency(outcome string, started time.Time) {
	p.metrics.ObserveTurnLatency(outcome, time.Since(started).Seconds())
}
