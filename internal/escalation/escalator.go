package escalation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ops-online-support/chattia-gateway/internal/session"
	"github.com/ops-online-support/chattia-gateway/pkg/logging"
)

// summaryLimit bounds the plaintext retained in audit entries.
const summaryLimit = 120

// Progress reports escalation status to the client while the provider is
// being consulted.
type Progress struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Escalator audits and forwards unanswered messages to the configured cloud
// provider.
type Escalator struct {
	generator Generator
	trail     AuditTrail
	logger    *logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewEscalator(generator Generator, trail AuditTrail, logger *logging.Logger) *Escalator {
	if generator == nil {
		panic("escalation: generator cannot be nil")
	}
	if trail == nil {
		panic("escalation: audit trail cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Escalator{
		generator: generator,
		trail:     trail,
		logger:    logger,
		tracer:    otel.Tracer("chattia.internal.escalation"),
		now:       time.Now,
	}
}

// Escalate audits the hand-off, then streams the provider's answer through
// onChunk. It returns true when the provider answered; on failure a localized
// apology is emitted as the final chunk and false is returned.
func (e *Escalator) Escalate(ctx context.Context, sess session.Session, history []session.Interaction, sanitizedText string, onChunk func(string), onProgress func(Progress)) bool {
	ctx, span := e.tracer.Start(ctx, "escalation.escalate",
		trace.WithAttributes(attribute.String("chattia.escalation.target", e.generator.Target())))
	defer span.End()

	summary := sanitizedText
	// Truncate on a rune boundary; a byte slice could split a multi-byte
	// Spanish character and the stored summary would no longer verify
	// against its own HMAC after JSON encoding.
	if runes := []rune(summary); len(runes) > summaryLimit {
		summary = string(runes[:summaryLimit])
	}
	entry := AuditEntry{
		SessionID:      sess.ID,
		Timestamp:      e.now().UnixMilli(),
		HMAC:           ComputeHMAC(sess.Signature, summary),
		Target:         e.generator.Target(),
		PayloadSummary: summary,
	}
	if err := e.trail.Append(ctx, entry); err != nil {
		e.logger.Warn("failed to append escalation audit entry", "error", err, "session_id", sess.ID)
	}

	if onProgress != nil {
		onProgress(Progress{Status: "fetching", Message: "Consulting sealed OPS AI fallback..."})
	}

	if err := e.generator.Stream(ctx, history, sanitizedText, onChunk); err != nil {
		e.logger.Error("sealed cloud escalation failed", "error", err, "target", e.generator.Target(), "session_id", sess.ID)
		span.SetAttributes(attribute.Bool("chattia.escalation.success", false))
		if sess.Language == session.LanguageSpanish {
			onChunk("No se pudo contactar con la IA en la nube certificada. Intenta nuevamente más tarde.")
		} else {
			onChunk("We could not reach the sealed cloud AI fallback. Please try again later.")
		}
		return false
	}

	span.SetAttributes(attribute.Bool("chattia.escalation.success", true))
	return true
}

// Target exposes the configured provider name.
func (e *Escalator) Target() string {
	return e.generator.Target()
}
