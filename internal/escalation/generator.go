// Package escalation forwards messages the local layers could not answer to
// a sealed cloud AI provider and keeps a tamper-evident audit trail of every
// hand-off. The provider is fixed at startup.
package escalation

import (
	"context"

	"github.com/ops-online-support/chattia-gateway/internal/session"
)

// Generator streams a cloud-generated answer. Implementations invoke onChunk
// with the cumulative response so far; the final invocation carries the
// complete answer.
type Generator interface {
	Stream(ctx context.Context, history []session.Interaction, message string, onChunk func(string)) error
	// Target names the provider for audit entries and metrics.
	Target() string
}
