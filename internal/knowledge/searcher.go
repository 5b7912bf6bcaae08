// Package knowledge ranks the static OPS document corpus with BM25 and
// returns the best match for a query. An unreachable or empty corpus degrades
// retrieval to a permanent "no hit"; it is never a fatal error.
package knowledge

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ops-online-support/chattia-gateway/internal/session"
	"github.com/ops-online-support/chattia-gateway/pkg/logging"
)

const topResults = 3

// Hit is the best-ranked document for a query. Score is a positive real
// number, not a probability.
type Hit struct {
	Document  Document
	Score     float64
	Highlight string
}

// Searcher lazily builds a BM25 index over the corpus and serves ranked
// lookups. The index is built once and reused for the process lifetime.
type Searcher struct {
	source Source
	logger *logging.Logger
	tracer trace.Tracer

	loadOnce sync.Once
	index    *bm25Index
	docs     map[string]Document
}

// NewSearcher creates a searcher over the supplied corpus source.
func NewSearcher(source Source, logger *logging.Logger) *Searcher {
	if source == nil {
		panic("knowledge: corpus source cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Searcher{
		source: source,
		logger: logger,
		tracer: otel.Tracer("chattia.internal.knowledge"),
	}
}

func (s *Searcher) ensureIndex(ctx context.Context) {
	s.loadOnce.Do(func() {
		docs, err := s.source.Load(ctx)
		if err != nil {
			s.logger.Warn("knowledge corpus unavailable, retrieval degraded to no-hit", "error", err)
			return
		}
		s.docs = make(map[string]Document, len(docs))
		keys := make([]string, 0, len(docs))
		texts := make([]string, 0, len(docs))
		for _, doc := range docs {
			s.docs[doc.DocID] = doc
			keys = append(keys, doc.DocID)
			texts = append(texts, doc.Title+". "+doc.Body+". "+strings.Join(doc.Tags, " "))
		}
		s.index = newBM25Index(keys, texts)
		s.logger.Info("knowledge corpus indexed", "documents", len(docs))
	})
}

// Search returns the preferred hit for the query, or nil when the corpus is
// empty, unreachable, or nothing scores above zero. Among the top results the
// first language-matched document wins; otherwise the single best match is
// returned.
func (s *Searcher) Search(ctx context.Context, query string, language session.Language) *Hit {
	ctx, span := s.tracer.Start(ctx, "knowledge.search")
	defer span.End()

	s.ensureIndex(ctx)
	if s.index == nil {
		return nil
	}

	results := s.index.search(query)
	if len(results) == 0 {
		span.SetAttributes(attribute.Bool("chattia.knowledge.hit", false))
		return nil
	}
	if len(results) > topResults {
		results = results[:topResults]
	}

	preferred := results[0]
	for _, result := range results {
		if doc, ok := s.docs[result.key]; ok && doc.Lang == language {
			preferred = result
			break
		}
	}

	doc, ok := s.docs[preferred.key]
	if !ok {
		return nil
	}

	span.SetAttributes(
		attribute.Bool("chattia.knowledge.hit", true),
		attribute.String("chattia.knowledge.doc_id", doc.DocID),
		attribute.Float64("chattia.knowledge.score", preferred.score),
	)
	return &Hit{Document: doc, Score: preferred.score, Highlight: doc.Body}
}
