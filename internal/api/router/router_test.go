package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ops-online-support/chattia-gateway/internal/escalation"
	"github.com/ops-online-support/chattia-gateway/internal/firewall"
	"github.com/ops-online-support/chattia-gateway/internal/knowledge"
	"github.com/ops-online-support/chattia-gateway/internal/memory"
	"github.com/ops-online-support/chattia-gateway/internal/pipeline"
	"github.com/ops-online-support/chattia-gateway/internal/session"
	"github.com/ops-online-support/chattia-gateway/internal/webchat"
)

type noopGenerator struct{}

func (noopGenerator) Stream(ctx context.Context, history []session.Interaction, message string, onChunk func(string)) error {
	onChunk("cloud answer")
	return nil
}

func (noopGenerator) Target() string { return "noop" }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	sessions := session.NewStore(session.NewSigner("hmac", "test-seed"), nil)
	fw := firewall.New(sessions, nil)
	searcher := knowledge.NewSearcher(knowledge.StaticSource{}, nil)
	mem := memory.New(memory.NewMemoryRecordStore(), memory.NewCipher("aes"), nil)
	trail := escalation.NewMemoryAuditTrail()
	esc := escalation.NewEscalator(noopGenerator{}, trail, nil)
	p := pipeline.New(sessions, fw, searcher, mem, esc, nil, nil)
	wc := webchat.NewHandler(p, sessions, mem, trail, nil)

	return New(&Config{
		Webchat:            wc,
		MetricsHandler:     promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
		CORSAllowedOrigins: []string{"https://ops.example.com"},
	})
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatRouteWired(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"Hello, I need IT Support"}`))
	req.Header.Set("X-Client-Id", "client-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "data: ")
}

func TestSessionRoutesWired(t *testing.T) {
	r := newTestRouter(t)

	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v1/session"},
		{http.MethodPost, "/v1/session/reset"},
		{http.MethodGet, "/v1/transcript"},
		{http.MethodGet, "/v1/analytics"},
		{http.MethodGet, "/v1/audit"},
	} {
		req := httptest.NewRequest(route.method, route.path, nil)
		req.Header.Set("X-Client-Id", "client-1")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "%s %s", route.method, route.path)
	}
}

func TestCORSHeadersApplied(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
