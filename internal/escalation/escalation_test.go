package escalation

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ops-online-support/chattia-gateway/internal/session"
)

type stubGenerator struct {
	chunks []string
	err    error
	target string
}

func (s *stubGenerator) Stream(ctx context.Context, history []session.Interaction, message string, onChunk func(string)) error {
	for _, chunk := range s.chunks {
		onChunk(chunk)
	}
	return s.err
}

func (s *stubGenerator) Target() string {
	if s.target == "" {
		return "stub"
	}
	return s.target
}

func TestComputeHMAC(t *testing.T) {
	signature := "sig-abc"
	summary := "tell me about it support"

	mac := hmac.New(sha256.New, []byte(signature))
	mac.Write([]byte(signature + ":" + summary))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, ComputeHMAC(signature, summary))
	assert.NotEqual(t, want, ComputeHMAC("other", summary))
}

func TestEscalateSuccess(t *testing.T) {
	trail := NewMemoryAuditTrail()
	e := NewEscalator(&stubGenerator{chunks: []string{"Hel", "Hello there"}}, trail, nil)

	sess := session.Session{ID: "chat_1", Signature: "sig", Language: session.LanguageEnglish}
	var chunks []string
	var progress []Progress
	ok := e.Escalate(context.Background(), sess, nil, "unanswerable question",
		func(chunk string) { chunks = append(chunks, chunk) },
		func(p Progress) { progress = append(progress, p) })

	assert.True(t, ok)
	assert.Equal(t, []string{"Hel", "Hello there"}, chunks)
	require.Len(t, progress, 1)
	assert.Equal(t, "fetching", progress[0].Status)

	entries, err := trail.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "chat_1", entries[0].SessionID)
	assert.Equal(t, "stub", entries[0].Target)
	assert.Equal(t, "unanswerable question", entries[0].PayloadSummary)
	assert.Equal(t, ComputeHMAC("sig", "unanswerable question"), entries[0].HMAC)
}

func TestEscalateFailureEmitsLocalizedApology(t *testing.T) {
	tests := []struct {
		language session.Language
		contains string
	}{
		{session.LanguageEnglish, "We could not reach the sealed cloud AI fallback"},
		{session.LanguageSpanish, "No se pudo contactar con la IA en la nube certificada"},
	}
	for _, tt := range tests {
		trail := NewMemoryAuditTrail()
		e := NewEscalator(&stubGenerator{err: errors.New("provider down")}, trail, nil)

		sess := session.Session{ID: "chat_1", Signature: "sig", Language: tt.language}
		var last string
		ok := e.Escalate(context.Background(), sess, nil, "question", func(chunk string) { last = chunk }, nil)

		assert.False(t, ok)
		assert.Contains(t, last, tt.contains)

		// The audit entry is written before the provider is contacted.
		entries, err := trail.List(context.Background())
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	}
}

func TestEscalateTruncatesAuditSummary(t *testing.T) {
	trail := NewMemoryAuditTrail()
	e := NewEscalator(&stubGenerator{chunks: []string{"ok"}}, trail, nil)

	long := strings.Repeat("a", 300)
	sess := session.Session{ID: "chat_1", Signature: "sig"}
	e.Escalate(context.Background(), sess, nil, long, func(string) {}, nil)

	entries, err := trail.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].PayloadSummary, 120)
	assert.Equal(t, ComputeHMAC("sig", long[:120]), entries[0].HMAC)
}

func TestEscalateAuditSummaryKeepsRuneBoundaries(t *testing.T) {
	trail := NewMemoryAuditTrail()
	e := NewEscalator(&stubGenerator{chunks: []string{"ok"}}, trail, nil)

	long := "¿" + strings.Repeat("á", 200)
	sess := session.Session{ID: "chat_1", Signature: "sig"}
	e.Escalate(context.Background(), sess, nil, long, func(string) {}, nil)

	entries, err := trail.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	summary := entries[0].PayloadSummary
	assert.True(t, utf8.ValidString(summary))
	assert.Equal(t, 120, utf8.RuneCountInString(summary))

	// The stored summary must still verify against its own HMAC after a
	// JSON round-trip through the persistence layer.
	raw, err := json.Marshal(entries[0])
	require.NoError(t, err)
	var stored AuditEntry
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, stored.HMAC, ComputeHMAC("sig", stored.PayloadSummary))
}

func TestWorkerClientSingleShot(t *testing.T) {
	var gotAuth string
	var gotBody workerRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"Answer from the worker."}`))
	}))
	defer srv.Close()

	c := NewWorkerClient(srv.URL, "secret-token", srv.Client())
	history := []session.Interaction{
		{Role: session.RoleUser, Text: "earlier question"},
		{Role: session.RoleBot, Text: "earlier answer"},
	}

	var chunks []string
	err := c.Stream(context.Background(), history, "new question", func(chunk string) {
		chunks = append(chunks, chunk)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Answer from the worker."}, chunks)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "new question", gotBody.NewMessage)
	require.Len(t, gotBody.History, 2)
	assert.Equal(t, "user", gotBody.History[0].Role)
}

func TestWorkerClientEventStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"response\":\"Hel\"}\n\n")
		fmt.Fprint(w, "data: {\"response\":\"lo\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewWorkerClient(srv.URL, "", srv.Client())
	var chunks []string
	err := c.Stream(context.Background(), nil, "question", func(chunk string) {
		chunks = append(chunks, chunk)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "Hello"}, chunks, "chunks are cumulative")
}

func TestWorkerClientErrors(t *testing.T) {
	t.Run("unconfigured url", func(t *testing.T) {
		c := NewWorkerClient("", "", nil)
		err := c.Stream(context.Background(), nil, "question", func(string) {})
		assert.Error(t, err)
	})

	t.Run("non-200 status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "worker exploded", http.StatusBadGateway)
		}))
		defer srv.Close()

		c := NewWorkerClient(srv.URL, "", srv.Client())
		err := c.Stream(context.Background(), nil, "question", func(string) {})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("empty response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		c := NewWorkerClient(srv.URL, "", srv.Client())
		err := c.Stream(context.Background(), nil, "question", func(string) {})
		assert.Error(t, err)
	})
}

func TestRedisAuditTrail(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	trail := NewRedisAuditTrail(client)

	first := AuditEntry{SessionID: "chat_1", Timestamp: 1, HMAC: "h1", Target: workerTarget, PayloadSummary: "q1"}
	second := AuditEntry{SessionID: "chat_2", Timestamp: 2, HMAC: "h2", Target: workerTarget, PayloadSummary: "q2"}
	require.NoError(t, trail.Append(ctx, first))
	require.NoError(t, trail.Append(ctx, second))

	entries, err := trail.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []AuditEntry{first, second}, entries)
}
