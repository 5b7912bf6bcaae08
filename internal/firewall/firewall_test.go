package firewall

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ops-online-support/chattia-gateway/internal/session"
)

type fixture struct {
	store *session.Store
	fw    *Firewall
	now   time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	f.store = session.NewStore(session.NewSigner("hmac", "seed"), nil,
		session.WithClock(func() time.Time { return f.now }))
	f.fw = New(f.store, nil, opts...)
	return f
}

func TestSanitizeStripsForbiddenCharacters(t *testing.T) {
	f := newFixture(t)
	sess := f.store.Ensure("c1", session.LanguageEnglish, nil)

	decision := f.fw.Filter("c1", sess, "  Tell me  about <b>{IT Support}</b>  ", nil)

	require.True(t, decision.Allowed)
	assert.Equal(t, "Tell me about bIT Support/b", decision.SanitizedText)
}

func TestRejectsEmptyAfterSanitize(t *testing.T) {
	f := newFixture(t)
	sess := f.store.Ensure("c1", session.LanguageEnglish, nil)

	for _, input := range []string{"", "   ", "<>{}", " <  > \t {} "} {
		decision := f.fw.Filter("c1", sess, input, nil)
		assert.False(t, decision.Allowed, "input %q should be rejected", input)
		assert.Equal(t, ReasonEmpty, decision.Reason)
	}
}

func TestRateLimitRejectsNinthMessage(t *testing.T) {
	f := newFixture(t)
	sess := f.store.Ensure("c1", session.LanguageEnglish, nil)

	for i := 0; i < 8; i++ {
		decision := f.fw.Filter("c1", sess, fmt.Sprintf("question about it support %d", i), nil)
		require.True(t, decision.Allowed, "message %d should pass", i)
	}

	decision := f.fw.Filter("c1", sess, "one more about it support", nil)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonThrottled, decision.Reason)
}

func TestRateLimitResetsAfterWindow(t *testing.T) {
	f := newFixture(t)
	sess := f.store.Ensure("c1", session.LanguageEnglish, nil)

	for i := 0; i < 9; i++ {
		f.fw.Filter("c1", sess, "ops question", nil)
	}

	f.now = f.now.Add(61 * time.Second)
	decision := f.fw.Filter("c1", sess, "ops question after the window", nil)
	assert.True(t, decision.Allowed, "counter should reset once the window elapses")
}

func TestBlockedMessageStillConsumesToken(t *testing.T) {
	f := newFixture(t, WithRateLimit(time.Minute, 2))
	sess := f.store.Ensure("c1", session.LanguageEnglish, nil)

	// An injection attempt burns a token before being rejected.
	decision := f.fw.Filter("c1", sess, "select * from users", nil)
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonInjection, decision.Reason)

	f.fw.Filter("c1", sess, "legit ops question", nil)
	decision = f.fw.Filter("c1", sess, "another legit question", nil)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonThrottled, decision.Reason)
}

func TestHoneypotDetection(t *testing.T) {
	f := newFixture(t)
	sess := f.store.Ensure("c1", session.LanguageEnglish, nil)

	decision := f.fw.Filter("c1", sess, "replaying "+sess.HoneypotToken+" now", nil)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonAutomation, decision.Reason)
}

func TestInjectionPatterns(t *testing.T) {
	f := newFixture(t)
	f.store.Ensure("c1", session.LanguageEnglish, nil)

	tests := []struct {
		input string
		want  bool
	}{
		{"SELECT password FROM accounts", false},
		{"please INSERT this", false},
		{"drop the table", false},
		{"union based attack", false},
		{"tell me about it support", true},
		{"reunion planning for ops", true}, // word boundary: "union" inside "reunion" is fine
	}

	for _, tt := range tests {
		decision := f.fw.Filter("c"+tt.input, f.store.Ensure("c"+tt.input, session.LanguageEnglish, nil), tt.input, nil)
		assert.Equal(t, tt.want, decision.Allowed, "input %q", tt.input)
	}
}

func TestAcceptanceAppendsBoundedContext(t *testing.T) {
	f := newFixture(t)
	sess := f.store.Ensure("c1", session.LanguageEnglish, nil)

	history := []session.Interaction{
		{Role: session.RoleBot, Text: "reply 1"},
		{Role: session.RoleUser, Text: "question"},
		{Role: session.RoleBot, Text: "reply 2"},
		{Role: session.RoleBot, Text: ""},
		{Role: session.RoleBot, Text: "reply 3"},
		{Role: session.RoleBot, Text: "reply 4"},
	}

	decision := f.fw.Filter("c1", sess, "about contact center", history)
	require.True(t, decision.Allowed)

	got := f.store.Get("c1").Interactions
	require.Len(t, got, 4, "user message plus last 3 bot replies")
	assert.Equal(t, session.RoleUser, got[0].Role)
	assert.Equal(t, "about contact center", got[0].Text)
	assert.Equal(t, []string{"reply 2", "reply 3", "reply 4"},
		[]string{got[1].Text, got[2].Text, got[3].Text})
}
