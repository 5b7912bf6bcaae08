package session

import (
	"sync"
	"time"

	"github.com/ops-online-support/chattia-gateway/pkg/logging"
)

// EventType labels a session mutation delivered to subscribers.
type EventType string

const (
	EventCreated  EventType = "created"
	EventResynced EventType = "resynced"
	EventAppended EventType = "appended"
	EventReset    EventType = "reset"
)

// Event notifies subscribers of a session mutation. Session is a snapshot
// taken at mutation time.
type Event struct {
	Type     EventType
	ClientID string
	Session  *Session
}

// Store owns every active session, keyed by an opaque client-issued
// identifier. All mutation happens under the store lock; callers receive
// snapshots, never live pointers.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	signer   Signer
	clock    func() time.Time
	logger   *logging.Logger

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// StoreOption configures the store.
type StoreOption func(*Store)

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewStore creates a session store using the supplied signature strategy.
func NewStore(signer Signer, logger *logging.Logger, opts ...StoreOption) *Store {
	if signer == nil {
		panic("session: signer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		sessions: make(map[string]*Session),
		signer:   signer,
		clock:    time.Now,
		logger:   logger,
		subs:     make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) build(language Language) *Session {
	id := randomID("sess")
	now := s.clock()
	return &Session{
		ID:            id,
		Language:      language,
		CreatedAt:     now,
		UpdatedAt:     now,
		Signature:     s.signer.Sign(id),
		HoneypotToken: randomID("hp"),
		Interactions:  []Interaction{},
		RateLimit:     RateLimitState{Tokens: 0, WindowStart: now},
	}
}

// Ensure returns the client's current session, creating one if none exists
// and resynchronizing its interaction log with the caller-supplied history.
// A language switch mutates the session in place; history continuity is
// preserved.
func (s *Store) Ensure(clientID string, language Language, history []Interaction) *Session {
	s.mu.Lock()

	sess, ok := s.sessions[clientID]
	eventType := EventResynced
	if !ok {
		sess = s.build(language)
		s.sessions[clientID] = sess
		eventType = EventCreated
		s.logger.Debug("session created", "client_id", clientID, "session_id", sess.ID)
	} else if sess.Language != language {
		sess.Language = language
		sess.UpdatedAt = s.clock()
	}

	synced := make([]Interaction, 0, len(history))
	now := s.clock()
	for _, in := range history {
		if in.Text == "" {
			continue
		}
		if in.Timestamp.IsZero() {
			in.Timestamp = now
		}
		synced = append(synced, in)
	}
	sess.Interactions = synced
	sess.UpdatedAt = now

	snapshot := sess.clone()
	s.mu.Unlock()

	s.notify(Event{Type: eventType, ClientID: clientID, Session: snapshot})
	return snapshot
}

// StartNew discards the client's session state and issues a fresh signature
// and honeypot token.
func (s *Store) StartNew(clientID string, language Language) *Session {
	s.mu.Lock()
	sess := s.build(language)
	s.sessions[clientID] = sess
	snapshot := sess.clone()
	s.mu.Unlock()

	s.logger.Debug("session replaced", "client_id", clientID, "session_id", snapshot.ID)
	s.notify(Event{Type: EventCreated, ClientID: clientID, Session: snapshot})
	return snapshot
}

// Append adds an interaction to the client's active session. It is a no-op
// when no session exists.
func (s *Store) Append(clientID string, in Interaction) {
	s.mu.Lock()
	sess, ok := s.sessions[clientID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = s.clock()
	}
	sess.Interactions = append(sess.Interactions, in)
	sess.UpdatedAt = s.clock()
	snapshot := sess.clone()
	s.mu.Unlock()

	s.notify(Event{Type: EventAppended, ClientID: clientID, Session: snapshot})
}

// Reset drops the client's session entirely.
func (s *Store) Reset(clientID string) {
	s.mu.Lock()
	_, ok := s.sessions[clientID]
	delete(s.sessions, clientID)
	s.mu.Unlock()

	if ok {
		s.notify(Event{Type: EventReset, ClientID: clientID})
	}
}

// Get returns a snapshot of the client's session, or nil.
func (s *Store) Get(clientID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[clientID].clone()
}

// TakeToken advances the client's rate-limit bucket: the window resets when
// expired, the counter increments, and the post-increment count is returned.
// The counter increments before any verdict so blocked traffic still consumes
// a token.
func (s *Store) TakeToken(clientID string, window time.Duration) (count int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[clientID]
	if !exists {
		return 0, false
	}
	now := s.clock()
	if now.Sub(sess.RateLimit.WindowStart) > window {
		sess.RateLimit.Tokens = 0
		sess.RateLimit.WindowStart = now
	}
	sess.RateLimit.Tokens++
	return sess.RateLimit.Tokens, true
}

// Subscribe registers an event channel the caller drains. The returned func
// unsubscribes and closes the channel. Slow subscribers lose events rather
// than blocking mutations.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notify(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
