// Package memory persists one sealed record per completed chat turn and
// serves per-session transcripts and aggregate analytics. Payloads are
// encrypted with a key derived from the session signature, so a record can
// only be read back by the session that wrote it.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ops-online-support/chattia-gateway/internal/intelligence"
	"github.com/ops-online-support/chattia-gateway/internal/session"
	"github.com/ops-online-support/chattia-gateway/pkg/logging"
)

// Metadata describes how a turn was resolved.
type Metadata struct {
	Intent         intelligence.Intent `json:"intent"`
	KnowledgeDocID string              `json:"knowledgeDocId,omitempty"`
	Escalated      bool                `json:"escalated"`
}

// Entry is a decrypted interaction.
type Entry struct {
	UserQuestion    string   `json:"userQuestion"`
	AssistantAnswer string   `json:"assistantAnswer"`
	Metadata        Metadata `json:"metadata"`
}

// AnalyticsSnapshot is the in-process interaction counter set. Counters are
// process-local and reset on restart.
type AnalyticsSnapshot struct {
	TotalInteractions int                         `json:"totalInteractions"`
	ByIntent          map[intelligence.Intent]int `json:"byIntent"`
	EncryptedAtRest   bool                        `json:"encryptedAtRest"`
}

// Memory seals interactions into the record store. Storage failures are
// logged and swallowed; persistence problems never fail a chat turn.
type Memory struct {
	store  RecordStore
	cipher Cipher
	logger *logging.Logger

	mu       sync.Mutex
	total    int
	byIntent map[intelligence.Intent]int
	now      func() time.Time
}

func New(store RecordStore, cipher Cipher, logger *logging.Logger) *Memory {
	if logger == nil {
		logger = logging.Default()
	}
	byIntent := make(map[intelligence.Intent]int, len(intelligence.Intents))
	for _, intent := range intelligence.Intents {
		byIntent[intent] = 0
	}
	return &Memory{
		store:    store,
		cipher:   cipher,
		logger:   logger,
		byIntent: byIntent,
		now:      time.Now,
	}
}

// Record seals one interaction and appends it to the store. The analytics
// counters advance only when the record was persisted.
func (m *Memory) Record(ctx context.Context, sess session.Session, userQuestion, assistantAnswer string, meta Metadata) {
	payload, err := json.Marshal(Entry{
		UserQuestion:    userQuestion,
		AssistantAnswer: assistantAnswer,
		Metadata:        meta,
	})
	if err != nil {
		m.logger.Warn("failed to encode interaction for memory", "error", err, "session_id", sess.ID)
		return
	}
	iv, data, err := m.cipher.Encrypt(sess.Signature, string(payload))
	if err != nil {
		m.logger.Warn("failed to encrypt interaction", "error", err, "session_id", sess.ID)
		return
	}

	records, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("failed to load memory records", "error", err)
		return
	}
	records = append(records, Record{
		SessionID: sess.ID,
		Timestamp: m.now().UnixMilli(),
		IV:        iv,
		Data:      data,
	})
	if err := m.store.Save(ctx, records); err != nil {
		m.logger.Warn("failed to persist encrypted memory", "error", err)
		return
	}

	m.mu.Lock()
	m.total++
	m.byIntent[meta.Intent]++
	m.mu.Unlock()
}

// Transcript decrypts the session's records in stored order. Records that
// fail to open or parse are skipped, other sessions' records among them.
func (m *Memory) Transcript(ctx context.Context, sess session.Session) ([]Entry, error) {
	records, err := m.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: failed to load transcript: %w", err)
	}
	var entries []Entry
	for _, record := range records {
		if record.SessionID != sess.ID {
			continue
		}
		plaintext, err := m.cipher.Decrypt(sess.Signature, record.IV, record.Data)
		if err != nil {
			m.logger.Warn("skipping undecryptable memory record", "session_id", sess.ID, "error", err)
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(plaintext), &entry); err != nil {
			m.logger.Warn("skipping unparsable memory record", "session_id", sess.ID, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Analytics returns a copy of the counters.
func (m *Memory) Analytics() AnalyticsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	byIntent := make(map[intelligence.Intent]int, len(m.byIntent))
	for intent, count := range m.byIntent {
		byIntent[intent] = count
	}
	return AnalyticsSnapshot{
		TotalInteractions: m.total,
		ByIntent:          byIntent,
		EncryptedAtRest:   m.cipher.AtRest(),
	}
}
