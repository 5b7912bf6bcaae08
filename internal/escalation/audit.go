package escalation

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// auditKey is the Redis list holding the append-only escalation audit trail.
const auditKey = "chattia:audit_trail"

// AuditEntry is one escalation hand-off. HMAC binds the summary to the
// session signature so a tampered entry is detectable.
type AuditEntry struct {
	SessionID      string `json:"sessionId"`
	Timestamp      int64  `json:"timestamp"`
	HMAC           string `json:"hmac"`
	Target         string `json:"target"`
	PayloadSummary string `json:"payloadSummary"`
}

// AuditTrail records every escalation before the provider is contacted.
type AuditTrail interface {
	Append(ctx context.Context, entry AuditEntry) error
	List(ctx context.Context) ([]AuditEntry, error)
}

// ComputeHMAC produces the audit authenticator: HMAC-SHA256 keyed by the
// session signature over "<signature>:<summary>", base64-encoded.
func ComputeHMAC(signature, summary string) string {
	mac := hmac.New(sha256.New, []byte(signature))
	mac.Write([]byte(signature + ":" + summary))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// RedisAuditTrail appends entries to a Redis list.
type RedisAuditTrail struct {
	client *redis.Client
}

func NewRedisAuditTrail(client *redis.Client) *RedisAuditTrail {
	return &RedisAuditTrail{client: client}
}

func (t *RedisAuditTrail) Append(ctx context.Context, entry AuditEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("escalation: failed to encode audit entry: %w", err)
	}
	if err := t.client.RPush(ctx, auditKey, raw).Err(); err != nil {
		return fmt.Errorf("escalation: failed to append audit entry: %w", err)
	}
	return nil
}

func (t *RedisAuditTrail) List(ctx context.Context) ([]AuditEntry, error) {
	raws, err := t.client.LRange(ctx, auditKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("escalation: failed to list audit entries: %w", err)
	}
	entries := make([]AuditEntry, 0, len(raws))
	for _, raw := range raws {
		var entry AuditEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("escalation: malformed audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// MemoryAuditTrail is the in-process trail used by tests and dev runs.
type MemoryAuditTrail struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func NewMemoryAuditTrail() *MemoryAuditTrail {
	return &MemoryAuditTrail{}
}

func (t *MemoryAuditTrail) Append(ctx context.Context, entry AuditEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
	return nil
}

func (t *MemoryAuditTrail) List(ctx context.Context) ([]AuditEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]AuditEntry, len(t.entries))
	copy(out, t.entries)
	return out, nil
}
