package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// recordsKey holds the full encrypted record list as one JSON array. The
// format is versioned so a future layout change can migrate cleanly.
const recordsKey = "chattia:encrypted_memory:v1"

// Record is one sealed interaction as persisted. Field names match the
// stored JSON produced by earlier deployments.
type Record struct {
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	IV        string `json:"iv"`
	Data      string `json:"data"`
}

// RecordStore persists the encrypted record list. Load returns an empty
// slice when nothing has been written yet.
type RecordStore interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}

// RedisRecordStore keeps the record list under a single Redis key. Writes
// are whole-list replacements; concurrent writers are last-writer-wins,
// which matches the single-gateway deployment model.
type RedisRecordStore struct {
	client *redis.Client
}

func NewRedisRecordStore(client *redis.Client) *RedisRecordStore {
	return &RedisRecordStore{client: client}
}

func (s *RedisRecordStore) Load(ctx context.Context) ([]Record, error) {
	raw, err := s.client.Get(ctx, recordsKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: failed to load records: %w", err)
	}
	var records []Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("memory: failed to decode records: %w", err)
	}
	return records, nil
}

func (s *RedisRecordStore) Save(ctx context.Context, records []Record) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("memory: failed to encode records: %w", err)
	}
	if err := s.client.Set(ctx, recordsKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("memory: failed to save records: %w", err)
	}
	return nil
}

// MemoryRecordStore is the in-process store used by tests and dev runs
// without Redis.
type MemoryRecordStore struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{}
}

func (s *MemoryRecordStore) Load(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *MemoryRecordStore) Save(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make([]Record, len(records))
	copy(s.records, records)
	return nil
}
