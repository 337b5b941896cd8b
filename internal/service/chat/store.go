package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"quantumlab/internal/models"
	"quantumlab/internal/redis"
)

// HistoryStore keeps the recent conversation per user, capped to a bounded
// window by the service.
type HistoryStore interface {
	History(ctx context.Context, userID int64) ([]*models.Message, error)
	Save(ctx context.Context, userID int64, history []*models.Message) error
	Clear(ctx context.Context, userID int64) error
}

const historyKeyPrefix = "chat:history:"

// RedisHistoryStore persists history as one JSON document per user,
// optionally encrypted at rest.
type RedisHistoryStore struct {
	cache  *redis.Client
	cipher *historyCipher
}

// NewRedisHistoryStore builds the redis-backed store. Encryption is enabled
// when QUANTUMLAB_HISTORY_KEY is set.
func NewRedisHistoryStore(cache *redis.Client) (*RedisHistoryStore, error) {
	if cache == nil {
		return nil, errors.New("redis client required")
	}
	cipher, err := newHistoryCipherFromEnv()
	if err != nil {
		return nil, err
	}
	return &RedisHistoryStore{cache: cache, cipher: cipher}, nil
}

func historyKey(userID int64) string {
	return fmt.Sprintf("%s%d", historyKeyPrefix, userID)
}

func (s *RedisHistoryStore) History(ctx context.Context, userID int64) ([]*models.Message, error) {
	payload, err := s.cache.Get(ctx, historyKey(userID))
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("load chat history: %w", err)
	}
	if s.cipher != nil {
		payload, err = s.cipher.Decrypt(payload)
		if err != nil {
			return nil, fmt.Errorf("decrypt chat history: %w", err)
		}
	}
	var history []*models.Message
	if err := json.Unmarshal([]byte(payload), &history); err != nil {
		return nil, fmt.Errorf("decode chat history: %w", err)
	}
	return history, nil
}

func (s *RedisHistoryStore) Save(ctx context.Context, userID int64, history []*models.Message) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode chat history: %w", err)
	}
	payload := string(data)
	if s.cipher != nil {
		payload, err = s.cipher.Encrypt(payload)
		if err != nil {
			return fmt.Errorf("encrypt chat history: %w", err)
		}
	}
	if err := s.cache.Set(ctx, historyKey(userID), payload, 0); err != nil {
		return fmt.Errorf("save chat history: %w", err)
	}
	return nil
}

func (s *RedisHistoryStore) Clear(ctx context.Context, userID int64) error {
	if err := s.cache.Del(ctx, historyKey(userID)); err != nil {
		return fmt.Errorf("clear chat history: %w", err)
	}
	return nil
}

// MemoryHistoryStore keeps history in process memory; used when redis is not
// configured and in tests.
type MemoryHistoryStore struct {
	mu        sync.RWMutex
	histories map[int64][]*models.Message
}

// NewMemoryHistoryStore builds an empty in-memory store.
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{histories: make(map[int64][]*models.Message)}
}

func (s *MemoryHistoryStore) History(_ context.Context, userID int64) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.histories[userID]
	out := make([]*models.Message, len(history))
	copy(out, history)
	return out, nil
}

func (s *MemoryHistoryStore) Save(_ context.Context, userID int64, history []*models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]*models.Message, len(history))
	copy(stored, history)
	s.histories[userID] = stored
	return nil
}

func (s *MemoryHistoryStore) Clear(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.histories, userID)
	return nil
}
