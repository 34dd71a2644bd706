package embedding

import (
	"container/list"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores vectors by key.
type Cache interface {
	Get(ctx context.Context, keys []string) [][]float32
	Set(ctx context.Context, key string, v []float32, ttl time.Duration)
}

// LocalLRU is an in-process LRU with per-entry TTL.
type LocalLRU struct {
	mu   sync.Mutex
	cap  int
	list *list.List // front = most recent
	m    map[string]*list.Element
}

type lruEntry struct {
	key string
	vec []float32
	exp time.Time
}

func NewLocalLRU(capacity int) *LocalLRU {
	if capacity <= 0 {
		capacity = 4096
	}
	return &LocalLRU{cap: capacity, list: list.New(), m: make(map[string]*list.Element, capacity)}
}

// Get returns one slot per key; misses are nil.
func (l *LocalLRU) Get(_ context.Context, keys []string) [][]float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]float32, len(keys))
	now := time.Now()
	for i, key := range keys {
		el, ok := l.m[key]
		if !ok {
			continue
		}
		ent := el.Value.(lruEntry)
		if ent.exp.After(now) {
			l.list.MoveToFront(el)
			out[i] = ent.vec
			continue
		}
		l.list.Remove(el)
		delete(l.m, key)
	}
	return out
}

func (l *LocalLRU) Set(_ context.Context, key string, v []float32, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ent := lruEntry{key: key, vec: v, exp: time.Now().Add(ttl)}
	if el, ok := l.m[key]; ok {
		el.Value = ent
		l.list.MoveToFront(el)
		return
	}
	l.m[key] = l.list.PushFront(ent)
	if l.list.Len() > l.cap {
		if lru := l.list.Back(); lru != nil {
			delete(l.m, lru.Value.(lruEntry).key)
			l.list.Remove(lru)
		}
	}
}

func (l *LocalLRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list.Len()
}

// RedisCache keeps JSON-encoded vectors in Redis. Failures are logged and
// treated as misses.
type RedisCache struct {
	cli    redis.UniversalClient
	logger *zap.Logger
}

func NewRedisCache(cli redis.UniversalClient, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{cli: cli, logger: logger}
}

func (r *RedisCache) Get(ctx context.Context, keys []string) [][]float32 {
	out := make([][]float32, len(keys))
	if len(keys) == 0 {
		return out
	}
	vals, err := r.cli.MGet(ctx, keys...).Result()
	if err != nil {
		r.logger.Warn("embedding cache read failed", zap.Int("keys", len(keys)), zap.Error(err))
		return out
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var vec []float32
		if json.Unmarshal([]byte(s), &vec) == nil && len(vec) > 0 {
			out[i] = vec
		}
	}
	return out
}

func (r *RedisCache) Set(ctx context.Context, key string, v []float32, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := r.cli.Set(ctx, key, b, ttl).Err(); err != nil {
		r.logger.Warn("embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// MakeKey derives the cache key of text embedded by model.
func MakeKey(model, text string) string {
	h := sha1.Sum([]byte(model + "|" + text))
	return "emb:" + hex.EncodeToString(h[:])
}
