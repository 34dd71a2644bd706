package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type countingEmbedder struct {
	calls int
	texts []string
	err   error
}

func (c *countingEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.texts = append(c.texts, texts...)
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func TestEmbeddingUsesLRU(t *testing.T) {
	inner := &countingEmbedder{}
	e := NewEmbedding(inner, "m1")
	ctx := context.Background()

	first, err := e.EmbedDocuments(ctx, []string{"a", "bb"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	second, err := e.EmbedDocuments(ctx, []string{"bb", "ccc", "a"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if inner.calls != 2 || len(inner.texts) != 3 || inner.texts[2] != "ccc" {
		t.Fatalf("expected only ccc to be recomputed, got %v", inner.texts)
	}
	if second[0][0] != first[1][0] || second[1][0] != 3 || second[2][0] != 1 {
		t.Fatalf("vectors out of order: %v", second)
	}
}

func TestEmbeddingRedisSharedAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cli.Close()
	ctx := context.Background()

	warm := &countingEmbedder{}
	if _, err := NewEmbedding(warm, "m1", WithRemote(NewRedisCache(cli, nil), time.Hour)).EmbedQuery(ctx, "hello"); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if !mr.Exists(MakeKey("m1", "hello")) {
		t.Fatalf("vector not written to redis")
	}
	if ttl := mr.TTL(MakeKey("m1", "hello")); ttl != time.Hour {
		t.Fatalf("ttl=%v", ttl)
	}

	cold := &countingEmbedder{}
	v, err := NewEmbedding(cold, "m1", WithRemote(NewRedisCache(cli, nil), time.Hour)).EmbedQuery(ctx, "hello")
	if err != nil || cold.calls != 0 || v[0] != 5 {
		t.Fatalf("expected redis hit: v=%v calls=%d err=%v", v, cold.calls, err)
	}

	other := &countingEmbedder{}
	if _, err := NewEmbedding(other, "m2", WithRemote(NewRedisCache(cli, nil), time.Hour)).EmbedQuery(ctx, "hello"); err != nil || other.calls != 1 {
		t.Fatalf("model change must miss the cache: calls=%d err=%v", other.calls, err)
	}
}

func TestEmbeddingPropagatesError(t *testing.T) {
	e := NewEmbedding(&countingEmbedder{err: errors.New("boom")}, "m")
	if _, err := e.EmbedDocuments(context.Background(), []string{"x"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLocalLRUEvictsAndExpires(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLRU(2)
	l.Set(ctx, "a", []float32{1}, time.Hour)
	l.Set(ctx, "b", []float32{2}, time.Hour)
	_ = l.Get(ctx, []string{"a"})
	l.Set(ctx, "c", []float32{3}, time.Hour)
	got := l.Get(ctx, []string{"a", "b", "c"})
	if got[0] == nil || got[1] != nil || got[2] == nil {
		t.Fatalf("expected b evicted, got %v", got)
	}
	l.Set(ctx, "d", []float32{4}, -time.Second)
	if l.Get(ctx, []string{"d"})[0] != nil {
		t.Fatalf("expired entry returned")
	}
}

func TestEmbeddingSharedLRUAcrossInstances(t *testing.T) {
	ctx := context.Background()
	shared := NewLocalLRU(16)

	first := &countingEmbedder{}
	if _, err := NewEmbedding(first, "m1", WithLRU(shared)).EmbedDocuments(ctx, []string{"a", "bb"}); err != nil {
		t.Fatalf("embed: %v", err)
	}
	second := &countingEmbedder{}
	v, err := NewEmbedding(second, "m1", WithLRU(shared)).EmbedDocuments(ctx, []string{"bb", "a"})
	if err != nil || second.calls != 0 || v[0][0] != 2 || v[1][0] != 1 {
		t.Fatalf("expected shared lru hit: v=%v calls=%d err=%v", v, second.calls, err)
	}
	other := &countingEmbedder{}
	if _, err := NewEmbedding(other, "m2", WithLRU(shared)).EmbedQuery(ctx, "a"); err != nil || other.calls != 1 {
		t.Fatalf("model change must miss the shared lru: calls=%d err=%v", other.calls, err)
	}
}

func TestRedisCacheLogsOutage(t *testing.T) {
	// nothing listens on port 1
	cli := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: time.Second})
	defer cli.Close()
	core, logs := observer.New(zap.WarnLevel)
	cache := NewRedisCache(cli, zap.New(core))

	ctx := context.Background()
	if got := cache.Get(ctx, []string{"k"}); len(got) != 1 || got[0] != nil {
		t.Fatalf("outage must read as a miss, got %v", got)
	}
	cache.Set(ctx, "k", []float32{1}, time.Minute)
	if n := logs.FilterMessage("embedding cache read failed").Len(); n != 1 {
		t.Fatalf("read failure logged %d times", n)
	}
	if n := logs.FilterMessage("embedding cache write failed").Len(); n != 1 {
		t.Fatalf("write failure logged %d times", n)
	}
}
