package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"github.com/iconidentify/mediagrab/internal/domain"
)

func testSelection() *domain.Selection {
	return &domain.Selection{
		SourceID:  "src-1",
		Title:     "Clip",
		Kind:      domain.KindSplit,
		Quality:   "720p",
		SizeBytes: 160 << 20,
		Primary:   domain.StreamRef{ID: "136", URL: "http://cdn/v", Container: "mp4", ContentLength: 150 << 20},
		Audio:     &domain.StreamRef{ID: "140", URL: "http://cdn/a", Container: "m4a", ContentLength: 10 << 20},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestInMemorySessionStore_PutTake(t *testing.T) {
	ctx := context.Background()
	s := NewInMemorySessionStore()

	want := testSelection()
	if err := s.Put(ctx, "tok", want, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Take(ctx, "tok")
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("selection mismatch (-want +got):\n%s", diff)
	}

	// One-shot: a second redeem of the same token misses.
	if _, err := s.Take(ctx, "tok"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("second Take err = %v, want ErrSessionNotFound", err)
	}
	if _, err := s.Take(ctx, "unknown"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("unknown Take err = %v, want ErrSessionNotFound", err)
	}
}

func TestInMemorySessionStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewInMemorySessionStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Put(ctx, "short", testSelection(), time.Minute)
	s.Put(ctx, "long", testSelection(), time.Hour)
	s.Put(ctx, "taken-late", testSelection(), time.Minute)

	now = now.Add(2 * time.Minute)

	if _, err := s.Take(ctx, "taken-late"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("expired Take err = %v, want ErrSessionNotFound", err)
	}

	n, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("swept = %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	if _, err := s.Take(ctx, "long"); err != nil {
		t.Errorf("long-lived session should survive: %v", err)
	}
}

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisSessionStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, newRedisSessionStore(client, "test:session:")
}

func TestRedisSessionStore_PutTake(t *testing.T) {
	ctx := context.Background()
	mr, s := setupMiniRedis(t)

	want := testSelection()
	if err := s.Put(ctx, "tok", want, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !mr.Exists("test:session:tok") {
		t.Fatal("key should be stored under prefix")
	}
	if ttl := mr.TTL("test:session:tok"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	got, err := s.Take(ctx, "tok")
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("selection mismatch (-want +got):\n%s", diff)
	}
	if mr.Exists("test:session:tok") {
		t.Error("Take should delete the key")
	}
	if _, err := s.Take(ctx, "tok"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("second Take err = %v, want ErrSessionNotFound", err)
	}
}

func TestRedisSessionStore_Expiry(t *testing.T) {
	ctx := context.Background()
	mr, s := setupMiniRedis(t)

	if err := s.Put(ctx, "tok", testSelection(), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := s.Take(ctx, "tok"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("expired Take err = %v, want ErrSessionNotFound", err)
	}
	if n, err := s.Sweep(ctx); err != nil || n != 0 {
		t.Errorf("Sweep = %d, %v", n, err)
	}
}

func TestRedisSessionStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	mr, s := setupMiniRedis(t)
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	mr.Close()

	if err := s.Ping(ctx); err == nil {
		t.Error("Ping should fail once redis is gone")
	}
	_, err := s.Take(ctx, "tok")
	if err == nil || errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("backend failure must not look like a missing session: %v", err)
	}
}

func TestNewRedisSessionStore_ConnectFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisSessionStore(context.Background(), RedisConfig{Addr: addr}); err == nil {
		t.Error("expected connection error")
	}
}
