package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"workreport/api/internal/store"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client, err := Connect(context.Background(), "redis://"+s.Addr())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, s
}

func TestConnectRejectsBadURL(t *testing.T) {
	if _, err := Connect(context.Background(), "://nope"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	client, _ := setupTestRedis(t)
	rs := NewRedisStore(client)
	ctx := context.Background()

	if err := rs.SaveRefreshSession(ctx, "hash-1", "usr_1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	user, err := rs.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if user.ID != "usr_1" {
		t.Errorf("expected usr_1, got %s", user.ID)
	}
	if err := rs.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	client, s := setupTestRedis(t)
	rs := NewRedisStore(client)
	ctx := context.Background()

	if err := rs.SaveRefreshSession(ctx, "hash-exp", "usr_1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	s.FastForward(2 * time.Minute)

	if _, err := rs.LookupRefreshSession(ctx, "hash-exp"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired token, got %v", err)
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	client, _ := setupTestRedis(t)
	rs := NewRedisStore(client)
	ctx := context.Background()

	if err := rs.SaveRefreshSession(ctx, "hash-a", "usr_a", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := rs.SaveRefreshSession(ctx, "hash-b", "usr_b", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := rs.RevokeRefreshSession(ctx, "hash-a"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}
	if _, err := rs.LookupRefreshSession(ctx, "hash-a"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected revoked token to be gone, got %v", err)
	}
	if user, err := rs.LookupRefreshSession(ctx, "hash-b"); err != nil || user.ID != "usr_b" {
		t.Fatalf("other session should survive, got %v %v", user, err)
	}
	if err := rs.RevokeRefreshSession(ctx, "missing"); err != nil {
		t.Fatalf("revoking a missing token should not error: %v", err)
	}
}

func TestRedisLockIsExclusiveAndExpires(t *testing.T) {
	client, s := setupTestRedis(t)
	lock := NewRedisLock(client, time.Minute)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "report:rpt_1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := lock.Acquire(ctx, "report:rpt_1"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if other, err := lock.Acquire(ctx, "report:rpt_2"); err != nil {
		t.Fatalf("different key should be free: %v", err)
	} else {
		other()
	}
	release()
	again, err := lock.Acquire(ctx, "report:rpt_1")
	if err != nil {
		t.Fatalf("lock should be free after release: %v", err)
	}

	s.FastForward(2 * time.Minute)
	stolen, err := lock.Acquire(ctx, "report:rpt_1")
	if err != nil {
		t.Fatalf("expired lock should be acquirable: %v", err)
	}
	again()
	if _, err := lock.Acquire(ctx, "report:rpt_1"); !errors.Is(err, ErrLocked) {
		t.Fatal("stale release must not free a lock taken by someone else")
	}
	stolen()
}

func TestMemoryLock(t *testing.T) {
	lock := NewMemoryLock()
	ctx := context.Background()
	release, err := lock.Acquire(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := lock.Acquire(ctx, "k"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	release()
	release()
	if _, err := lock.Acquire(ctx, "k"); err != nil {
		t.Fatalf("expected lock to be free, got %v", err)
	}
}
