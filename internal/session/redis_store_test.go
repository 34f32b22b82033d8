package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t)

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}

	if _, err := NewRedisStore("not a url"); err == nil {
		t.Error("expected error for invalid url")
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	err := store.SaveRefreshSession(ctx, "test-token-hash", "user-123", "a@example.com", time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	sess, err := store.LookupRefreshSession(ctx, "test-token-hash")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if sess.UserID != "user-123" || sess.Email != "a@example.com" {
		t.Errorf("unexpected session %+v", sess)
	}

	if !s.Exists("canvasvault:refresh:test-token-hash") {
		t.Error("expected key under the refresh prefix")
	}
	if ttl := s.TTL("canvasvault:refresh:test-token-hash"); ttl <= 23*time.Hour {
		t.Errorf("expected ~24h ttl, got %s", ttl)
	}
}

func TestSaveRejectsPastExpiry(t *testing.T) {
	store, _ := setupTestRedis(t)

	err := store.SaveRefreshSession(context.Background(), "h", "user-1", "", time.Now().Add(-time.Minute))
	if err == nil {
		t.Fatal("expected error for past expiry")
	}
}

func TestLookupExpiredSession(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "expired-token", "user-456", "", time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	s.FastForward(2 * time.Second)

	_, err := store.LookupRefreshSession(ctx, "expired-token")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestConsumeRefreshSessionIsSingleUse(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "once", "user-1", "", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	sess, err := store.ConsumeRefreshSession(ctx, "once")
	if err != nil {
		t.Fatalf("ConsumeRefreshSession failed: %v", err)
	}
	if sess.UserID != "user-1" {
		t.Errorf("expected user-1, got %s", sess.UserID)
	}

	if _, err := store.ConsumeRefreshSession(ctx, "once"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound on second use, got %v", err)
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := store.SaveRefreshSession(ctx, "token-1", "user-1", "", expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession 1 failed: %v", err)
	}
	if err := store.SaveRefreshSession(ctx, "token-2", "user-2", "", expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession 2 failed: %v", err)
	}

	if err := store.RevokeRefreshSession(ctx, "token-1"); err != nil {
		t.Fatalf("Revoke token-1 failed: %v", err)
	}
	if _, err := store.LookupRefreshSession(ctx, "token-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound for revoked token-1, got %v", err)
	}

	sess, err := store.LookupRefreshSession(ctx, "token-2")
	if err != nil {
		t.Fatalf("Lookup token-2 after revoke failed: %v", err)
	}
	if sess.UserID != "user-2" {
		t.Errorf("expected user-2 after revoke, got %s", sess.UserID)
	}

	// Revoking a missing token is not an error.
	if err := store.RevokeRefreshSession(ctx, "non-existent-token"); err != nil {
		t.Errorf("RevokeRefreshSession for non-existent token failed: %v", err)
	}
}

func TestRevokeAccessToken(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	revoked, err := store.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("IsAccessTokenRevoked() = %v, %v; want false, nil", revoked, err)
	}

	if err := store.RevokeAccessToken(ctx, "jti-1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("RevokeAccessToken failed: %v", err)
	}
	revoked, err = store.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("IsAccessTokenRevoked() = %v, %v; want true, nil", revoked, err)
	}

	s.FastForward(2 * time.Minute)
	revoked, _ = store.IsAccessTokenRevoked(ctx, "jti-1")
	if revoked {
		t.Error("denylist entry should expire with the token")
	}

	// Already-expired tokens need no entry.
	if err := store.RevokeAccessToken(ctx, "jti-2", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("RevokeAccessToken failed: %v", err)
	}
	if s.Exists(revokedPrefix + "jti-2") {
		t.Error("expected no entry for an expired token")
	}
}
