package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"eventclient/internal/session"
	"eventclient/internal/store"
)

const secret = "this_is_a_valid_long_session_encrypt_key_123456"

func tokenExpiringAt(t *testing.T, exp time.Time) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return raw
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestExpiredCredentialIsCleared(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	m := session.NewManager(kv, secret)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := m.Login(ctx, "b1", "u1", "subscriber", tokenExpiringAt(t, now.Add(-time.Minute))); err != nil {
		t.Fatalf("login: %v", err)
	}

	res, err := NewChecker(m).WithClock(fixedClock(now)).Run(ctx, "b1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Expired || res.Redirect != "/login" {
		t.Fatalf("unexpected result %+v", res)
	}
	values, _ := kv.GetAll(ctx, "b1")
	if len(values) != 0 {
		t.Fatalf("expected every persisted key cleared, got %v", values)
	}
	s, _ := m.Load(ctx, "b1")
	if s.Authenticated() {
		t.Fatalf("expected anonymous session after expiry")
	}
}

func TestLiveCredentialIsKept(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	m := session.NewManager(kv, secret)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	_ = m.Login(ctx, "b1", "u1", "subscriber", tokenExpiringAt(t, now))

	res, err := NewChecker(m).WithClock(fixedClock(now)).Run(ctx, "b1")
	if err != nil || res.Expired {
		t.Fatalf("expected live credential to survive, got %+v err=%v", res, err)
	}
	if _, err := kv.Get(ctx, "b1", store.KeyUserID); err != nil {
		t.Fatalf("expected identity to remain: %v", err)
	}
}

func TestNoCredentialIsNoop(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	_ = kv.SetMany(ctx, "b1", map[string]string{store.KeyUserID: "u1"})

	res, err := NewChecker(session.NewManager(kv, secret)).Run(ctx, "b1")
	if err != nil || res.Expired {
		t.Fatalf("expected no-op, got %+v err=%v", res, err)
	}
	if v, _ := kv.Get(ctx, "b1", store.KeyUserID); v != "u1" {
		t.Fatalf("identity without token must be left alone")
	}
}

func TestMalformedCredentialIsCleared(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	m := session.NewManager(kv, secret)
	_ = m.Login(ctx, "b1", "u1", "subscriber", "not-a-token")

	res, err := NewChecker(m).Run(ctx, "b1")
	if err != nil || !res.Expired {
		t.Fatalf("expected malformed credential to be treated as expired, got %+v err=%v", res, err)
	}
}

type failingStore struct{}

func (failingStore) PersistedToken(context.Context, string) (string, bool, error) {
	return "", false, errors.New("boom")
}

func (failingStore) Clear(context.Context, string) error { return nil }

func TestStorageErrorIsReturned(t *testing.T) {
	if _, err := NewChecker(failingStore{}).Run(context.Background(), "b1"); err == nil {
		t.Fatalf("expected storage error")
	}
}
