package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func TestIsLiveComparesExpAtSecondResolution(t *testing.T) {
	exp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw := signed(t, jwt.MapClaims{"exp": exp.Unix(), "user_id": "u1"})

	if !IsLive(raw, exp.Add(-time.Minute)) {
		t.Fatalf("expected token to be live before exp")
	}
	if !IsLive(raw, exp.Add(900*time.Millisecond)) {
		t.Fatalf("expected token to be live within the exp second")
	}
	if IsLive(raw, exp.Add(time.Second)) {
		t.Fatalf("expected token to be expired after exp")
	}
}

func TestIsLiveIgnoresSignature(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("some-other-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if !IsLive(raw, time.Now()) {
		t.Fatalf("expected decode without verification to accept foreign signature")
	}
}

func TestIsLiveRejectsAbsentAndMalformed(t *testing.T) {
	now := time.Now()
	for _, raw := range []string{"", "   ", "not-a-jwt", "a.b.c", signed(t, jwt.MapClaims{"sub": "u1"})} {
		if IsLive(raw, now) {
			t.Fatalf("expected %q not to be live", raw)
		}
	}
}

func TestDecodeKeepsClaims(t *testing.T) {
	raw := signed(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix(), "role": "organizer"})
	tok, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tok.Raw != raw {
		t.Fatalf("raw token not preserved")
	}
	if tok.Claims["role"] != "organizer" {
		t.Fatalf("expected role claim, got %v", tok.Claims["role"])
	}
}

func TestDecodeMalformedIsSentinel(t *testing.T) {
	_, err := Decode("garbage")
	if !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
	var zero BearerToken
	if zero.LiveAt(time.Now()) {
		t.Fatalf("zero token must not be live")
	}
}
