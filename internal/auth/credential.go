package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMalformedToken = errors.New("auth: malformed bearer token")

// BearerToken is a decoded, unverified bearer credential. Decoding never checks
// the signature: the backing API is the only authorization boundary, the
// client uses the claims for navigation decisions only.
type BearerToken struct {
	Raw    string
	Exp    time.Time
	Claims map[string]any
}

var parser = jwt.NewParser()

// Decode parses raw without verifying its signature and requires a numeric exp claim.
func Decode(raw string) (BearerToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return BearerToken{}, ErrMalformedToken
	}
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return BearerToken{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return BearerToken{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if exp == nil {
		return BearerToken{}, fmt.Errorf("%w: missing exp claim", ErrMalformedToken)
	}
	return BearerToken{Raw: raw, Exp: exp.Time, Claims: claims}, nil
}

// LiveAt reports whether the token has not expired at now, compared at whole-second resolution.
func (t BearerToken) LiveAt(now time.Time) bool {
	if t.Exp.IsZero() {
		return false
	}
	return !time.Unix(now.Unix(), 0).After(t.Exp)
}

// IsLive reports whether raw decodes and its exp claim is not before now.
// Absent or malformed tokens are never live.
func IsLive(raw string, now time.Time) bool {
	tok, err := Decode(raw)
	if err != nil {
		return false
	}
	return tok.LiveAt(now)
}
