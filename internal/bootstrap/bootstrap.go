// Package bootstrap holds the expiry check run once per application mount.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"eventclient/internal/auth"
	"eventclient/internal/nav"
	"eventclient/internal/util"
)

// TokenStore is the part of the session manager the check needs.
type TokenStore interface {
	PersistedToken(ctx context.Context, browserID string) (string, bool, error)
	Clear(ctx context.Context, browserID string) error
}

type Result struct {
	Expired  bool   `json:"expired"`
	Redirect string `json:"redirect,omitempty"`
}

type Checker struct {
	tokens TokenStore
	now    func() time.Time
}

func NewChecker(tokens TokenStore) *Checker {
	return &Checker{tokens: tokens, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (c *Checker) WithClock(now func() time.Time) *Checker {
	if now != nil {
		c.now = now
	}
	return c
}

// Run clears the browser's persisted session when it holds a credential that
// is not live and reports the forced navigation to the login view. No stored
// credential means nothing to do. The check is advisory: it never changes how
// the gate treats an identity that is still present in a later request.
func (c *Checker) Run(ctx context.Context, browserID string) (Result, error) {
	raw, ok, err := c.tokens.PersistedToken(ctx, browserID)
	if err != nil {
		return Result{}, fmt.Errorf("bootstrap: read token: %w", err)
	}
	if !ok || auth.IsLive(raw, c.now()) {
		return Result{}, nil
	}
	if err := c.tokens.Clear(ctx, browserID); err != nil {
		return Result{}, fmt.Errorf("bootstrap: clear session: %w", err)
	}
	log.Printf("session_expired browser=%s", util.ShortID(browserID))
	return Result{Expired: true, Redirect: nav.LoginPath}, nil
}
