// Package session loads and mutates the per-browser session that gates
// navigation and authorises event fetches.
//
// A Session is an immutable value read once per request and passed
// explicitly to the gate and the dashboard. Only Login, Clear and the
// bootstrap expiry check write the persisted storage behind it.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"eventclient/internal/auth"
	"eventclient/internal/store"
	"eventclient/internal/util"
)

const RoleOrganizer = "organizer"

type Session struct {
	Identity string
	Role     string
	// Credential is nil when no token is persisted or it does not decode.
	Credential *auth.BearerToken
	rawToken   string
}

func (s Session) Authenticated() bool { return s.Identity != "" }

// Token returns the raw bearer credential as persisted, decodable or not.
func (s Session) Token() string { return s.rawToken }

// Live reports whether the session carries a credential that has not expired at now.
func (s Session) Live(now time.Time) bool {
	return s.Credential != nil && s.Credential.LiveAt(now)
}

type Manager struct {
	kv  store.KV
	key []byte
}

func NewManager(kv store.KV, encryptSecret string) *Manager {
	return &Manager{kv: kv, key: util.DeriveKey(encryptSecret, "eventclient/session-token")}
}

func (m *Manager) Load(ctx context.Context, browserID string) (Session, error) {
	if browserID == "" {
		return Session{}, nil
	}
	values, err := m.kv.GetAll(ctx, browserID)
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	s := Session{
		Identity: strings.TrimSpace(values[store.KeyUserID]),
		Role:     strings.TrimSpace(values[store.KeyUserRole]),
	}
	if enc, ok := values[store.KeyToken]; ok {
		s.rawToken = m.decrypt(enc)
		if tok, err := auth.Decode(s.rawToken); err == nil {
			s.Credential = &tok
		}
	}
	return s, nil
}

// PersistedToken returns the stored credential and whether one exists at all.
// A value that can no longer be decrypted is reported as present but empty.
func (m *Manager) PersistedToken(ctx context.Context, browserID string) (string, bool, error) {
	if browserID == "" {
		return "", false, nil
	}
	enc, err := m.kv.Get(ctx, browserID, store.KeyToken)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return m.decrypt(enc), true, nil
}

// Login replaces the persisted session wholesale.
func (m *Manager) Login(ctx context.Context, browserID, identity, role, rawToken string) error {
	identity = strings.TrimSpace(identity)
	if browserID == "" || identity == "" || strings.TrimSpace(rawToken) == "" {
		return errors.New("session: browser, identity and token are required")
	}
	enc, err := util.EncryptString(m.key, rawToken)
	if err != nil {
		return err
	}
	if err := m.kv.Clear(ctx, browserID); err != nil {
		return err
	}
	return m.kv.SetMany(ctx, browserID, map[string]string{
		store.KeyUserID:   identity,
		store.KeyUserRole: strings.TrimSpace(role),
		store.KeyToken:    enc,
	})
}

// Clear removes every persisted key for the browser.
func (m *Manager) Clear(ctx context.Context, browserID string) error {
	if browserID == "" {
		return nil
	}
	return m.kv.Clear(ctx, browserID)
}

func (m *Manager) decrypt(enc string) string {
	raw, err := util.DecryptString(m.key, enc)
	if err != nil {
		return ""
	}
	return raw
}
