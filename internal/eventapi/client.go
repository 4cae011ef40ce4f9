// Package eventapi is the HTTP adapter to the backing events API. The API is
// the only authorization boundary; this client just forwards the bearer
// credential it is given.
package eventapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrUnauthorized = errors.New("eventapi: unauthorized")
	ErrUpstream     = errors.New("eventapi: upstream error")
)

const maxBodyBytes = 4 << 20

// Event is an opaque event object as returned by the API.
type Event map[string]any

// Error carries the status and the message the API returned. It unwraps to
// ErrUnauthorized or ErrUpstream.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("eventapi: status %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return ErrUnauthorized
	}
	return ErrUpstream
}

type FetchRequest struct {
	Credential string
	Role       string
	Query      url.Values
}

type EventRequest struct {
	ID         string
	Credential string
	Role       string
}

type LoginResult struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type Options struct {
	BaseURL    string
	EventsPath string
	LoginPath  string
	Timeout    time.Duration
	RPS        float64
	Burst      int
	HTTPClient *http.Client
}

type Client struct {
	base       string
	eventsPath string
	loginPath  string
	hc         *http.Client
	limiter    *rate.Limiter
}

func New(o Options) *Client {
	hc := o.HTTPClient
	if hc == nil {
		timeout := o.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if o.RPS > 0 {
		limit = rate.Limit(o.RPS)
	}
	burst := o.Burst
	if burst <= 0 {
		burst = 1
	}
	eventsPath := o.EventsPath
	if eventsPath == "" {
		eventsPath = "/core/event/"
	}
	loginPath := o.LoginPath
	if loginPath == "" {
		loginPath = "/authentication/login/"
	}
	return &Client{
		base:       strings.TrimRight(o.BaseURL, "/"),
		eventsPath: eventsPath,
		loginPath:  loginPath,
		hc:         hc,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

func (c *Client) FetchEvents(ctx context.Context, req FetchRequest) ([]Event, error) {
	u := c.base + c.eventsPath
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	body, err := c.do(ctx, http.MethodGet, u, req.Credential, req.Role, nil)
	if err != nil {
		return nil, err
	}
	return decodeEventList(body)
}

func (c *Client) GetEventData(ctx context.Context, req EventRequest) (Event, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrUpstream)
	}
	u := c.base + strings.TrimRight(c.eventsPath, "/") + "/" + url.PathEscape(id) + "/"
	body, err := c.do(ctx, http.MethodGet, u, req.Credential, req.Role, nil)
	if err != nil {
		return nil, err
	}
	var ev Event
	if err := json.Unmarshal(unwrapData(body), &ev); err != nil {
		return nil, fmt.Errorf("%w: decode event: %v", ErrUpstream, err)
	}
	return ev, nil
}

// Login exchanges credentials for a bearer token. Password checking happens
// entirely on the API side.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return LoginResult{}, err
	}
	body, err := c.do(ctx, http.MethodPost, c.base+c.loginPath, "", "", payload)
	if err != nil {
		return LoginResult{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(unwrapData(body), &raw); err != nil {
		return LoginResult{}, fmt.Errorf("%w: decode login: %v", ErrUpstream, err)
	}
	out := LoginResult{
		Token:  firstString(raw, "access_token", "access", "token"),
		UserID: firstString(raw, "user_id", "id"),
		Role:   firstString(raw, "role", "user_role"),
	}
	if out.Token == "" || out.UserID == "" {
		return LoginResult{}, fmt.Errorf("%w: login response without token or user id", ErrUpstream)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, u, credential, role string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	if resp.StatusCode >= 400 {
		return nil, &Error{Status: resp.StatusCode, Message: errorMessage(body, resp.Status)}
	}
	return body, nil
}

func decodeEventList(body []byte) ([]Event, error) {
	body = unwrapData(body)
	var list []Event
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var page struct {
		Results []Event `json:"results"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("%w: decode events: %v", ErrUpstream, err)
	}
	if page.Results == nil {
		return []Event{}, nil
	}
	return page.Results, nil
}

// unwrapData strips a {"data": ...} envelope if there is one.
func unwrapData(body []byte) []byte {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		return env.Data
	}
	return body
}

func errorMessage(body []byte, fallback string) string {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err == nil {
		if msg := firstString(raw, "message", "detail", "error"); msg != "" {
			return msg
		}
	}
	return fallback
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		case json.Number:
			return v.String()
		}
	}
	return ""
}
