package eventapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL + "/", Timeout: 5 * time.Second, RPS: 100, Burst: 10})
}

func TestFetchEventsSendsPredicateAndBearer(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 1, "name": "A"}, {"id": 2, "name": "B"}})
	})
	events, err := c.FetchEvents(context.Background(), FetchRequest{
		Credential: "tok",
		Role:       "organizer",
		Query:      url.Values{"event_status": {"upcoming"}, "type": {"conference"}},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 2 || events[1]["name"] != "B" {
		t.Fatalf("unexpected events %v", events)
	}
	if got.URL.Path != "/core/event/" {
		t.Fatalf("unexpected path %q", got.URL.Path)
	}
	if got.URL.Query().Get("event_status") != "upcoming" || got.URL.Query().Get("type") != "conference" {
		t.Fatalf("unexpected query %q", got.URL.RawQuery)
	}
	if got.Header.Get("Authorization") != "Bearer tok" || got.Header.Get("X-User-Role") != "organizer" {
		t.Fatalf("unexpected headers %v", got.Header)
	}
}

func TestFetchEventsAcceptsEnvelopes(t *testing.T) {
	bodies := []string{
		`{"data":[{"id":1}]}`,
		`{"results":[{"id":1}]}`,
		`{"data":{"results":[{"id":1}]}}`,
	}
	for _, body := range bodies {
		body := body
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		events, err := c.FetchEvents(context.Background(), FetchRequest{})
		if err != nil || len(events) != 1 {
			t.Fatalf("body %s: events=%v err=%v", body, events, err)
		}
	}
}

func TestUnauthorizedIsMapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Token expired"}`))
	})
	_, err := c.FetchEvents(context.Background(), FetchRequest{Credential: "old"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Message != "Token expired" {
		t.Fatalf("expected API message, got %v", err)
	}
}

func TestGetEventData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/core/event/42/" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":42,"name":"Jazz night"}}`))
	})
	ev, err := c.GetEventData(context.Background(), EventRequest{ID: "42", Credential: "tok"})
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if ev["name"] != "Jazz night" {
		t.Fatalf("unexpected event %v", ev)
	}
	if _, err := c.GetEventData(context.Background(), EventRequest{ID: "7"}); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if _, err := c.GetEventData(context.Background(), EventRequest{}); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream for empty id, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if r.Method != http.MethodPost || r.URL.Path != "/authentication/login/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if in["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"jwt","user_id":17,"role":"organizer"}`))
	})
	res, err := c.Login(context.Background(), "a@example.com", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token != "jwt" || res.UserID != "17" || res.Role != "organizer" {
		t.Fatalf("unexpected login result %+v", res)
	}
	if _, err := c.Login(context.Background(), "a@example.com", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
