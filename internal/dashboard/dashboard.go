// Package dashboard hosts one dashboard view per browser: a filter engine,
// the event list its fetches produce, and the transient notifications raised
// when a fetch fails.
package dashboard

import (
	"context"
	"errors"
	"log"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"eventclient/internal/eventapi"
	"eventclient/internal/filters"
	"eventclient/internal/obs"
	"eventclient/internal/session"
	"eventclient/internal/util"
)

const (
	EventDetailPath = "/event-details"

	defaultFetchTimeout = 15 * time.Second
	maxNotifications    = 20
)

// Fetcher is the part of the events API client the dashboard uses.
type Fetcher interface {
	FetchEvents(ctx context.Context, req eventapi.FetchRequest) ([]eventapi.Event, error)
	GetEventData(ctx context.Context, req eventapi.EventRequest) (eventapi.Event, error)
}

type Notification struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type Options struct {
	FetchTimeout time.Duration
	// OnError is called for every fetch failure that is not superseded by a
	// newer applied response. Defaults to logging.
	OnError func(browserID string, err error)
}

type Host struct {
	ctx     context.Context
	fetcher Fetcher
	timeout time.Duration
	onError func(browserID string, err error)
	now     func() time.Time

	mu    sync.Mutex
	views map[string]*View
	wg    sync.WaitGroup
}

// NewHost creates a host whose background fetches are bound to ctx.
func NewHost(ctx context.Context, fetcher Fetcher, o Options) *Host {
	h := &Host{
		ctx:     ctx,
		fetcher: fetcher,
		timeout: o.FetchTimeout,
		onError: o.OnError,
		now:     time.Now,
		views:   map[string]*View{},
	}
	if h.timeout <= 0 {
		h.timeout = defaultFetchTimeout
	}
	if h.onError == nil {
		h.onError = func(browserID string, err error) {
			log.Printf("events_fetch_failed browser=%s error=%v", util.ShortID(browserID), err)
		}
	}
	return h
}

// View returns the browser's view, creating it on first use.
func (h *Host) View(browserID string) *View {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.views[browserID]
	if !ok {
		v = &View{host: h, browserID: browserID}
		v.engine = filters.NewEngine(filters.DispatcherFunc(v.dispatch))
		h.views[browserID] = v
	}
	v.touch(h.now())
	return v
}

// Drop forgets the browser's view. Fetches still in flight complete into
// the detached view and are discarded with it.
func (h *Host) Drop(browserID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.views, browserID)
}

// EvictIdle drops views not used since before and returns how many went.
func (h *Host) EvictIdle(before time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for id, v := range h.views {
		if v.lastUsed().Before(before) {
			delete(h.views, id)
			n++
		}
	}
	return n
}

// Leave marks the browser's dashboard as unmounted. Filter state does not
// outlive a navigation to another view.
func (h *Host) Leave(browserID string) {
	h.mu.Lock()
	v, ok := h.views[browserID]
	h.mu.Unlock()
	if ok {
		v.engine.Leave()
	}
}

// Fetching reports whether the browser's view has a request to the events
// API in flight. A browser without a view is never fetching.
func (h *Host) Fetching(browserID string) bool {
	h.mu.Lock()
	v, ok := h.views[browserID]
	h.mu.Unlock()
	return ok && v.Fetching()
}

// Wait blocks until every dispatched fetch has completed.
func (h *Host) Wait() { h.wg.Wait() }

type View struct {
	host      *Host
	browserID string
	engine    *filters.Engine
	inFlight  atomic.Int64

	mu      sync.Mutex
	used    time.Time
	events  []eventapi.Event
	applied uint64
	loaded  bool
	notices []Notification
}

func (v *View) Engine() *filters.Engine { return v.engine }

// Fetching drives the loading overlay of this browser only.
func (v *View) Fetching() bool { return v.inFlight.Load() > 0 }

// Snapshot is what the dashboard renders.
type Snapshot struct {
	Filters filters.State    `json:"filters"`
	Heading filters.Heading  `json:"heading"`
	Events  []eventapi.Event `json:"events"`
	Loaded  bool             `json:"loaded"`
	Seq     uint64           `json:"seq"`
	Applied uint64           `json:"applied"`
}

func (v *View) Snapshot() Snapshot {
	st := v.engine.State()
	seq := v.engine.Seq()
	v.mu.Lock()
	defer v.mu.Unlock()
	events := v.events
	if events == nil {
		events = []eventapi.Event{}
	}
	return Snapshot{
		Filters: st,
		Heading: filters.HeadingFor(st),
		Events:  events,
		Loaded:  v.loaded,
		Seq:     seq,
		Applied: v.applied,
	}
}

func (v *View) Heading() filters.Heading {
	return filters.HeadingFor(v.engine.State())
}

// CanCreate reports whether the create-event affordance is offered.
func CanCreate(sess session.Session) bool {
	return sess.Role == session.RoleOrganizer
}

// TakeNotifications returns and clears the pending notifications.
func (v *View) TakeNotifications() []Notification {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.notices
	v.notices = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

// OpenEvent loads a single event. On success it returns the location of the
// detail view; on failure it raises a notification and returns the error.
func (v *View) OpenEvent(ctx context.Context, sess session.Session, id string) (string, error) {
	v.inFlight.Add(1)
	defer v.inFlight.Add(-1)
	_, err := v.host.fetcher.GetEventData(ctx, eventapi.EventRequest{
		ID:         id,
		Credential: sess.Token(),
		Role:       sess.Role,
	})
	if err != nil {
		v.notify(v.host.now(), err)
		return "", err
	}
	return EventDetailPath + "?" + url.Values{"id": {id}}.Encode(), nil
}

func (v *View) dispatch(req filters.FetchRequest) {
	obs.FetchDispatched()
	h := v.host
	h.wg.Add(1)
	v.inFlight.Add(1)
	go func() {
		defer h.wg.Done()
		defer v.inFlight.Add(-1)
		ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
		defer cancel()
		events, err := h.fetcher.FetchEvents(ctx, eventapi.FetchRequest{
			Credential: req.Credential,
			Role:       req.Role,
			Query:      req.Predicate.Values(),
		})
		v.complete(req.Seq, events, err)
	}()
}

// complete applies a fetch result unless a newer one has already been applied.
func (v *View) complete(seq uint64, events []eventapi.Event, err error) {
	v.mu.Lock()
	if seq <= v.applied {
		v.mu.Unlock()
		obs.FetchOutcome("stale")
		return
	}
	if err != nil {
		v.mu.Unlock()
		obs.FetchOutcome("error")
		v.notify(v.host.now(), err)
		v.host.onError(v.browserID, err)
		return
	}
	v.applied = seq
	v.events = events
	v.loaded = true
	v.mu.Unlock()
	obs.FetchOutcome("applied")
}

func (v *View) notify(at time.Time, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notices = append(v.notices, Notification{Level: "error", Message: userMessage(err), At: at})
	if len(v.notices) > maxNotifications {
		v.notices = v.notices[len(v.notices)-maxNotifications:]
	}
}

func (v *View) touch(now time.Time) {
	v.mu.Lock()
	v.used = now
	v.mu.Unlock()
}

func (v *View) lastUsed() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.used
}

func userMessage(err error) string {
	var apiErr *eventapi.Error
	switch {
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	case errors.Is(err, eventapi.ErrUnauthorized):
		return "Your session is no longer authorized"
	case errors.Is(err, context.DeadlineExceeded):
		return "The events service did not respond in time"
	default:
		return "Unable to load events"
	}
}
