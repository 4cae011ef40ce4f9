package filters

import (
	"sync"

	"eventclient/internal/session"
)

// FetchRequest is one apply-filters dispatch. Seq grows with every dispatch of
// an engine so the receiver can drop responses that arrive out of order.
type FetchRequest struct {
	Seq        uint64
	Identity   string
	Role       string
	Credential string
	Predicate  Predicate
}

// Dispatcher issues a fetch without waiting for its response.
type Dispatcher interface {
	Dispatch(req FetchRequest)
}

type DispatcherFunc func(req FetchRequest)

func (f DispatcherFunc) Dispatch(req FetchRequest) { f(req) }

// Engine backs a single dashboard view. Every mutator reduces the state and
// then dispatches exactly one fetch, both under the engine lock, so dispatch
// order always equals mutation order.
type Engine struct {
	mu       sync.Mutex
	state    State
	search   string
	entered  bool
	seq      uint64
	dispatch Dispatcher
}

func NewEngine(d Dispatcher) *Engine {
	return &Engine{state: Initial(), dispatch: d}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Seq returns the sequence number of the latest dispatch.
func (e *Engine) Seq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// Enter reconciles with the location query string. The first call and any
// call with a different query reset every dimension and fetch; repeating the
// current query does nothing.
func (e *Engine) Enter(sess session.Session, search string) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.entered && e.search == search {
		return e.state, false
	}
	e.entered = true
	e.search = search
	return e.applyLocked(sess, Enter{Search: search}), true
}

// Mount starts a fresh dashboard view: every dimension is reset from the
// query and one fetch is dispatched, even if the query is unchanged.
func (e *Engine) Mount(sess session.Session, search string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entered = true
	e.search = search
	return e.applyLocked(sess, Enter{Search: search})
}

// Leave records that the dashboard was navigated away from, so the next
// Enter behaves like a fresh mount.
func (e *Engine) Leave() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entered = false
}

func (e *Engine) SetEventType(sess session.Session, value string) State {
	return e.apply(sess, SetEventType{Value: value})
}

func (e *Engine) SetStatus(sess session.Session, key string) (State, error) {
	v, err := resolveOption(StatusOptions, key)
	if err != nil {
		return e.State(), err
	}
	return e.apply(sess, SetStatus{Value: v}), nil
}

func (e *Engine) SetFeeType(sess session.Session, key string) (State, error) {
	v, err := resolveOption(FeeTypeOptions, key)
	if err != nil {
		return e.State(), err
	}
	return e.apply(sess, SetFeeType{Value: v}), nil
}

// SetDateRange takes picker input in InputDateLayout.
func (e *Engine) SetDateRange(sess session.Session, start, end string) (State, error) {
	a, err := ParseDateRange(start, end)
	if err != nil {
		return e.State(), err
	}
	return e.apply(sess, a), nil
}

func (e *Engine) SubmitSearch(sess session.Session, text string) State {
	return e.apply(sess, SubmitSearch{Text: text})
}

func (e *Engine) ToggleCreatedByMe(sess session.Session) (State, error) {
	if sess.Role != session.RoleOrganizer {
		return e.State(), ErrNotOrganizer
	}
	return e.apply(sess, ToggleCreatedByMe{}), nil
}

func (e *Engine) RemoveFilters(sess session.Session) State {
	return e.apply(sess, RemoveFilters{})
}

func (e *Engine) apply(sess session.Session, a Action) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyLocked(sess, a)
}

func (e *Engine) applyLocked(sess session.Session, a Action) State {
	next := Reduce(e.state, a)
	e.state = next
	e.seq++
	if e.dispatch != nil {
		e.dispatch.Dispatch(FetchRequest{
			Seq:        e.seq,
			Identity:   sess.Identity,
			Role:       sess.Role,
			Credential: sess.Token(),
			Predicate:  PredicateFor(next, a),
		})
	}
	return next
}
