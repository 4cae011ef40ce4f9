// Package nav decides, for every navigation, whether the requester may reach
// a view or must be redirected.
//
// Bindings are split into two ordered lists, one per Mode. The active list is
// picked from identity presence alone, so a view bound to one mode is never
// reachable from the other, and exactly one catch-all is live at any time.
// The gate is a navigation convenience: the events API remains the only
// authorization boundary.
package nav

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"eventclient/internal/session"
)

type GateKind int

const (
	Authenticated GateKind = iota + 1
	Anonymous
)

func (g GateKind) String() string {
	switch g {
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Mode is the state of the gating machine. Its only transition trigger is a
// change in identity presence.
type Mode int

const (
	ModeAnonymous Mode = iota
	ModeAuthenticated
)

func (m Mode) String() string {
	if m == ModeAuthenticated {
		return "authenticated"
	}
	return "anonymous"
}

func ModeFor(s session.Session) Mode {
	if s.Authenticated() {
		return ModeAuthenticated
	}
	return ModeAnonymous
}

type ViewRef string

const (
	ViewLogin                  ViewRef = "login"
	ViewOrganiserRegistration  ViewRef = "organiser-registration"
	ViewSubscriberRegistration ViewRef = "subscriber-registration"
	ViewForgotPassword         ViewRef = "forgot-password"
	ViewChangePassword         ViewRef = "change-password"
	ViewDashboard              ViewRef = "dashboard"
	ViewCreateEvent            ViewRef = "create-event"
	ViewEventDetail            ViewRef = "event-detail"
	ViewFeedback               ViewRef = "feedback"
	ViewFeedbackResponses      ViewRef = "feedback-responses"
	ViewProfile                ViewRef = "profile"
	ViewAnalytics              ViewRef = "analytics"
)

const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

// Binding maps a path pattern to a view under one gate. A binding with
// CatchAll set matches every path and redirects to RedirectTo.
type Binding struct {
	Pattern    string
	Exact      bool
	View       ViewRef
	Gate       GateKind
	CatchAll   bool
	RedirectTo string
}

// Matches follows the router convention: case-insensitive, trailing slash
// ignored, and non-exact patterns also match any sub-path.
func (b Binding) Matches(pathname string) bool {
	if b.CatchAll {
		return true
	}
	pat := normalizePath(b.Pattern)
	p := normalizePath(pathname)
	if strings.EqualFold(p, pat) {
		return true
	}
	if b.Exact {
		return false
	}
	return len(p) > len(pat) && p[len(pat)] == '/' && strings.EqualFold(p[:len(pat)], pat)
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}

// Location is a navigable location. Search keeps its leading "?".
type Location struct {
	Pathname string `json:"pathname"`
	Search   string `json:"search"`
}

func (l Location) String() string { return l.Pathname + l.Search }

func (l Location) Query() url.Values {
	q, _ := url.ParseQuery(strings.TrimPrefix(l.Search, "?"))
	return q
}

// ParseLocation turns a request URI such as "/dashboard?type=wishlist" into a Location.
func ParseLocation(raw string) Location {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{Pathname: "/"}
	}
	loc := Location{Pathname: u.EscapedPath()}
	if loc.Pathname == "" || !strings.HasPrefix(loc.Pathname, "/") {
		loc.Pathname = "/" + loc.Pathname
	}
	if u.RawQuery != "" {
		loc.Search = "?" + u.RawQuery
	}
	return loc
}

type Action int

const (
	Render Action = iota + 1
	Redirect
)

func (a Action) String() string {
	switch a {
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// State is carried alongside a redirect. From is the originally requested
// location, kept so a later login could return there.
type State struct {
	From *Location `json:"from,omitempty"`
}

// Props are handed to a rendered view.
type Props struct {
	Location Location `json:"location"`
	Pattern  string   `json:"pattern"`
}

type Decision struct {
	Action Action
	Mode   Mode
	View   ViewRef
	Props  Props
	To     string
	State  State
}

// AuthenticatedOnly renders for a present identity and otherwise redirects to
// the login view carrying the requested location.
func AuthenticatedOnly(s session.Session, b Binding, loc Location) Decision {
	if s.Authenticated() {
		return Decision{Action: Render, Mode: ModeAuthenticated, View: b.View, Props: Props{Location: loc, Pattern: b.Pattern}}
	}
	from := loc
	return Decision{Action: Redirect, Mode: ModeAnonymous, To: LoginPath, State: State{From: &from}}
}

// AnonymousOnly renders without an identity. A logged-in user is always sent
// to the dashboard and the requested location is dropped.
func AnonymousOnly(s session.Session, b Binding, loc Location) Decision {
	if s.Authenticated() {
		return Decision{Action: Redirect, Mode: ModeAuthenticated, To: DashboardPath}
	}
	return Decision{Action: Render, Mode: ModeAnonymous, View: b.View, Props: Props{Location: loc, Pattern: b.Pattern}}
}

var ErrInvalidTable = errors.New("nav: invalid navigation table")

type Table struct {
	lists [2][]Binding
}

// NewTable partitions bindings by gate, preserving order, and checks that each
// list ends in exactly one catch-all whose target renders under the same mode.
func NewTable(bindings []Binding) (*Table, error) {
	t := &Table{}
	for _, b := range bindings {
		switch b.Gate {
		case Authenticated:
			t.lists[ModeAuthenticated] = append(t.lists[ModeAuthenticated], b)
		case Anonymous:
			t.lists[ModeAnonymous] = append(t.lists[ModeAnonymous], b)
		default:
			return nil, fmt.Errorf("%w: binding %q has no gate", ErrInvalidTable, b.Pattern)
		}
	}
	for _, mode := range []Mode{ModeAnonymous, ModeAuthenticated} {
		list := t.lists[mode]
		if len(list) < 2 {
			return nil, fmt.Errorf("%w: %s list needs at least one view and a catch-all", ErrInvalidTable, mode)
		}
		for i, b := range list {
			last := i == len(list)-1
			if b.CatchAll != last {
				return nil, fmt.Errorf("%w: %s list must end with its only catch-all", ErrInvalidTable, mode)
			}
			if !b.CatchAll && b.View == "" {
				return nil, fmt.Errorf("%w: binding %q has no view", ErrInvalidTable, b.Pattern)
			}
		}
		target := list[len(list)-1].RedirectTo
		if _, ok := t.match(mode, target); !ok {
			return nil, fmt.Errorf("%w: %s catch-all target %q does not render", ErrInvalidTable, mode, target)
		}
	}
	return t, nil
}

func MustTable(bindings []Binding) *Table {
	t, err := NewTable(bindings)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) match(mode Mode, pathname string) (Binding, bool) {
	for _, b := range t.lists[mode] {
		if b.CatchAll {
			return Binding{}, false
		}
		if b.Matches(pathname) {
			return b, true
		}
	}
	return Binding{}, false
}

// Resolve is total: every location yields a render or exactly one redirect
// whose target renders under the same session.
func (t *Table) Resolve(s session.Session, loc Location) Decision {
	mode := ModeFor(s)
	for _, b := range t.lists[mode] {
		if b.CatchAll {
			d := Decision{Action: Redirect, Mode: mode, To: b.RedirectTo}
			// Only a redirect to login carries the requested location.
			if mode == ModeAnonymous {
				from := loc
				d.State.From = &from
			}
			return d
		}
		if !b.Matches(loc.Pathname) {
			continue
		}
		if b.Gate == Authenticated {
			return AuthenticatedOnly(s, b, loc)
		}
		return AnonymousOnly(s, b, loc)
	}
	// NewTable guarantees a trailing catch-all.
	panic("nav: table without catch-all")
}

// Bindings returns the ordered list active for mode.
func (t *Table) Bindings(mode Mode) []Binding {
	return append([]Binding(nil), t.lists[mode]...)
}

func DefaultBindings() []Binding {
	return []Binding{
		{Pattern: "/change-password", Exact: true, View: ViewChangePassword, Gate: Authenticated},
		{Pattern: "/dashboard", Exact: true, View: ViewDashboard, Gate: Authenticated},
		{Pattern: "/create", Exact: true, View: ViewCreateEvent, Gate: Authenticated},
		{Pattern: "/event-details/", View: ViewEventDetail, Gate: Authenticated},
		{Pattern: "/submit-feedback/", View: ViewFeedback, Gate: Authenticated},
		{Pattern: "/feedbacks/", View: ViewFeedbackResponses, Gate: Authenticated},
		{Pattern: "/my-profile", View: ViewProfile, Gate: Authenticated},
		{Pattern: "/analytics", View: ViewAnalytics, Gate: Authenticated},
		{Gate: Authenticated, CatchAll: true, RedirectTo: DashboardPath},

		{Pattern: "/", Exact: true, View: ViewLogin, Gate: Anonymous},
		{Pattern: "/login", View: ViewLogin, Gate: Anonymous},
		{Pattern: "/register/organiser", Exact: true, View: ViewOrganiserRegistration, Gate: Anonymous},
		{Pattern: "/register/subscriber", Exact: true, View: ViewSubscriberRegistration, Gate: Anonymous},
		{Pattern: "/forgot-password", Exact: true, View: ViewForgotPassword, Gate: Anonymous},
		{Gate: Anonymous, CatchAll: true, RedirectTo: LoginPath},
	}
}

func DefaultTable() *Table { return MustTable(DefaultBindings()) }
