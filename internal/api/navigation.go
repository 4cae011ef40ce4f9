package api

import (
	"html/template"
	"log"
	"net/http"
	"strings"

	"eventclient/internal/middleware"
	"eventclient/internal/nav"
	"eventclient/internal/obs"
	"eventclient/internal/session"
	"eventclient/internal/util"
)

var shellTemplate = template.Must(template.New("shell").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Events</title>
<link rel="stylesheet" href="/assets/app.css">
</head>
<body>
<div id="root" data-view="{{.View}}" data-pattern="{{.Pattern}}" data-pathname="{{.Pathname}}" data-search="{{.Search}}"{{if .From}} data-from="{{.From}}"{{end}}></div>
<script src="/assets/app.js"></script>
</body>
</html>
`))

type shellData struct {
	View     nav.ViewRef
	Pattern  string
	Pathname string
	Search   string
	From     string
}

type navigationResponse struct {
	Action string      `json:"action"`
	Mode   string      `json:"mode"`
	View   nav.ViewRef `json:"view,omitempty"`
	Props  *nav.Props  `json:"props,omitempty"`
	To     string      `json:"to,omitempty"`
	State  *nav.State  `json:"state,omitempty"`
}

// NavigateDocument serves a full document load: the expiry check runs
// first, then the gate decides between rendering the view shell and a 303
// redirect.
func (h *Handlers) NavigateDocument(w http.ResponseWriter, r *http.Request) {
	sess := middleware.Session(r.Context())
	res, err := h.runBootstrap(w, r)
	expired := err == nil && res.Expired
	if expired {
		sess = session.Session{}
		if d := h.table.Resolve(sess, requestLocation(r)); d.Action != nav.Render || d.View != nav.ViewLogin {
			obs.GateDecision(nav.ModeAnonymous.String(), nav.Redirect.String())
			http.Redirect(w, r, res.Redirect, http.StatusSeeOther)
			return
		}
	}

	loc := requestLocation(r)
	gated := h.gateSession(sess)
	d := h.resolve(gated, loc)
	if d.Action == nav.Redirect {
		if d.State.From != nil && d.To == nav.LoginPath {
			h.setNavFrom(w, r, *d.State.From)
		}
		http.Redirect(w, r, d.To, http.StatusSeeOther)
		return
	}
	h.mountView(r, gated, d)

	data := shellData{View: d.View, Pattern: d.Props.Pattern, Pathname: loc.Pathname, Search: loc.Search}
	if d.View == nav.ViewLogin && !expired {
		data.From, _ = h.navFrom(r)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := shellTemplate.Execute(w, data); err != nil {
		log.Printf("render_failed request_id=%s view=%s error=%v", middleware.RequestID(r.Context()), d.View, err)
	}
}

// NavigateJSON resolves a client-side navigation given as ?path=.
func (h *Handlers) NavigateJSON(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("path"))
	if raw == "" || !strings.HasPrefix(raw, "/") {
		util.WriteError(w, 400, "bad_request", "path must be an absolute location", middleware.RequestID(r.Context()))
		return
	}
	loc := nav.ParseLocation(raw)
	gated := h.gateSession(middleware.Session(r.Context()))
	d := h.resolve(gated, loc)
	out := navigationResponse{Action: d.Action.String(), Mode: d.Mode.String()}
	if d.Action == nav.Redirect {
		out.To = d.To
		if d.State.From != nil {
			st := d.State
			out.State = &st
		}
	} else {
		h.enterView(r, gated, d)
		props := d.Props
		out.View = d.View
		out.Props = &props
	}
	util.WriteJSON(w, 200, out)
}

func (h *Handlers) resolve(sess session.Session, loc nav.Location) nav.Decision {
	d := h.table.Resolve(sess, loc)
	obs.GateDecision(d.Mode.String(), d.Action.String())
	return d
}

// gateSession is the session the gate sees. By default that is identity
// presence alone; with NavGateChecksLiveness a credential that is no longer
// live counts as anonymous.
func (h *Handlers) gateSession(sess session.Session) session.Session {
	if h.cfg.NavGateChecksLiveness && sess.Authenticated() && !sess.Live(h.now()) {
		return session.Session{}
	}
	return sess
}

// mountView handles a document load: the dashboard is always a fresh mount.
func (h *Handlers) mountView(r *http.Request, sess session.Session, d nav.Decision) {
	if d.View != nav.ViewDashboard || h.dash == nil {
		h.leaveDashboard(r)
		return
	}
	h.dash.View(middleware.BrowserID(r.Context())).Engine().Mount(sess, d.Props.Location.Search)
}

// enterView handles a client-side navigation. The dashboard engine only
// resets when the query changed or the browser left the dashboard since.
func (h *Handlers) enterView(r *http.Request, sess session.Session, d nav.Decision) {
	if d.View != nav.ViewDashboard || h.dash == nil {
		h.leaveDashboard(r)
		return
	}
	h.dash.View(middleware.BrowserID(r.Context())).Engine().Enter(sess, d.Props.Location.Search)
}

func (h *Handlers) leaveDashboard(r *http.Request) {
	if h.dash == nil {
		return
	}
	h.dash.Leave(middleware.BrowserID(r.Context()))
}

func requestLocation(r *http.Request) nav.Location {
	loc := nav.Location{Pathname: r.URL.EscapedPath()}
	if loc.Pathname == "" {
		loc.Pathname = "/"
	}
	if r.URL.RawQuery != "" {
		loc.Search = "?" + r.URL.RawQuery
	}
	return loc
}
