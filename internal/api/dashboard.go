package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eventclient/internal/dashboard"
	"eventclient/internal/filters"
	"eventclient/internal/middleware"
	"eventclient/internal/session"
	"eventclient/internal/util"
)

type filterRequest struct {
	Value string `json:"value"`
	Start string `json:"start"`
	End   string `json:"end"`
	Text  string `json:"text"`
}

type dashboardResponse struct {
	dashboard.Snapshot
	CanCreate bool `json:"can_create"`
}

func (h *Handlers) view(r *http.Request) (*dashboard.View, session.Session) {
	return h.dash.View(middleware.BrowserID(r.Context())), middleware.Session(r.Context())
}

func (h *Handlers) writeDashboard(w http.ResponseWriter, v *dashboard.View, sess session.Session) {
	util.WriteJSON(w, 200, dashboardResponse{Snapshot: v.Snapshot(), CanCreate: dashboard.CanCreate(sess)})
}

func (h *Handlers) DashboardState(w http.ResponseWriter, r *http.Request) {
	v, sess := h.view(r)
	h.writeDashboard(w, v, sess)
}

func (h *Handlers) DashboardOptions(w http.ResponseWriter, r *http.Request) {
	util.WriteJSON(w, 200, map[string]any{
		"status":   filters.StatusOptions,
		"fee_type": filters.FeeTypeOptions,
	})
}

func (h *Handlers) DashboardNotifications(w http.ResponseWriter, r *http.Request) {
	v, _ := h.view(r)
	util.WriteJSON(w, 200, map[string]any{"items": v.TakeNotifications()})
}

func (h *Handlers) SetEventType(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(e *filters.Engine, sess session.Session, req filterRequest) error {
		e.SetEventType(sess, req.Value)
		return nil
	})
}

func (h *Handlers) SetStatus(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(e *filters.Engine, sess session.Session, req filterRequest) error {
		_, err := e.SetStatus(sess, req.Value)
		return err
	})
}

func (h *Handlers) SetFeeType(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(e *filters.Engine, sess session.Session, req filterRequest) error {
		_, err := e.SetFeeType(sess, req.Value)
		return err
	})
}

func (h *Handlers) SetDateRange(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(e *filters.Engine, sess session.Session, req filterRequest) error {
		_, err := e.SetDateRange(sess, req.Start, req.End)
		return err
	})
}

func (h *Handlers) SubmitSearch(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(e *filters.Engine, sess session.Session, req filterRequest) error {
		e.SubmitSearch(sess, req.Text)
		return nil
	})
}

func (h *Handlers) ToggleCreatedByMe(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(e *filters.Engine, sess session.Session, _ filterRequest) error {
		_, err := e.ToggleCreatedByMe(sess)
		return err
	})
}

func (h *Handlers) RemoveFilters(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(e *filters.Engine, sess session.Session, _ filterRequest) error {
		e.RemoveFilters(sess)
		return nil
	})
}

func (h *Handlers) OpenEvent(w http.ResponseWriter, r *http.Request) {
	v, sess := h.view(r)
	to, err := v.OpenEvent(r.Context(), sess, chi.URLParam(r, "id"))
	if err != nil {
		util.WriteError(w, 502, "event_unavailable", "unable to open event", middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, map[string]string{"redirect": to})
}

func (h *Handlers) mutate(w http.ResponseWriter, r *http.Request, fn func(*filters.Engine, session.Session, filterRequest) error) {
	var req filterRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
			return
		}
	}
	v, sess := h.view(r)
	if err := fn(v.Engine(), sess, req); err != nil {
		status, code := 400, "bad_request"
		switch {
		case errors.Is(err, filters.ErrInvalidDate):
			code = "invalid_date"
		case errors.Is(err, filters.ErrUnknownOption):
			code = "unknown_option"
		case errors.Is(err, filters.ErrNotOrganizer):
			status, code = 403, "forbidden"
		}
		util.WriteError(w, status, code, err.Error(), middleware.RequestID(r.Context()))
		return
	}
	h.writeDashboard(w, v, sess)
}
