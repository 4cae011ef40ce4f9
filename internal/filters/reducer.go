// Package filters owns the dashboard's filter dimensions.
//
// State transitions are a pure reducer. The predicate sent to the events API
// is derived from the whole resulting state, never from the changed field
// alone, so a predicate can not mix an old value of one dimension with a new
// value of another.
package filters

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

var (
	ErrInvalidDate   = errors.New("filters: invalid date range")
	ErrUnknownOption = errors.New("filters: unknown option")
	ErrNotOrganizer  = errors.New("filters: created-by-me requires the organizer role")
)

const (
	DefaultStatus = "upcoming"

	// InputDateLayout is what the range picker submits; dates are stored in ISO form.
	InputDateLayout = "02-01-2006"
	isoDateLayout   = "2006-01-02"

	wishlistQueryKey   = "type"
	wishlistQueryValue = "wishlist"
)

type State struct {
	SearchText  string `json:"search_text"`
	EventType   string `json:"event_type"`
	Status      string `json:"status"`
	FeeType     string `json:"fee_type"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	CreatedByMe bool   `json:"created_by_me"`
	Wishlist    bool   `json:"wishlist"`
}

func Initial() State { return State{Status: DefaultStatus} }

// Action is a state transition. The set is closed.
type Action interface {
	reduce(State) State
}

// Enter is dispatched when the dashboard route is entered with a new query string.
type Enter struct{ Search string }

type SetEventType struct{ Value string }

// SetStatus carries a resolved status type; "" means every status.
type SetStatus struct{ Value string }

type SetFeeType struct{ Value string }

// SetDateRange carries ISO dates. Anything but a full pair clears both bounds.
type SetDateRange struct{ Start, End string }

type SubmitSearch struct{ Text string }

type ToggleCreatedByMe struct{}

// RemoveFilters resets every dimension except wishlist membership.
type RemoveFilters struct{}

func (a Enter) reduce(State) State {
	s := Initial()
	s.Wishlist = IsWishlistQuery(a.Search)
	return s
}

func (a SetEventType) reduce(s State) State {
	s.EventType = a.Value
	return s
}

func (a SetStatus) reduce(s State) State {
	s.Status = a.Value
	return s
}

func (a SetFeeType) reduce(s State) State {
	s.FeeType = a.Value
	return s
}

func (a SubmitSearch) reduce(s State) State {
	s.SearchText = a.Text
	return s
}

func (a SetDateRange) reduce(s State) State {
	if a.Start == "" || a.End == "" {
		s.StartDate, s.EndDate = "", ""
		return s
	}
	s.StartDate, s.EndDate = a.Start, a.End
	return s
}

func (ToggleCreatedByMe) reduce(s State) State {
	s.CreatedByMe = !s.CreatedByMe
	return s
}

func (RemoveFilters) reduce(s State) State {
	next := Initial()
	next.Wishlist = s.Wishlist
	return next
}

func Reduce(s State, a Action) State {
	if a == nil {
		return s
	}
	return a.reduce(s)
}

// IsWishlistQuery reports whether a location query string selects wishlist mode.
func IsWishlistQuery(search string) bool {
	q, err := url.ParseQuery(strings.TrimPrefix(search, "?"))
	if err != nil {
		return false
	}
	return q.Get(wishlistQueryKey) == wishlistQueryValue
}

// ParseDateRange converts picker input into a SetDateRange. A partial
// selection is not an error: it yields an empty range.
func ParseDateRange(start, end string) (SetDateRange, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" || end == "" {
		return SetDateRange{}, nil
	}
	from, err := time.Parse(InputDateLayout, start)
	if err != nil {
		return SetDateRange{}, ErrInvalidDate
	}
	to, err := time.Parse(InputDateLayout, end)
	if err != nil {
		return SetDateRange{}, ErrInvalidDate
	}
	if to.Before(from) {
		return SetDateRange{}, ErrInvalidDate
	}
	return SetDateRange{Start: from.Format(isoDateLayout), End: to.Format(isoDateLayout)}, nil
}
