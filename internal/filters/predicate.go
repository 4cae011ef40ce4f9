package filters

import (
	"net/url"
	"sort"
	"strings"
)

// Predicate keys understood by the events API.
const (
	KeyType           = "type"
	KeyEventStatus    = "event_status"
	KeySubscription   = "subscription_type"
	KeyIsWishlisted   = "is_wishlisted"
	KeyEventCreatedBy = "event_created_by"
	KeyStartDate      = "startDate"
	KeyEndDate        = "endDate"
	KeySearch         = "search"
	flagTrue          = "True"
)

// Predicate is the normalized filter set. Absent keys mean unfiltered.
type Predicate map[string]string

func (p Predicate) Values() url.Values {
	v := url.Values{}
	for k, val := range p {
		v.Set(k, val)
	}
	return v
}

func (p Predicate) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+p[k])
	}
	return strings.Join(parts, "&")
}

func (p Predicate) setIf(key, value string) {
	if value != "" {
		p[key] = value
	}
}

// Combined assembles the predicate from every dimension of s.
func Combined(s State) Predicate {
	p := Predicate{}
	p.setIf(KeyType, s.EventType)
	p.setIf(KeyEventStatus, s.Status)
	p.setIf(KeySubscription, s.FeeType)
	if s.Wishlist {
		p[KeyIsWishlisted] = flagTrue
	}
	if s.CreatedByMe {
		p[KeyEventCreatedBy] = flagTrue
	}
	if s.StartDate != "" {
		p[KeyStartDate] = s.StartDate
		p.setIf(KeyEndDate, s.EndDate)
	}
	p.setIf(KeySearch, s.SearchText)
	return p
}

// PredicateFor derives the fetch predicate for the state produced by a.
// Entering wishlist mode fetches by wishlist membership alone.
func PredicateFor(s State, a Action) Predicate {
	if _, ok := a.(Enter); ok && s.Wishlist {
		return Predicate{KeyIsWishlisted: flagTrue}
	}
	return Combined(s)
}
