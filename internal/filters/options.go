package filters

import (
	"strings"

	"eventclient/internal/nav"
)

// Option is a selectable dropdown entry. Type is what reaches the predicate.
type Option struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

var StatusOptions = []Option{
	{Key: "upcoming", Label: "Upcoming", Type: "upcoming"},
	{Key: "completed", Label: "Completed", Type: "completed"},
	{Key: "all", Label: "All", Type: ""},
}

var FeeTypeOptions = []Option{
	{Key: "all", Label: "All", Type: ""},
	{Key: "free", Label: "Free", Type: "free"},
	{Key: "paid", Label: "Paid", Type: "paid"},
}

func resolveOption(options []Option, key string) (string, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, o := range options {
		if o.Key == key {
			return o.Type, nil
		}
	}
	return "", ErrUnknownOption
}

// Heading is what the dashboard shows above the filters. Back is set in
// wishlist mode and points at the plain dashboard.
type Heading struct {
	Title string `json:"title"`
	Back  string `json:"back,omitempty"`
}

func HeadingFor(s State) Heading {
	if s.Wishlist {
		return Heading{Title: "Wishlist", Back: nav.DashboardPath}
	}
	return Heading{Title: "Event Management"}
}
