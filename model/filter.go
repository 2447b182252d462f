package model

import (
	"strings"

	"github.com/pkg/errors"
)

// FilterDefinition is a user-authored constraint narrowing which
// predictions at a stop are relevant. Route and direction are either
// both unset, route-only, or both set; a direction without a route is
// meaningless in this domain and is rejected by Validate.
type FilterDefinition struct {
	StopID     string `json:"stop_id"`
	StopName   string `json:"stop_name,omitempty"`
	Route      string `json:"route,omitempty"`
	Direction  string `json:"direction,omitempty"`
	CustomName string `json:"custom_name,omitempty"`
}

func (d FilterDefinition) Validate() error {
	if d.StopID == "" {
		return errors.New("filter definition requires a stop id")
	}

	if d.Direction != "" && d.Route == "" {
		return errors.New("direction filter requires a route filter")
	}

	return nil
}

// Key identifies a definition by its (stop, route, direction) tuple.
// Two definitions with equal keys are exact duplicates.
func (d FilterDefinition) Key() string {
	return strings.ToLower(strings.Join([]string{d.StopID, d.Route, d.Direction}, "|"))
}

// Identity is the resolved, globally unique identity of one filter:
// a stable slug for keying state and a human-legible name.
type Identity struct {
	Slug         string           `json:"slug"`
	FriendlyName string           `json:"friendly_name"`
	Def          FilterDefinition `json:"def"`
}
