package models

import (
	"fmt"
	"slices"
)

// Status is the single source of truth for a pledge's lifecycle position.
type Status string

const (
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusResolved Status = "resolved"
	StatusDefunct  Status = "defunct"
)

// OpenStatuses are the statuses a pledge can still leave.
var OpenStatuses = []Status{StatusActive, StatusPaused}

var allowedTransitions = map[Status][]Status{
	StatusActive: {StatusPaused, StatusResolved, StatusDefunct},
	StatusPaused: {StatusActive, StatusResolved, StatusDefunct},
}

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusResolved, StatusDefunct:
		return true
	}
	return false
}

// IsTerminal reports whether s is absorbing.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusDefunct
}

// CanTransitionTo reports whether s -> to is a legal edge.
// Self-transitions are not edges; callers treat them as no-ops.
func (s Status) CanTransitionTo(to Status) bool {
	return slices.Contains(allowedTransitions[s], to)
}

// ParseStatus parses a stored or requested status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown celebration status %q", v)
	}
	return s, nil
}
