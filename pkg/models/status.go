package models

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusAvailable   Status = "AVAILABLE"
	StatusReserved    Status = "RESERVED"
	StatusAllocated   Status = "ALLOCATED"
	StatusActivated   Status = "ACTIVATED"
	StatusDeactivated Status = "DEACTIVATED"
)

// Statuses lists every lifecycle status in declaration order.
var Statuses = []Status{
	StatusAvailable,
	StatusReserved,
	StatusAllocated,
	StatusActivated,
	StatusDeactivated,
}

// transitions is the adjacency table of the number lifecycle. There is no
// terminal state: a deactivated number can return to service.
var transitions = map[Status][]Status{
	StatusAvailable:   {StatusReserved},
	StatusReserved:    {StatusAvailable, StatusAllocated},
	StatusAllocated:   {StatusActivated, StatusAvailable},
	StatusActivated:   {StatusDeactivated},
	StatusDeactivated: {StatusAvailable, StatusActivated},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether the table allows moving from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllowedTransitions returns a copy of the statuses reachable from s.
func (s Status) AllowedTransitions() []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// HoldsActor reports whether a number in this status carries a holder.
func (s Status) HoldsActor() bool {
	return s == StatusReserved || s == StatusAllocated
}

// ParseStatus accepts any casing of a status name.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrMalformedInput, raw)
	}
	return s, nil
}
