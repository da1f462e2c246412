// Package approval tracks each threat's moderation lifecycle: not posted,
// pending review, approved, or rejected. Transitions are pure functions that
// return the next state plus any publication side effect; executing effects
// and persisting states belongs to the caller.
package approval

import (
	"fmt"
	"time"
)

// Status is a threat's position in the approval lifecycle.
type Status string

const (
	// StatusNotPosted means the threat has never been sent for moderation.
	StatusNotPosted Status = "not_posted"

	// StatusPending means the threat is awaiting a moderator decision.
	StatusPending Status = "pending"

	// StatusApproved is terminal: the moderator approved publication.
	StatusApproved Status = "approved"

	// StatusRejected is terminal: the moderator rejected the threat,
	// optionally supplying edited text to publish instead.
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further transitions are possible without a
// fresh posting event.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotPosted, StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// State is the persisted approval record for one threat. The status only
// moves forward along the transition graph; re-opening a terminal state
// requires constructing a fresh State and posting again, which produces a
// new transmission reference.
type State struct {
	ThreatID     string    `json:"threat_id"`
	Status       Status    `json:"status"`
	Ref          string    `json:"ref,omitempty"` // transmission reference from the moderator post
	Priority     string    `json:"priority,omitempty"`
	PostedAt     time.Time `json:"posted_at,omitzero"`
	DecidedAt    time.Time `json:"decided_at,omitzero"`
	EditedText   string    `json:"edited_text,omitempty"`
	PublishedRef string    `json:"published_ref,omitempty"`
}

// NewState returns the initial state for a threat that has never been posted.
func NewState(threatID string) State {
	return State{ThreatID: threatID, Status: StatusNotPosted}
}

// DecisionKind classifies a moderator signal observed on a pending post.
type DecisionKind int

const (
	DecisionNone DecisionKind = iota
	DecisionApproved
	DecisionRejected
)

// String returns the decision kind for logs and metrics labels.
func (k DecisionKind) String() string {
	switch k {
	case DecisionApproved:
		return "approved"
	case DecisionRejected:
		return "rejected"
	default:
		return "none"
	}
}

// Decision is the outcome of polling the moderator for one transmission
// reference.
type Decision struct {
	Kind       DecisionKind
	EditedText string // set on reject-with-edit
}

// Transition is the result of applying a decision: the next state plus
// whether the caller must publish the threat to the community. Publish is set
// at most once per threat because Apply never fires on a terminal state.
type Transition struct {
	Next    State
	Publish bool
}

// Post moves a not-posted threat to pending, recording the transmission
// reference and posting time. Any other starting status is an error; the
// state machine never silently regresses.
func (s State) Post(ref, priority string, now time.Time) (State, error) {
	if s.Status != StatusNotPosted {
		return s, fmt.Errorf("approval: cannot post threat %s from status %q", s.ThreatID, s.Status)
	}
	if ref == "" {
		return s, fmt.Errorf("approval: empty transmission reference for threat %s", s.ThreatID)
	}

	next := s
	next.Status = StatusPending
	next.Ref = ref
	next.Priority = priority
	next.PostedAt = now
	return next, nil
}

// Apply folds a moderator decision into the state. Decisions observed
// against a terminal state are no-ops, so re-polling the same signal never
// re-triggers publication. DecisionNone leaves a pending state untouched.
//
// A rejection carrying edited text still publishes, with the edit replacing
// the original description; a bare rejection drops the threat.
func (s State) Apply(d Decision, now time.Time) (Transition, error) {
	if s.Status.Terminal() || d.Kind == DecisionNone {
		return Transition{Next: s}, nil
	}
	if s.Status != StatusPending {
		return Transition{Next: s}, fmt.Errorf("approval: decision for threat %s in status %q", s.ThreatID, s.Status)
	}

	next := s
	next.DecidedAt = now

	switch d.Kind {
	case DecisionApproved:
		next.Status = StatusApproved
		return Transition{Next: next, Publish: true}, nil
	case DecisionRejected:
		next.Status = StatusRejected
		next.EditedText = d.EditedText
		return Transition{Next: next, Publish: d.EditedText != ""}, nil
	default:
		return Transition{Next: s}, fmt.Errorf("approval: unknown decision kind %d for threat %s", d.Kind, s.ThreatID)
	}
}
