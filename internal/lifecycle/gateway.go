package lifecycle

import "time"

type RequestKind string

const (
	RequestOccupied RequestKind = "occupied"
	RequestLeaving  RequestKind = "leaving"
)

func (k RequestKind) Valid() bool {
	return k == RequestOccupied || k == RequestLeaving
}

type Outcome string

const (
	Approve Outcome = "approve"
	Reject  Outcome = "reject"
)

// Decision is the result of an administrator acting on a pending request.
// When Archive is set the session must be recorded before Next is stored.
type Decision struct {
	Next    State
	Archive *Leaving
}

// SubmitRequest records a user attestation that needs administrator approval.
func (e *Engine) SubmitRequest(st State, kind RequestKind, now time.Time) (State, error) {
	switch kind {
	case RequestOccupied:
		return e.RequestOccupied(st, now)
	case RequestLeaving:
		return e.RequestLeaving(st, now)
	}
	return nil, ErrUnknownRequestKind
}

// Decide consumes a pending request. Approving a leaving request completes
// the session; leaving requests have no reject outcome.
func (e *Engine) Decide(st State, kind RequestKind, outcome Outcome, now time.Time) (Decision, error) {
	switch {
	case kind == RequestOccupied && outcome == Approve:
		next, err := e.ApproveOccupied(st, now)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Next: next}, nil

	case kind == RequestOccupied && outcome == Reject:
		next, err := e.RejectOccupied(st)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Next: next}, nil

	case kind == RequestLeaving && outcome == Approve:
		done, err := e.Complete(st)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Next: Available{}, Archive: &done}, nil

	case kind == RequestLeaving && outcome == Reject:
		return Decision{}, ErrLeavingNotRejected
	}
	return Decision{}, ErrUnknownRequestKind
}
