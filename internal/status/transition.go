package status

import "fmt"

// chainRank orders the main issuance chain. validation_rejected, rejected and
// revoked are branches and have no rank.
var chainRank = map[Status]int{
	Created:               0,
	Pending:               1,
	InValidation:          2,
	Approved:              3,
	PendingAuthentication: 4,
	Issued:                5,
}

// TransitionError describes an edge the state machine does not allow
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s is not allowed", e.From, e.To)
}

// CanTransition reports whether a request in status from may move to status to.
// Redelivery of the current status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if !from.Known() {
		// Nothing is known about a pass-through value, accept any canonical target.
		return to.Known()
	}
	if !to.Known() {
		return !from.Terminal()
	}

	switch from {
	case Rejected, Revoked:
		return false
	case Issued:
		return to == Revoked
	}

	switch to {
	case Rejected:
		return true
	case Revoked:
		return false
	case ValidationRejected:
		return from == Pending || from == InValidation
	}

	if from == ValidationRejected {
		// Approved is accepted too in case the in_validation delivery was missed.
		return to == Pending || to == InValidation || to == Approved
	}

	fromRank, okFrom := chainRank[from]
	toRank, okTo := chainRank[to]
	return okFrom && okTo && toRank > fromRank
}

// CheckTransition returns a *TransitionError when the edge is not allowed
func CheckTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return &TransitionError{From: from, To: to}
}
