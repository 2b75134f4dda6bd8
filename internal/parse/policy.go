package parse

import (
	"errors"
	"fmt"
)

// Confidence thresholds shared by the single-entry and batch code paths.
// Confidence is an integer on a 0-100 scale everywhere in this module;
// callers holding a 0-1 fraction multiply by 100 before comparing.
const (
	// AutoLogThreshold is the strict lower bound for logging without
	// user interaction.
	AutoLogThreshold = 80
	// ConfirmThreshold is the strict lower bound for offering a yes/no
	// confirmation; at or below it the user is asked to rephrase.
	ConfirmThreshold = 50
)

// Decision is the three-way outcome of the confirmation policy.
type Decision string

const (
	DecisionAutoLog  Decision = "auto_log"
	DecisionConfirm  Decision = "confirm"
	DecisionRephrase Decision = "rephrase"
)

// Decide maps a confidence value onto a policy decision.
func Decide(confidence int) Decision {
	switch {
	case confidence > AutoLogThreshold:
		return DecisionAutoLog
	case confidence > ConfirmThreshold:
		return DecisionConfirm
	default:
		return DecisionRephrase
	}
}

// ConfirmationState tracks where a parsed activity sits in the
// confirmation workflow. The machine is re-entered fresh on every parse;
// it holds no memory of earlier attempts.
type ConfirmationState string

const (
	StateAutoLogged          ConfirmationState = "auto_logged"
	StatePendingConfirmation ConfirmationState = "pending_confirmation"
	StateRejected            ConfirmationState = "rejected"
	StateNeedsRephrase       ConfirmationState = "needs_rephrase"
)

// ErrNotAwaitingConfirmation is returned when Resolve is called on a
// state with no pending user decision.
var ErrNotAwaitingConfirmation = errors.New("no confirmation pending for this state")

// InitialState derives the starting state from a confidence value.
func InitialState(confidence int) ConfirmationState {
	switch Decide(confidence) {
	case DecisionAutoLog:
		return StateAutoLogged
	case DecisionConfirm:
		return StatePendingConfirmation
	default:
		return StateNeedsRephrase
	}
}

// Resolve applies the user's yes/no answer to a pending confirmation.
func (s ConfirmationState) Resolve(accepted bool) (ConfirmationState, error) {
	if s != StatePendingConfirmation {
		return s, fmt.Errorf("%w: state %q", ErrNotAwaitingConfirmation, s)
	}
	if accepted {
		return StateAutoLogged, nil
	}
	return StateRejected, nil
}

// RephraseHint suggests example phrasings when parsing could not produce
// a loggable result.
func RephraseHint() string {
	return `try something like "ran 5k in 25 minutes", "weight 175", "ate eggs for breakfast", or "slept 7.5 hours"`
}
