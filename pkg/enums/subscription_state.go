package enums

import "fmt"

// SubscriptionState is the canonical ledger state of a community subscription.
type SubscriptionState string

const (
	SubscriptionStateTrialing        SubscriptionState = "trialing"
	SubscriptionStateActive          SubscriptionState = "active"
	SubscriptionStatePastDue         SubscriptionState = "past_due"
	SubscriptionStateUnpaid          SubscriptionState = "unpaid"
	SubscriptionStatePaused          SubscriptionState = "paused"
	SubscriptionStateCancelScheduled SubscriptionState = "cancel_scheduled"
	SubscriptionStateCanceled        SubscriptionState = "canceled"
)

var validSubscriptionStates = []SubscriptionState{
	SubscriptionStateTrialing,
	SubscriptionStateActive,
	SubscriptionStatePastDue,
	SubscriptionStateUnpaid,
	SubscriptionStatePaused,
	SubscriptionStateCancelScheduled,
	SubscriptionStateCanceled,
}

// AccessGrantingStates lists the states that entitle the subscriber to paid
// content. Query helpers use it for IN clauses.
func AccessGrantingStates() []SubscriptionState {
	states := make([]SubscriptionState, 0, len(validSubscriptionStates))
	for _, candidate := range validSubscriptionStates {
		if candidate.GrantsAccess() {
			states = append(states, candidate)
		}
	}
	return states
}

// String implements fmt.Stringer.
func (s SubscriptionState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SubscriptionState.
func (s SubscriptionState) IsValid() bool {
	for _, candidate := range validSubscriptionStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// GrantsAccess reports whether the state entitles the subscriber to paid
// content. Everything outside this set revokes access.
func (s SubscriptionState) GrantsAccess() bool {
	switch s {
	case SubscriptionStateTrialing, SubscriptionStateActive, SubscriptionStateCancelScheduled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state admits no further transitions.
func (s SubscriptionState) IsTerminal() bool {
	return s == SubscriptionStateCanceled
}

// ParseSubscriptionState converts raw input into a SubscriptionState.
func ParseSubscriptionState(value string) (SubscriptionState, error) {
	for _, candidate := range validSubscriptionStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription state %q", value)
}
