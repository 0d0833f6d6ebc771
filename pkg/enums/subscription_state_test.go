package enums

import "testing"

func TestSubscriptionStateAccessSet(t *testing.T) {
	granting := []SubscriptionState{
		SubscriptionStateTrialing,
		SubscriptionStateActive,
		SubscriptionStateCancelScheduled,
	}
	revoking := []SubscriptionState{
		SubscriptionStatePastDue,
		SubscriptionStateUnpaid,
		SubscriptionStatePaused,
		SubscriptionStateCanceled,
	}
	for _, s := range granting {
		if !s.GrantsAccess() {
			t.Fatalf("%s must grant access", s)
		}
	}
	for _, s := range revoking {
		if s.GrantsAccess() {
			t.Fatalf("%s must revoke access", s)
		}
	}
}

func TestParseSubscriptionState(t *testing.T) {
	state, err := ParseSubscriptionState("cancel_scheduled")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if state != SubscriptionStateCancelScheduled {
		t.Fatalf("unexpected state %s", state)
	}
	if _, err := ParseSubscriptionState("bogus"); err == nil {
		t.Fatalf("expected error for unknown state")
	}
}

func TestOnlyCanceledIsTerminal(t *testing.T) {
	for _, s := range validSubscriptionStates {
		if s.IsTerminal() != (s == SubscriptionStateCanceled) {
			t.Fatalf("terminality wrong for %s", s)
		}
	}
}
