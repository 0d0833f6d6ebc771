package reconciler

import (
	"fmt"

	"github.com/lucasmedrano/communitas-backend/pkg/enums"
)

// effect is the entitlement side of a transition.
type effect int

const (
	effectNone effect = iota
	effectGrant
	effectRevoke
)

// transition is a resolved step of the subscription state machine.
type transition struct {
	state  enums.SubscriptionState
	effect effect
}

// resolveTransition maps an event onto the state it demands, given the prior
// ledger state. It matches on the event's own payload rather than assuming
// monotonic progression, which is what keeps reordered deliveries safe.
// A nil result means the event leaves the ledger state untouched.
func resolveTransition(event Event, prior enums.SubscriptionState) (*transition, error) {
	if prior.IsTerminal() {
		// Canceled admits no further transitions; late or reordered events
		// for a finished subscription are dropped here.
		return nil, nil
	}

	switch event.Kind {
	case enums.EventKindSubscriptionCreated, enums.EventKindSubscriptionUpdated:
		return resolveReportedStatus(event), nil

	case enums.EventKindSubscriptionDeleted:
		return &transition{state: enums.SubscriptionStateCanceled, effect: effectRevoke}, nil

	case enums.EventKindSubscriptionPaused:
		return &transition{state: enums.SubscriptionStatePaused, effect: effectRevoke}, nil

	case enums.EventKindSubscriptionResumed:
		return &transition{state: enums.SubscriptionStateActive, effect: effectGrant}, nil

	case enums.EventKindPaymentSucceeded:
		// A successful payment only moves the ledger when it clears a
		// delinquent state; for an already-healthy subscription the invoice
		// mirror is the only write.
		if prior == enums.SubscriptionStatePastDue || prior == enums.SubscriptionStateUnpaid {
			return &transition{state: enums.SubscriptionStateActive, effect: effectGrant}, nil
		}
		return nil, nil

	case enums.EventKindPaymentFailed:
		// past_due is a grace period: access survives until the provider
		// escalates to unpaid or the grace window expires.
		if event.Status == string(enums.SubscriptionStateUnpaid) {
			return &transition{state: enums.SubscriptionStateUnpaid, effect: effectRevoke}, nil
		}
		return &transition{state: enums.SubscriptionStatePastDue, effect: effectNone}, nil

	case enums.EventKindTrialWillEnd, enums.EventKindUpcomingInvoice, enums.EventKindUnknown:
		return nil, nil

	default:
		return nil, fmt.Errorf("unhandled event kind %q", event.Kind)
	}
}

// resolveReportedStatus maps the provider's own status field onto a ledger
// state. An active subscription flagged cancel_at_period_end becomes
// cancel_scheduled, which still grants access until the period boundary.
// Statuses outside the modeled set (Stripe's incomplete/incomplete_expired,
// where the first payment never settled) resolve to no transition: the
// delivery is acknowledged and the ledger waits for an active or trialing
// report.
func resolveReportedStatus(event Event) *transition {
	switch event.Status {
	case string(enums.SubscriptionStateActive):
		if event.CancelAtPeriodEnd {
			return &transition{state: enums.SubscriptionStateCancelScheduled, effect: effectGrant}
		}
		return &transition{state: enums.SubscriptionStateActive, effect: effectGrant}
	case string(enums.SubscriptionStateTrialing):
		return &transition{state: enums.SubscriptionStateTrialing, effect: effectGrant}
	case string(enums.SubscriptionStatePastDue):
		return &transition{state: enums.SubscriptionStatePastDue, effect: effectRevoke}
	case string(enums.SubscriptionStateUnpaid):
		return &transition{state: enums.SubscriptionStateUnpaid, effect: effectRevoke}
	case string(enums.SubscriptionStateCanceled):
		return &transition{state: enums.SubscriptionStateCanceled, effect: effectRevoke}
	case string(enums.SubscriptionStatePaused):
		return &transition{state: enums.SubscriptionStatePaused, effect: effectRevoke}
	default:
		return nil
	}
}
