package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasmedrano/communitas-backend/pkg/enums"
)

func TestResolveTransitionTable(t *testing.T) {
	tests := []struct {
		name       string
		event      Event
		prior      enums.SubscriptionState
		wantState  enums.SubscriptionState
		wantEffect effect
		wantNil    bool
	}{
		{
			name:       "updated active grants",
			event:      Event{Kind: enums.EventKindSubscriptionUpdated, Status: "active"},
			prior:      enums.SubscriptionStatePastDue,
			wantState:  enums.SubscriptionStateActive,
			wantEffect: effectGrant,
		},
		{
			name:       "updated active with scheduled cancel keeps access",
			event:      Event{Kind: enums.EventKindSubscriptionUpdated, Status: "active", CancelAtPeriodEnd: true},
			prior:      enums.SubscriptionStateActive,
			wantState:  enums.SubscriptionStateCancelScheduled,
			wantEffect: effectGrant,
		},
		{
			name:       "updated trialing grants",
			event:      Event{Kind: enums.EventKindSubscriptionUpdated, Status: "trialing"},
			prior:      enums.SubscriptionStateTrialing,
			wantState:  enums.SubscriptionStateTrialing,
			wantEffect: effectGrant,
		},
		{
			name:       "updated past_due revokes",
			event:      Event{Kind: enums.EventKindSubscriptionUpdated, Status: "past_due"},
			prior:      enums.SubscriptionStateActive,
			wantState:  enums.SubscriptionStatePastDue,
			wantEffect: effectRevoke,
		},
		{
			name:       "updated canceled revokes",
			event:      Event{Kind: enums.EventKindSubscriptionUpdated, Status: "canceled"},
			prior:      enums.SubscriptionStateActive,
			wantState:  enums.SubscriptionStateCanceled,
			wantEffect: effectRevoke,
		},
		{
			name:       "deleted cancels",
			event:      Event{Kind: enums.EventKindSubscriptionDeleted},
			prior:      enums.SubscriptionStateCancelScheduled,
			wantState:  enums.SubscriptionStateCanceled,
			wantEffect: effectRevoke,
		},
		{
			name:       "paused revokes",
			event:      Event{Kind: enums.EventKindSubscriptionPaused},
			prior:      enums.SubscriptionStateActive,
			wantState:  enums.SubscriptionStatePaused,
			wantEffect: effectRevoke,
		},
		{
			name:       "resumed grants",
			event:      Event{Kind: enums.EventKindSubscriptionResumed},
			prior:      enums.SubscriptionStatePaused,
			wantState:  enums.SubscriptionStateActive,
			wantEffect: effectGrant,
		},
		{
			name:       "payment succeeded clears past_due",
			event:      Event{Kind: enums.EventKindPaymentSucceeded},
			prior:      enums.SubscriptionStatePastDue,
			wantState:  enums.SubscriptionStateActive,
			wantEffect: effectGrant,
		},
		{
			name:       "payment succeeded clears unpaid",
			event:      Event{Kind: enums.EventKindPaymentSucceeded},
			prior:      enums.SubscriptionStateUnpaid,
			wantState:  enums.SubscriptionStateActive,
			wantEffect: effectGrant,
		},
		{
			name:    "payment succeeded on healthy subscription is a no-op",
			event:   Event{Kind: enums.EventKindPaymentSucceeded},
			prior:   enums.SubscriptionStateActive,
			wantNil: true,
		},
		{
			name:       "payment failed starts grace period without revoking",
			event:      Event{Kind: enums.EventKindPaymentFailed, Status: "past_due"},
			prior:      enums.SubscriptionStateActive,
			wantState:  enums.SubscriptionStatePastDue,
			wantEffect: effectNone,
		},
		{
			name:       "payment failed escalated to unpaid revokes",
			event:      Event{Kind: enums.EventKindPaymentFailed, Status: "unpaid"},
			prior:      enums.SubscriptionStatePastDue,
			wantState:  enums.SubscriptionStateUnpaid,
			wantEffect: effectRevoke,
		},
		{
			name:    "trial will end never mutates",
			event:   Event{Kind: enums.EventKindTrialWillEnd},
			prior:   enums.SubscriptionStateTrialing,
			wantNil: true,
		},
		{
			name:    "upcoming invoice never mutates",
			event:   Event{Kind: enums.EventKindUpcomingInvoice},
			prior:   enums.SubscriptionStateActive,
			wantNil: true,
		},
		{
			name:    "canceled is terminal",
			event:   Event{Kind: enums.EventKindSubscriptionUpdated, Status: "active"},
			prior:   enums.SubscriptionStateCanceled,
			wantNil: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resolved, err := resolveTransition(tc.event, tc.prior)
			require.NoError(t, err)
			if tc.wantNil {
				assert.Nil(t, resolved)
				return
			}
			require.NotNil(t, resolved)
			assert.Equal(t, tc.wantState, resolved.state)
			assert.Equal(t, tc.wantEffect, resolved.effect)
		})
	}
}

func TestResolveReportedStatusUnmodeledIsNoTransition(t *testing.T) {
	assert.Nil(t, resolveReportedStatus(Event{Status: "incomplete"}))
	assert.Nil(t, resolveReportedStatus(Event{Status: "incomplete_expired"}))
}
