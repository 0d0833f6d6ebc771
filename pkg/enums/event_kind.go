package enums

// EventKind identifies a typed billing notification after provider payloads
// have been mapped at the ingestion boundary.
type EventKind string

const (
	EventKindSubscriptionCreated EventKind = "subscription_created"
	EventKindSubscriptionUpdated EventKind = "subscription_updated"
	EventKindSubscriptionDeleted EventKind = "subscription_deleted"
	EventKindSubscriptionPaused  EventKind = "subscription_paused"
	EventKindSubscriptionResumed EventKind = "subscription_resumed"
	EventKindPaymentSucceeded    EventKind = "payment_succeeded"
	EventKindPaymentFailed       EventKind = "payment_failed"
	EventKindTrialWillEnd        EventKind = "trial_will_end"
	EventKindUpcomingInvoice     EventKind = "upcoming_invoice"
	EventKindUnknown             EventKind = "unknown"
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	return string(k)
}

// MutatesLedger reports whether the kind drives a state transition. The two
// notification-only kinds and unknown events never touch the ledger.
func (k EventKind) MutatesLedger() bool {
	switch k {
	case EventKindTrialWillEnd, EventKindUpcomingInvoice, EventKindUnknown:
		return false
	default:
		return true
	}
}
