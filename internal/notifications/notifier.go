package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lucasmedrano/communitas-backend/pkg/logger"
)

// Kind classifies billing notifications handed to the delivery subsystem.
type Kind string

const (
	KindTrialEnding     Kind = "trial_ending"
	KindUpcomingInvoice Kind = "upcoming_invoice"
	KindPaymentFailed   Kind = "payment_failed"
	KindAccessRevoked   Kind = "access_revoked"
)

// Notification is the payload forwarded to the delivery subsystem. Delivery
// channels (email, push, digests) live outside this service.
type Notification struct {
	Kind           Kind
	UserID         uuid.UUID
	CommunityID    uuid.UUID
	SubscriptionID string
	AmountCents    int64
	Currency       string
	DueAt          *time.Time
}

// Notifier forwards billing notifications. Implementations must be safe for
// concurrent use and must not block the reconciliation path.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// LogNotifier writes notifications to the structured log. It stands in for
// the delivery subsystem in environments without one configured.
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier builds a notifier that records deliveries in the log.
func NewLogNotifier(logg *logger.Logger) (*LogNotifier, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &LogNotifier{logger: logg}, nil
}

func (n *LogNotifier) Notify(ctx context.Context, notification Notification) error {
	ctx = n.logger.WithFields(ctx, map[string]any{
		"notification_kind": string(notification.Kind),
		"user_id":           notification.UserID.String(),
		"community_id":      notification.CommunityID.String(),
	})
	if notification.SubscriptionID != "" {
		ctx = n.logger.WithSubscriptionID(ctx, notification.SubscriptionID)
	}
	n.logger.Info(ctx, "billing notification")
	return nil
}
