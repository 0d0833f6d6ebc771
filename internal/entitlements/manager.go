package entitlements

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lucasmedrano/communitas-backend/internal/communities"
	"github.com/lucasmedrano/communitas-backend/internal/memberships"
	"github.com/lucasmedrano/communitas-backend/pkg/enums"
)

// Manager grants and revokes paid-community access. Both operations are
// idempotent: callers may invoke them any number of times for the same
// subscriber without corrupting the membership row or the member counter.
type Manager interface {
	// Grant ensures the user holds an active membership in the community.
	// It reports whether anything changed.
	Grant(ctx context.Context, tx *gorm.DB, userID, communityID uuid.UUID) (bool, error)
	// Revoke suspends the user's membership, keeping the row for history.
	// It reports whether anything changed.
	Revoke(ctx context.Context, tx *gorm.DB, userID, communityID uuid.UUID) (bool, error)
}

type manager struct {
	memberships memberships.Repository
	communities communities.Repository
}

// NewManager builds an entitlement manager over the provided repositories.
func NewManager(membershipsRepo memberships.Repository, communitiesRepo communities.Repository) (Manager, error) {
	if membershipsRepo == nil {
		return nil, fmt.Errorf("memberships repository required")
	}
	if communitiesRepo == nil {
		return nil, fmt.Errorf("communities repository required")
	}
	return &manager{
		memberships: membershipsRepo,
		communities: communitiesRepo,
	}, nil
}

// Grant runs inside the caller's transaction so the membership write and the
// ledger write that triggered it commit or roll back together.
//
// The member counter moves only when a membership row is created: a
// suspended row rejoining keeps its original count contribution, since
// suspension never decremented it twice.
func (m *manager) Grant(ctx context.Context, tx *gorm.DB, userID, communityID uuid.UUID) (bool, error) {
	membershipsRepo := m.memberships.WithTx(tx)
	communitiesRepo := m.communities.WithTx(tx)

	membership, err := membershipsRepo.Get(ctx, userID, communityID)
	if err != nil {
		return false, fmt.Errorf("load membership: %w", err)
	}

	switch {
	case membership == nil:
		if _, err := membershipsRepo.Create(ctx, communityID, userID, enums.MemberRoleMember, enums.MembershipStatusActive); err != nil {
			return false, fmt.Errorf("create membership: %w", err)
		}
		if err := communitiesRepo.AdjustMemberCount(ctx, communityID, 1); err != nil {
			return false, fmt.Errorf("increment member count: %w", err)
		}
		return true, nil
	case membership.Status == enums.MembershipStatusSuspended:
		if err := membershipsRepo.UpdateStatus(ctx, membership.ID, enums.MembershipStatusActive); err != nil {
			return false, fmt.Errorf("reactivate membership: %w", err)
		}
		return true, nil
	default:
		return false, nil
	}
}

// Revoke suspends rather than deletes: the row anchors rejoin history and
// the unique (community, user) pair. Only an active membership moves the
// counter down, which is what keeps double revokes harmless.
func (m *manager) Revoke(ctx context.Context, tx *gorm.DB, userID, communityID uuid.UUID) (bool, error) {
	membershipsRepo := m.memberships.WithTx(tx)
	communitiesRepo := m.communities.WithTx(tx)

	membership, err := membershipsRepo.Get(ctx, userID, communityID)
	if err != nil {
		return false, fmt.Errorf("load membership: %w", err)
	}
	if membership == nil || membership.Status != enums.MembershipStatusActive {
		return false, nil
	}

	if err := membershipsRepo.UpdateStatus(ctx, membership.ID, enums.MembershipStatusSuspended); err != nil {
		return false, fmt.Errorf("suspend membership: %w", err)
	}
	if err := communitiesRepo.AdjustMemberCount(ctx, communityID, -1); err != nil {
		return false, fmt.Errorf("decrement member count: %w", err)
	}
	return true, nil
}
