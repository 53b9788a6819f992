package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/example/studysync/internal/persistence"
)

// MembershipRepository implements persistence.MembershipRepository using SQLite.
type MembershipRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewMembershipRepository creates a new SQLite membership repository.
func NewMembershipRepository(pool *ConnectionPool) *MembershipRepository {
	return &MembershipRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// AddMember inserts a membership row.
func (r *MembershipRepository) AddMember(ctx context.Context, membership persistence.Membership) error {
	if membership.GroupID == "" || membership.UserID == "" {
		return persistence.ErrConstraintViolation
	}
	if membership.Status == "" {
		membership.Status = persistence.MembershipActive
	}

	now := time.Now().UTC()
	_, err := r.helper.Exec(ctx, `
		INSERT INTO group_members (group_id, user_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		membership.GroupID,
		membership.UserID,
		string(membership.Status),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// SetMemberStatus transitions an existing membership to status.
func (r *MembershipRepository) SetMemberStatus(ctx context.Context, groupID, userID string, status persistence.MembershipStatus) error {
	result, err := r.helper.Exec(ctx, `
		UPDATE group_members
		SET status = ?, updated_at = ?
		WHERE group_id = ? AND user_id = ?
	`,
		string(status),
		time.Now().UTC().Format(time.RFC3339),
		groupID,
		userID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ListActiveMembers returns the active members of a group joined with the
// user fields the reconcilers need.
func (r *MembershipRepository) ListActiveMembers(ctx context.Context, groupID string) ([]persistence.ActiveMember, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT u.id, u.email, u.chat_user_id
		FROM group_members gm
		JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = ? AND gm.status = ? AND u.disabled = 0
		ORDER BY u.email ASC, u.id ASC
	`, groupID, string(persistence.MembershipActive))
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var members []persistence.ActiveMember
	for rows.Next() {
		var member persistence.ActiveMember
		if err := rows.Scan(&member.UserID, &member.Email, &member.ChatUserID); err != nil {
			return nil, r.mapper.MapError(err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return members, nil
}

// IsActiveMember reports whether the user is an active member of the group.
func (r *MembershipRepository) IsActiveMember(ctx context.Context, groupID, userID string) (bool, error) {
	var exists int
	err := r.helper.QueryRow(ctx, `
		SELECT COUNT(1)
		FROM group_members
		WHERE group_id = ? AND user_id = ? AND status = ?
	`, groupID, userID, string(persistence.MembershipActive)).Scan(&exists)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return exists > 0, nil
}

// ActiveGroupForUserInCohort resolves the group the user actively belongs to
// within a cohort.
func (r *MembershipRepository) ActiveGroupForUserInCohort(ctx context.Context, userID, cohortID string) (persistence.Group, error) {
	row := r.helper.QueryRow(ctx, `
		SELECT g.id, g.cohort_id, g.name, g.recurring_event_id, g.chat_channel_id, g.chat_role_id, g.created_at, g.updated_at
		FROM group_members gm
		JOIN groups g ON g.id = gm.group_id
		WHERE gm.user_id = ? AND gm.status = ? AND g.cohort_id = ?
		LIMIT 1
	`, userID, string(persistence.MembershipActive), cohortID)

	return scanGroup(row)
}
