package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/studysync/internal/persistence"
)

// GroupRepository implements persistence.GroupRepository using SQLite.
type GroupRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewGroupRepository creates a new SQLite group repository.
func NewGroupRepository(pool *ConnectionPool) *GroupRepository {
	return &GroupRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateGroup inserts a new group into the database.
func (r *GroupRepository) CreateGroup(ctx context.Context, group persistence.Group) error {
	if group.ID == "" {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now

	var eventID sql.NullString
	if group.RecurringEventID != nil {
		eventID.String = *group.RecurringEventID
		eventID.Valid = true
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO groups (id, cohort_id, name, recurring_event_id, chat_channel_id, chat_role_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		group.ID,
		group.CohortID,
		group.Name,
		eventID,
		group.ChatChannelID,
		group.ChatRoleID,
		group.CreatedAt.Format(time.RFC3339),
		group.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (r *GroupRepository) GetGroup(ctx context.Context, id string) (persistence.Group, error) {
	if id == "" {
		return persistence.Group{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, `
		SELECT id, cohort_id, name, recurring_event_id, chat_channel_id, chat_role_id, created_at, updated_at
		FROM groups
		WHERE id = ?
	`, id)
	return scanGroup(row)
}

// ListGroups returns all groups ordered by cohort then name.
func (r *GroupRepository) ListGroups(ctx context.Context) ([]persistence.Group, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, cohort_id, name, recurring_event_id, chat_channel_id, chat_role_id, created_at, updated_at
		FROM groups
		ORDER BY cohort_id ASC, name ASC, id ASC
	`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var groups []persistence.Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return groups, nil
}

// WithCalendarLock serializes recurring-event reconciliation for one group.
// The write-intent UPDATE acquires SQLite's exclusive writer position for the
// transaction, so a concurrent call observes the committed event id rather
// than a stale null.
func (r *GroupRepository) WithCalendarLock(ctx context.Context, groupID string, fn func(tx persistence.GroupCalendarTx) error) error {
	if groupID == "" {
		return persistence.ErrNotFound
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec("UPDATE groups SET updated_at = updated_at WHERE id = ?", groupID)
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

		var eventID sql.NullString
		if err := tx.QueryRow("SELECT recurring_event_id FROM groups WHERE id = ?", groupID).Scan(&eventID); err != nil {
			return r.mapper.MapError(err)
		}

		lockTx := &groupCalendarTx{tx: tx, groupID: groupID}
		if eventID.Valid {
			value := eventID.String
			lockTx.eventID = &value
		}
		return fn(lockTx)
	})
}

type groupCalendarTx struct {
	tx      *sql.Tx
	groupID string
	eventID *string
}

func (t *groupCalendarTx) RecurringEventID() *string {
	if t.eventID == nil {
		return nil
	}
	value := *t.eventID
	return &value
}

func (t *groupCalendarTx) SetRecurringEventID(id *string) error {
	var stored sql.NullString
	if id != nil {
		stored.String = *id
		stored.Valid = true
	}
	_, err := t.tx.Exec(
		"UPDATE groups SET recurring_event_id = ?, updated_at = ? WHERE id = ?",
		stored,
		time.Now().UTC().Format(time.RFC3339),
		t.groupID,
	)
	if err != nil {
		return err
	}
	if id == nil {
		t.eventID = nil
	} else {
		value := *id
		t.eventID = &value
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGroup(row rowScanner) (persistence.Group, error) {
	var group persistence.Group
	var eventID sql.NullString
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&group.ID,
		&group.CohortID,
		&group.Name,
		&eventID,
		&group.ChatChannelID,
		&group.ChatRoleID,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.Group{}, persistence.ErrNotFound
		}
		return persistence.Group{}, NewErrorMapper().MapError(err)
	}

	if eventID.Valid {
		group.RecurringEventID = &eventID.String
	}
	if group.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return persistence.Group{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if group.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return persistence.Group{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return group, nil
}
