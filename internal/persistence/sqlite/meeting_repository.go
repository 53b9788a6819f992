package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/studysync/internal/persistence"
)

// MeetingRepository implements persistence.MeetingRepository using SQLite.
type MeetingRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewMeetingRepository creates a new SQLite meeting repository.
func NewMeetingRepository(pool *ConnectionPool) *MeetingRepository {
	return &MeetingRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const meetingColumns = "id, group_id, cohort_id, meeting_number, scheduled_at, duration_minutes, created_at, updated_at"

// CreateMeetings inserts a batch of meetings in one transaction. The batch
// commits or fails as a whole.
func (r *MeetingRepository) CreateMeetings(ctx context.Context, meetings []persistence.Meeting) error {
	if len(meetings) == 0 {
		return nil
	}

	now := time.Now().UTC()
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, meeting := range meetings {
			if meeting.ID == "" {
				return persistence.ErrConstraintViolation
			}
			_, err := r.helper.ExecTx(tx, `
				INSERT INTO meetings (`+meetingColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`,
				meeting.ID,
				meeting.GroupID,
				meeting.CohortID,
				meeting.MeetingNumber,
				meeting.ScheduledAt.UTC().Format(time.RFC3339),
				meeting.DurationMinutes,
				now.Format(time.RFC3339),
				now.Format(time.RFC3339),
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// GetMeeting retrieves a meeting by ID.
func (r *MeetingRepository) GetMeeting(ctx context.Context, id string) (persistence.Meeting, error) {
	if id == "" {
		return persistence.Meeting{}, persistence.ErrNotFound
	}
	row := r.helper.QueryRow(ctx, "SELECT "+meetingColumns+" FROM meetings WHERE id = ?", id)
	return scanMeeting(row)
}

// ListMeetingsForGroup returns all meetings of a group in schedule order.
func (r *MeetingRepository) ListMeetingsForGroup(ctx context.Context, groupID string) ([]persistence.Meeting, error) {
	return r.listMeetings(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		WHERE group_id = ?
		ORDER BY meeting_number ASC
	`, groupID)
}

// ListFutureMeetingsForGroup returns meetings of a group starting strictly
// after the given instant, in schedule order.
func (r *MeetingRepository) ListFutureMeetingsForGroup(ctx context.Context, groupID string, after time.Time) ([]persistence.Meeting, error) {
	return r.listMeetings(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		WHERE group_id = ? AND scheduled_at > ?
		ORDER BY scheduled_at ASC
	`, groupID, after.UTC().Format(time.RFC3339))
}

// ListAlternatives returns future meetings carrying the same cohort and
// meeting number but belonging to other groups.
func (r *MeetingRepository) ListAlternatives(ctx context.Context, cohortID string, meetingNumber int, excludeGroupID string, after time.Time) ([]persistence.Meeting, error) {
	return r.listMeetings(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		WHERE cohort_id = ? AND meeting_number = ? AND group_id != ? AND scheduled_at > ?
		ORDER BY scheduled_at ASC
	`, cohortID, meetingNumber, excludeGroupID, after.UTC().Format(time.RFC3339))
}

// ListGroupIDsWithMeetingsAfter returns the ids of groups that still have a
// meeting scheduled after the given instant.
func (r *MeetingRepository) ListGroupIDsWithMeetingsAfter(ctx context.Context, after time.Time) ([]string, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT DISTINCT group_id
		FROM meetings
		WHERE scheduled_at > ?
		ORDER BY group_id ASC
	`, after.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var groupIDs []string
	for rows.Next() {
		var groupID string
		if err := rows.Scan(&groupID); err != nil {
			return nil, r.mapper.MapError(err)
		}
		groupIDs = append(groupIDs, groupID)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return groupIDs, nil
}

func (r *MeetingRepository) listMeetings(ctx context.Context, query string, args ...interface{}) ([]persistence.Meeting, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var meetings []persistence.Meeting
	for rows.Next() {
		meeting, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, meeting)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return meetings, nil
}

func scanMeeting(row rowScanner) (persistence.Meeting, error) {
	var meeting persistence.Meeting
	var scheduledAtStr, createdAtStr, updatedAtStr string

	err := row.Scan(
		&meeting.ID,
		&meeting.GroupID,
		&meeting.CohortID,
		&meeting.MeetingNumber,
		&scheduledAtStr,
		&meeting.DurationMinutes,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.Meeting{}, persistence.ErrNotFound
		}
		return persistence.Meeting{}, NewErrorMapper().MapError(err)
	}

	if meeting.ScheduledAt, err = time.Parse(time.RFC3339, scheduledAtStr); err != nil {
		return persistence.Meeting{}, fmt.Errorf("failed to parse scheduled_at: %w", err)
	}
	if meeting.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return persistence.Meeting{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if meeting.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return persistence.Meeting{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return meeting, nil
}
