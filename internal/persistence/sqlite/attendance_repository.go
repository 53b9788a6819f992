package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/studysync/internal/persistence"
)

// AttendanceRepository implements persistence.AttendanceRepository using
// SQLite. The UNIQUE(meeting_id, user_id) constraint guarantees at most one
// row per pair; guest rows are only ever written through the guest methods.
type AttendanceRepository struct {
	pool        *ConnectionPool
	helper      *QueryHelper
	mapper      *ErrorMapper
	idGenerator func() string
}

// NewAttendanceRepository creates a new SQLite attendance repository.
func NewAttendanceRepository(pool *ConnectionPool, idGenerator func() string) *AttendanceRepository {
	return &AttendanceRepository{
		pool:        pool,
		helper:      NewQueryHelper(pool),
		mapper:      NewErrorMapper(),
		idGenerator: idGenerator,
	}
}

const attendanceColumns = "id, meeting_id, user_id, rsvp_status, is_guest, created_at, updated_at"

// UpsertRSVP reconciles the non-guest attendance of (meeting, user) to
// status. Guest rows are never touched; unchanged rows are not rewritten.
func (r *AttendanceRepository) UpsertRSVP(ctx context.Context, meetingID, userID string, status persistence.RSVPStatus) (bool, error) {
	var wrote bool
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		row := r.helper.QueryRowTx(tx,
			"SELECT "+attendanceColumns+" FROM attendances WHERE meeting_id = ? AND user_id = ?",
			meetingID, userID,
		)
		existing, err := scanAttendance(row)
		if err != nil && err != persistence.ErrNotFound {
			return err
		}

		now := time.Now().UTC().Format(time.RFC3339)
		if err == persistence.ErrNotFound {
			_, err := r.helper.ExecTx(tx, `
				INSERT INTO attendances (`+attendanceColumns+`)
				VALUES (?, ?, ?, ?, 0, ?, ?)
			`, r.idGenerator(), meetingID, userID, string(status), now, now)
			if err != nil {
				return err
			}
			wrote = true
			return nil
		}

		if existing.IsGuest || existing.Status == status {
			return nil
		}

		_, err = r.helper.ExecTx(tx,
			"UPDATE attendances SET rsvp_status = ?, updated_at = ? WHERE id = ?",
			string(status), now, existing.ID,
		)
		if err != nil {
			return err
		}
		wrote = true
		return nil
	})
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return wrote, nil
}

// SetStatus forces the non-guest attendance of (meeting, user) to status,
// inserting the row when absent.
func (r *AttendanceRepository) SetStatus(ctx context.Context, meetingID, userID string, status persistence.RSVPStatus) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.helper.Exec(ctx, `
		INSERT INTO attendances (`+attendanceColumns+`)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (meeting_id, user_id) DO UPDATE SET
			rsvp_status = excluded.rsvp_status,
			updated_at = excluded.updated_at
		WHERE is_guest = 0
	`, r.idGenerator(), meetingID, userID, string(status), now, now)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// CreateGuest marks (meeting, user) as a guest attendance with status
// attending.
func (r *AttendanceRepository) CreateGuest(ctx context.Context, meetingID, userID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.helper.Exec(ctx, `
		INSERT INTO attendances (`+attendanceColumns+`)
		VALUES (?, ?, ?, ?, 1, ?, ?)
	`, r.idGenerator(), meetingID, userID, string(persistence.RSVPAttending), now, now)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// DeleteGuest removes the guest attendance of (meeting, user).
func (r *AttendanceRepository) DeleteGuest(ctx context.Context, meetingID, userID string) error {
	result, err := r.helper.Exec(ctx,
		"DELETE FROM attendances WHERE meeting_id = ? AND user_id = ? AND is_guest = 1",
		meetingID, userID,
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

// GetGuest retrieves the guest attendance of (meeting, user).
func (r *AttendanceRepository) GetGuest(ctx context.Context, meetingID, userID string) (persistence.Attendance, error) {
	row := r.helper.QueryRow(ctx,
		"SELECT "+attendanceColumns+" FROM attendances WHERE meeting_id = ? AND user_id = ? AND is_guest = 1",
		meetingID, userID,
	)
	return scanAttendance(row)
}

// ListWindowedGuests returns attending guests of the group whose host
// meeting starts inside [from, to].
func (r *AttendanceRepository) ListWindowedGuests(ctx context.Context, groupID string, from, to time.Time) ([]persistence.GuestAttendee, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT a.user_id, a.meeting_id, m.scheduled_at
		FROM attendances a
		JOIN meetings m ON m.id = a.meeting_id
		WHERE m.group_id = ?
		  AND a.is_guest = 1
		  AND a.rsvp_status = ?
		  AND m.scheduled_at >= ?
		  AND m.scheduled_at <= ?
		ORDER BY m.scheduled_at ASC, a.user_id ASC
	`,
		groupID,
		string(persistence.RSVPAttending),
		from.UTC().Format(time.RFC3339),
		to.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var guests []persistence.GuestAttendee
	for rows.Next() {
		var guest persistence.GuestAttendee
		var scheduledAtStr string
		if err := rows.Scan(&guest.UserID, &guest.MeetingID, &scheduledAtStr); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if guest.ScheduledAt, err = time.Parse(time.RFC3339, scheduledAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse scheduled_at: %w", err)
		}
		guests = append(guests, guest)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return guests, nil
}

// ListGuestVisitsForUser returns the user's guest attendances joined with
// their host meeting context, in schedule order.
func (r *AttendanceRepository) ListGuestVisitsForUser(ctx context.Context, userID string) ([]persistence.GuestVisitRecord, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT a.id, a.user_id, a.meeting_id, m.group_id, m.cohort_id, m.meeting_number, m.scheduled_at
		FROM attendances a
		JOIN meetings m ON m.id = a.meeting_id
		WHERE a.user_id = ? AND a.is_guest = 1
		ORDER BY m.scheduled_at ASC
	`, userID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var visits []persistence.GuestVisitRecord
	for rows.Next() {
		var visit persistence.GuestVisitRecord
		var scheduledAtStr string
		err := rows.Scan(
			&visit.AttendanceID,
			&visit.UserID,
			&visit.MeetingID,
			&visit.GroupID,
			&visit.CohortID,
			&visit.MeetingNumber,
			&scheduledAtStr,
		)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		if visit.ScheduledAt, err = time.Parse(time.RFC3339, scheduledAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse scheduled_at: %w", err)
		}
		visits = append(visits, visit)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return visits, nil
}

// IsGuestOfGroup reports whether the user holds any guest attendance on a
// meeting of the group.
func (r *AttendanceRepository) IsGuestOfGroup(ctx context.Context, groupID, userID string) (bool, error) {
	var exists int
	err := r.helper.QueryRow(ctx, `
		SELECT COUNT(1)
		FROM attendances a
		JOIN meetings m ON m.id = a.meeting_id
		WHERE m.group_id = ? AND a.user_id = ? AND a.is_guest = 1
	`, groupID, userID).Scan(&exists)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return exists > 0, nil
}

func scanAttendance(row rowScanner) (persistence.Attendance, error) {
	var attendance persistence.Attendance
	var status string
	var isGuest int
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&attendance.ID,
		&attendance.MeetingID,
		&attendance.UserID,
		&status,
		&isGuest,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.Attendance{}, persistence.ErrNotFound
		}
		return persistence.Attendance{}, NewErrorMapper().MapError(err)
	}

	attendance.Status = persistence.RSVPStatus(status)
	attendance.IsGuest = isGuest != 0
	if attendance.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return persistence.Attendance{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if attendance.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return persistence.Attendance{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return attendance, nil
}
