package persistence

import (
	"context"
	"time"
)

// UserRepository exposes CRUD operations for users.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByChatID(ctx context.Context, chatUserID string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// GroupCalendarTx exposes the stored recurring event id while the owning
// group row is write-locked.
type GroupCalendarTx interface {
	RecurringEventID() *string
	SetRecurringEventID(id *string) error
}

// GroupRepository stores groups and serializes recurring-event reconciliation.
type GroupRepository interface {
	CreateGroup(ctx context.Context, group Group) error
	GetGroup(ctx context.Context, id string) (Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	// WithCalendarLock runs fn inside a transaction holding a write lock on
	// the group row. Writes made through the tx commit together when fn
	// returns nil; two concurrent calls for the same group never interleave.
	WithCalendarLock(ctx context.Context, groupID string, fn func(tx GroupCalendarTx) error) error
}

// ActiveMember is a membership row joined with the user fields the
// reconcilers need.
type ActiveMember struct {
	UserID     string
	Email      string
	ChatUserID string
}

// MembershipRepository stores group membership state.
type MembershipRepository interface {
	AddMember(ctx context.Context, membership Membership) error
	SetMemberStatus(ctx context.Context, groupID, userID string, status MembershipStatus) error
	ListActiveMembers(ctx context.Context, groupID string) ([]ActiveMember, error)
	IsActiveMember(ctx context.Context, groupID, userID string) (bool, error)
	// ActiveGroupForUserInCohort resolves a user's home group within a cohort.
	ActiveGroupForUserInCohort(ctx context.Context, userID, cohortID string) (Group, error)
}

// MeetingRepository stores the batch-generated meeting schedule.
type MeetingRepository interface {
	CreateMeetings(ctx context.Context, meetings []Meeting) error
	GetMeeting(ctx context.Context, id string) (Meeting, error)
	ListMeetingsForGroup(ctx context.Context, groupID string) ([]Meeting, error)
	ListFutureMeetingsForGroup(ctx context.Context, groupID string, after time.Time) ([]Meeting, error)
	// ListAlternatives returns future meetings with the same cohort and
	// meeting number belonging to other groups.
	ListAlternatives(ctx context.Context, cohortID string, meetingNumber int, excludeGroupID string, after time.Time) ([]Meeting, error)
	ListGroupIDsWithMeetingsAfter(ctx context.Context, after time.Time) ([]string, error)
}

// GuestAttendee is a guest attendance row joined with its host meeting.
type GuestAttendee struct {
	UserID      string
	MeetingID   string
	ScheduledAt time.Time
}

// GuestVisitRecord is a guest attendance row joined with meeting context,
// used to list a user's visits and to detect duplicates.
type GuestVisitRecord struct {
	AttendanceID  string
	UserID        string
	MeetingID     string
	GroupID       string
	CohortID      string
	MeetingNumber int
	ScheduledAt   time.Time
}

// AttendanceRepository stores RSVP facts and enforces the guest isolation
// rules around them.
type AttendanceRepository interface {
	// UpsertRSVP reconciles the non-guest attendance of (meeting, user) to
	// status. It inserts when no row exists, updates only when the stored
	// status differs, and is a no-op when the existing row is a guest row.
	// The returned flag reports whether a write happened.
	UpsertRSVP(ctx context.Context, meetingID, userID string, status RSVPStatus) (bool, error)
	// SetStatus forces the non-guest attendance of (meeting, user) to status,
	// inserting the row when absent.
	SetStatus(ctx context.Context, meetingID, userID string, status RSVPStatus) error
	// CreateGuest marks (meeting, user) as a guest attendance with status
	// attending.
	CreateGuest(ctx context.Context, meetingID, userID string) error
	DeleteGuest(ctx context.Context, meetingID, userID string) error
	GetGuest(ctx context.Context, meetingID, userID string) (Attendance, error)
	// ListWindowedGuests returns attending guests of the group whose host
	// meeting starts inside [from, to].
	ListWindowedGuests(ctx context.Context, groupID string, from, to time.Time) ([]GuestAttendee, error)
	ListGuestVisitsForUser(ctx context.Context, userID string) ([]GuestVisitRecord, error)
	// IsGuestOfGroup reports whether the user holds any guest attendance on a
	// meeting of the group.
	IsGuestOfGroup(ctx context.Context, groupID, userID string) (bool, error)
}

// SyncJobRepository stores durable one-shot reconciliation triggers.
type SyncJobRepository interface {
	// UpsertJob inserts the job or replaces the existing row with the same id.
	UpsertJob(ctx context.Context, job SyncJob) error
	DeleteJob(ctx context.Context, id string) error
	// DeleteJobsMatching removes jobs whose id starts with prefix and returns
	// the number removed.
	DeleteJobsMatching(ctx context.Context, prefix string) (int, error)
	// DueJobs returns jobs whose RunAt is at or before now, ordered by RunAt.
	DueJobs(ctx context.Context, now time.Time) ([]SyncJob, error)
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}
