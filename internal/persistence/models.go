package persistence

import "time"

// User represents a learner account in the platform domain.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	ChatUserID   string
	PasswordHash string
	IsAdmin      bool
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Group represents a cohort sub-team that meets weekly.
type Group struct {
	ID               string
	CohortID         string
	Name             string
	RecurringEventID *string
	ChatChannelID    string
	ChatRoleID       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// MembershipStatus enumerates membership lifecycle states.
type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "active"
	MembershipInactive MembershipStatus = "inactive"
)

// Membership links a user to a group.
type Membership struct {
	GroupID   string
	UserID    string
	Status    MembershipStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Meeting represents one scheduled occurrence for a group. MeetingNumber is
// the 1-based week index shared across groups of the same cohort.
type Meeting struct {
	ID              string
	GroupID         string
	CohortID        string
	MeetingNumber   int
	ScheduledAt     time.Time
	DurationMinutes int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RSVPStatus enumerates attendance responses.
type RSVPStatus string

const (
	RSVPPending      RSVPStatus = "pending"
	RSVPAttending    RSVPStatus = "attending"
	RSVPNotAttending RSVPStatus = "not_attending"
	RSVPTentative    RSVPStatus = "tentative"
)

// Attendance records a (meeting, user) RSVP fact. At most one row exists per
// pair. Guest rows (IsGuest) are written only by the guest-visit flow; the
// ordinary RSVP sync must leave them untouched.
type Attendance struct {
	ID        string
	MeetingID string
	UserID    string
	Status    RSVPStatus
	IsGuest   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SyncJob is a persisted one-shot reconciliation trigger. IDs are
// deterministic so rescheduling the same trigger replaces the existing row.
type SyncJob struct {
	ID        string
	Kind      string
	GroupID   string
	RunAt     time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session represents an authentication session persisted for a user.
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}
