package application

import "time"

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// CalendarSyncResult reports what one reconciliation pass did for a group.
type CalendarSyncResult struct {
	GroupID          string
	EventID          string
	CreatedNew       bool
	Healed           bool
	Patched          bool
	AttendeesAdded   int
	AttendeesRemoved int
}

// RSVPSyncResult reports the counters of one attendance import pass.
type RSVPSyncResult struct {
	GroupID          string
	InstancesFetched int
	Synced           int
	Skipped          int
	Updated          int
}

// RosterSyncResult reports the role changes of one access reconciliation
// pass. The slices hold chat user ids.
type RosterSyncResult struct {
	GroupID string
	Granted []string
	Revoked []string
}

// HostMeetingCandidate is one meeting a user could visit instead of a missed
// home meeting.
type HostMeetingCandidate struct {
	MeetingID     string
	GroupID       string
	GroupName     string
	MeetingNumber int
	ScheduledAt   time.Time
}

// GuestVisitView is a guest visit as presented to its owner.
type GuestVisitView struct {
	MeetingID     string
	GroupID       string
	GroupName     string
	MeetingNumber int
	ScheduledAt   time.Time
}

// CreateGuestVisitParams wraps the data required to book a guest visit.
type CreateGuestVisitParams struct {
	Principal     Principal
	HomeMeetingID string
	HostMeetingID string
}

// CreateGroupParams wraps the data required to create a group.
type CreateGroupParams struct {
	Principal     Principal
	CohortID      string
	Name          string
	ChatChannelID string
	ChatRoleID    string
}

// CreateScheduleParams wraps the data required to generate a group's weekly
// meeting schedule.
type CreateScheduleParams struct {
	Principal       Principal
	GroupID         string
	FirstMeeting    time.Time
	Meetings        int
	DurationMinutes int
}
