package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/studysync/internal/persistence"
)

var (
	userCounter    uint64
	groupCounter   uint64
	meetingCounter uint64
)

var referenceTime = time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// UserOption customises a user fixture.
type UserOption func(*persistence.User)

// NewUser materialises a deterministic user record.
func NewUser(opts ...UserOption) persistence.User {
	n := atomic.AddUint64(&userCounter, 1)
	user := persistence.User{
		ID:          fmt.Sprintf("user-%d", n),
		Email:       fmt.Sprintf("user%d@example.com", n),
		DisplayName: fmt.Sprintf("User %d", n),
		ChatUserID:  fmt.Sprintf("chat-%d", n),
		CreatedAt:   referenceTime,
		UpdatedAt:   referenceTime,
	}
	for _, opt := range opts {
		opt(&user)
	}
	return user
}

// WithUserID overrides the generated id.
func WithUserID(id string) UserOption {
	return func(u *persistence.User) { u.ID = id }
}

// WithUserEmail overrides the generated email.
func WithUserEmail(email string) UserOption {
	return func(u *persistence.User) { u.Email = email }
}

// WithUserChatID overrides the generated chat id.
func WithUserChatID(chatUserID string) UserOption {
	return func(u *persistence.User) { u.ChatUserID = chatUserID }
}

// WithUserAdmin marks the user as an administrator.
func WithUserAdmin() UserOption {
	return func(u *persistence.User) { u.IsAdmin = true }
}

// GroupOption customises a group fixture.
type GroupOption func(*persistence.Group)

// NewGroup materialises a deterministic group record.
func NewGroup(opts ...GroupOption) persistence.Group {
	n := atomic.AddUint64(&groupCounter, 1)
	group := persistence.Group{
		ID:            fmt.Sprintf("group-%d", n),
		CohortID:      "cohort-1",
		Name:          fmt.Sprintf("Group %d", n),
		ChatChannelID: fmt.Sprintf("channel-%d", n),
		ChatRoleID:    fmt.Sprintf("role-%d", n),
		CreatedAt:     referenceTime,
		UpdatedAt:     referenceTime,
	}
	for _, opt := range opts {
		opt(&group)
	}
	return group
}

// WithGroupID overrides the generated id.
func WithGroupID(id string) GroupOption {
	return func(g *persistence.Group) { g.ID = id }
}

// WithGroupCohort overrides the cohort.
func WithGroupCohort(cohortID string) GroupOption {
	return func(g *persistence.Group) { g.CohortID = cohortID }
}

// WithGroupEvent links the group to a recurring event id.
func WithGroupEvent(eventID string) GroupOption {
	return func(g *persistence.Group) { g.RecurringEventID = &eventID }
}

// MeetingOption customises a meeting fixture.
type MeetingOption func(*persistence.Meeting)

// NewMeeting materialises a deterministic meeting record one week after the
// reference time.
func NewMeeting(opts ...MeetingOption) persistence.Meeting {
	n := atomic.AddUint64(&meetingCounter, 1)
	meeting := persistence.Meeting{
		ID:              fmt.Sprintf("meeting-%d", n),
		GroupID:         "group-1",
		CohortID:        "cohort-1",
		MeetingNumber:   1,
		ScheduledAt:     referenceTime.AddDate(0, 0, 7),
		DurationMinutes: 60,
		CreatedAt:       referenceTime,
		UpdatedAt:       referenceTime,
	}
	for _, opt := range opts {
		opt(&meeting)
	}
	return meeting
}

// WithMeetingID overrides the generated id.
func WithMeetingID(id string) MeetingOption {
	return func(m *persistence.Meeting) { m.ID = id }
}

// WithMeetingGroup assigns the meeting to a group and cohort.
func WithMeetingGroup(groupID, cohortID string) MeetingOption {
	return func(m *persistence.Meeting) {
		m.GroupID = groupID
		m.CohortID = cohortID
	}
}

// WithMeetingNumber sets the week number.
func WithMeetingNumber(number int) MeetingOption {
	return func(m *persistence.Meeting) { m.MeetingNumber = number }
}

// WithMeetingStart sets the scheduled start.
func WithMeetingStart(start time.Time) MeetingOption {
	return func(m *persistence.Meeting) { m.ScheduledAt = start }
}
