package application

import (
	"context"
	"time"
)

// EventAttendee is one attendee of a calendar event or instance, with the
// provider's own response vocabulary ("needsAction", "accepted", "declined",
// "tentative").
type EventAttendee struct {
	Email          string
	ResponseStatus string
}

// CalendarEvent is the subset of a provider event the reconcilers read.
type CalendarEvent struct {
	ID        string
	Status    string
	Attendees []EventAttendee
}

// EventInstance is one expanded occurrence of a recurring event. Start is
// kept as the provider's raw RFC 3339 string; malformed values are a data
// anomaly the reconciler counts rather than an error that stops the sweep.
type EventInstance struct {
	ID        string
	Start     string
	Status    string
	Attendees []EventAttendee
}

// CreateRecurringEventRequest describes the recurring series to create for a
// group.
type CreateRecurringEventRequest struct {
	Summary        string
	Description    string
	Start          time.Time
	Duration       time.Duration
	Recurrence     string
	AttendeeEmails []string
}

// CalendarGateway is the calendar provider surface the coordinator and RSVP
// reconciler depend on. A missing event is data, not an error: GetEvent
// reports found=false for it.
type CalendarGateway interface {
	CreateRecurringEvent(ctx context.Context, req CreateRecurringEventRequest) (string, error)
	GetEvent(ctx context.Context, eventID string) (CalendarEvent, bool, error)
	// PatchEventAttendees replaces the attendee list of the whole series.
	// notifyAdded selects provider notifications for the change; callers pass
	// true only when the patch adds attendees.
	PatchEventAttendees(ctx context.Context, eventID string, emails []string, notifyAdded bool) error
	ListInstances(ctx context.Context, eventID string) ([]EventInstance, error)
	PatchInstanceAttendees(ctx context.Context, instanceID string, emails []string, notifyAdded bool) error
}

// RosterGateway is the chat platform surface the access reconciler depends
// on. Role members are chat user ids.
type RosterGateway interface {
	GetRoleMembers(ctx context.Context, roleID string) ([]string, error)
	GrantRole(ctx context.Context, roleID, chatUserID string) error
	RevokeRole(ctx context.Context, roleID, chatUserID string) error
	SendChannelMessage(ctx context.Context, channelID, text string) error
}
