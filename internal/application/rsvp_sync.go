package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/example/studysync/internal/persistence"
	"github.com/example/studysync/internal/recurrence"
)

// rsvpVocabulary maps the provider's response vocabulary onto stored
// attendance statuses.
var rsvpVocabulary = map[string]persistence.RSVPStatus{
	"needsAction": persistence.RSVPPending,
	"accepted":    persistence.RSVPAttending,
	"declined":    persistence.RSVPNotAttending,
	"tentative":   persistence.RSVPTentative,
}

// RSVPSyncService imports attendee responses from the recurring event's
// expanded instances into stored attendance rows.
type RSVPSyncService struct {
	groups      persistence.GroupRepository
	members     persistence.MembershipRepository
	meetings    persistence.MeetingRepository
	attendances persistence.AttendanceRepository
	calendar    CalendarGateway
	logger      *slog.Logger
}

// NewRSVPSyncService wires dependencies for attendance import.
func NewRSVPSyncService(groups persistence.GroupRepository, members persistence.MembershipRepository, meetings persistence.MeetingRepository, attendances persistence.AttendanceRepository, calendar CalendarGateway, logger *slog.Logger) *RSVPSyncService {
	return &RSVPSyncService{
		groups:      groups,
		members:     members,
		meetings:    meetings,
		attendances: attendances,
		calendar:    calendar,
		logger:      defaultLogger(logger),
	}
}

// SyncFromRecurring fetches the event instances once and reconciles stored
// attendance with what members answered on the provider side. Instances that
// cannot be matched to a stored meeting are counted and skipped rather than
// failing the pass. Guest attendance rows are never overwritten.
func (s *RSVPSyncService) SyncFromRecurring(ctx context.Context, groupID string) (RSVPSyncResult, error) {
	result := RSVPSyncResult{GroupID: groupID}
	log := serviceLogger(ctx, s.logger, "rsvp_sync", "sync_from_recurring", "groupID", groupID)

	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return result, mapStoreError(err)
	}
	if group.RecurringEventID == nil {
		log.Info("group has no linked event, nothing to import")
		return result, nil
	}

	meetings, err := s.meetings.ListMeetingsForGroup(ctx, groupID)
	if err != nil {
		return result, mapStoreError(err)
	}
	meetingsByStart := make(map[time.Time]persistence.Meeting, len(meetings))
	for _, meeting := range meetings {
		meetingsByStart[recurrence.NormalizeStart(meeting.ScheduledAt)] = meeting
	}

	activeMembers, err := s.members.ListActiveMembers(ctx, groupID)
	if err != nil {
		return result, mapStoreError(err)
	}
	memberByEmail := make(map[string]string, len(activeMembers))
	for _, member := range activeMembers {
		memberByEmail[strings.ToLower(member.Email)] = member.UserID
	}

	instances, err := s.calendar.ListInstances(ctx, *group.RecurringEventID)
	if err != nil {
		log.Warn("instance listing failed", "eventID", *group.RecurringEventID, "error", err)
		return result, err
	}
	result.InstancesFetched = len(instances)

	for _, instance := range instances {
		start, err := time.Parse(time.RFC3339, instance.Start)
		if err != nil {
			result.Skipped++
			log.Warn("instance start unparseable", "instanceID", instance.ID, "start", instance.Start)
			continue
		}

		meeting, ok := meetingsByStart[recurrence.NormalizeStart(start)]
		if !ok {
			result.Skipped++
			log.Warn("instance matches no stored meeting", "instanceID", instance.ID, "start", instance.Start)
			continue
		}
		result.Synced++

		for _, attendee := range instance.Attendees {
			userID, ok := memberByEmail[strings.ToLower(attendee.Email)]
			if !ok {
				// Non-member attendee, e.g. a visiting guest. Their
				// attendance is owned by the guest flow.
				continue
			}
			status, ok := rsvpVocabulary[attendee.ResponseStatus]
			if !ok {
				status = persistence.RSVPPending
			}

			wrote, err := s.attendances.UpsertRSVP(ctx, meeting.ID, userID, status)
			if err != nil {
				return result, mapStoreError(err)
			}
			if wrote {
				result.Updated++
			}
		}
	}

	log.Info("attendance import finished",
		"instancesFetched", result.InstancesFetched,
		"synced", result.Synced,
		"skipped", result.Skipped,
		"updated", result.Updated,
	)
	return result, nil
}

// SyncAll imports attendance for every group. Groups without a linked
// recurring event are no-ops; per-group failures are logged and do not stop
// the pass.
func (s *RSVPSyncService) SyncAll(ctx context.Context) error {
	log := serviceLogger(ctx, s.logger, "rsvp_sync", "sync_all")

	groups, err := s.groups.ListGroups(ctx)
	if err != nil {
		return mapStoreError(err)
	}

	var failures int
	for _, group := range groups {
		if _, err := s.SyncFromRecurring(ctx, group.ID); err != nil {
			failures++
			log.Warn("group import failed", "groupID", group.ID, "error", err)
		}
	}
	log.Info("attendance sweep finished", "groups", len(groups), "failures", failures)
	return nil
}
