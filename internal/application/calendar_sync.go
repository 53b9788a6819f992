package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/studysync/internal/persistence"
	"github.com/example/studysync/internal/recurrence"
)

// CalendarSyncService reconciles a group's stored meeting schedule with its
// recurring calendar event. Sync is idempotent: running it twice in a row
// leaves the provider untouched the second time.
type CalendarSyncService struct {
	groups   persistence.GroupRepository
	members  persistence.MembershipRepository
	meetings persistence.MeetingRepository
	calendar CalendarGateway
	logger   *slog.Logger
	now      func() time.Time
}

// NewCalendarSyncService wires dependencies for calendar reconciliation.
func NewCalendarSyncService(groups persistence.GroupRepository, members persistence.MembershipRepository, meetings persistence.MeetingRepository, calendar CalendarGateway, logger *slog.Logger, now func() time.Time) *CalendarSyncService {
	if now == nil {
		now = time.Now
	}
	return &CalendarSyncService{
		groups:   groups,
		members:  members,
		meetings: meetings,
		calendar: calendar,
		logger:   defaultLogger(logger),
		now:      now,
	}
}

// Sync creates, heals, or patches the group's recurring event so it matches
// the stored schedule and membership. The group row stays locked for the
// whole pass, so concurrent syncs of one group cannot both create an event.
// Provider failures leave already committed store writes in place; the
// periodic sweep retries the rest.
func (s *CalendarSyncService) Sync(ctx context.Context, groupID string) (CalendarSyncResult, error) {
	result := CalendarSyncResult{GroupID: groupID}
	log := serviceLogger(ctx, s.logger, "calendar_sync", "sync", "groupID", groupID)

	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return result, mapStoreError(err)
	}

	activeMembers, err := s.members.ListActiveMembers(ctx, groupID)
	if err != nil {
		return result, mapStoreError(err)
	}
	emails := memberEmails(activeMembers)

	future, err := s.meetings.ListFutureMeetingsForGroup(ctx, groupID, s.now())
	if err != nil {
		return result, mapStoreError(err)
	}
	if len(future) == 0 {
		log.Info("no future meetings, nothing to reconcile")
		return result, nil
	}

	rule, err := recurrence.WeeklyRule(len(future))
	if err != nil {
		return result, err
	}

	var gatewayErr error
	err = s.groups.WithCalendarLock(ctx, groupID, func(tx persistence.GroupCalendarTx) error {
		eventID := tx.RecurringEventID()

		if eventID != nil {
			event, found, err := s.calendar.GetEvent(ctx, *eventID)
			if err != nil {
				gatewayErr = err
				return nil
			}
			if found {
				result.EventID = *eventID
				added, removed := diffAttendees(event.Attendees, emails)
				if len(added) == 0 && len(removed) == 0 {
					return nil
				}
				if err := s.calendar.PatchEventAttendees(ctx, *eventID, emails, len(added) > 0); err != nil {
					gatewayErr = err
					return nil
				}
				result.Patched = true
				result.AttendeesAdded = len(added)
				result.AttendeesRemoved = len(removed)
				log.Info("patched event attendees", "eventID", *eventID, "added", len(added), "removed", len(removed))
				return nil
			}

			// The stored event vanished on the provider side. Forget the id
			// and fall through to recreation; the cleared id commits even if
			// creation fails below, so the next pass starts clean.
			if err := tx.SetRecurringEventID(nil); err != nil {
				return err
			}
			result.Healed = true
			log.Warn("stored event missing on provider, recreating", "eventID", *eventID)
		}

		first := future[0]
		newID, err := s.calendar.CreateRecurringEvent(ctx, CreateRecurringEventRequest{
			Summary:        fmt.Sprintf("%s weekly meeting", group.Name),
			Description:    fmt.Sprintf("Weekly study meeting for %s.", group.Name),
			Start:          first.ScheduledAt.UTC(),
			Duration:       time.Duration(first.DurationMinutes) * time.Minute,
			Recurrence:     rule,
			AttendeeEmails: emails,
		})
		if err != nil {
			gatewayErr = err
			return nil
		}
		if err := tx.SetRecurringEventID(&newID); err != nil {
			return err
		}
		result.CreatedNew = true
		result.EventID = newID
		log.Info("created recurring event", "eventID", newID, "meetings", len(future))
		return nil
	})
	if err != nil {
		return result, mapStoreError(err)
	}
	if gatewayErr != nil {
		log.Warn("calendar provider unavailable", "error", gatewayErr, "errorKind", ErrorKind(gatewayErr))
		return result, gatewayErr
	}
	return result, nil
}

// SyncAll reconciles every group that still has a future meeting. Per-group
// failures are logged and do not stop the pass.
func (s *CalendarSyncService) SyncAll(ctx context.Context) error {
	log := serviceLogger(ctx, s.logger, "calendar_sync", "sync_all")

	groupIDs, err := s.meetings.ListGroupIDsWithMeetingsAfter(ctx, s.now())
	if err != nil {
		return mapStoreError(err)
	}

	var failures int
	for _, groupID := range groupIDs {
		if _, err := s.Sync(ctx, groupID); err != nil {
			failures++
			log.Warn("group sync failed", "groupID", groupID, "error", err)
		}
	}
	log.Info("calendar sweep finished", "groups", len(groupIDs), "failures", failures)
	return nil
}

func memberEmails(members []persistence.ActiveMember) []string {
	emails := make([]string, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, member := range members {
		email := strings.ToLower(strings.TrimSpace(member.Email))
		if email == "" {
			continue
		}
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		emails = append(emails, email)
	}
	sort.Strings(emails)
	return emails
}

// diffAttendees compares the provider attendee list against the expected
// emails and returns what a patch would add and remove.
func diffAttendees(current []EventAttendee, expected []string) (added, removed []string) {
	have := make(map[string]struct{}, len(current))
	for _, attendee := range current {
		have[strings.ToLower(attendee.Email)] = struct{}{}
	}
	want := make(map[string]struct{}, len(expected))
	for _, email := range expected {
		want[strings.ToLower(email)] = struct{}{}
	}

	for email := range want {
		if _, ok := have[email]; !ok {
			added = append(added, email)
		}
	}
	for email := range have {
		if _, ok := want[email]; !ok {
			removed = append(removed, email)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
