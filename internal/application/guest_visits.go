package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/studysync/internal/persistence"
	"github.com/example/studysync/internal/recurrence"
)

// Sync job kinds written by the guest visit flow. The scheduler dispatches
// both kinds to a roster reconciliation of the job's group.
const (
	JobKindGuestGrant  = "guest_grant"
	JobKindGuestRevoke = "guest_revoke"
)

// GuestGrantJobID returns the deterministic id of the access-grant trigger
// for one host meeting. All guests of the same meeting share the trigger.
func GuestGrantJobID(groupID string, meetingStart time.Time) string {
	return fmt.Sprintf("%s_%s_%d", JobKindGuestGrant, groupID, meetingStart.UTC().Unix())
}

// GuestRevokeJobID returns the deterministic id of the access-revoke trigger
// for one host meeting.
func GuestRevokeJobID(groupID string, meetingStart time.Time) string {
	return fmt.Sprintf("%s_%s_%d", JobKindGuestRevoke, groupID, meetingStart.UTC().Unix())
}

// RosterResyncer triggers an immediate roster reconciliation after a guest
// visit changes, ahead of the scheduled triggers.
type RosterResyncer interface {
	Sync(ctx context.Context, groupID string) (RosterSyncResult, error)
}

// GuestVisitService lets a member who misses their own group's meeting visit
// the same-numbered meeting of a sibling group in the cohort.
type GuestVisitService struct {
	groups      persistence.GroupRepository
	members     persistence.MembershipRepository
	meetings    persistence.MeetingRepository
	attendances persistence.AttendanceRepository
	jobs        persistence.SyncJobRepository
	users       persistence.UserRepository
	calendar    CalendarGateway
	rosterSync  RosterResyncer
	logger      *slog.Logger
	now         func() time.Time
}

// NewGuestVisitService wires dependencies for guest visit booking.
func NewGuestVisitService(groups persistence.GroupRepository, members persistence.MembershipRepository, meetings persistence.MeetingRepository, attendances persistence.AttendanceRepository, jobs persistence.SyncJobRepository, users persistence.UserRepository, calendar CalendarGateway, rosterSync RosterResyncer, logger *slog.Logger, now func() time.Time) *GuestVisitService {
	if now == nil {
		now = time.Now
	}
	return &GuestVisitService{
		groups:      groups,
		members:     members,
		meetings:    meetings,
		attendances: attendances,
		jobs:        jobs,
		users:       users,
		calendar:    calendar,
		rosterSync:  rosterSync,
		logger:      defaultLogger(logger),
		now:         now,
	}
}

// FindAlternatives lists the future meetings of sibling groups that cover
// the same week as the caller's missed home meeting.
func (s *GuestVisitService) FindAlternatives(ctx context.Context, principal Principal, homeMeetingID string) ([]HostMeetingCandidate, error) {
	home, err := s.meetings.GetMeeting(ctx, homeMeetingID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	isMember, err := s.members.IsActiveMember(ctx, home.GroupID, principal.UserID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if !isMember {
		return nil, ErrUnauthorized
	}

	alternatives, err := s.meetings.ListAlternatives(ctx, home.CohortID, home.MeetingNumber, home.GroupID, s.now())
	if err != nil {
		return nil, mapStoreError(err)
	}

	groupNames := make(map[string]string)
	candidates := make([]HostMeetingCandidate, 0, len(alternatives))
	for _, meeting := range alternatives {
		name, ok := groupNames[meeting.GroupID]
		if !ok {
			group, err := s.groups.GetGroup(ctx, meeting.GroupID)
			if err != nil {
				return nil, mapStoreError(err)
			}
			name = group.Name
			groupNames[meeting.GroupID] = name
		}
		candidates = append(candidates, HostMeetingCandidate{
			MeetingID:     meeting.ID,
			GroupID:       meeting.GroupID,
			GroupName:     name,
			MeetingNumber: meeting.MeetingNumber,
			ScheduledAt:   meeting.ScheduledAt,
		})
	}
	return candidates, nil
}

// Create books a guest visit: the caller attends the host meeting as a guest
// and is marked not attending at home. Access triggers are scheduled around
// the host meeting; provider updates are best effort and repaired by the
// sweep when they fail.
func (s *GuestVisitService) Create(ctx context.Context, params CreateGuestVisitParams) (GuestVisitView, error) {
	log := serviceLogger(ctx, s.logger, "guest_visits", "create",
		"userID", params.Principal.UserID, "hostMeetingID", params.HostMeetingID)

	host, err := s.meetings.GetMeeting(ctx, params.HostMeetingID)
	if err != nil {
		return GuestVisitView{}, s.meetingLookupError("hostMeetingId", err)
	}
	home, err := s.meetings.GetMeeting(ctx, params.HomeMeetingID)
	if err != nil {
		return GuestVisitView{}, s.meetingLookupError("homeMeetingId", err)
	}

	vErr := &ValidationError{}
	if host.GroupID == home.GroupID {
		vErr.add("hostMeetingId", "host meeting belongs to your own group")
	} else if host.CohortID != home.CohortID {
		vErr.add("hostMeetingId", "host meeting belongs to a different cohort")
	} else if host.MeetingNumber != home.MeetingNumber {
		vErr.add("hostMeetingId", "host meeting covers a different week")
	} else if !host.ScheduledAt.After(s.now()) {
		vErr.add("hostMeetingId", "host meeting already happened")
	}
	if vErr.HasErrors() {
		return GuestVisitView{}, vErr
	}

	isMember, err := s.members.IsActiveMember(ctx, home.GroupID, params.Principal.UserID)
	if err != nil {
		return GuestVisitView{}, mapStoreError(err)
	}
	if !isMember {
		return GuestVisitView{}, ErrUnauthorized
	}

	existing, err := s.attendances.ListGuestVisitsForUser(ctx, params.Principal.UserID)
	if err != nil {
		return GuestVisitView{}, mapStoreError(err)
	}
	for _, visit := range existing {
		if visit.CohortID == host.CohortID && visit.MeetingNumber == host.MeetingNumber {
			return GuestVisitView{}, ErrAlreadyExists
		}
	}

	if err := s.attendances.CreateGuest(ctx, host.ID, params.Principal.UserID); err != nil {
		return GuestVisitView{}, mapStoreError(err)
	}
	if err := s.attendances.SetStatus(ctx, home.ID, params.Principal.UserID, persistence.RSVPNotAttending); err != nil {
		return GuestVisitView{}, mapStoreError(err)
	}

	if err := s.scheduleAccessTriggers(ctx, host); err != nil {
		return GuestVisitView{}, mapStoreError(err)
	}

	s.patchHostInstance(ctx, log, host, params.Principal.UserID, true)
	s.resyncRoster(ctx, log, host.GroupID)

	hostGroup, err := s.groups.GetGroup(ctx, host.GroupID)
	if err != nil {
		return GuestVisitView{}, mapStoreError(err)
	}

	log.Info("guest visit booked", "hostGroupID", host.GroupID, "meetingNumber", host.MeetingNumber)
	return GuestVisitView{
		MeetingID:     host.ID,
		GroupID:       host.GroupID,
		GroupName:     hostGroup.Name,
		MeetingNumber: host.MeetingNumber,
		ScheduledAt:   host.ScheduledAt,
	}, nil
}

// Cancel withdraws a guest visit and restores the home RSVP to pending.
func (s *GuestVisitService) Cancel(ctx context.Context, principal Principal, hostMeetingID string) error {
	log := serviceLogger(ctx, s.logger, "guest_visits", "cancel",
		"userID", principal.UserID, "hostMeetingID", hostMeetingID)

	if _, err := s.attendances.GetGuest(ctx, hostMeetingID, principal.UserID); err != nil {
		return mapStoreError(err)
	}
	host, err := s.meetings.GetMeeting(ctx, hostMeetingID)
	if err != nil {
		return mapStoreError(err)
	}
	if !host.ScheduledAt.After(s.now()) {
		vErr := &ValidationError{}
		vErr.add("hostMeetingId", "host meeting has already started")
		return vErr
	}

	if err := s.attendances.DeleteGuest(ctx, hostMeetingID, principal.UserID); err != nil {
		return mapStoreError(err)
	}

	// The home RSVP goes back to an open question for the member.
	homeGroup, err := s.members.ActiveGroupForUserInCohort(ctx, principal.UserID, host.CohortID)
	if err == nil {
		if homeMeeting, ok := s.findMeetingByNumber(ctx, homeGroup.ID, host.MeetingNumber); ok {
			if err := s.attendances.SetStatus(ctx, homeMeeting.ID, principal.UserID, persistence.RSVPPending); err != nil {
				return mapStoreError(err)
			}
		}
	}

	s.patchHostInstance(ctx, log, host, principal.UserID, false)
	s.resyncRoster(ctx, log, host.GroupID)

	log.Info("guest visit cancelled", "hostGroupID", host.GroupID, "meetingNumber", host.MeetingNumber)
	return nil
}

// ListForUser returns the caller's guest visits with host group context.
func (s *GuestVisitService) ListForUser(ctx context.Context, principal Principal) ([]GuestVisitView, error) {
	visits, err := s.attendances.ListGuestVisitsForUser(ctx, principal.UserID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	groupNames := make(map[string]string)
	views := make([]GuestVisitView, 0, len(visits))
	for _, visit := range visits {
		name, ok := groupNames[visit.GroupID]
		if !ok {
			group, err := s.groups.GetGroup(ctx, visit.GroupID)
			if err != nil {
				return nil, mapStoreError(err)
			}
			name = group.Name
			groupNames[visit.GroupID] = name
		}
		views = append(views, GuestVisitView{
			MeetingID:     visit.MeetingID,
			GroupID:       visit.GroupID,
			GroupName:     name,
			MeetingNumber: visit.MeetingNumber,
			ScheduledAt:   visit.ScheduledAt,
		})
	}
	return views, nil
}

// scheduleAccessTriggers upserts the grant and revoke triggers around the
// host meeting. Deterministic ids make rebooking and sibling guests coalesce
// onto the same pair of triggers.
func (s *GuestVisitService) scheduleAccessTriggers(ctx context.Context, host persistence.Meeting) error {
	grantAt := host.ScheduledAt.Add(-GuestAccessLead)
	if now := s.now(); grantAt.Before(now) {
		grantAt = now
	}

	grant := persistence.SyncJob{
		ID:      GuestGrantJobID(host.GroupID, host.ScheduledAt),
		Kind:    JobKindGuestGrant,
		GroupID: host.GroupID,
		RunAt:   grantAt,
	}
	if err := s.jobs.UpsertJob(ctx, grant); err != nil {
		return err
	}

	revoke := persistence.SyncJob{
		ID:      GuestRevokeJobID(host.GroupID, host.ScheduledAt),
		Kind:    JobKindGuestRevoke,
		GroupID: host.GroupID,
		RunAt:   host.ScheduledAt.Add(GuestAccessGrace),
	}
	return s.jobs.UpsertJob(ctx, revoke)
}

// patchHostInstance adds or removes the guest on the host meeting's calendar
// instance. Best effort: the stored guest row is authoritative and the sweep
// repairs the provider side later.
func (s *GuestVisitService) patchHostInstance(ctx context.Context, log *slog.Logger, host persistence.Meeting, userID string, adding bool) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil || user.Email == "" {
		return
	}
	hostGroup, err := s.groups.GetGroup(ctx, host.GroupID)
	if err != nil || hostGroup.RecurringEventID == nil {
		return
	}

	instances, err := s.calendar.ListInstances(ctx, *hostGroup.RecurringEventID)
	if err != nil {
		log.Warn("instance listing failed, provider patch deferred", "error", err)
		return
	}

	want := recurrence.NormalizeStart(host.ScheduledAt)
	for _, instance := range instances {
		start, err := time.Parse(time.RFC3339, instance.Start)
		if err != nil || !recurrence.NormalizeStart(start).Equal(want) {
			continue
		}

		emails := make([]string, 0, len(instance.Attendees)+1)
		guestEmail := strings.ToLower(user.Email)
		for _, attendee := range instance.Attendees {
			email := strings.ToLower(attendee.Email)
			if email == guestEmail {
				continue
			}
			emails = append(emails, email)
		}
		if adding {
			emails = append(emails, guestEmail)
		}

		if err := s.calendar.PatchInstanceAttendees(ctx, instance.ID, emails, adding); err != nil {
			log.Warn("instance patch failed, provider patch deferred", "instanceID", instance.ID, "error", err)
		}
		return
	}
	log.Warn("no instance matches host meeting start", "scheduledAt", host.ScheduledAt)
}

func (s *GuestVisitService) resyncRoster(ctx context.Context, log *slog.Logger, groupID string) {
	if s.rosterSync == nil {
		return
	}
	if _, err := s.rosterSync.Sync(ctx, groupID); err != nil {
		log.Warn("immediate roster resync failed, triggers will repair", "groupID", groupID, "error", err)
	}
}

func (s *GuestVisitService) findMeetingByNumber(ctx context.Context, groupID string, meetingNumber int) (persistence.Meeting, bool) {
	meetings, err := s.meetings.ListMeetingsForGroup(ctx, groupID)
	if err != nil {
		return persistence.Meeting{}, false
	}
	for _, meeting := range meetings {
		if meeting.MeetingNumber == meetingNumber {
			return meeting, true
		}
	}
	return persistence.Meeting{}, false
}

func (s *GuestVisitService) meetingLookupError(field string, err error) error {
	mapped := mapStoreError(err)
	if mapped == ErrNotFound {
		vErr := &ValidationError{}
		vErr.add(field, "meeting not found")
		return vErr
	}
	return mapped
}
