package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/example/studysync/internal/persistence"
	"github.com/example/studysync/internal/recurrence"
)

// GroupService manages groups, their membership, and schedule generation.
type GroupService struct {
	groups      persistence.GroupRepository
	members     persistence.MembershipRepository
	meetings    persistence.MeetingRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewGroupService wires dependencies for group administration.
func NewGroupService(groups persistence.GroupRepository, members persistence.MembershipRepository, meetings persistence.MeetingRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *GroupService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &GroupService{
		groups:      groups,
		members:     members,
		meetings:    meetings,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// CreateGroup registers a new group in a cohort.
func (s *GroupService) CreateGroup(ctx context.Context, params CreateGroupParams) (persistence.Group, error) {
	if !params.Principal.IsAdmin {
		return persistence.Group{}, ErrUnauthorized
	}

	vErr := &ValidationError{}
	if strings.TrimSpace(params.CohortID) == "" {
		vErr.add("cohortId", "cohort is required")
	}
	if strings.TrimSpace(params.Name) == "" {
		vErr.add("name", "name is required")
	}
	if vErr.HasErrors() {
		return persistence.Group{}, vErr
	}

	group := persistence.Group{
		ID:            s.idGenerator(),
		CohortID:      strings.TrimSpace(params.CohortID),
		Name:          strings.TrimSpace(params.Name),
		ChatChannelID: params.ChatChannelID,
		ChatRoleID:    params.ChatRoleID,
	}
	if err := s.groups.CreateGroup(ctx, group); err != nil {
		return persistence.Group{}, mapStoreError(err)
	}

	serviceLogger(ctx, s.logger, "groups", "create", "groupID", group.ID).
		Info("group created", "cohortID", group.CohortID)
	return group, nil
}

// GetGroup returns one group.
func (s *GroupService) GetGroup(ctx context.Context, id string) (persistence.Group, error) {
	group, err := s.groups.GetGroup(ctx, id)
	if err != nil {
		return persistence.Group{}, mapStoreError(err)
	}
	return group, nil
}

// ListGroups returns all groups.
func (s *GroupService) ListGroups(ctx context.Context) ([]persistence.Group, error) {
	groups, err := s.groups.ListGroups(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return groups, nil
}

// AddMember makes a user an active member of a group.
func (s *GroupService) AddMember(ctx context.Context, principal Principal, groupID, userID string) error {
	if !principal.IsAdmin {
		return ErrUnauthorized
	}
	err := s.members.AddMember(ctx, persistence.Membership{
		GroupID: groupID,
		UserID:  userID,
		Status:  persistence.MembershipActive,
	})
	return mapStoreError(err)
}

// SetMemberStatus activates or deactivates an existing membership.
func (s *GroupService) SetMemberStatus(ctx context.Context, principal Principal, groupID, userID string, status persistence.MembershipStatus) error {
	if !principal.IsAdmin {
		return ErrUnauthorized
	}
	if status != persistence.MembershipActive && status != persistence.MembershipInactive {
		vErr := &ValidationError{}
		vErr.add("status", "unknown membership status")
		return vErr
	}
	return mapStoreError(s.members.SetMemberStatus(ctx, groupID, userID, status))
}

// CreateSchedule generates the group's weekly meeting rows. Week numbering
// starts at 1 and is shared across sibling groups in the cohort.
func (s *GroupService) CreateSchedule(ctx context.Context, params CreateScheduleParams) ([]persistence.Meeting, error) {
	if !params.Principal.IsAdmin {
		return nil, ErrUnauthorized
	}

	vErr := &ValidationError{}
	if params.Meetings <= 0 {
		vErr.add("meetings", "at least one meeting is required")
	}
	if params.DurationMinutes <= 0 {
		vErr.add("durationMinutes", "duration must be positive")
	}
	if params.FirstMeeting.IsZero() {
		vErr.add("firstMeeting", "first meeting time is required")
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	group, err := s.groups.GetGroup(ctx, params.GroupID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	starts, err := recurrence.WeeklyOccurrences(params.FirstMeeting, params.Meetings)
	if err != nil {
		return nil, err
	}

	meetings := make([]persistence.Meeting, 0, len(starts))
	for week, start := range starts {
		meetings = append(meetings, persistence.Meeting{
			ID:              s.idGenerator(),
			GroupID:         group.ID,
			CohortID:        group.CohortID,
			MeetingNumber:   week + 1,
			ScheduledAt:     start,
			DurationMinutes: params.DurationMinutes,
		})
	}
	if err := s.meetings.CreateMeetings(ctx, meetings); err != nil {
		return nil, mapStoreError(err)
	}

	serviceLogger(ctx, s.logger, "groups", "create_schedule", "groupID", group.ID).
		Info("schedule generated", "meetings", len(meetings))
	return meetings, nil
}
