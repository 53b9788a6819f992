package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/studysync/internal/persistence"
	"github.com/example/studysync/internal/testfixtures"
)

func newGroupService(t *testing.T) (*GroupService, *groupStub, *membershipStub, *meetingStub) {
	t.Helper()
	groups := newGroupStub()
	members := newMembershipStub(groups, make(map[string]persistence.User))
	meetings := newMeetingStub()
	clock := testfixtures.NewClock(time.Time{})
	service := NewGroupService(groups, members, meetings, testfixtures.NewIDGenerator("grp").NextFunc(), clock.NowFunc(), nil)
	return service, groups, members, meetings
}

var admin = Principal{UserID: "admin-1", IsAdmin: true}

func TestCreateGroup(t *testing.T) {
	service, groups, _, _ := newGroupService(t)

	group, err := service.CreateGroup(context.Background(), CreateGroupParams{
		Principal:     admin,
		CohortID:      "cohort-1",
		Name:          " Tuesday Circle ",
		ChatChannelID: "chan-1",
		ChatRoleID:    "role-1",
	})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if group.Name != "Tuesday Circle" {
		t.Errorf("name not trimmed: %q", group.Name)
	}
	if _, ok := groups.groups[group.ID]; !ok {
		t.Error("group not persisted")
	}
}

func TestCreateGroupValidation(t *testing.T) {
	service, _, _, _ := newGroupService(t)

	_, err := service.CreateGroup(context.Background(), CreateGroupParams{Principal: admin})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"cohortId", "name"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Errorf("missing error for %s", field)
		}
	}

	_, err = service.CreateGroup(context.Background(), CreateGroupParams{
		Principal: Principal{UserID: "u1"}, CohortID: "cohort-1", Name: "A",
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for non-admin, got %v", err)
	}
}

func TestCreateScheduleGeneratesWeeklyMeetings(t *testing.T) {
	service, groups, _, meetings := newGroupService(t)
	group := testfixtures.NewGroup()
	groups.groups[group.ID] = group

	first := time.Date(2026, 10, 6, 19, 0, 0, 0, time.UTC)
	created, err := service.CreateSchedule(context.Background(), CreateScheduleParams{
		Principal:       admin,
		GroupID:         group.ID,
		FirstMeeting:    first,
		Meetings:        8,
		DurationMinutes: 90,
	})
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if len(created) != 8 {
		t.Fatalf("got %d meetings, want 8", len(created))
	}
	for i, meeting := range created {
		if meeting.MeetingNumber != i+1 {
			t.Errorf("meeting %d numbered %d", i, meeting.MeetingNumber)
		}
		if want := first.AddDate(0, 0, 7*i); !meeting.ScheduledAt.Equal(want) {
			t.Errorf("meeting %d at %v, want %v", i+1, meeting.ScheduledAt, want)
		}
		if meeting.CohortID != group.CohortID || meeting.DurationMinutes != 90 {
			t.Errorf("meeting %d carries wrong context %+v", i+1, meeting)
		}
	}

	stored, _ := meetings.ListMeetingsForGroup(context.Background(), group.ID)
	if len(stored) != 8 {
		t.Errorf("%d meetings persisted, want 8", len(stored))
	}
}

func TestCreateScheduleValidation(t *testing.T) {
	service, groups, _, _ := newGroupService(t)
	group := testfixtures.NewGroup()
	groups.groups[group.ID] = group

	_, err := service.CreateSchedule(context.Background(), CreateScheduleParams{
		Principal: admin,
		GroupID:   group.ID,
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"meetings", "durationMinutes", "firstMeeting"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Errorf("missing error for %s", field)
		}
	}

	_, err = service.CreateSchedule(context.Background(), CreateScheduleParams{
		Principal:       admin,
		GroupID:         "missing",
		FirstMeeting:    time.Now().Add(time.Hour),
		Meetings:        4,
		DurationMinutes: 60,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown group, got %v", err)
	}
}

func TestMembershipAdministration(t *testing.T) {
	service, groups, members, _ := newGroupService(t)
	group := testfixtures.NewGroup()
	groups.groups[group.ID] = group
	ctx := context.Background()

	if err := service.AddMember(ctx, admin, group.ID, "user-a"); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := service.AddMember(ctx, admin, group.ID, "user-a"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
	if err := service.AddMember(ctx, Principal{UserID: "u"}, group.ID, "user-b"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	if err := service.SetMemberStatus(ctx, admin, group.ID, "user-a", persistence.MembershipInactive); err != nil {
		t.Fatalf("SetMemberStatus: %v", err)
	}
	if got := members.memberships[membershipKey(group.ID, "user-a")].Status; got != persistence.MembershipInactive {
		t.Errorf("status is %s, want inactive", got)
	}

	var vErr *ValidationError
	if err := service.SetMemberStatus(ctx, admin, group.ID, "user-a", "banned"); !errors.As(err, &vErr) {
		t.Errorf("expected ValidationError for unknown status, got %v", err)
	}
}

func TestCreateUserHashesPassword(t *testing.T) {
	users := newUserStub()
	service := NewUserService(users, testfixtures.NewIDGenerator("usr").NextFunc(), nil, nil)

	user, err := service.CreateUser(context.Background(), CreateUserParams{
		Principal:   admin,
		Email:       "Casey@Example.COM",
		DisplayName: "Casey",
		ChatUserID:  "chat-casey",
		Password:    "correct horse",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Email != "casey@example.com" {
		t.Errorf("email not normalised: %q", user.Email)
	}
	if err := VerifyPassword(user.PasswordHash, "correct horse"); err != nil {
		t.Errorf("stored hash does not verify: %v", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	service := NewUserService(newUserStub(), nil, nil, nil)

	_, err := service.CreateUser(context.Background(), CreateUserParams{
		Principal: admin,
		Email:     "not-an-email",
		Password:  "short",
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"email", "displayName", "password"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Errorf("missing error for %s", field)
		}
	}

	_, err = service.CreateUser(context.Background(), CreateUserParams{
		Principal: Principal{UserID: "u"}, Email: "a@b.c", DisplayName: "A", Password: "longenough",
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	if _, err := service.ListUsers(context.Background(), Principal{UserID: "u"}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for ListUsers, got %v", err)
	}
}
