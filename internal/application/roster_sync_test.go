package application

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/example/studysync/internal/persistence"
	"github.com/example/studysync/internal/testfixtures"
)

type rosterSyncEnv struct {
	clock       *testfixtures.Clock
	groups      *groupStub
	members     *membershipStub
	meetings    *meetingStub
	attendances *attendanceStub
	users       *userStub
	roster      *rosterStub
	service     *AccessRosterService
	group       persistence.Group
}

func newRosterSyncEnv(t *testing.T) *rosterSyncEnv {
	t.Helper()

	clock := testfixtures.NewClock(time.Time{})
	group := testfixtures.NewGroup(testfixtures.WithGroupID("g1"))
	groups := newGroupStub(group)

	userMap := make(map[string]persistence.User)
	members := newMembershipStub(groups, userMap)
	users := &userStub{users: userMap}
	for i := 0; i < 3; i++ {
		user := testfixtures.NewUser()
		userMap[user.ID] = user
		members.add("g1", user.ID)
	}

	meetings := newMeetingStub()
	attendances := newAttendanceStub(meetings)
	roster := newRosterStub()
	service := NewAccessRosterService(groups, members, attendances, users, roster, nil, clock.NowFunc())
	return &rosterSyncEnv{
		clock:       clock,
		groups:      groups,
		members:     members,
		meetings:    meetings,
		attendances: attendances,
		users:       users,
		roster:      roster,
		service:     service,
		group:       group,
	}
}

// addGuest books a guest user on a host meeting starting at the given time.
func (env *rosterSyncEnv) addGuest(t *testing.T, start time.Time) persistence.User {
	t.Helper()

	guest := testfixtures.NewUser()
	env.users.users[guest.ID] = guest
	meeting := testfixtures.NewMeeting(
		testfixtures.WithMeetingGroup("g1", env.group.CohortID),
		testfixtures.WithMeetingStart(start),
	)
	env.meetings.meetings[meeting.ID] = meeting
	if err := env.attendances.CreateGuest(context.Background(), meeting.ID, guest.ID); err != nil {
		t.Fatalf("CreateGuest: %v", err)
	}
	return guest
}

func TestRosterSyncGrantsMembersAndIsIdempotent(t *testing.T) {
	env := newRosterSyncEnv(t)
	ctx := context.Background()

	result, err := env.service.Sync(ctx, "g1")
	if err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	if len(result.Granted) != 3 || len(result.Revoked) != 0 {
		t.Fatalf("expected 3 grants, got %+v", result)
	}
	if len(env.roster.messages) != 0 {
		t.Errorf("member grants must be silent, got %v", env.roster.messages)
	}

	result, err = env.service.Sync(ctx, "g1")
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if len(result.Granted) != 0 || len(result.Revoked) != 0 {
		t.Errorf("expected idempotent second pass, got %+v", result)
	}
}

func TestRosterSyncRevokesDeparted(t *testing.T) {
	env := newRosterSyncEnv(t)
	ctx := context.Background()

	env.roster.addMember(env.group.ChatRoleID, "chat-stranger")
	result, err := env.service.Sync(ctx, "g1")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(result.Revoked) != 1 || result.Revoked[0] != "chat-stranger" {
		t.Errorf("expected stranger revoked, got %+v", result)
	}
	if len(env.roster.messages) != 0 {
		t.Errorf("non-guest revocations must be silent, got %v", env.roster.messages)
	}
}

func TestRosterSyncWindowsGuestAccess(t *testing.T) {
	now := testfixtures.ReferenceTime()

	cases := []struct {
		name     string
		start    time.Time
		expected bool
	}{
		{"five days ahead is inside the lead", now.Add(5 * 24 * time.Hour), true},
		{"seven days ahead is outside the lead", now.Add(7 * 24 * time.Hour), false},
		{"two days past is inside the grace", now.Add(-2 * 24 * time.Hour), true},
		{"four days past is outside the grace", now.Add(-4 * 24 * time.Hour), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newRosterSyncEnv(t)
			env.clock.Set(now)
			guest := env.addGuest(t, tc.start)

			result, err := env.service.Sync(context.Background(), "g1")
			if err != nil {
				t.Fatalf("Sync: %v", err)
			}

			granted := false
			for _, chatUserID := range result.Granted {
				if chatUserID == guest.ChatUserID {
					granted = true
				}
			}
			if granted != tc.expected {
				t.Errorf("guest granted=%v, want %v", granted, tc.expected)
			}
		})
	}
}

func TestRosterSyncAnnouncesGuestChanges(t *testing.T) {
	env := newRosterSyncEnv(t)
	ctx := context.Background()
	now := testfixtures.ReferenceTime()
	env.clock.Set(now)

	guest := env.addGuest(t, now.Add(48*time.Hour))
	if _, err := env.service.Sync(ctx, "g1"); err != nil {
		t.Fatalf("grant Sync: %v", err)
	}
	if len(env.roster.messages) != 1 || !strings.Contains(env.roster.messages[0], guest.DisplayName) {
		t.Fatalf("expected one guest announcement, got %v", env.roster.messages)
	}

	// Past the grace the guest falls out of the window and is revoked, with
	// a departure announcement.
	env.clock.Set(now.Add(48*time.Hour + GuestAccessGrace + time.Hour))
	result, err := env.service.Sync(ctx, "g1")
	if err != nil {
		t.Fatalf("revoke Sync: %v", err)
	}
	if len(result.Revoked) != 1 || result.Revoked[0] != guest.ChatUserID {
		t.Fatalf("expected guest revoked, got %+v", result)
	}
	if len(env.roster.messages) != 2 {
		t.Errorf("expected a departure announcement, got %v", env.roster.messages)
	}
}
