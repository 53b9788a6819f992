package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/studysync/internal/persistence"
	"github.com/example/studysync/internal/testfixtures"
)

type calendarSyncEnv struct {
	clock    *testfixtures.Clock
	groups   *groupStub
	members  *membershipStub
	meetings *meetingStub
	calendar *calendarStub
	service  *CalendarSyncService
}

// newCalendarSyncEnv builds a group with eight weekly meetings and five
// active members, starting one week after the reference time.
func newCalendarSyncEnv(t *testing.T) *calendarSyncEnv {
	t.Helper()

	clock := testfixtures.NewClock(time.Time{})
	group := testfixtures.NewGroup(testfixtures.WithGroupID("g1"))
	groups := newGroupStub(group)

	users := make(map[string]persistence.User)
	members := newMembershipStub(groups, users)
	for i := 1; i <= 5; i++ {
		user := testfixtures.NewUser()
		users[user.ID] = user
		members.add("g1", user.ID)
	}

	meetings := newMeetingStub()
	first := testfixtures.ReferenceTime().AddDate(0, 0, 7)
	for week := 0; week < 8; week++ {
		meeting := testfixtures.NewMeeting(
			testfixtures.WithMeetingGroup("g1", group.CohortID),
			testfixtures.WithMeetingNumber(week+1),
			testfixtures.WithMeetingStart(first.AddDate(0, 0, 7*week)),
		)
		meetings.meetings[meeting.ID] = meeting
	}

	calendar := newCalendarStub()
	service := NewCalendarSyncService(groups, members, meetings, calendar, nil, clock.NowFunc())
	return &calendarSyncEnv{
		clock:    clock,
		groups:   groups,
		members:  members,
		meetings: meetings,
		calendar: calendar,
		service:  service,
	}
}

func TestSyncCreatesEventOnceForConcurrentStyleRepeats(t *testing.T) {
	env := newCalendarSyncEnv(t)
	ctx := context.Background()

	result, err := env.service.Sync(ctx, "g1")
	if err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	if !result.CreatedNew || result.EventID == "" {
		t.Fatalf("expected creation, got %+v", result)
	}

	// A second pass with nothing changed must not touch the provider.
	result, err = env.service.Sync(ctx, "g1")
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if result.CreatedNew || result.Patched {
		t.Errorf("expected a no-op second pass, got %+v", result)
	}
	if env.calendar.createCalls != 1 {
		t.Errorf("expected exactly one create call, got %d", env.calendar.createCalls)
	}
}

func TestSyncAdoptsStoredEventAndPatchesNewMember(t *testing.T) {
	env := newCalendarSyncEnv(t)
	ctx := context.Background()

	if _, err := env.service.Sync(ctx, "g1"); err != nil {
		t.Fatalf("initial Sync: %v", err)
	}

	// Sixth member joins; the next pass patches attendees and notifies.
	user := testfixtures.NewUser(testfixtures.WithUserEmail("sixth@example.com"))
	env.members.users[user.ID] = user
	env.members.add("g1", user.ID)

	result, err := env.service.Sync(ctx, "g1")
	if err != nil {
		t.Fatalf("Sync after join: %v", err)
	}
	if result.CreatedNew {
		t.Error("expected adoption of the stored event, not creation")
	}
	if !result.Patched || result.AttendeesAdded != 1 || result.AttendeesRemoved != 0 {
		t.Errorf("expected a one-member add patch, got %+v", result)
	}

	last := env.calendar.patches[len(env.calendar.patches)-1]
	if !last.notifyAdded {
		t.Error("adding an attendee must send provider notifications")
	}
	if len(last.emails) != 6 {
		t.Errorf("expected 6 attendees after join, got %d", len(last.emails))
	}
}

func TestSyncRemovalOnlyPatchIsSilent(t *testing.T) {
	env := newCalendarSyncEnv(t)
	ctx := context.Background()

	if _, err := env.service.Sync(ctx, "g1"); err != nil {
		t.Fatalf("initial Sync: %v", err)
	}

	members, _ := env.members.ListActiveMembers(ctx, "g1")
	if err := env.members.SetMemberStatus(ctx, "g1", members[0].UserID, persistence.MembershipInactive); err != nil {
		t.Fatalf("SetMemberStatus: %v", err)
	}

	result, err := env.service.Sync(ctx, "g1")
	if err != nil {
		t.Fatalf("Sync after leave: %v", err)
	}
	if !result.Patched || result.AttendeesRemoved != 1 {
		t.Fatalf("expected removal patch, got %+v", result)
	}
	last := env.calendar.patches[len(env.calendar.patches)-1]
	if last.notifyAdded {
		t.Error("a removal-only patch must not send notifications")
	}
}

func TestSyncHealsVanishedEvent(t *testing.T) {
	env := newCalendarSyncEnv(t)
	ctx := context.Background()

	first, err := env.service.Sync(ctx, "g1")
	if err != nil {
		t.Fatalf("initial Sync: %v", err)
	}

	// The event disappears on the provider side.
	delete(env.calendar.events, first.EventID)

	result, err := env.service.Sync(ctx, "g1")
	if err != nil {
		t.Fatalf("healing Sync: %v", err)
	}
	if !result.Healed || !result.CreatedNew {
		t.Fatalf("expected heal and recreate, got %+v", result)
	}
	if result.EventID == first.EventID {
		t.Error("expected a fresh event id after healing")
	}

	group, _ := env.groups.GetGroup(ctx, "g1")
	if group.RecurringEventID == nil || *group.RecurringEventID != result.EventID {
		t.Errorf("stored event id not updated, got %v", group.RecurringEventID)
	}
}

func TestSyncClearsIDEvenWhenRecreationFails(t *testing.T) {
	env := newCalendarSyncEnv(t)
	ctx := context.Background()

	first, err := env.service.Sync(ctx, "g1")
	if err != nil {
		t.Fatalf("initial Sync: %v", err)
	}
	delete(env.calendar.events, first.EventID)
	env.calendar.createErr = ErrExternalUnavailable

	result, err := env.service.Sync(ctx, "g1")
	if !errors.Is(err, ErrExternalUnavailable) {
		t.Fatalf("expected ErrExternalUnavailable, got %v", err)
	}
	if !result.Healed {
		t.Error("expected the dead id to be recognised")
	}

	// The cleared id committed, so the next pass starts from scratch.
	group, _ := env.groups.GetGroup(ctx, "g1")
	if group.RecurringEventID != nil {
		t.Errorf("expected cleared event id, got %v", *group.RecurringEventID)
	}

	env.calendar.createErr = nil
	result, err = env.service.Sync(ctx, "g1")
	if err != nil {
		t.Fatalf("recovery Sync: %v", err)
	}
	if !result.CreatedNew {
		t.Errorf("expected recreation on recovery, got %+v", result)
	}
}

func TestSyncWithoutFutureMeetingsIsNoOp(t *testing.T) {
	env := newCalendarSyncEnv(t)
	env.clock.Set(testfixtures.ReferenceTime().AddDate(1, 0, 0))

	result, err := env.service.Sync(context.Background(), "g1")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.CreatedNew || result.Patched || env.calendar.createCalls != 0 {
		t.Errorf("expected no provider interaction, got %+v", result)
	}
}

func TestSyncUnknownGroup(t *testing.T) {
	env := newCalendarSyncEnv(t)
	if _, err := env.service.Sync(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
