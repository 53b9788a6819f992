package application

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/studysync/internal/persistence"
)

// In-memory stubs implementing the persistence interfaces and gateways the
// services depend on.

type groupStub struct {
	mu     sync.Mutex
	groups map[string]persistence.Group
}

func newGroupStub(groups ...persistence.Group) *groupStub {
	stub := &groupStub{groups: make(map[string]persistence.Group)}
	for _, group := range groups {
		stub.groups[group.ID] = group
	}
	return stub
}

func (s *groupStub) CreateGroup(ctx context.Context, group persistence.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[group.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.groups[group.ID] = group
	return nil
}

func (s *groupStub) GetGroup(ctx context.Context, id string) (persistence.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[id]
	if !ok {
		return persistence.Group{}, persistence.ErrNotFound
	}
	return group, nil
}

func (s *groupStub) ListGroups(ctx context.Context) ([]persistence.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var groups []persistence.Group
	for _, group := range s.groups {
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

type groupCalendarTxStub struct {
	stub    *groupStub
	groupID string
	eventID *string
}

func (t *groupCalendarTxStub) RecurringEventID() *string { return t.eventID }

func (t *groupCalendarTxStub) SetRecurringEventID(id *string) error {
	t.eventID = id
	return nil
}

func (s *groupStub) WithCalendarLock(ctx context.Context, groupID string, fn func(tx persistence.GroupCalendarTx) error) error {
	s.mu.Lock()
	group, ok := s.groups[groupID]
	s.mu.Unlock()
	if !ok {
		return persistence.ErrNotFound
	}

	tx := &groupCalendarTxStub{stub: s, groupID: groupID, eventID: group.RecurringEventID}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	group = s.groups[groupID]
	group.RecurringEventID = tx.eventID
	s.groups[groupID] = group
	s.mu.Unlock()
	return nil
}

type membershipStub struct {
	memberships map[string]persistence.Membership // key groupID|userID
	users       map[string]persistence.User
	groups      *groupStub
}

func newMembershipStub(groups *groupStub, users map[string]persistence.User) *membershipStub {
	return &membershipStub{
		memberships: make(map[string]persistence.Membership),
		users:       users,
		groups:      groups,
	}
}

func membershipKey(groupID, userID string) string { return groupID + "|" + userID }

func (s *membershipStub) add(groupID, userID string) {
	s.memberships[membershipKey(groupID, userID)] = persistence.Membership{
		GroupID: groupID, UserID: userID, Status: persistence.MembershipActive,
	}
}

func (s *membershipStub) AddMember(ctx context.Context, membership persistence.Membership) error {
	key := membershipKey(membership.GroupID, membership.UserID)
	if _, ok := s.memberships[key]; ok {
		return persistence.ErrDuplicate
	}
	s.memberships[key] = membership
	return nil
}

func (s *membershipStub) SetMemberStatus(ctx context.Context, groupID, userID string, status persistence.MembershipStatus) error {
	key := membershipKey(groupID, userID)
	membership, ok := s.memberships[key]
	if !ok {
		return persistence.ErrNotFound
	}
	membership.Status = status
	s.memberships[key] = membership
	return nil
}

func (s *membershipStub) ListActiveMembers(ctx context.Context, groupID string) ([]persistence.ActiveMember, error) {
	var members []persistence.ActiveMember
	for _, membership := range s.memberships {
		if membership.GroupID != groupID || membership.Status != persistence.MembershipActive {
			continue
		}
		user := s.users[membership.UserID]
		members = append(members, persistence.ActiveMember{
			UserID:     membership.UserID,
			Email:      user.Email,
			ChatUserID: user.ChatUserID,
		})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

func (s *membershipStub) IsActiveMember(ctx context.Context, groupID, userID string) (bool, error) {
	membership, ok := s.memberships[membershipKey(groupID, userID)]
	return ok && membership.Status == persistence.MembershipActive, nil
}

func (s *membershipStub) ActiveGroupForUserInCohort(ctx context.Context, userID, cohortID string) (persistence.Group, error) {
	for _, membership := range s.memberships {
		if membership.UserID != userID || membership.Status != persistence.MembershipActive {
			continue
		}
		group, err := s.groups.GetGroup(ctx, membership.GroupID)
		if err == nil && group.CohortID == cohortID {
			return group, nil
		}
	}
	return persistence.Group{}, persistence.ErrNotFound
}

type meetingStub struct {
	meetings map[string]persistence.Meeting
}

func newMeetingStub(meetings ...persistence.Meeting) *meetingStub {
	stub := &meetingStub{meetings: make(map[string]persistence.Meeting)}
	for _, meeting := range meetings {
		stub.meetings[meeting.ID] = meeting
	}
	return stub
}

func (s *meetingStub) CreateMeetings(ctx context.Context, meetings []persistence.Meeting) error {
	for _, meeting := range meetings {
		if _, ok := s.meetings[meeting.ID]; ok {
			return persistence.ErrDuplicate
		}
	}
	for _, meeting := range meetings {
		s.meetings[meeting.ID] = meeting
	}
	return nil
}

func (s *meetingStub) GetMeeting(ctx context.Context, id string) (persistence.Meeting, error) {
	meeting, ok := s.meetings[id]
	if !ok {
		return persistence.Meeting{}, persistence.ErrNotFound
	}
	return meeting, nil
}

func (s *meetingStub) sorted(filter func(persistence.Meeting) bool) []persistence.Meeting {
	var result []persistence.Meeting
	for _, meeting := range s.meetings {
		if filter(meeting) {
			result = append(result, meeting)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ScheduledAt.Before(result[j].ScheduledAt) })
	return result
}

func (s *meetingStub) ListMeetingsForGroup(ctx context.Context, groupID string) ([]persistence.Meeting, error) {
	return s.sorted(func(m persistence.Meeting) bool { return m.GroupID == groupID }), nil
}

func (s *meetingStub) ListFutureMeetingsForGroup(ctx context.Context, groupID string, after time.Time) ([]persistence.Meeting, error) {
	return s.sorted(func(m persistence.Meeting) bool {
		return m.GroupID == groupID && m.ScheduledAt.After(after)
	}), nil
}

func (s *meetingStub) ListAlternatives(ctx context.Context, cohortID string, meetingNumber int, excludeGroupID string, after time.Time) ([]persistence.Meeting, error) {
	return s.sorted(func(m persistence.Meeting) bool {
		return m.CohortID == cohortID && m.MeetingNumber == meetingNumber &&
			m.GroupID != excludeGroupID && m.ScheduledAt.After(after)
	}), nil
}

func (s *meetingStub) ListGroupIDsWithMeetingsAfter(ctx context.Context, after time.Time) ([]string, error) {
	set := make(map[string]struct{})
	for _, meeting := range s.meetings {
		if meeting.ScheduledAt.After(after) {
			set[meeting.GroupID] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

type attendanceStub struct {
	meetings *meetingStub
	rows     map[string]persistence.Attendance // key meetingID|userID
	nextID   int
}

func newAttendanceStub(meetings *meetingStub) *attendanceStub {
	return &attendanceStub{meetings: meetings, rows: make(map[string]persistence.Attendance)}
}

func attendanceKey(meetingID, userID string) string { return meetingID + "|" + userID }

func (s *attendanceStub) UpsertRSVP(ctx context.Context, meetingID, userID string, status persistence.RSVPStatus) (bool, error) {
	key := attendanceKey(meetingID, userID)
	row, ok := s.rows[key]
	if !ok {
		s.nextID++
		s.rows[key] = persistence.Attendance{
			ID: fmt.Sprintf("att-%d", s.nextID), MeetingID: meetingID, UserID: userID, Status: status,
		}
		return true, nil
	}
	if row.IsGuest || row.Status == status {
		return false, nil
	}
	row.Status = status
	s.rows[key] = row
	return true, nil
}

func (s *attendanceStub) SetStatus(ctx context.Context, meetingID, userID string, status persistence.RSVPStatus) error {
	key := attendanceKey(meetingID, userID)
	row, ok := s.rows[key]
	if !ok {
		s.nextID++
		row = persistence.Attendance{ID: fmt.Sprintf("att-%d", s.nextID), MeetingID: meetingID, UserID: userID}
	}
	if row.IsGuest {
		return nil
	}
	row.Status = status
	s.rows[key] = row
	return nil
}

func (s *attendanceStub) CreateGuest(ctx context.Context, meetingID, userID string) error {
	key := attendanceKey(meetingID, userID)
	if _, ok := s.rows[key]; ok {
		return persistence.ErrDuplicate
	}
	s.nextID++
	s.rows[key] = persistence.Attendance{
		ID: fmt.Sprintf("att-%d", s.nextID), MeetingID: meetingID, UserID: userID,
		Status: persistence.RSVPAttending, IsGuest: true,
	}
	return nil
}

func (s *attendanceStub) DeleteGuest(ctx context.Context, meetingID, userID string) error {
	key := attendanceKey(meetingID, userID)
	row, ok := s.rows[key]
	if !ok || !row.IsGuest {
		return persistence.ErrNotFound
	}
	delete(s.rows, key)
	return nil
}

func (s *attendanceStub) GetGuest(ctx context.Context, meetingID, userID string) (persistence.Attendance, error) {
	row, ok := s.rows[attendanceKey(meetingID, userID)]
	if !ok || !row.IsGuest {
		return persistence.Attendance{}, persistence.ErrNotFound
	}
	return row, nil
}

func (s *attendanceStub) ListWindowedGuests(ctx context.Context, groupID string, from, to time.Time) ([]persistence.GuestAttendee, error) {
	var guests []persistence.GuestAttendee
	for _, row := range s.rows {
		if !row.IsGuest || row.Status != persistence.RSVPAttending {
			continue
		}
		meeting, err := s.meetings.GetMeeting(ctx, row.MeetingID)
		if err != nil || meeting.GroupID != groupID {
			continue
		}
		if meeting.ScheduledAt.Before(from) || meeting.ScheduledAt.After(to) {
			continue
		}
		guests = append(guests, persistence.GuestAttendee{
			UserID: row.UserID, MeetingID: row.MeetingID, ScheduledAt: meeting.ScheduledAt,
		})
	}
	sort.Slice(guests, func(i, j int) bool { return guests[i].UserID < guests[j].UserID })
	return guests, nil
}

func (s *attendanceStub) ListGuestVisitsForUser(ctx context.Context, userID string) ([]persistence.GuestVisitRecord, error) {
	var visits []persistence.GuestVisitRecord
	for _, row := range s.rows {
		if !row.IsGuest || row.UserID != userID {
			continue
		}
		meeting, err := s.meetings.GetMeeting(ctx, row.MeetingID)
		if err != nil {
			continue
		}
		visits = append(visits, persistence.GuestVisitRecord{
			AttendanceID: row.ID, UserID: row.UserID, MeetingID: row.MeetingID,
			GroupID: meeting.GroupID, CohortID: meeting.CohortID,
			MeetingNumber: meeting.MeetingNumber, ScheduledAt: meeting.ScheduledAt,
		})
	}
	sort.Slice(visits, func(i, j int) bool { return visits[i].ScheduledAt.Before(visits[j].ScheduledAt) })
	return visits, nil
}

func (s *attendanceStub) IsGuestOfGroup(ctx context.Context, groupID, userID string) (bool, error) {
	for _, row := range s.rows {
		if !row.IsGuest || row.UserID != userID {
			continue
		}
		meeting, err := s.meetings.GetMeeting(ctx, row.MeetingID)
		if err == nil && meeting.GroupID == groupID {
			return true, nil
		}
	}
	return false, nil
}

func (s *attendanceStub) status(meetingID, userID string) persistence.RSVPStatus {
	return s.rows[attendanceKey(meetingID, userID)].Status
}

type jobStub struct {
	jobs map[string]persistence.SyncJob
}

func newJobStub() *jobStub { return &jobStub{jobs: make(map[string]persistence.SyncJob)} }

func (s *jobStub) UpsertJob(ctx context.Context, job persistence.SyncJob) error {
	s.jobs[job.ID] = job
	return nil
}

func (s *jobStub) DeleteJob(ctx context.Context, id string) error {
	delete(s.jobs, id)
	return nil
}

func (s *jobStub) DeleteJobsMatching(ctx context.Context, prefix string) (int, error) {
	removed := 0
	for id := range s.jobs {
		if strings.HasPrefix(id, prefix) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (s *jobStub) DueJobs(ctx context.Context, now time.Time) ([]persistence.SyncJob, error) {
	var due []persistence.SyncJob
	for _, job := range s.jobs {
		if !job.RunAt.After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	return due, nil
}

type userStub struct {
	users map[string]persistence.User
}

func newUserStub(users ...persistence.User) *userStub {
	stub := &userStub{users: make(map[string]persistence.User)}
	for _, user := range users {
		stub.users[user.ID] = user
	}
	return stub
}

func (s *userStub) CreateUser(ctx context.Context, user persistence.User) error {
	if _, ok := s.users[user.ID]; ok {
		return persistence.ErrDuplicate
	}
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return persistence.ErrDuplicate
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *userStub) UpdateUser(ctx context.Context, user persistence.User) error {
	if _, ok := s.users[user.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.users[user.ID] = user
	return nil
}

func (s *userStub) GetUser(ctx context.Context, id string) (persistence.User, error) {
	user, ok := s.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

func (s *userStub) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	for _, user := range s.users {
		if user.Email == strings.ToLower(email) {
			return user, nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

func (s *userStub) GetUserByChatID(ctx context.Context, chatUserID string) (persistence.User, error) {
	for _, user := range s.users {
		if user.ChatUserID == chatUserID {
			return user, nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

func (s *userStub) ListUsers(ctx context.Context) ([]persistence.User, error) {
	var users []persistence.User
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

type sessionStub struct {
	sessions map[string]persistence.Session // key token
}

func newSessionStub() *sessionStub { return &sessionStub{sessions: make(map[string]persistence.Session)} }

func (s *sessionStub) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	s.sessions[session.Token] = session
	return session, nil
}

func (s *sessionStub) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	session, ok := s.sessions[token]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return session, nil
}

func (s *sessionStub) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	session, ok := s.sessions[token]
	if !ok || session.RevokedAt != nil {
		return persistence.Session{}, persistence.ErrNotFound
	}
	session.RevokedAt = &revokedAt
	s.sessions[token] = session
	return session, nil
}

func (s *sessionStub) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	for token, session := range s.sessions {
		if session.ExpiresAt.Before(reference) {
			delete(s.sessions, token)
		}
	}
	return nil
}

// calendarStub fakes the calendar provider.
type calendarStub struct {
	events      map[string]*CalendarEvent
	instances   map[string][]EventInstance
	nextID      int
	createErr   error
	getErr      error
	patchErr    error
	createCalls int
	patches     []calendarPatch
}

type calendarPatch struct {
	targetID    string
	emails      []string
	notifyAdded bool
}

func newCalendarStub() *calendarStub {
	return &calendarStub{
		events:    make(map[string]*CalendarEvent),
		instances: make(map[string][]EventInstance),
	}
}

func (s *calendarStub) CreateRecurringEvent(ctx context.Context, req CreateRecurringEventRequest) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	s.createCalls++
	s.nextID++
	id := fmt.Sprintf("evt-%d", s.nextID)
	attendees := make([]EventAttendee, 0, len(req.AttendeeEmails))
	for _, email := range req.AttendeeEmails {
		attendees = append(attendees, EventAttendee{Email: email, ResponseStatus: "needsAction"})
	}
	s.events[id] = &CalendarEvent{ID: id, Status: "confirmed", Attendees: attendees}
	return id, nil
}

func (s *calendarStub) GetEvent(ctx context.Context, eventID string) (CalendarEvent, bool, error) {
	if s.getErr != nil {
		return CalendarEvent{}, false, s.getErr
	}
	event, ok := s.events[eventID]
	if !ok {
		return CalendarEvent{}, false, nil
	}
	return *event, true, nil
}

func (s *calendarStub) PatchEventAttendees(ctx context.Context, eventID string, emails []string, notifyAdded bool) error {
	if s.patchErr != nil {
		return s.patchErr
	}
	s.patches = append(s.patches, calendarPatch{targetID: eventID, emails: emails, notifyAdded: notifyAdded})
	if event, ok := s.events[eventID]; ok {
		attendees := make([]EventAttendee, 0, len(emails))
		for _, email := range emails {
			attendees = append(attendees, EventAttendee{Email: email, ResponseStatus: "needsAction"})
		}
		event.Attendees = attendees
	}
	return nil
}

func (s *calendarStub) ListInstances(ctx context.Context, eventID string) ([]EventInstance, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.instances[eventID], nil
}

func (s *calendarStub) PatchInstanceAttendees(ctx context.Context, instanceID string, emails []string, notifyAdded bool) error {
	if s.patchErr != nil {
		return s.patchErr
	}
	s.patches = append(s.patches, calendarPatch{targetID: instanceID, emails: emails, notifyAdded: notifyAdded})
	return nil
}

// rosterStub fakes the chat platform.
type rosterStub struct {
	roles    map[string]map[string]struct{} // roleID -> chat user ids
	messages []string
	listErr  error
	grants   int
	revokes  int
}

func newRosterStub() *rosterStub {
	return &rosterStub{roles: make(map[string]map[string]struct{})}
}

func (s *rosterStub) addMember(roleID, chatUserID string) {
	if s.roles[roleID] == nil {
		s.roles[roleID] = make(map[string]struct{})
	}
	s.roles[roleID][chatUserID] = struct{}{}
}

func (s *rosterStub) GetRoleMembers(ctx context.Context, roleID string) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return sortedKeys(s.roles[roleID]), nil
}

func (s *rosterStub) GrantRole(ctx context.Context, roleID, chatUserID string) error {
	s.grants++
	s.addMember(roleID, chatUserID)
	return nil
}

func (s *rosterStub) RevokeRole(ctx context.Context, roleID, chatUserID string) error {
	s.revokes++
	if members, ok := s.roles[roleID]; ok {
		delete(members, chatUserID)
	}
	return nil
}

func (s *rosterStub) SendChannelMessage(ctx context.Context, channelID, text string) error {
	s.messages = append(s.messages, channelID+": "+text)
	return nil
}
