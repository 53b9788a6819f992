package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/example/studysync/internal/persistence"
)

// AccessRosterService reconciles a group's chat role membership with who
// should currently see the group channel: active members plus guests whose
// visited meeting is inside the access window.
type AccessRosterService struct {
	groups      persistence.GroupRepository
	members     persistence.MembershipRepository
	attendances persistence.AttendanceRepository
	users       persistence.UserRepository
	roster      RosterGateway
	logger      *slog.Logger
	now         func() time.Time
}

// NewAccessRosterService wires dependencies for roster reconciliation.
func NewAccessRosterService(groups persistence.GroupRepository, members persistence.MembershipRepository, attendances persistence.AttendanceRepository, users persistence.UserRepository, roster RosterGateway, logger *slog.Logger, now func() time.Time) *AccessRosterService {
	if now == nil {
		now = time.Now
	}
	return &AccessRosterService{
		groups:      groups,
		members:     members,
		attendances: attendances,
		users:       users,
		roster:      roster,
		logger:      defaultLogger(logger),
		now:         now,
	}
}

// Sync grants and revokes the group role so that exactly the expected chat
// users hold it. Running it again immediately changes nothing. Member churn
// is silent; only guest-linked changes are announced in the group channel.
func (s *AccessRosterService) Sync(ctx context.Context, groupID string) (RosterSyncResult, error) {
	result := RosterSyncResult{GroupID: groupID}
	log := serviceLogger(ctx, s.logger, "roster_sync", "sync", "groupID", groupID)

	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return result, mapStoreError(err)
	}
	if group.ChatRoleID == "" {
		log.Info("group has no chat role, nothing to reconcile")
		return result, nil
	}

	activeMembers, err := s.members.ListActiveMembers(ctx, groupID)
	if err != nil {
		return result, mapStoreError(err)
	}

	expected := make(map[string]struct{}, len(activeMembers))
	for _, member := range activeMembers {
		if member.ChatUserID != "" {
			expected[member.ChatUserID] = struct{}{}
		}
	}

	from, to := accessWindow(s.now())
	guests, err := s.attendances.ListWindowedGuests(ctx, groupID, from, to)
	if err != nil {
		return result, mapStoreError(err)
	}

	// Chat id to display name, for the channel announcements.
	guestNames := make(map[string]string, len(guests))
	for _, guest := range guests {
		user, err := s.users.GetUser(ctx, guest.UserID)
		if err != nil {
			return result, mapStoreError(err)
		}
		if user.ChatUserID == "" {
			continue
		}
		expected[user.ChatUserID] = struct{}{}
		guestNames[user.ChatUserID] = user.DisplayName
	}

	current, err := s.roster.GetRoleMembers(ctx, group.ChatRoleID)
	if err != nil {
		log.Warn("role member listing failed", "roleID", group.ChatRoleID, "error", err)
		return result, err
	}
	currentSet := make(map[string]struct{}, len(current))
	for _, chatUserID := range current {
		currentSet[chatUserID] = struct{}{}
	}

	var firstErr error
	for _, chatUserID := range sortedKeys(expected) {
		if _, ok := currentSet[chatUserID]; ok {
			continue
		}
		if err := s.roster.GrantRole(ctx, group.ChatRoleID, chatUserID); err != nil {
			log.Warn("grant failed", "chatUserID", chatUserID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		result.Granted = append(result.Granted, chatUserID)
		if name, isGuest := guestNames[chatUserID]; isGuest {
			s.announce(ctx, log, group.ChatChannelID,
				fmt.Sprintf("%s joins as a guest and can now see this channel.", name))
		}
	}

	for _, chatUserID := range current {
		if _, ok := expected[chatUserID]; ok {
			continue
		}
		if err := s.roster.RevokeRole(ctx, group.ChatRoleID, chatUserID); err != nil {
			log.Warn("revoke failed", "chatUserID", chatUserID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		result.Revoked = append(result.Revoked, chatUserID)
		if user, err := s.users.GetUserByChatID(ctx, chatUserID); err == nil {
			if wasGuest, err := s.attendances.IsGuestOfGroup(ctx, groupID, user.ID); err == nil && wasGuest {
				s.announce(ctx, log, group.ChatChannelID,
					fmt.Sprintf("%s's guest visit has ended.", user.DisplayName))
			}
		}
	}

	log.Info("roster reconciled", "granted", len(result.Granted), "revoked", len(result.Revoked))
	return result, firstErr
}

// SyncAll reconciles every group's role roster. Per-group failures are
// logged and do not stop the pass.
func (s *AccessRosterService) SyncAll(ctx context.Context) error {
	log := serviceLogger(ctx, s.logger, "access_roster", "sync_all")

	groups, err := s.groups.ListGroups(ctx)
	if err != nil {
		return mapStoreError(err)
	}

	var failures int
	for _, group := range groups {
		if _, err := s.Sync(ctx, group.ID); err != nil {
			failures++
			log.Warn("group reconciliation failed", "groupID", group.ID, "error", err)
		}
	}
	log.Info("roster sweep finished", "groups", len(groups), "failures", failures)
	return nil
}

// announce posts best effort; a lost notification must not fail the
// reconciliation that already happened.
func (s *AccessRosterService) announce(ctx context.Context, log *slog.Logger, channelID, text string) {
	if err := s.roster.SendChannelMessage(ctx, channelID, text); err != nil {
		log.Warn("channel announcement failed", "channelID", channelID, "error", err)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
