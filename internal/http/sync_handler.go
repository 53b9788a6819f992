package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/studysync/internal/application"
)

type calendarSyncService interface {
	Sync(ctx context.Context, groupID string) (application.CalendarSyncResult, error)
}

type rsvpSyncService interface {
	SyncFromRecurring(ctx context.Context, groupID string) (application.RSVPSyncResult, error)
}

type rosterSyncService interface {
	Sync(ctx context.Context, groupID string) (application.RosterSyncResult, error)
}

// SyncHandler exposes administrator triggered reconciliation of one group
// against the external providers. Each trigger runs the same pass the
// periodic sweep runs.
type SyncHandler struct {
	calendar  calendarSyncService
	rsvps     rsvpSyncService
	roster    rosterSyncService
	responder responder
	logger    *slog.Logger
}

func NewSyncHandler(calendar calendarSyncService, rsvps rsvpSyncService, roster rosterSyncService, logger *slog.Logger) *SyncHandler {
	base := defaultLogger(logger)
	return &SyncHandler{
		calendar:  calendar,
		rsvps:     rsvps,
		roster:    roster,
		responder: newResponder(base),
		logger:    base,
	}
}

func (h *SyncHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SyncHandler", operation, attrs...)
}

// groupForSync validates the principal and path before a sync trigger runs.
func (h *SyncHandler) groupForSync(w http.ResponseWriter, r *http.Request, operation string) (string, bool) {
	groupID, ok := PathIDFromContext(r.Context())
	if !ok || strings.TrimSpace(groupID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidGroupID)
		return "", false
	}

	principal, _ := PrincipalFromContext(r.Context())
	if !principal.IsAdmin {
		h.log(r.Context(), operation, "group_id", groupID, "error_kind", "forbidden").ErrorContext(r.Context(), "non-administrator attempted sync trigger")
		h.responder.handleServiceError(r.Context(), w, application.ErrUnauthorized)
		return "", false
	}
	return groupID, true
}

func (h *SyncHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.calendar == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	groupID, ok := h.groupForSync(w, r, "Calendar")
	if !ok {
		return
	}
	logger := h.log(r.Context(), "Calendar", "group_id", groupID)

	result, err := h.calendar.Sync(r.Context(), groupID)
	if err != nil {
		logger.ErrorContext(r.Context(), "calendar sync failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "calendar sync completed", "event_id", result.EventID, "created_new", result.CreatedNew)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, calendarSyncDTO{
		GroupID:          result.GroupID,
		EventID:          result.EventID,
		CreatedNew:       result.CreatedNew,
		Healed:           result.Healed,
		Patched:          result.Patched,
		AttendeesAdded:   result.AttendeesAdded,
		AttendeesRemoved: result.AttendeesRemoved,
	})
}

func (h *SyncHandler) RSVPs(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.rsvps == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	groupID, ok := h.groupForSync(w, r, "RSVPs")
	if !ok {
		return
	}
	logger := h.log(r.Context(), "RSVPs", "group_id", groupID)

	result, err := h.rsvps.SyncFromRecurring(r.Context(), groupID)
	if err != nil {
		logger.ErrorContext(r.Context(), "rsvp sync failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "rsvp sync completed", "updated", result.Updated, "skipped", result.Skipped)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, rsvpSyncDTO{
		InstancesFetched: result.InstancesFetched,
		Synced:           result.Synced,
		Skipped:          result.Skipped,
		Updated:          result.Updated,
	})
}

func (h *SyncHandler) Roster(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.roster == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	groupID, ok := h.groupForSync(w, r, "Roster")
	if !ok {
		return
	}
	logger := h.log(r.Context(), "Roster", "group_id", groupID)

	result, err := h.roster.Sync(r.Context(), groupID)
	if err != nil {
		logger.ErrorContext(r.Context(), "roster sync failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "roster sync completed", "granted", len(result.Granted), "revoked", len(result.Revoked))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, rosterSyncDTO{
		Granted: result.Granted,
		Revoked: result.Revoked,
	})
}

type calendarSyncDTO struct {
	GroupID          string `json:"group_id"`
	EventID          string `json:"event_id,omitempty"`
	CreatedNew       bool   `json:"created_new"`
	Healed           bool   `json:"healed"`
	Patched          bool   `json:"patched"`
	AttendeesAdded   int    `json:"attendees_added"`
	AttendeesRemoved int    `json:"attendees_removed"`
}

type rsvpSyncDTO struct {
	InstancesFetched int `json:"instances_fetched"`
	Synced           int `json:"synced"`
	Skipped          int `json:"skipped"`
	Updated          int `json:"updated"`
}

type rosterSyncDTO struct {
	Granted []string `json:"granted"`
	Revoked []string `json:"revoked"`
}
