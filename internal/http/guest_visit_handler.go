package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/studysync/internal/application"
)

type guestVisitService interface {
	FindAlternatives(ctx context.Context, principal application.Principal, homeMeetingID string) ([]application.HostMeetingCandidate, error)
	Create(ctx context.Context, params application.CreateGuestVisitParams) (application.GuestVisitView, error)
	Cancel(ctx context.Context, principal application.Principal, hostMeetingID string) error
	ListForUser(ctx context.Context, principal application.Principal) ([]application.GuestVisitView, error)
}

type GuestVisitHandler struct {
	service   guestVisitService
	responder responder
	logger    *slog.Logger
}

func NewGuestVisitHandler(service guestVisitService, logger *slog.Logger) *GuestVisitHandler {
	base := defaultLogger(logger)
	return &GuestVisitHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *GuestVisitHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "GuestVisitHandler", operation, attrs...)
}

// Alternatives lists sibling meetings the caller may visit instead of the
// home meeting named in the path.
func (h *GuestVisitHandler) Alternatives(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	meetingID, ok := PathIDFromContext(r.Context())
	if !ok || strings.TrimSpace(meetingID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidMeetingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	candidates, err := h.service.FindAlternatives(r.Context(), principal, meetingID)
	if err != nil {
		h.log(r.Context(), "Alternatives", "meeting_id", meetingID).ErrorContext(r.Context(), "alternative lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]hostMeetingDTO, 0, len(candidates))
	for _, candidate := range candidates {
		dtos = append(dtos, hostMeetingDTO{
			MeetingID:     candidate.MeetingID,
			GroupID:       candidate.GroupID,
			GroupName:     candidate.GroupName,
			MeetingNumber: candidate.MeetingNumber,
			ScheduledAt:   candidate.ScheduledAt.UTC().Format(time.RFC3339),
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, alternativesResponse{Alternatives: dtos})
}

func (h *GuestVisitHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req guestVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode guest visit request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID, "host_meeting_id", req.HostMeetingID)

	view, err := h.service.Create(r.Context(), application.CreateGuestVisitParams{
		Principal:     principal,
		HomeMeetingID: req.HomeMeetingID,
		HostMeetingID: req.HostMeetingID,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "guest visit booking failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "guest visit booked", "host_group_id", view.GroupID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, guestVisitResponse{Visit: toGuestVisitDTO(view)})
}

func (h *GuestVisitHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	meetingID, ok := PathIDFromContext(r.Context())
	if !ok || strings.TrimSpace(meetingID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidMeetingID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Cancel", "principal_id", principal.UserID, "host_meeting_id", meetingID)

	if err := h.service.Cancel(r.Context(), principal, meetingID); err != nil {
		logger.ErrorContext(r.Context(), "guest visit cancellation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "guest visit cancelled")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *GuestVisitHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	visits, err := h.service.ListForUser(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "List", "principal_id", principal.UserID).ErrorContext(r.Context(), "guest visit listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]guestVisitDTO, 0, len(visits))
	for _, visit := range visits {
		dtos = append(dtos, toGuestVisitDTO(visit))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, guestVisitListResponse{Visits: dtos})
}

type guestVisitRequest struct {
	HomeMeetingID string `json:"home_meeting_id"`
	HostMeetingID string `json:"host_meeting_id"`
}

type guestVisitDTO struct {
	MeetingID     string `json:"meeting_id"`
	GroupID       string `json:"group_id"`
	GroupName     string `json:"group_name"`
	MeetingNumber int    `json:"meeting_number"`
	ScheduledAt   string `json:"scheduled_at"`
}

type guestVisitResponse struct {
	Visit guestVisitDTO `json:"visit"`
}

type guestVisitListResponse struct {
	Visits []guestVisitDTO `json:"visits"`
}

type hostMeetingDTO struct {
	MeetingID     string `json:"meeting_id"`
	GroupID       string `json:"group_id"`
	GroupName     string `json:"group_name"`
	MeetingNumber int    `json:"meeting_number"`
	ScheduledAt   string `json:"scheduled_at"`
}

type alternativesResponse struct {
	Alternatives []hostMeetingDTO `json:"alternatives"`
}

func toGuestVisitDTO(view application.GuestVisitView) guestVisitDTO {
	return guestVisitDTO{
		MeetingID:     view.MeetingID,
		GroupID:       view.GroupID,
		GroupName:     view.GroupName,
		MeetingNumber: view.MeetingNumber,
		ScheduledAt:   view.ScheduledAt.UTC().Format(time.RFC3339),
	}
}
