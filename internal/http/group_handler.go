package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/studysync/internal/application"
	"github.com/example/studysync/internal/persistence"
)

type groupService interface {
	CreateGroup(ctx context.Context, params application.CreateGroupParams) (persistence.Group, error)
	GetGroup(ctx context.Context, id string) (persistence.Group, error)
	ListGroups(ctx context.Context) ([]persistence.Group, error)
	AddMember(ctx context.Context, principal application.Principal, groupID, userID string) error
	SetMemberStatus(ctx context.Context, principal application.Principal, groupID, userID string, status persistence.MembershipStatus) error
	CreateSchedule(ctx context.Context, params application.CreateScheduleParams) ([]persistence.Meeting, error)
}

type GroupHandler struct {
	service   groupService
	responder responder
	logger    *slog.Logger
}

func NewGroupHandler(service groupService, logger *slog.Logger) *GroupHandler {
	base := defaultLogger(logger)
	return &GroupHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *GroupHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "GroupHandler", operation, attrs...)
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode group request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID)

	group, err := h.service.CreateGroup(r.Context(), application.CreateGroupParams{
		Principal:     principal,
		CohortID:      req.CohortID,
		Name:          req.Name,
		ChatChannelID: req.ChatChannelID,
		ChatRoleID:    req.ChatRoleID,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "group creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("group_id", group.ID).InfoContext(r.Context(), "group created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, groupResponse{Group: toGroupDTO(group)})
}

func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := PathIDFromContext(r.Context())
	if !ok || strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidGroupID)
		return
	}

	group, err := h.service.GetGroup(r.Context(), id)
	if err != nil {
		h.log(r.Context(), "Get", "group_id", id).ErrorContext(r.Context(), "group lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, groupResponse{Group: toGroupDTO(group)})
}

func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	groups, err := h.service.ListGroups(r.Context())
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "group listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]groupDTO, 0, len(groups))
	for _, group := range groups {
		dtos = append(dtos, toGroupDTO(group))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, groupListResponse{Groups: dtos})
}

func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	groupID, ok := PathIDFromContext(r.Context())
	if !ok || strings.TrimSpace(groupID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidGroupID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "AddMember", "group_id", groupID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode member request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidUserID)
		return
	}

	logger := h.log(r.Context(), "AddMember", "group_id", groupID, "user_id", req.UserID)

	if err := h.service.AddMember(r.Context(), principal, groupID, req.UserID); err != nil {
		logger.ErrorContext(r.Context(), "member addition failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "member added")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *GroupHandler) SetMemberStatus(w http.ResponseWriter, r *http.Request, userID string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	groupID, ok := PathIDFromContext(r.Context())
	if !ok || strings.TrimSpace(groupID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidGroupID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req memberStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "SetMemberStatus", "group_id", groupID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode member status request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "SetMemberStatus", "group_id", groupID, "user_id", userID)

	if err := h.service.SetMemberStatus(r.Context(), principal, groupID, userID, persistence.MembershipStatus(req.Status)); err != nil {
		logger.ErrorContext(r.Context(), "member status update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "member status updated", "status", req.Status)
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *GroupHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	groupID, ok := PathIDFromContext(r.Context())
	if !ok || strings.TrimSpace(groupID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidGroupID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "CreateSchedule", "group_id", groupID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode schedule request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	params := application.CreateScheduleParams{
		Principal:       principal,
		GroupID:         groupID,
		Meetings:        req.Meetings,
		DurationMinutes: req.DurationMinutes,
	}
	if strings.TrimSpace(req.FirstMeeting) != "" {
		first, err := time.Parse(time.RFC3339, req.FirstMeeting)
		if err != nil {
			vErr := &application.ValidationError{FieldErrors: map[string]string{
				"firstMeeting": "first meeting time must be RFC 3339",
			}}
			h.responder.handleServiceError(r.Context(), w, vErr)
			return
		}
		params.FirstMeeting = first
	}

	logger := h.log(r.Context(), "CreateSchedule", "group_id", groupID)

	meetings, err := h.service.CreateSchedule(r.Context(), params)
	if err != nil {
		logger.ErrorContext(r.Context(), "schedule creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]meetingDTO, 0, len(meetings))
	for _, meeting := range meetings {
		dtos = append(dtos, toMeetingDTO(meeting))
	}

	logger.InfoContext(r.Context(), "schedule generated", "meetings", len(dtos))
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, scheduleResponse{Meetings: dtos})
}

type groupRequest struct {
	CohortID      string `json:"cohort_id"`
	Name          string `json:"name"`
	ChatChannelID string `json:"chat_channel_id"`
	ChatRoleID    string `json:"chat_role_id"`
}

type groupDTO struct {
	ID               string `json:"id"`
	CohortID         string `json:"cohort_id"`
	Name             string `json:"name"`
	ChatChannelID    string `json:"chat_channel_id"`
	ChatRoleID       string `json:"chat_role_id"`
	RecurringEventID string `json:"recurring_event_id,omitempty"`
}

type groupResponse struct {
	Group groupDTO `json:"group"`
}

type groupListResponse struct {
	Groups []groupDTO `json:"groups"`
}

type memberRequest struct {
	UserID string `json:"user_id"`
}

type memberStatusRequest struct {
	Status string `json:"status"`
}

type scheduleRequest struct {
	FirstMeeting    string `json:"first_meeting"`
	Meetings        int    `json:"meetings"`
	DurationMinutes int    `json:"duration_minutes"`
}

type meetingDTO struct {
	ID              string `json:"id"`
	GroupID         string `json:"group_id"`
	MeetingNumber   int    `json:"meeting_number"`
	ScheduledAt     string `json:"scheduled_at"`
	DurationMinutes int    `json:"duration_minutes"`
}

type scheduleResponse struct {
	Meetings []meetingDTO `json:"meetings"`
}

func toGroupDTO(group persistence.Group) groupDTO {
	dto := groupDTO{
		ID:            group.ID,
		CohortID:      group.CohortID,
		Name:          group.Name,
		ChatChannelID: group.ChatChannelID,
		ChatRoleID:    group.ChatRoleID,
	}
	if group.RecurringEventID != nil {
		dto.RecurringEventID = *group.RecurringEventID
	}
	return dto
}

func toMeetingDTO(meeting persistence.Meeting) meetingDTO {
	return meetingDTO{
		ID:              meeting.ID,
		GroupID:         meeting.GroupID,
		MeetingNumber:   meeting.MeetingNumber,
		ScheduledAt:     meeting.ScheduledAt.UTC().Format(time.RFC3339),
		DurationMinutes: meeting.DurationMinutes,
	}
}
