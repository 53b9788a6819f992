package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/example/studysync/internal/application"
)

// CalendarClient implements application.CalendarGateway against the Google
// Calendar API. All events live on a single calendar owned by the platform
// bot account.
type CalendarClient struct {
	service    *calendar.Service
	calendarID string
	logger     *slog.Logger
}

// NewCalendarClient creates an authenticated calendar client. The token file
// holds an OAuth2 refresh token obtained out of band.
func NewCalendarClient(ctx context.Context, logger *slog.Logger, clientID, clientSecret, tokenFile, calendarID string) (*CalendarClient, error) {
	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{calendar.CalendarEventsScope},
		Endpoint:     google.Endpoint,
	}

	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load calendar token from %s: %w", tokenFile, err)
	}

	service, err := calendar.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &CalendarClient{service: service, calendarID: calendarID, logger: logger}, nil
}

// NewCalendarClientFromService wraps an already constructed service. Used by
// tests to point the client at a fake API server.
func NewCalendarClientFromService(service *calendar.Service, calendarID string, logger *slog.Logger) *CalendarClient {
	return &CalendarClient{service: service, calendarID: calendarID, logger: logger}
}

// CreateRecurringEvent creates the recurring series and returns the provider
// event id. Guests cannot see each other so attendance across groups stays
// private.
func (c *CalendarClient) CreateRecurringEvent(ctx context.Context, req application.CreateRecurringEventRequest) (string, error) {
	visible := false
	event := &calendar.Event{
		Summary:     req.Summary,
		Description: req.Description,
		Start: &calendar.EventDateTime{
			DateTime: req.Start.Format(time.RFC3339),
			TimeZone: "UTC",
		},
		End: &calendar.EventDateTime{
			DateTime: req.Start.Add(req.Duration).Format(time.RFC3339),
			TimeZone: "UTC",
		},
		Recurrence:              []string{req.Recurrence},
		Attendees:               toGoogleAttendees(req.AttendeeEmails),
		GuestsCanSeeOtherGuests: &visible,
	}

	created, err := c.service.Events.Insert(c.calendarID, event).
		Context(ctx).
		SendUpdates("all").
		Do()
	if err != nil {
		return "", c.wrap("insert event", err)
	}

	c.logger.Info("created recurring event", "eventID", created.Id, "summary", req.Summary)
	return created.Id, nil
}

// GetEvent fetches an event. A 404 or a cancelled event reports found=false
// rather than an error, since a vanished event is a state the caller heals.
func (c *CalendarClient) GetEvent(ctx context.Context, eventID string) (application.CalendarEvent, bool, error) {
	event, err := c.service.Events.Get(c.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return application.CalendarEvent{}, false, nil
		}
		return application.CalendarEvent{}, false, c.wrap("get event", err)
	}
	if event.Status == "cancelled" {
		return application.CalendarEvent{}, false, nil
	}
	return application.CalendarEvent{
		ID:        event.Id,
		Status:    event.Status,
		Attendees: toGatewayAttendees(event.Attendees),
	}, true, nil
}

// PatchEventAttendees replaces the attendee list of the series.
func (c *CalendarClient) PatchEventAttendees(ctx context.Context, eventID string, emails []string, notifyAdded bool) error {
	return c.patchAttendees(ctx, "patch event attendees", eventID, emails, notifyAdded)
}

// ListInstances pages through all expanded occurrences of a recurring event.
func (c *CalendarClient) ListInstances(ctx context.Context, eventID string) ([]application.EventInstance, error) {
	var instances []application.EventInstance
	pageToken := ""
	for {
		call := c.service.Events.Instances(c.calendarID, eventID).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, c.wrap("list instances", err)
		}
		for _, item := range page.Items {
			instance := application.EventInstance{
				ID:        item.Id,
				Status:    item.Status,
				Attendees: toGatewayAttendees(item.Attendees),
			}
			if item.Start != nil {
				instance.Start = item.Start.DateTime
			}
			instances = append(instances, instance)
		}
		if page.NextPageToken == "" {
			return instances, nil
		}
		pageToken = page.NextPageToken
	}
}

// PatchInstanceAttendees replaces the attendee list of a single occurrence.
func (c *CalendarClient) PatchInstanceAttendees(ctx context.Context, instanceID string, emails []string, notifyAdded bool) error {
	return c.patchAttendees(ctx, "patch instance attendees", instanceID, emails, notifyAdded)
}

func (c *CalendarClient) patchAttendees(ctx context.Context, operation, eventID string, emails []string, notifyAdded bool) error {
	sendUpdates := "none"
	if notifyAdded {
		sendUpdates = "all"
	}

	patch := &calendar.Event{Attendees: toGoogleAttendees(emails)}
	if len(patch.Attendees) == 0 {
		patch.ForceSendFields = append(patch.ForceSendFields, "Attendees")
	}

	_, err := c.service.Events.Patch(c.calendarID, eventID, patch).
		Context(ctx).
		SendUpdates(sendUpdates).
		Do()
	if err != nil {
		return c.wrap(operation, err)
	}
	return nil
}

func (c *CalendarClient) wrap(operation string, err error) error {
	c.logger.Warn("calendar call failed", "operation", operation, "error", err)
	return fmt.Errorf("%w: %s: %v", application.ErrExternalUnavailable, operation, err)
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}

func toGoogleAttendees(emails []string) []*calendar.EventAttendee {
	attendees := make([]*calendar.EventAttendee, 0, len(emails))
	for _, email := range emails {
		attendees = append(attendees, &calendar.EventAttendee{Email: email})
	}
	return attendees
}

func toGatewayAttendees(attendees []*calendar.EventAttendee) []application.EventAttendee {
	var result []application.EventAttendee
	for _, attendee := range attendees {
		result = append(result, application.EventAttendee{
			Email:          attendee.Email,
			ResponseStatus: attendee.ResponseStatus,
		})
	}
	return result
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, err
	}
	return token, nil
}
