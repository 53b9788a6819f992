package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/example/studysync/internal/application"
)

const (
	maxAttempts   = 3
	retryBaseWait = 250 * time.Millisecond
)

// RosterClient implements application.RosterGateway against the chat
// platform's REST API. Role membership is the source of channel visibility;
// granting the role makes the group channel appear for the user.
type RosterClient struct {
	baseURL    string
	botToken   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRosterClient creates a roster client for the given API base URL.
func NewRosterClient(baseURL, botToken string, httpClient *http.Client, logger *slog.Logger) *RosterClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &RosterClient{
		baseURL:    baseURL,
		botToken:   botToken,
		httpClient: httpClient,
		logger:     logger,
	}
}

// GetRoleMembers returns the chat user ids currently holding the role.
func (c *RosterClient) GetRoleMembers(ctx context.Context, roleID string) ([]string, error) {
	var payload struct {
		Members []string `json:"members"`
	}
	path := fmt.Sprintf("/v1/roles/%s/members", url.PathEscape(roleID))
	if err := c.call(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Members, nil
}

// GrantRole adds the role to a chat user. Granting an already held role
// succeeds, which keeps reconciliation idempotent.
func (c *RosterClient) GrantRole(ctx context.Context, roleID, chatUserID string) error {
	path := fmt.Sprintf("/v1/roles/%s/members/%s", url.PathEscape(roleID), url.PathEscape(chatUserID))
	return c.call(ctx, http.MethodPut, path, nil, nil)
}

// RevokeRole removes the role from a chat user. Revoking an absent role
// succeeds.
func (c *RosterClient) RevokeRole(ctx context.Context, roleID, chatUserID string) error {
	path := fmt.Sprintf("/v1/roles/%s/members/%s", url.PathEscape(roleID), url.PathEscape(chatUserID))
	return c.call(ctx, http.MethodDelete, path, nil, nil)
}

// SendChannelMessage posts a message to a channel as the platform bot.
func (c *RosterClient) SendChannelMessage(ctx context.Context, channelID, text string) error {
	body := map[string]string{"text": text}
	path := fmt.Sprintf("/v1/channels/%s/messages", url.PathEscape(channelID))
	return c.call(ctx, http.MethodPost, path, body, nil)
}

func (c *RosterClient) call(ctx context.Context, method, path string, body, out any) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			wait := retryBaseWait * time.Duration(1<<(attempt-2))
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %s %s: %v", application.ErrExternalUnavailable, method, path, ctx.Err())
			case <-time.After(wait):
			}
		}

		retry, err := c.attempt(ctx, method, path, encoded, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
		c.logger.Warn("chat call retrying", "method", method, "path", path, "attempt", attempt, "error", err)
	}

	c.logger.Warn("chat call failed", "method", method, "path", path, "error", lastErr)
	return fmt.Errorf("%w: %s %s: %v", application.ErrExternalUnavailable, method, path, lastErr)
}

func (c *RosterClient) attempt(ctx context.Context, method, path string, body []byte, out any) (retry bool, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bot "+c.botToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return false, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("failed to decode response: %w", err)
		}
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return true, fmt.Errorf("status %d", resp.StatusCode)
	default:
		io.Copy(io.Discard, resp.Body)
		return false, fmt.Errorf("status %d", resp.StatusCode)
	}
}
