package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures environment driven configuration values for the studysync service.
type Config struct {
	HTTPPort  int
	SQLiteDSN string

	SessionTTL time.Duration

	GoogleClientID     string
	GoogleClientSecret string
	GoogleTokenFile    string
	GoogleCalendarID   string

	ChatBaseURL  string
	ChatBotToken string

	JobPollInterval time.Duration
	SweepSchedule   string
}

// Load parses configuration values from the current process environment.
//
// Optional fields fall back to sensible defaults; required values are
// validated and reported together so one run surfaces every problem.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:         8080,
		SQLiteDSN:        "file:studysync.db?_foreign_keys=on",
		SessionTTL:       24 * time.Hour,
		GoogleTokenFile:  "google_token.json",
		GoogleCalendarID: "primary",
		JobPollInterval:  time.Minute,
		SweepSchedule:    "@every 6h",
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("STUDYSYNC_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "STUDYSYNC_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("STUDYSYNC_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if ttlValue := strings.TrimSpace(os.Getenv("STUDYSYNC_SESSION_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "STUDYSYNC_SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}

	if clientID := strings.TrimSpace(os.Getenv("STUDYSYNC_GOOGLE_CLIENT_ID")); clientID == "" {
		missing = append(missing, "STUDYSYNC_GOOGLE_CLIENT_ID")
	} else {
		cfg.GoogleClientID = clientID
	}

	if clientSecret := strings.TrimSpace(os.Getenv("STUDYSYNC_GOOGLE_CLIENT_SECRET")); clientSecret == "" {
		missing = append(missing, "STUDYSYNC_GOOGLE_CLIENT_SECRET")
	} else {
		cfg.GoogleClientSecret = clientSecret
	}

	if tokenFile := strings.TrimSpace(os.Getenv("STUDYSYNC_GOOGLE_TOKEN_FILE")); tokenFile != "" {
		cfg.GoogleTokenFile = tokenFile
	}

	if calendarID := strings.TrimSpace(os.Getenv("STUDYSYNC_GOOGLE_CALENDAR_ID")); calendarID != "" {
		cfg.GoogleCalendarID = calendarID
	}

	if baseURL := strings.TrimSpace(os.Getenv("STUDYSYNC_CHAT_BASE_URL")); baseURL == "" {
		missing = append(missing, "STUDYSYNC_CHAT_BASE_URL")
	} else {
		cfg.ChatBaseURL = strings.TrimRight(baseURL, "/")
	}

	if botToken := strings.TrimSpace(os.Getenv("STUDYSYNC_CHAT_BOT_TOKEN")); botToken == "" {
		missing = append(missing, "STUDYSYNC_CHAT_BOT_TOKEN")
	} else {
		cfg.ChatBotToken = botToken
	}

	if pollValue := strings.TrimSpace(os.Getenv("STUDYSYNC_JOB_POLL_INTERVAL")); pollValue != "" {
		poll, err := time.ParseDuration(pollValue)
		if err != nil || poll <= 0 {
			invalid = append(invalid, "STUDYSYNC_JOB_POLL_INTERVAL")
		} else {
			cfg.JobPollInterval = poll
		}
	}

	if schedule := strings.TrimSpace(os.Getenv("STUDYSYNC_SWEEP_SCHEDULE")); schedule != "" {
		cfg.SweepSchedule = schedule
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
