package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/example/studysync/internal/application"
	"github.com/example/studysync/internal/chat"
	"github.com/example/studysync/internal/config"
	"github.com/example/studysync/internal/google"
	httptransport "github.com/example/studysync/internal/http"
	"github.com/example/studysync/internal/persistence"
	"github.com/example/studysync/internal/persistence/sqlite"
	"github.com/example/studysync/internal/scheduler"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	pool, err := sqlite.NewConnectionPool(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := pool.Migrate(context.Background()); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	idGenerator := uuid.NewString
	tokenGenerator := uuid.NewString
	now := time.Now

	groupRepo := sqlite.NewGroupRepository(pool)
	membershipRepo := sqlite.NewMembershipRepository(pool)
	meetingRepo := sqlite.NewMeetingRepository(pool)
	attendanceRepo := sqlite.NewAttendanceRepository(pool, idGenerator)
	syncJobRepo := sqlite.NewSyncJobRepository(pool)
	sessionRepo := sqlite.NewSessionRepository(pool)
	userRepo := sqlite.NewUserRepository(pool)

	calendarClient, err := google.NewCalendarClient(ctx, logger,
		cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleTokenFile, cfg.GoogleCalendarID)
	if err != nil {
		logger.Error("failed to build calendar client", "error", err)
		os.Exit(1)
	}
	rosterClient := chat.NewRosterClient(cfg.ChatBaseURL, cfg.ChatBotToken, nil, logger)

	calendarSync := application.NewCalendarSyncService(groupRepo, membershipRepo, meetingRepo, calendarClient, logger, now)
	rsvpSync := application.NewRSVPSyncService(groupRepo, membershipRepo, meetingRepo, attendanceRepo, calendarClient, logger)
	rosterSync := application.NewAccessRosterService(groupRepo, membershipRepo, attendanceRepo, userRepo, rosterClient, logger, now)
	guestVisits := application.NewGuestVisitService(groupRepo, membershipRepo, meetingRepo, attendanceRepo, syncJobRepo, userRepo, calendarClient, rosterSync, logger, now)
	groupService := application.NewGroupService(groupRepo, membershipRepo, meetingRepo, idGenerator, now, logger)
	userService := application.NewUserService(userRepo, idGenerator, now, logger)
	authService := application.NewAuthService(userRepo, sessionRepo, nil, tokenGenerator, now, cfg.SessionTTL, logger)

	runner := scheduler.NewRunner(syncJobRepo, cfg.JobPollInterval, now, logger)
	accessTrigger := func(ctx context.Context, job persistence.SyncJob) error {
		_, err := rosterSync.Sync(ctx, job.GroupID)
		return err
	}
	runner.Handle(application.JobKindGuestGrant, accessTrigger)
	runner.Handle(application.JobKindGuestRevoke, accessTrigger)
	go func() {
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("trigger runner stopped", "error", err)
		}
	}()

	sweeper := scheduler.NewSweeper(30*time.Minute, logger)
	sweeper.Register("calendar", calendarSync.SyncAll)
	sweeper.Register("rsvps", rsvpSync.SyncAll)
	sweeper.Register("roster", rosterSync.SyncAll)
	if err := sweeper.Start(cfg.SweepSchedule); err != nil {
		logger.Error("failed to start sweep", "error", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:        httptransport.NewAuthHandler(authService, logger),
		Users:       httptransport.NewUserHandler(userService, logger),
		Groups:      httptransport.NewGroupHandler(groupService, logger),
		GuestVisits: httptransport.NewGuestVisitHandler(guestVisits, logger),
		Sync:        httptransport.NewSyncHandler(calendarSync, rsvpSync, rosterSync, logger),
	})

	protected := httptransport.RequireSession(authService, logger)(router)
	handler := httptransport.RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.URL.Path, "/sessions") && r.Method == http.MethodPost {
			router.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	}))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("studysync API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}
