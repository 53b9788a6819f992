package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/example/studysync/internal/persistence"
)

// CreateUserParams carries the fields of a new learner account.
type CreateUserParams struct {
	Principal   Principal
	Email       string
	DisplayName string
	ChatUserID  string
	Password    string
	IsAdmin     bool
}

// UserService manages learner accounts.
type UserService struct {
	users       persistence.UserRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewUserService wires dependencies for account administration.
func NewUserService(users persistence.UserRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *UserService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{
		users:       users,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// CreateUser registers a new account with a hashed password.
func (s *UserService) CreateUser(ctx context.Context, params CreateUserParams) (persistence.User, error) {
	if !params.Principal.IsAdmin {
		return persistence.User{}, ErrUnauthorized
	}

	vErr := &ValidationError{}
	email := strings.TrimSpace(strings.ToLower(params.Email))
	if email == "" || !strings.Contains(email, "@") {
		vErr.add("email", "a valid email is required")
	}
	if strings.TrimSpace(params.DisplayName) == "" {
		vErr.add("displayName", "display name is required")
	}
	if len(params.Password) < 8 {
		vErr.add("password", "password must be at least 8 characters")
	}
	if vErr.HasErrors() {
		return persistence.User{}, vErr
	}

	hash, err := CreatePasswordHash(params.Password, DefaultArgon2idParams)
	if err != nil {
		return persistence.User{}, err
	}

	user := persistence.User{
		ID:           s.idGenerator(),
		Email:        email,
		DisplayName:  strings.TrimSpace(params.DisplayName),
		ChatUserID:   strings.TrimSpace(params.ChatUserID),
		PasswordHash: hash,
		IsAdmin:      params.IsAdmin,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return persistence.User{}, mapStoreError(err)
	}

	serviceLogger(ctx, s.logger, "users", "create", "userID", user.ID).
		Info("user created", "email", email)
	return user, nil
}

// GetUser returns one account.
func (s *UserService) GetUser(ctx context.Context, id string) (persistence.User, error) {
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return persistence.User{}, mapStoreError(err)
	}
	return user, nil
}

// ListUsers returns all accounts.
func (s *UserService) ListUsers(ctx context.Context, principal Principal) ([]persistence.User, error) {
	if !principal.IsAdmin {
		return nil, ErrUnauthorized
	}
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return users, nil
}
