package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"catalog-service/internal/auth/domain/model"
	"catalog-service/internal/auth/domain/repository"
	apperrors "catalog-service/internal/shared/errors"
	"catalog-service/internal/shared/eventbus"
	"catalog-service/internal/shared/logger"
	"catalog-service/internal/shared/pipeline"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 64
	maxPasswordBytes  = 72
)

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// SessionService is the session surface the auth flows use.
type SessionService interface {
	Create(ctx context.Context, userID string, ttl time.Duration) (*model.Session, error)
	Destroy(ctx context.Context, token string) error
	DestroyForUser(ctx context.Context, userID string) (int64, error)
}

// AuthUsecaseInterface defines the contract for authentication use cases.
type AuthUsecaseInterface interface {
	Register(ctx context.Context, req RegisterRequest) (*model.User, error)
	Login(ctx context.Context, req LoginRequest) (*model.User, *model.Session, error)
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
	DeleteAccount(ctx context.Context, userID string) error
}

// RegisterRequest represents the registration request
type RegisterRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// LoginRequest represents the login request
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// AuthUsecase implements the authentication logic.
type AuthUsecase struct {
	users    repository.UserRepository
	sessions SessionService
	hasher   repository.PasswordHasher
	events   eventbus.Publisher
	logger   logger.Logger
}

// NewAuthUsecase creates a new instance of AuthUsecase. events may be nil.
func NewAuthUsecase(
	users repository.UserRepository,
	sessions SessionService,
	hasher repository.PasswordHasher,
	events eventbus.Publisher,
	log logger.Logger,
) *AuthUsecase {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &AuthUsecase{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		events:   events,
		logger:   log.WithComponent("auth_usecase"),
	}
}

func validateUsername(username string) error {
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return fmt.Errorf("username must be %d to %d characters", minUsernameLength, maxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username may only contain letters, digits, '.', '_' and '-'")
	}
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("password must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}

// Register creates an account with a hashed password.
func (uc *AuthUsecase) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	username := strings.TrimSpace(req.Username)

	ve := apperrors.NewValidationErrors()
	if err := validateUsername(username); err != nil {
		ve.Add("username", err.Error(), username)
	}
	if err := validatePassword(req.Password); err != nil {
		ve.Add("password", err.Error(), nil)
	}
	if ve.HasErrors() {
		return nil, ve.ToAppError().WithComponent("auth_usecase")
	}

	hash, err := uc.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{Username: username, PasswordHash: hash}
	if err := uc.users.Create(ctx, user); err != nil {
		return nil, err
	}

	uc.logger.WithContext(ctx).WithFields(map[string]interface{}{"user_id": user.ID.Hex()}).Info("user registered")
	uc.publish(ctx, eventbus.EventTypeUserRegistered, map[string]interface{}{"user_id": user.ID.Hex()})
	return user, nil
}

// Login verifies the submitted password against the stored hash and opens a
// session. Unknown users and wrong passwords fail identically.
func (uc *AuthUsecase) Login(ctx context.Context, req LoginRequest) (*model.User, *model.Session, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, nil, uc.loginFailed(ctx, username)
	}

	user, err := uc.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	if user == nil || !uc.hasher.Verify(req.Password, user.PasswordHash) {
		return nil, nil, uc.loginFailed(ctx, username)
	}

	session, err := uc.sessions.Create(ctx, user.ID.Hex(), 0)
	if err != nil {
		return nil, nil, err
	}

	// DeleteAccount sweeps sessions once more after removing the user; a
	// session created after that sweep is revoked here.
	current, err := uc.users.FindByID(ctx, user.ID.Hex())
	if err != nil || current == nil {
		if destroyErr := uc.sessions.Destroy(ctx, session.Token); destroyErr != nil {
			uc.logger.WithContext(ctx).Errorf("failed to revoke session of deleted user: %v", destroyErr)
		}
		if err != nil {
			return nil, nil, err
		}
		return nil, nil, uc.loginFailed(ctx, username)
	}
	return current, session, nil
}

func (uc *AuthUsecase) loginFailed(ctx context.Context, username string) error {
	uc.logger.WithContext(ctx).Debug("login rejected")
	uc.publish(ctx, eventbus.EventTypeLoginFailed, map[string]interface{}{"username": username})
	return apperrors.NewAuthenticationError(model.ErrInvalidCredentials.Error()).
		WithCause(model.ErrInvalidCredentials)
}

// Logout destroys the session behind token.
func (uc *AuthUsecase) Logout(ctx context.Context, token string) error {
	return uc.sessions.Destroy(ctx, token)
}

// CurrentUser loads the account for an authenticated user id.
func (uc *AuthUsecase) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := uc.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NewNotFoundError("user").WithCause(model.ErrUserNotFound)
	}
	return user, nil
}

// DeleteAccount removes the user's sessions, then the user, then any session
// a concurrent login opened in between. If the first step fails the account
// is left untouched.
func (uc *AuthUsecase) DeleteAccount(ctx context.Context, userID string) error {
	var destroyed int64
	destroySessions := func(ctx context.Context) error {
		n, err := uc.sessions.DestroyForUser(ctx, userID)
		destroyed += n
		return err
	}
	err := pipeline.Sequence(ctx,
		pipeline.Step{Name: "destroy sessions", Run: destroySessions},
		pipeline.Step{Name: "delete user", Run: func(ctx context.Context) error {
			n, err := uc.users.Delete(ctx, userID)
			if err != nil {
				return err
			}
			if n == 0 {
				return apperrors.NewNotFoundError("user").WithCause(model.ErrUserNotFound)
			}
			return nil
		}},
		pipeline.Step{Name: "sweep sessions", Run: destroySessions},
	)
	if err != nil {
		return err
	}

	uc.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"user_id":  userID,
		"sessions": destroyed,
	}).Info("account deleted")
	uc.publish(ctx, eventbus.EventTypeUserDeleted, map[string]interface{}{"user_id": userID})
	return nil
}

func (uc *AuthUsecase) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if uc.events == nil {
		return
	}
	uc.events.PublishAndForget(ctx, eventbus.NewBasicEvent(eventType, "auth_usecase", data))
}
