package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	domerrors "profiles/internal/domain/errors"
	"profiles/internal/models"
	"profiles/internal/repositories"
	"profiles/internal/security"
	"profiles/internal/storage"
	"profiles/internal/uploads"

	"github.com/go-playground/validator/v10"
)

// Account event types.
const (
	EventUserCreated      = "user.created"
	EventUserImageUpdated = "user.image_updated"
)

// EventPublisher publishes account events. *rabbitmq.Client satisfies it.
type EventPublisher interface {
	PublishEvent(eventType string, payload any) error
}

// UserCreatedEvent is the payload of EventUserCreated.
type UserCreatedEvent struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	IsSuperuser bool   `json:"is_superuser"`
}

// UserImageUpdatedEvent is the payload of EventUserImageUpdated.
type UserImageUpdatedEvent struct {
	UserID       string `json:"user_id"`
	ProfileImage string `json:"profile_image"`
}

type newUserInput struct {
	Email    string `validate:"required,max=255"`
	Username string `validate:"required,max=100"`
	Password string `validate:"required"`
}

// AccountService creates accounts and manages their profile images.
type AccountService struct {
	repo     repositories.UserRepository
	hasher   security.PasswordHasher
	namer    *uploads.PathNamer
	store    storage.ObjectStore
	events   EventPublisher
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAccountService creates a new AccountService. events may be nil, in
// which case no events are published.
func NewAccountService(
	repo repositories.UserRepository,
	hasher security.PasswordHasher,
	namer *uploads.PathNamer,
	store storage.ObjectStore,
	events EventPublisher,
	logger *slog.Logger,
) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		repo:     repo,
		hasher:   hasher,
		namer:    namer,
		store:    store,
		events:   events,
		validate: validator.New(),
		logger:   logger,
	}
}

// NormalizeEmail lowercases an email address. No other checks are applied.
func NormalizeEmail(email string) string {
	return strings.ToLower(email)
}

// NormalizeUsername lowercases a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(username)
}

// CreateUser creates a regular account.
func (s *AccountService) CreateUser(email, username, password string) (*models.User, error) {
	return s.create(email, username, password, false)
}

// CreateSuperuser creates an account with staff and superuser flags set.
func (s *AccountService) CreateSuperuser(email, username, password string) (*models.User, error) {
	return s.create(email, username, password, true)
}

func (s *AccountService) create(email, username, password string, superuser bool) (*models.User, error) {
	input := newUserInput{
		Email:    NormalizeEmail(email),
		Username: NormalizeUsername(username),
		Password: password,
	}
	if input.Email == "" {
		return nil, fmt.Errorf("users must have an email address: %w", domerrors.ErrInvalidArgument)
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}

	if err := s.ensureUnique(input.Email, input.Username); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:       input.Email,
		Username:    input.Username,
		Password:    hash,
		IsActive:    true,
		IsStaff:     superuser,
		IsSuperuser: superuser,
	}
	if err := s.repo.Create(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user created", "user_id", user.ID, "email", user.Email, "superuser", superuser)
	s.publish(EventUserCreated, UserCreatedEvent{
		UserID:      user.ID,
		Email:       user.Email,
		Username:    user.Username,
		IsSuperuser: user.IsSuperuser,
	})
	return user, nil
}

func (s *AccountService) ensureUnique(email, username string) error {
	if _, err := s.repo.GetByEmail(email); err == nil {
		return fmt.Errorf("email '%s' already registered: %w", email, domerrors.ErrUserExists)
	} else if !errors.Is(err, domerrors.ErrUserNotFound) {
		return err
	}
	if _, err := s.repo.GetByUsername(username); err == nil {
		return fmt.Errorf("username '%s' already taken: %w", username, domerrors.ErrUserExists)
	} else if !errors.Is(err, domerrors.ErrUserNotFound) {
		return err
	}
	return nil
}

// CheckPassword reports whether password matches the user's stored hash.
func (s *AccountService) CheckPassword(user *models.User, password string) bool {
	if user == nil || user.Password == "" {
		return false
	}
	return s.hasher.Verify(password, user.Password)
}

// GetUser returns the user with the given ID.
func (s *AccountService) GetUser(id string) (*models.User, error) {
	return s.repo.GetByID(id)
}

// SetProfileImage stores body under a fresh upload key and records the key
// on the user. The previous image, if any, is removed afterwards.
func (s *AccountService) SetProfileImage(ctx context.Context, userID, filename string, body io.Reader, contentType string) (*models.User, error) {
	user, err := s.repo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	key, err := s.namer.ImageFilePath(user, filename)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, key, body, contentType); err != nil {
		return nil, fmt.Errorf("failed to store profile image: %w", err)
	}

	previous := user.ProfileImage
	user.ProfileImage = key
	if err := s.repo.Update(user); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Warn("failed to remove orphaned upload", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("failed to save profile image: %w", err)
	}

	if previous != "" {
		if err := s.store.Delete(ctx, previous); err != nil {
			s.logger.Warn("failed to remove previous profile image", "key", previous, "error", err)
		}
	}

	s.logger.Info("profile image updated", "user_id", user.ID, "key", key)
	s.publish(EventUserImageUpdated, UserImageUpdatedEvent{UserID: user.ID, ProfileImage: key})
	return user, nil
}

// ProfileImage opens the stored profile image of the user. A user without an
// image yields storage.ErrObjectNotFound.
func (s *AccountService) ProfileImage(ctx context.Context, userID string) (io.ReadCloser, string, error) {
	user, err := s.repo.GetByID(userID)
	if err != nil {
		return nil, "", err
	}
	if user.ProfileImage == "" {
		return nil, "", fmt.Errorf("user %s has no profile image: %w", user.ID, storage.ErrObjectNotFound)
	}
	return s.store.Get(ctx, user.ProfileImage)
}

func (s *AccountService) publish(eventType string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(eventType, payload); err != nil {
		s.logger.Warn("failed to publish event", "type", eventType, "error", err)
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%v: %w", err, domerrors.ErrInvalidArgument)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed on the '%s' tag", e.Field(), e.Tag()))
	}
	return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), domerrors.ErrInvalidArgument)
}
