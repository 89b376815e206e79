package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	domerrors "profiles/internal/domain/errors"
	"profiles/internal/models"
	"profiles/internal/repositories"
	"profiles/internal/security"
	"profiles/internal/services"
	"profiles/internal/storage"
	"profiles/internal/uploads"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// MockUserRepository is a mock implementation of repositories.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(user *models.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockUserRepository) Update(user *models.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByUsername(username string) (*models.User, error) {
	args := m.Called(username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(email string) (*models.User, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByID(id string) (*models.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockEventPublisher records published account events.
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishEvent(eventType string, payload any) error {
	args := m.Called(eventType, payload)
	return args.Error(0)
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newAccountService(repo repositories.UserRepository, store storage.ObjectStore, events services.EventPublisher) *services.AccountService {
	namer := uploads.NewPathNamer(func() string { return "test-uuid" })
	return services.NewAccountService(repo, security.NewBcryptHasher(bcrypt.MinCost), namer, store, events, quietLogger)
}

func createSampleUser(t *testing.T, svc *services.AccountService, email, username, password string) *models.User {
	t.Helper()
	user, err := svc.CreateUser(email, username, password)
	require.NoError(t, err)
	return user
}

func TestAccountService_CreateUserWithEmailAndUsername(t *testing.T) {
	svc := newAccountService(repositories.NewMemoryUserRepository(), storage.NewMemoryStore(), nil)

	user := createSampleUser(t, svc, "test@test.com", "test", "testpass")

	assert.Equal(t, "test@test.com", user.Email)
	assert.Equal(t, "test", user.Username)
	assert.NotEqual(t, "testpass", user.Password)
	assert.True(t, svc.CheckPassword(user, "testpass"))
	assert.False(t, svc.CheckPassword(user, "testpassx"))
	assert.True(t, user.IsActive)
	assert.False(t, user.IsStaff)
	assert.False(t, user.IsSuperuser)
}

func TestAccountService_NormalizesEmailAndUsername(t *testing.T) {
	cases := []struct {
		email, username     string
		wantEmail, wantUser string
	}{
		{"test@TEST.COM", "test", "test@test.com", "test"},
		{"test1@test.com", "TEST", "test1@test.com", "test"},
		{"Mixed.Case@Example.Org", "MiXeD", "mixed.case@example.org", "mixed"},
	}
	for _, tc := range cases {
		svc := newAccountService(repositories.NewMemoryUserRepository(), storage.NewMemoryStore(), nil)
		user := createSampleUser(t, svc, tc.email, tc.username, "testpass")
		assert.Equal(t, tc.wantEmail, user.Email)
		assert.Equal(t, tc.wantUser, user.Username)
	}
}

func TestAccountService_InvalidEmail(t *testing.T) {
	svc := newAccountService(repositories.NewMemoryUserRepository(), storage.NewMemoryStore(), nil)

	_, err := svc.CreateUser("", "test", "testpass")
	assert.ErrorIs(t, err, domerrors.ErrInvalidArgument)
}

// Only the empty email is rejected; the address is stored lowercased and
// otherwise as given.
func TestAccountService_AcceptsAnyNonEmptyEmail(t *testing.T) {
	cases := []struct {
		email, username, wantEmail string
	}{
		{"user@localhost", "local", "user@localhost"},
		{"  A@B.com", "spaced", "  a@b.com"},
		{"not-an-email", "plain", "not-an-email"},
	}
	for _, tc := range cases {
		svc := newAccountService(repositories.NewMemoryUserRepository(), storage.NewMemoryStore(), nil)
		user, err := svc.CreateUser(tc.email, tc.username, "testpass")
		require.NoError(t, err, "email %q", tc.email)
		assert.Equal(t, tc.wantEmail, user.Email)
	}
}

func TestAccountService_MissingUsernameOrPassword(t *testing.T) {
	svc := newAccountService(repositories.NewMemoryUserRepository(), storage.NewMemoryStore(), nil)

	_, err := svc.CreateUser("test@test.com", "", "testpass")
	assert.ErrorIs(t, err, domerrors.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "Username")

	_, err = svc.CreateUser("test@test.com", "test", "")
	assert.ErrorIs(t, err, domerrors.ErrInvalidArgument)
}

func TestAccountService_InvalidEmailDoesNotTouchRepository(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc := newAccountService(mockRepo, storage.NewMemoryStore(), nil)

	_, err := svc.CreateUser("", "test", "testpass")
	assert.ErrorIs(t, err, domerrors.ErrInvalidArgument)
	mockRepo.AssertNotCalled(t, "Create", mock.Anything)
	mockRepo.AssertNotCalled(t, "GetByEmail", mock.Anything)
}

func TestAccountService_CreateSuperuser(t *testing.T) {
	svc := newAccountService(repositories.NewMemoryUserRepository(), storage.NewMemoryStore(), nil)

	user, err := svc.CreateSuperuser("admin@test.com", "admin", "testpass")
	require.NoError(t, err)

	assert.True(t, user.IsSuperuser)
	assert.True(t, user.IsStaff)
	assert.True(t, svc.CheckPassword(user, "testpass"))
}

func TestAccountService_Duplicates(t *testing.T) {
	svc := newAccountService(repositories.NewMemoryUserRepository(), storage.NewMemoryStore(), nil)
	createSampleUser(t, svc, "test@test.com", "test", "testpass")

	_, err := svc.CreateUser("TEST@test.com", "other", "testpass")
	assert.ErrorIs(t, err, domerrors.ErrUserExists)
	assert.Contains(t, err.Error(), "already registered")

	_, err = svc.CreateUser("other@test.com", "Test", "testpass")
	assert.ErrorIs(t, err, domerrors.ErrUserExists)
	assert.Contains(t, err.Error(), "already taken")
}

func TestAccountService_RepositoryFailure(t *testing.T) {
	mockRepo := new(MockUserRepository)
	svc := newAccountService(mockRepo, storage.NewMemoryStore(), nil)

	mockRepo.On("GetByEmail", "test@test.com").Return(nil, domerrors.ErrUserNotFound).Once()
	mockRepo.On("GetByUsername", "test").Return(nil, domerrors.ErrUserNotFound).Once()
	mockRepo.On("Create", mock.AnythingOfType("*models.User")).Return(errors.New("database error")).Once()

	_, err := svc.CreateUser("test@test.com", "test", "testpass")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database error")
	mockRepo.AssertExpectations(t)

	mockRepo.On("GetByEmail", "test@test.com").Return(nil, errors.New("connection refused")).Once()
	_, err = svc.CreateUser("test@test.com", "test", "testpass")
	assert.Contains(t, err.Error(), "connection refused")
	mockRepo.AssertExpectations(t)
}

func TestAccountService_PublishesUserCreated(t *testing.T) {
	events := new(MockEventPublisher)
	svc := newAccountService(repositories.NewMemoryUserRepository(), storage.NewMemoryStore(), events)

	events.On("PublishEvent", services.EventUserCreated, mock.MatchedBy(func(ev services.UserCreatedEvent) bool {
		return ev.Email == "admin@test.com" && ev.IsSuperuser && ev.UserID != ""
	})).Return(nil).Once()

	_, err := svc.CreateSuperuser("admin@test.com", "admin", "testpass")
	require.NoError(t, err)
	events.AssertExpectations(t)
}

func TestAccountService_PublishFailureDoesNotFailCreate(t *testing.T) {
	events := new(MockEventPublisher)
	events.On("PublishEvent", services.EventUserCreated, mock.Anything).Return(errors.New("broker down")).Once()
	svc := newAccountService(repositories.NewMemoryUserRepository(), storage.NewMemoryStore(), events)

	_, err := svc.CreateUser("test@test.com", "test", "testpass")
	assert.NoError(t, err)
	events.AssertExpectations(t)
}

func TestAccountService_CheckPasswordWithoutHash(t *testing.T) {
	svc := newAccountService(repositories.NewMemoryUserRepository(), storage.NewMemoryStore(), nil)

	assert.False(t, svc.CheckPassword(nil, "testpass"))
	assert.False(t, svc.CheckPassword(&models.User{}, ""))
}

func TestAccountService_SetProfileImage(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := newAccountService(repositories.NewMemoryUserRepository(), store, nil)
	user := createSampleUser(t, svc, "test@test.com", "test", "testpass")

	updated, err := svc.SetProfileImage(ctx, user.ID, "myimage.jpg", strings.NewReader("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "uploads/test-uuid.jpg", updated.ProfileImage)

	stored, err := svc.GetUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "uploads/test-uuid.jpg", stored.ProfileImage)

	rc, contentType, err := svc.ProfileImage(ctx, user.ID)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "jpeg", string(data))
	assert.Equal(t, "image/jpeg", contentType)
}

func TestAccountService_ProfileImageMissing(t *testing.T) {
	ctx := context.Background()
	svc := newAccountService(repositories.NewMemoryUserRepository(), storage.NewMemoryStore(), nil)
	user := createSampleUser(t, svc, "test@test.com", "test", "testpass")

	_, _, err := svc.ProfileImage(ctx, user.ID)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	_, _, err = svc.ProfileImage(ctx, "missing")
	assert.ErrorIs(t, err, domerrors.ErrUserNotFound)
}

func TestAccountService_SetProfileImageReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	ids := []string{"first", "second"}
	namer := uploads.NewPathNamer(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	})
	svc := services.NewAccountService(repositories.NewMemoryUserRepository(), security.NewBcryptHasher(bcrypt.MinCost), namer, store, nil, quietLogger)
	user := createSampleUser(t, svc, "test@test.com", "test", "testpass")

	_, err := svc.SetProfileImage(ctx, user.ID, "a.png", strings.NewReader("1"), "image/png")
	require.NoError(t, err)
	updated, err := svc.SetProfileImage(ctx, user.ID, "b.gif", strings.NewReader("2"), "image/gif")
	require.NoError(t, err)

	assert.Equal(t, "uploads/second.gif", updated.ProfileImage)
	assert.ElementsMatch(t, []string{"uploads/second.gif"}, store.Keys())
}

func TestAccountService_SetProfileImageErrors(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := newAccountService(repositories.NewMemoryUserRepository(), store, nil)
	user := createSampleUser(t, svc, "test@test.com", "test", "testpass")

	_, err := svc.SetProfileImage(ctx, "missing", "a.jpg", strings.NewReader("x"), "image/jpeg")
	assert.ErrorIs(t, err, domerrors.ErrUserNotFound)

	_, err = svc.SetProfileImage(ctx, user.ID, "noextension", strings.NewReader("x"), "image/jpeg")
	assert.ErrorIs(t, err, domerrors.ErrInvalidArgument)
	assert.Empty(t, store.Keys())
}

func TestAccountService_SetProfileImageUpdateFailureRemovesUpload(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	mockRepo := new(MockUserRepository)
	svc := newAccountService(mockRepo, store, nil)

	user := &models.User{ID: "user-123", Email: "test@test.com", Username: "test"}
	mockRepo.On("GetByID", "user-123").Return(user, nil).Once()
	mockRepo.On("Update", user).Return(errors.New("database error")).Once()

	_, err := svc.SetProfileImage(ctx, "user-123", "a.jpg", strings.NewReader("x"), "image/jpeg")
	assert.Error(t, err)
	assert.Empty(t, store.Keys())
	mockRepo.AssertExpectations(t)
}

func TestAccountService_PublishesImageUpdated(t *testing.T) {
	events := new(MockEventPublisher)
	events.On("PublishEvent", services.EventUserCreated, mock.Anything).Return(nil).Once()
	svc := newAccountService(repositories.NewMemoryUserRepository(), storage.NewMemoryStore(), events)
	user := createSampleUser(t, svc, "test@test.com", "test", "testpass")

	events.On("PublishEvent", services.EventUserImageUpdated, services.UserImageUpdatedEvent{
		UserID: user.ID, ProfileImage: "uploads/test-uuid.jpg",
	}).Return(nil).Once()

	_, err := svc.SetProfileImage(context.Background(), user.ID, "myimage.jpg", strings.NewReader("x"), "image/jpeg")
	require.NoError(t, err)
	events.AssertExpectations(t)
}
