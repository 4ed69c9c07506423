package user

import (
	"context"
	defError "errors"
	"strings"

	"markdown-annotator/internal/domain"
	"markdown-annotator/internal/errors"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 6

// Service defines the interface for user business logic
type Service interface {
	Register(ctx context.Context, user *domain.User) error
	Login(ctx context.Context, username, password string) (*domain.User, error)
	GetUserByID(ctx context.Context, id uint64) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
}

// DefaultService implements Service
type DefaultService struct {
	repository UserRepository
}

// NewService creates a new user service
func NewService(repository UserRepository) Service {
	return &DefaultService{repository: repository}
}

// Register registers a new user. A handle that was provisioned by a share
// grant is claimed by setting its password.
func (s *DefaultService) Register(ctx context.Context, user *domain.User) error {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" {
		return errors.BadRequest("Username is required", nil)
	}
	if len(user.Password) < minPasswordLength {
		return errors.BadRequest("Password must be at least 6 characters", nil)
	}

	existing, err := s.repository.FindByUsername(ctx, user.Username)
	if err != nil && !defError.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if existing != nil && !existing.IsProvisioned() {
		return errors.UnprocessableEntity("Username is taken", nil)
	}

	// Hash the password before saving
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Internal(err)
	}
	user.PasswordHash = string(hashedPassword)

	if existing != nil {
		if err := s.repository.UpdatePasswordHash(ctx, existing.ID, user.PasswordHash); err != nil {
			if defError.Is(err, gorm.ErrRecordNotFound) {
				return errors.UnprocessableEntity("Username is taken", nil)
			}
			return err
		}
		user.ID = existing.ID
		user.CreatedAt = existing.CreatedAt
		return nil
	}

	if err := s.repository.Create(ctx, user); err != nil {
		if defError.Is(err, gorm.ErrDuplicatedKey) {
			return errors.UnprocessableEntity("Username is taken", err)
		}
		return err
	}
	return nil
}

// Login authenticates a user
func (s *DefaultService) Login(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.repository.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, errors.Unauthenticated("Invalid username or password", err)
	}

	// Provisioned users have no password until they register.
	if user.IsProvisioned() {
		return nil, errors.Unauthenticated("Invalid username or password", nil)
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		return nil, errors.Unauthenticated("Invalid username or password", err)
	}

	return user, nil
}

// GetUserByID gets a user by ID
func (s *DefaultService) GetUserByID(ctx context.Context, id uint64) (*domain.User, error) {
	user, err := s.repository.FindByID(ctx, id)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("User not found", err)
		}
		return nil, err
	}
	return user, nil
}

func (s *DefaultService) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.repository.FindByUsername(ctx, username)
}
