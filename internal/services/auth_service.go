package services

import (
	"errors"
	"fmt"

	"lapak/internal/apperrors"
	"lapak/internal/models"
	"lapak/internal/repositories"

	"golang.org/x/crypto/bcrypt"
)

// AuthService handles registration, login and identity lookup.
type AuthService struct {
	userRepo repositories.UserRepository
	tokens   *TokenService
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repositories.UserRepository, tokens *TokenService) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
	}
}

// Register creates a new user with a hashed password and returns its public
// projection. No token is issued here; registration and session start are
// separate steps.
func (s *AuthService) Register(username, email, password string) (*models.PublicUser, error) {
	if username == "" || email == "" || password == "" {
		return nil, fmt.Errorf("username, email and password are required: %w", apperrors.ErrValidation)
	}

	// Email is checked before username; the first collision wins.
	if _, err := s.userRepo.GetByEmail(email); err == nil {
		return nil, apperrors.NewConflict("email", email)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if _, err := s.userRepo.GetByUsername(username); err == nil {
		return nil, apperrors.NewConflict("username", username)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username: username,
		Email:    email,
		Password: string(hashedPassword),
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	public := user.Public()
	return &public, nil
}

// Login authenticates by email and password and returns a token plus the
// public user. Unknown email and wrong password yield the same error so
// callers cannot probe which accounts exist.
func (s *AuthService) Login(email, password string) (string, *models.PublicUser, error) {
	if email == "" || password == "" {
		return "", nil, fmt.Errorf("email and password are required: %w", apperrors.ErrValidation)
	}

	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", nil, apperrors.ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, apperrors.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}

	public := user.Public()
	return token, &public, nil
}

// GetCurrentUser resolves an ID from a verified token back to a public user.
// A token can outlive its user, so an unresolvable ID is a not-found, not an
// internal failure.
func (s *AuthService) GetCurrentUser(id string) (*models.PublicUser, error) {
	user, err := s.userRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	public := user.Public()
	return &public, nil
}
