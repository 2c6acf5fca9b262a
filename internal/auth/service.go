package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vseti/vseti-chat/internal/core"
	"github.com/vseti/vseti-chat/internal/store"
)

var (
	// ErrInvalidCredentials is returned when email/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with an existing email.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidEmail is returned when the email is malformed.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Registration holds what a new user provides.
type Registration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Nickname  string
}

// Service issues and verifies identity tokens.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
	validate  *validator.Validate
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
		validate:  validator.New(),
	}
}

// Register creates a new user with hashed password and returns a JWT token.
func (s *Service) Register(ctx context.Context, r Registration) (string, *store.User, error) {
	email := strings.ToLower(strings.TrimSpace(r.Email))
	if err := s.validate.Var(email, "required,email,max=254"); err != nil {
		return "", nil, ErrInvalidEmail
	}
	if len(r.Password) < 6 || len(r.Password) > 72 {
		return "", nil, ErrInvalidPassword
	}

	hashedPassword, err := HashPassword(r.Password)
	if err != nil {
		return "", nil, err
	}

	user, err := s.store.CreateUser(ctx, store.NewUser{
		Email:        email,
		PasswordHash: hashedPassword,
		FirstName:    strings.TrimSpace(r.FirstName),
		LastName:     strings.TrimSpace(r.LastName),
		Nickname:     strings.TrimSpace(r.Nickname),
	})
	if err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return "", nil, ErrUserExists
		}
		return "", nil, fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Email)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	return token, user, nil
}

// Login validates credentials and returns a JWT token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *store.User, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("get user: %w", err)
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Email)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	return token, user, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// Verify implements core.IdentityVerifier.
func (s *Service) Verify(_ context.Context, token string) (core.Identity, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return core.Identity{}, fmt.Errorf("%w: %v", core.ErrAuthenticationFailed, err)
	}
	return core.Identity{UserID: claims.UserID}, nil
}

var _ core.IdentityVerifier = (*Service)(nil)
