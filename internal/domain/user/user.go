package user

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/example/ec-shop/internal/apperr"
	"github.com/example/ec-shop/internal/auth"
	"github.com/google/uuid"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

var (
	ErrUserNotFound       = apperr.NotFound("user not found")
	ErrInvalidEmail       = apperr.InvalidArgument("email is required")
	ErrInvalidName        = apperr.InvalidArgument("name is required")
	ErrEmailTaken         = apperr.Conflict("email already registered")
	ErrInvalidCredentials = apperr.Unauthenticated("invalid email or password")
	ErrAccountGone        = apperr.Unauthenticated("account no longer exists")
	ErrPasswordTooShort   = auth.ErrPasswordTooShort
	ErrPasswordTooLong    = auth.ErrPasswordTooLong
)

// User is an account that owns a cart and orders.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// Repository is the storage the service needs. CreateUser must return an
// error marked apperr.ErrConflict when the email is already taken.
type Repository interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, bool, error)
}

// Service handles registration and credential checks.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new user service
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Register creates a new customer
func (s *Service) Register(ctx context.Context, email, password, name string) (*User, error) {
	return s.RegisterWithRole(ctx, email, password, name, RoleCustomer)
}

// RegisterWithRole creates a new user with a specific role
func (s *Service) RegisterWithRole(ctx context.Context, email, password, name, role string) (*User, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" {
		return nil, ErrInvalidEmail
	}
	if name == "" {
		return nil, ErrInvalidName
	}

	if err := auth.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	u := &User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
		CreatedAt:    s.now(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return u, nil
}

// Authenticate returns the user whose credentials match. Unknown email and
// wrong password produce the same error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, ok, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if !ok || !auth.CheckPassword(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// EnsureAdmin creates the admin account unless a user with that email
// already exists.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (*User, bool, error) {
	existing, ok, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, false, err
	}
	if ok {
		return existing, false, nil
	}
	u, err := s.RegisterWithRole(ctx, email, password, "Administrator", RoleAdmin)
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
