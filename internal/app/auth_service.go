package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/agencydesk/agencydesk/internal/crypto"
	"github.com/agencydesk/agencydesk/internal/storage"
)

const DefaultMinPasswordLength = 6

type AuthService struct {
	store     *storage.Store
	hasher    *crypto.PasswordHasher
	minLength int
	logger    *slog.Logger
	now       func() time.Time
}

// NewAuthService builds the login and password service. A minLength of zero
// or less selects DefaultMinPasswordLength.
func NewAuthService(store *storage.Store, hasher *crypto.PasswordHasher, minLength int, logger *slog.Logger) *AuthService {
	if minLength <= 0 {
		minLength = DefaultMinPasswordLength
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &AuthService{
		store:     store,
		hasher:    hasher,
		minLength: minLength,
		logger:    logger.With("component", "auth"),
		now:       time.Now,
	}
}

// Login checks credentials, records the login time and upgrades a legacy or
// weaker hash in place. Unknown users and wrong passwords are not told apart.
func (s *AuthService) Login(ctx context.Context, username, password string) (*storage.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.Users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		s.logger.Warn("login failed", "username", username)
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	at := s.now().UTC()
	if err := s.store.Users.TouchLastLogin(ctx, user.ID, at); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	user.LastLoginAt = &at

	if s.hasher.NeedsRehash(user.PasswordHash) {
		if err := s.rehash(ctx, user, password); err != nil {
			s.logger.Warn("password rehash failed", "user_id", user.ID, "error", err)
		}
	}
	return user, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	user, err := s.store.Users.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if !s.hasher.Verify(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	return s.setPassword(ctx, userID, next)
}

// ResetPassword sets a new password without knowing the old one. It is the
// administrator path.
func (s *AuthService) ResetPassword(ctx context.Context, userID int64, next string) error {
	if _, err := s.store.Users.Get(ctx, userID); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return s.setPassword(ctx, userID, next)
}

func (s *AuthService) CreateUser(ctx context.Context, req CreateUserRequest) (*storage.User, error) {
	if err := s.validatePassword(req.Password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	user := &storage.User{
		Username:     req.Username,
		PasswordHash: hash,
		FullName:     req.FullName,
		Email:        req.Email,
		IsAdmin:      req.IsAdmin,
		IsActive:     true,
	}
	if err := s.store.Users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *AuthService) setPassword(ctx context.Context, userID int64, next string) error {
	if err := s.validatePassword(next); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if err := s.store.Users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}

func (s *AuthService) validatePassword(password string) error {
	if len([]rune(password)) < s.minLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, s.minLength)
	}
	return nil
}

func (s *AuthService) rehash(ctx context.Context, user *storage.User, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := s.store.Users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	user.PasswordHash = hash
	s.logger.Info("password hash upgraded", "user_id", user.ID)
	return nil
}
