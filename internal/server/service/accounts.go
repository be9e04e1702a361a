package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"filevault/internal/server/auth"
	"filevault/internal/server/store"

	"golang.org/x/crypto/bcrypt"
)

// Sentinel errors for account operations.
var (
	ErrMissingCredentials = errors.New("username and password are required")
	ErrWeakPassword       = errors.New("password too short")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidUsername    = errors.New("invalid username")
)

const minPasswordLength = 6

// The username becomes part of an on-disk filename, so the charset is
// restricted to keep ids path-safe.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// AccountService implements registration and login on top of the user
// directory, and mints session tokens for successful logins.
type AccountService struct {
	users  *store.UserStore
	index  *store.IndexStore
	tokens *auth.Issuer
}

// NewAccountService creates a new account service.
func NewAccountService(users *store.UserStore, index *store.IndexStore, tokens *auth.Issuer) *AccountService {
	return &AccountService{users: users, index: index, tokens: tokens}
}

// Register creates a new account. The password is stored as a bcrypt hash
// and the user starts with an empty file index.
func (s *AccountService) Register(ctx context.Context, username, password, email, mobile string) error {
	if username == "" || password == "" {
		return ErrMissingCredentials
	}
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.Create(username, string(hash), email, mobile); err != nil {
		switch {
		case errors.Is(err, store.ErrUsernameTaken):
			return ErrUsernameTaken
		case errors.Is(err, store.ErrEmailTaken):
			return ErrEmailTaken
		}
		return err
	}

	// New accounts get an empty index file right away, matching the layout
	// older deployments produced.
	if err := s.index.Replace(username, nil); err != nil {
		return fmt.Errorf("failed to create file index: %w", err)
	}

	slog.Info("account registered", "username", username)
	return nil
}

// Login verifies credentials and returns a session token. The failure is the
// same for unknown users and wrong passwords.
func (s *AccountService) Login(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", ErrMissingCredentials
	}

	user, err := s.users.Get(username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(username)
	if err != nil {
		return "", fmt.Errorf("failed to issue session token: %w", err)
	}

	slog.Info("login", "username", username)
	return token, nil
}
