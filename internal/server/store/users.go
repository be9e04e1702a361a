package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already exists")
	ErrEmailTaken    = errors.New("email already registered")
)

// Credentials for the shared demo account that is seeded into an empty store.
const (
	demoUsername = "demo"
	demoPassword = "password123"
	demoEmail    = "demo@example.com"
)

// UserStore is the user directory, persisted as a single JSON object keyed by
// username. Every operation reads the whole file and mutations rewrite it
// wholesale; a single mutex serializes writers, which also makes the
// email-uniqueness scan during Create atomic.
type UserStore struct {
	path string
	mu   sync.Mutex
}

// NewUserStore creates a user directory backed by the JSON file at path.
func NewUserStore(path string) *UserStore {
	return &UserStore{path: path}
}

// Init seeds the store with the demo account when no users file exists yet.
func (s *UserStore) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat users file: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash demo password: %w", err)
	}

	users := map[string]UserRecord{
		demoUsername: {Password: string(hash), Email: demoEmail},
	}
	if err := s.save(users); err != nil {
		return err
	}

	slog.Info("seeded demo account", "username", demoUsername)
	return nil
}

// Create registers a new user. The caller supplies an already-hashed password.
// Fails with ErrUsernameTaken when the username exists and with ErrEmailTaken
// when a non-empty email is already registered to another user.
func (s *UserStore) Create(username, passwordHash, email, mobile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return err
	}

	if _, exists := users[username]; exists {
		return ErrUsernameTaken
	}
	if email != "" {
		for _, u := range users {
			if u.Email == email {
				return ErrEmailTaken
			}
		}
	}

	users[username] = UserRecord{Password: passwordHash, Email: email, Mobile: mobile}
	return s.save(users)
}

// Get returns the record for username or ErrUserNotFound.
func (s *UserStore) Get(username string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return UserRecord{}, err
	}
	u, ok := users[username]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

// FindUsernameByEmail returns the first username registered with email, or
// ErrUserNotFound. Registration keeps emails unique, but data written before
// that check may still hold duplicates; first match wins.
func (s *UserStore) FindUsernameByEmail(email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return "", err
	}
	for username, u := range users {
		if u.Email == email {
			return username, nil
		}
	}
	return "", ErrUserNotFound
}

func (s *UserStore) load() (map[string]UserRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]UserRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}

	users := map[string]UserRecord{}
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to parse users file: %w", err)
	}
	return users, nil
}

func (s *UserStore) save(users map[string]UserRecord) error {
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode users: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return writeFileAtomic(s.path, data)
}
