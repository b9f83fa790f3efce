// Package secrets keeps the text-generation API key in the OS credential store
// so it does not have to live in the environment or a .env file.
package secrets

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

const (
	ServiceName = "askql"
	KeyAPIKey   = "ai_api_key"
)

var ErrNotFound = errors.New("secret not found")

type Store struct {
	mu   sync.RWMutex
	ring keyring.Keyring
}

// Open uses the platform's native backends only. There is no file fallback.
func Open(serviceName string) (*Store, error) {
	if serviceName == "" {
		serviceName = ServiceName
	}
	var backends []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		backends = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		backends = []keyring.BackendType{keyring.WinCredBackend}
	default:
		backends = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.KeyCtlBackend, keyring.PassBackend}
	}

	cfg := keyring.Config{
		ServiceName:     serviceName,
		AllowedBackends: backends,
		PassPrefix:      serviceName,
		WinCredPrefix:   serviceName,
		KeyCtlScope:     "user",
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	return NewStore(ring), nil
}

func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

func (s *Store) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, err := s.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	value := strings.TrimSpace(string(item.Data))
	if value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *Store) Set(key, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%s value is required", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: ServiceName + " " + key}); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// Delete succeeds when the key is already absent.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) APIKey() (string, error) {
	return s.Get(KeyAPIKey)
}

func (s *Store) SetAPIKey(value string) error {
	return s.Set(KeyAPIKey, value)
}

func (s *Store) DeleteAPIKey() error {
	return s.Delete(KeyAPIKey)
}

// ResolveAPIKey prefers an explicitly configured key and falls back to the
// stored one. A missing stored key yields "" without error.
func (s *Store) ResolveAPIKey(configured string) (string, error) {
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured, nil
	}
	value, err := s.APIKey()
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return value, err
}
