package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the service name entries are filed under.
const DefaultKeyringService = "spotify-now-playing"

// KeyringStore keeps each key as a separate secret in the OS keychain.
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a KeyringStore. An empty service uses DefaultKeyringService.
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringStore{service: service}
}

// Get returns the secret stored for key.
func (s *KeyringStore) Get(_ context.Context, key string) (string, error) {
	v, err := keyring.Get(s.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading keyring entry %s: %w", key, err)
	}
	return v, nil
}

// Set writes each value as its own keychain entry.
func (s *KeyringStore) Set(_ context.Context, values map[string]string) error {
	for k, v := range values {
		if err := keyring.Set(s.service, k, v); err != nil {
			return fmt.Errorf("writing keyring entry %s: %w", k, err)
		}
	}
	return nil
}

// Delete removes keychain entries.
func (s *KeyringStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		err := keyring.Delete(s.service, k)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("deleting keyring entry %s: %w", k, err)
		}
	}
	return nil
}

// Close is a no-op.
func (s *KeyringStore) Close() error {
	return nil
}
