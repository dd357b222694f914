// Package storage provides durable key-value backends for session credentials.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendKeyring  = "keyring"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Common errors.
var (
	// ErrNotFound is returned by Get when the key has no value.
	ErrNotFound = errors.New("not found")

	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Store is a small durable key-value store.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set writes all values together.
	Set(ctx context.Context, values map[string]string) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Close releases the backend's resources.
	Close() error
}

// Ensure every backend implements Store.
var (
	_ Store = (*FileStore)(nil)
	_ Store = (*KeyringStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Config selects and configures a backend.
type Config struct {
	Backend        string
	Path           string // file backend; empty means DefaultPath()
	KeyringService string
	RedisAddr      string
	RedisKey       string
	DatabaseURL    string
}

// Open creates the Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendFile:
		if cfg.Path == "" {
			path, err := DefaultPath()
			if err != nil {
				return nil, err
			}
			return NewFileStore(path), nil
		}
		return NewFileStore(cfg.Path), nil
	case BackendKeyring:
		return NewKeyringStore(cfg.KeyringService), nil
	case BackendRedis:
		s, err := OpenRedis(ctx, cfg.RedisAddr, cfg.RedisKey)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendPostgres:
		s, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
