package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/justestif/go-spotify-now-playing/internal/storage"
)

// Durable storage keys.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyExpiresAt    = "expires_at"
)

var sessionKeys = []string{KeyAccessToken, KeyRefreshToken, KeyExpiresAt}

// SaveSession writes the session to durable storage. expires_at is stored as unix seconds.
func SaveSession(ctx context.Context, store storage.Store, s Session) error {
	values := map[string]string{
		KeyAccessToken:  s.AccessToken,
		KeyRefreshToken: s.RefreshToken,
		KeyExpiresAt:    strconv.FormatInt(s.ExpiresAt.Unix(), 10),
	}
	if err := store.Set(ctx, values); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// LoadSession reads a session from durable storage.
// Returns a zero Session and no error when nothing is stored.
func LoadSession(ctx context.Context, store storage.Store) (Session, error) {
	var s Session

	access, err := store.Get(ctx, KeyAccessToken)
	if errors.Is(err, storage.ErrNotFound) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("loading access token: %w", err)
	}
	s.AccessToken = access

	refresh, err := store.Get(ctx, KeyRefreshToken)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Session{}, fmt.Errorf("loading refresh token: %w", err)
	}
	s.RefreshToken = refresh

	// A missing or unreadable expiry leaves ExpiresAt zero, which forces a refresh before use.
	raw, err := store.Get(ctx, KeyExpiresAt)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Session{}, fmt.Errorf("loading expiry: %w", err)
	}
	if secs, perr := strconv.ParseInt(raw, 10, 64); perr == nil && secs > 0 {
		s.ExpiresAt = time.Unix(secs, 0)
	}

	return s, nil
}

// ClearSession removes every session key from durable storage.
func ClearSession(ctx context.Context, store storage.Store) error {
	if err := store.Delete(ctx, sessionKeys...); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}
