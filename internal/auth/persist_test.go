package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-spotify-now-playing/internal/storage"
)

func newTestStore(t *testing.T) *storage.FileStore {
	t.Helper()
	return storage.NewFileStore(filepath.Join(t.TempDir(), "session.json"))
}

// failingStore rejects every operation.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Get(context.Context, string) (string, error)  { return "", errStoreDown }
func (failingStore) Set(context.Context, map[string]string) error { return errStoreDown }
func (failingStore) Delete(context.Context, ...string) error      { return errStoreDown }
func (failingStore) Close() error                                 { return nil }

func TestSaveAndLoadSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	want := Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Unix(1700000000, 0),
	}
	require.NoError(t, SaveSession(ctx, store, want))

	raw, err := store.Get(ctx, KeyExpiresAt)
	require.NoError(t, err)
	assert.Equal(t, "1700000000", raw)

	got, err := LoadSession(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.RefreshToken, got.RefreshToken)
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))
}

func TestLoadSession_Empty(t *testing.T) {
	got, err := LoadSession(context.Background(), newTestStore(t))
	require.NoError(t, err)
	assert.False(t, got.Authenticated())
}

func TestLoadSession_BadExpiry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Set(ctx, map[string]string{
		KeyAccessToken: "access",
		KeyExpiresAt:   "soon",
	}))

	got, err := LoadSession(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "access", got.AccessToken)
	assert.Empty(t, got.RefreshToken)
	assert.True(t, got.ExpiresAt.IsZero())
}

func TestClearSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, SaveSession(ctx, store, Session{AccessToken: "a", RefreshToken: "r"}))

	require.NoError(t, ClearSession(ctx, store))

	for _, key := range sessionKeys {
		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, storage.ErrNotFound, key)
	}
}

func TestPersist_StoreErrors(t *testing.T) {
	ctx := context.Background()

	assert.ErrorIs(t, SaveSession(ctx, failingStore{}, Session{AccessToken: "a"}), errStoreDown)
	assert.ErrorIs(t, ClearSession(ctx, failingStore{}), errStoreDown)

	_, err := LoadSession(ctx, failingStore{})
	assert.ErrorIs(t, err, errStoreDown)
}
