package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-spotify-now-playing/internal/storage"
)

func TestLauncher_StartLogin(t *testing.T) {
	ctx := context.Background()
	state := NewState()
	store := newTestStore(t)

	// Leftovers from an earlier login must be wiped.
	state.SetSession(Session{AccessToken: "old", RefreshToken: "old-refresh", ExpiresAt: time.Now().Add(time.Hour)})
	state.BeginAttempt("old-verifier", "old-state")
	require.NoError(t, SaveSession(ctx, store, state.Session()))

	var opened string
	launcher := NewLauncher(LauncherConfig{
		ClientID:    "client-123",
		RedirectURI: "http://127.0.0.1:8080/callback",
		Opener: OpenerFunc(func(u string) error {
			opened = u
			return nil
		}),
	}, state, store)

	authURL, err := launcher.StartLogin(ctx)
	require.NoError(t, err)
	assert.Equal(t, authURL, opened)

	assert.False(t, state.Session().Authenticated())
	_, err = store.Get(ctx, KeyAccessToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	verifier, attemptState := state.Attempt()
	require.Len(t, verifier, CodeVerifierLength)
	require.NotEqual(t, "old-state", attemptState)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "accounts.spotify.com", u.Host)
	assert.Equal(t, "/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "http://127.0.0.1:8080/callback", q.Get("redirect_uri"))
	assert.Equal(t, strings.Join(DefaultScopes, " "), q.Get("scope"))
	assert.Equal(t, attemptState, q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, GenerateCodeChallenge(verifier), q.Get("code_challenge"))
}

func TestLauncher_StartLoginReplacesAttempt(t *testing.T) {
	state := NewState()
	launcher := NewLauncher(LauncherConfig{ClientID: "c", RedirectURI: "http://127.0.0.1/cb"}, state, newTestStore(t))

	_, err := launcher.StartLogin(context.Background())
	require.NoError(t, err)
	_, first := state.Attempt()

	_, err = launcher.StartLogin(context.Background())
	require.NoError(t, err)
	_, second := state.Attempt()

	assert.NotEqual(t, first, second)
}

func TestLauncher_OpenerAndStoreFailuresAreNotFatal(t *testing.T) {
	state := NewState()
	launcher := NewLauncher(LauncherConfig{
		ClientID:    "c",
		RedirectURI: "http://127.0.0.1/cb",
		Scopes:      []string{"user-read-currently-playing"},
		Opener:      OpenerFunc(func(string) error { return errors.New("no browser") }),
	}, state, failingStore{})

	authURL, err := launcher.StartLogin(context.Background())
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "user-read-currently-playing", u.Query().Get("scope"))

	verifier, _ := state.Attempt()
	assert.NotEmpty(t, verifier)
}
