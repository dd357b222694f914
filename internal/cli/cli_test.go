package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-spotify-now-playing/internal/auth"
	"github.com/justestif/go-spotify-now-playing/internal/config"
	"github.com/justestif/go-spotify-now-playing/internal/storage"
)

const (
	currentlyPlayingBody = `{"progress_ms":5000,"item":{"name":"Song","duration_ms":180000,"artists":[{"name":"Band"}],"album":{"images":[{"url":"http://x/img.jpg"}]}}}`
	topTracksBody        = `{"items":[{"name":"First","duration_ms":61000,"artists":[{"name":"A"}]},{"name":"Second","duration_ms":125000,"artists":[{"name":"B"}]}]}`
)

type env struct {
	configPath string
	storePath  string
	refreshes  atomic.Int32
}

// newEnv starts a fake Spotify and writes a config pointing at it.
func newEnv(t *testing.T) *env {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("SPOTIFY_ID", "")
	t.Setenv("SPOTIFY_NP_SPOTIFY_CLIENT_ID", "")

	e := &env{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/me/player/currently-playing", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer AT" && r.Header.Get("Authorization") != "Bearer AT-fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, currentlyPlayingBody)
	})
	mux.HandleFunc("/v1/me/top/tracks", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, topTracksBody)
	})
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		e.refreshes.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		_, _ = io.WriteString(w, `{"access_token":"AT-fresh","expires_in":3600}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	e.storePath = filepath.Join(dir, "session.json")
	e.configPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(e.configPath, []byte(fmt.Sprintf(`
spotify:
  client_id: test-client
  token_url: %s/api/token
  api_url: %s/v1
store:
  backend: file
  path: %s
log:
  level: error
`, srv.URL, srv.URL, e.storePath)), 0o600))

	return e
}

func (e *env) seedSession(t *testing.T, s auth.Session) {
	t.Helper()
	require.NoError(t, auth.SaveSession(context.Background(), storage.NewFileStore(e.storePath), s))
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestNowPlayingCommand(t *testing.T) {
	e := newEnv(t)
	e.seedSession(t, auth.Session{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: time.Now().Add(time.Hour)})

	out, err := e.run(t, "now-playing")
	require.NoError(t, err)
	assert.Equal(t, "Song - Band  [0:05 / 3:00]\n", out)
	assert.Zero(t, e.refreshes.Load())
}

func TestNowPlayingCommand_JSON(t *testing.T) {
	e := newEnv(t)
	e.seedSession(t, auth.Session{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: time.Now().Add(time.Hour)})

	out, err := e.run(t, "--json", "now-playing")
	require.NoError(t, err)
	assert.JSONEq(t, `{"progress_ms":5000,"track":{"title":"Song","artist":"Band","duration_ms":180000,"image_url":"http://x/img.jpg"}}`, out)
}

func TestNowPlayingCommand_RefreshesExpiredToken(t *testing.T) {
	e := newEnv(t)
	e.seedSession(t, auth.Session{AccessToken: "stale", RefreshToken: "RT", ExpiresAt: time.Now().Add(-time.Minute)})

	out, err := e.run(t, "now-playing")
	require.NoError(t, err)
	assert.Contains(t, out, "Song - Band")
	assert.Equal(t, int32(1), e.refreshes.Load())

	// The rotated access token is persisted; the refresh token is kept.
	session, err := auth.LoadSession(context.Background(), storage.NewFileStore(e.storePath))
	require.NoError(t, err)
	assert.Equal(t, "AT-fresh", session.AccessToken)
	assert.Equal(t, "RT", session.RefreshToken)
}

func TestNowPlayingCommand_NotLoggedIn(t *testing.T) {
	e := newEnv(t)

	_, err := e.run(t, "now-playing")
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
	assert.Contains(t, err.Error(), "login")
}

func TestTopCommand(t *testing.T) {
	e := newEnv(t)
	e.seedSession(t, auth.Session{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: time.Now().Add(time.Hour)})

	out, err := e.run(t, "top", "--limit", "2")
	require.NoError(t, err)
	assert.Equal(t, "1. First - A (1:01)\n2. Second - B (2:05)\n", out)
}

func TestLogoutCommand(t *testing.T) {
	e := newEnv(t)
	e.seedSession(t, auth.Session{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: time.Now().Add(time.Hour)})

	out, err := e.run(t, "logout")
	require.NoError(t, err)
	assert.Equal(t, "Logged out.\n", out)

	session, err := auth.LoadSession(context.Background(), storage.NewFileStore(e.storePath))
	require.NoError(t, err)
	assert.False(t, session.Authenticated())
}

func TestRootCommand_MissingClientID(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("SPOTIFY_ID", "")
	t.Setenv("SPOTIFY_NP_SPOTIFY_CLIENT_ID", "")
	t.Chdir(t.TempDir())

	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"logout"})

	assert.ErrorIs(t, cmd.Execute(), config.ErrMissingClientID)
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "login", "now-playing", "top", "logout"}, names)
}
