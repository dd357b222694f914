package auth

import (
	"context"
	"fmt"

	"github.com/pkg/browser"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-now-playing/internal/storage"
)

// DefaultScopes are the scopes needed to read playback and top tracks.
var DefaultScopes = []string{
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserTopRead,
}

// Opener hands an authorization URL to an external user agent.
type Opener interface {
	Open(url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(url string) error

// Open calls f(url).
func (f OpenerFunc) Open(url string) error {
	return f(url)
}

// BrowserOpener opens URLs in the system browser.
var BrowserOpener Opener = OpenerFunc(browser.OpenURL)

// LauncherConfig configures a Launcher.
type LauncherConfig struct {
	ClientID    string
	RedirectURI string
	Scopes      []string // defaults to DefaultScopes
	Opener      Opener   // nil means the caller consumes the returned URL itself
	Logger      *zap.Logger
}

// Launcher starts authorization attempts.
type Launcher struct {
	auth   *spotifyauth.Authenticator
	state  *State
	store  storage.Store
	opener Opener
	logger *zap.Logger
}

// NewLauncher creates a Launcher that records attempts in state and
// invalidates credentials in store.
func NewLauncher(cfg LauncherConfig, state *State, store storage.Store) *Launcher {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Launcher{
		auth: spotifyauth.New(
			spotifyauth.WithClientID(cfg.ClientID),
			spotifyauth.WithRedirectURL(cfg.RedirectURI),
			spotifyauth.WithScopes(scopes...),
		),
		state:  state,
		store:  store,
		opener: cfg.Opener,
		logger: logger,
	}
}

// StartLogin discards any previous credentials and attempt, begins a new
// attempt and returns its authorization URL. The URL is also handed to the
// configured Opener; an opener failure is only logged.
func (l *Launcher) StartLogin(ctx context.Context) (string, error) {
	pkce, err := NewPKCE()
	if err != nil {
		return "", fmt.Errorf("generating PKCE pair: %w", err)
	}

	// A fresh login always invalidates prior credentials and any callback
	// still exchanging the previous attempt's code.
	l.state.loginMu.Lock()
	l.state.Clear()
	if err := ClearSession(ctx, l.store); err != nil {
		l.logger.Warn("clearing persisted session", zap.Error(err))
	}
	l.state.BeginAttempt(pkce.Verifier, pkce.State)
	l.state.loginMu.Unlock()

	authURL := l.auth.AuthURL(pkce.State,
		oauth2.SetAuthURLParam("code_challenge_method", ChallengeMethodS256),
		oauth2.SetAuthURLParam("code_challenge", pkce.Challenge),
	)
	l.logger.Debug("authorization attempt started", zap.String("auth_url", authURL))

	if l.opener != nil {
		if err := l.opener.Open(authURL); err != nil {
			l.logger.Warn("opening authorization URL", zap.Error(err))
		}
	}

	return authURL, nil
}
