package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/justestif/go-spotify-now-playing/internal/auth"
	"github.com/justestif/go-spotify-now-playing/internal/config"
	"github.com/justestif/go-spotify-now-playing/internal/metrics"
	"github.com/justestif/go-spotify-now-playing/internal/spotify"
	"github.com/justestif/go-spotify-now-playing/internal/storage"
)

// app is the set of components every command works with.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	store     storage.Store
	state     *auth.State
	tokens    *auth.TokenClient
	launcher  *auth.Launcher
	callback  *auth.CallbackHandler
	refresher *auth.Refresher
	spotify   *spotify.Client
}

// newApp wires the components and restores any persisted session.
// opener may be nil when the caller handles the authorization URL itself.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opener auth.Opener) (*app, error) {
	store, err := storage.Open(ctx, storage.Config{
		Backend:        cfg.Store.Backend,
		Path:           cfg.Store.Path,
		KeyringService: cfg.Store.KeyringService,
		RedisAddr:      cfg.Store.RedisAddr,
		RedisKey:       cfg.Store.RedisKey,
		DatabaseURL:    cfg.Store.DatabaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout}
	state := auth.NewState()

	tokens := auth.NewTokenClient(auth.TokenClientConfig{
		ClientID:    cfg.Spotify.ClientID,
		RedirectURI: cfg.Spotify.RedirectURI,
		TokenURL:    cfg.Spotify.TokenURL,
		HTTPClient:  httpClient,
		Logger:      logger.Named("token"),
		Metrics:     m,
	})

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  m,
		store:    store,
		state:    state,
		tokens:   tokens,
		launcher: auth.NewLauncher(auth.LauncherConfig{
			ClientID:    cfg.Spotify.ClientID,
			RedirectURI: cfg.Spotify.RedirectURI,
			Scopes:      cfg.Spotify.Scopes,
			Opener:      opener,
			Logger:      logger.Named("launcher"),
		}, state, store),
		callback:  auth.NewCallbackHandler(state, store, tokens, logger.Named("callback")),
		refresher: auth.NewRefresher(state, store, tokens, logger.Named("refresh")),
		spotify: spotify.New(spotify.Config{
			BaseURL:    cfg.Spotify.APIURL,
			HTTPClient: httpClient,
			Logger:     logger.Named("spotify"),
			Metrics:    m,
		}),
	}

	if _, err := a.refresher.Restore(ctx); err != nil {
		logger.Warn("restoring persisted session", zap.Error(err))
	}

	return a, nil
}

// accessToken returns a usable access token or a hint to log in.
func (a *app) accessToken(ctx context.Context) (string, error) {
	token, err := a.refresher.AccessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("%w (run `spotify-now-playing login` first)", err)
	}
	return token, nil
}

func (a *app) loopbackLogin(out io.Writer) *auth.LoopbackLogin {
	return auth.NewLoopbackLogin(a.launcher, a.callback, a.cfg.Spotify.RedirectURI, out, a.logger.Named("login"))
}

func (a *app) Close() error {
	return a.store.Close()
}
