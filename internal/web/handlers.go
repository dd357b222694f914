package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/justestif/go-spotify-now-playing/internal/auth"
	"github.com/justestif/go-spotify-now-playing/internal/spotify"
)

// LoginStarter begins an authorization attempt.
type LoginStarter interface {
	StartLogin(ctx context.Context) (string, error)
}

// CallbackProcessor completes an authorization attempt.
type CallbackProcessor interface {
	Handle(ctx context.Context, query url.Values) auth.Result
}

// Sessions hands out access tokens and ends sessions.
type Sessions interface {
	AccessToken(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
}

// WebAPI is the subset of the Spotify client the handlers use.
type WebAPI interface {
	TopTracks(ctx context.Context, accessToken string, limit int) ([]spotify.Track, error)
	Profile(ctx context.Context, accessToken string) (*spotify.Profile, error)
}

// PlaybackSource reports the most recent poll.
type PlaybackSource interface {
	Latest() (spotify.Update, bool)
}

// HandlersConfig wires the handlers to the rest of the application.
type HandlersConfig struct {
	Launcher    LoginStarter
	Callback    CallbackProcessor
	Sessions    Sessions
	API         WebAPI
	Playback    PlaybackSource
	TopLimit    int
	TopCacheTTL time.Duration
	Logger      *zap.Logger
}

// Handlers contains HTTP handlers for the web application.
type Handlers struct {
	launcher LoginStarter
	callback CallbackProcessor
	sessions Sessions
	api      WebAPI
	playback PlaybackSource
	topLimit int
	cache    *cache.Cache
	logger   *zap.Logger

	mu         sync.Mutex
	loginError string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg HandlersConfig) *Handlers {
	ttl := cfg.TopCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Handlers{
		launcher: cfg.Launcher,
		callback: cfg.Callback,
		sessions: cfg.Sessions,
		api:      cfg.API,
		playback: cfg.Playback,
		topLimit: cfg.TopLimit,
		cache:    cache.New(ttl, 2*ttl),
		logger:   logger,
	}
}

// sessionResponse is the body of GET /api/session.
type sessionResponse struct {
	Authenticated bool             `json:"authenticated"`
	Profile       *spotify.Profile `json:"profile,omitempty"`
	LoginError    string           `json:"login_error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type topTracksResponse struct {
	Tracks []spotify.Track `json:"tracks"`
}

// Session reports whether a user is logged in (GET /, GET /api/session).
func (h *Handlers) Session(w http.ResponseWriter, r *http.Request) {
	resp := sessionResponse{LoginError: h.lastLoginError()}

	token, err := h.sessions.AccessToken(r.Context())
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		writeJSON(w, http.StatusOK, resp)
		return
	case err != nil:
		h.logger.Warn("obtaining access token", zap.Error(err))
		writeError(w, http.StatusBadGateway, "could not refresh the session")
		return
	}
	resp.Authenticated = true

	if v, ok := h.cache.Get("profile"); ok {
		resp.Profile = v.(*spotify.Profile)
	} else if profile, err := h.api.Profile(r.Context(), token); err == nil {
		resp.Profile = profile
		h.cache.SetDefault("profile", profile)
	} else {
		h.logger.Warn("fetching profile", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Login starts the Spotify authorization flow (POST /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.launcher.StartLogin(r.Context())
	if err != nil {
		h.logger.Error("starting login", zap.Error(err))
		http.Error(w, "Failed to start login", http.StatusInternalServerError)
		return
	}

	h.cache.Flush()
	h.setLoginError("")
	http.Redirect(w, r, authURL, http.StatusSeeOther)
}

// Callback handles the OAuth callback from Spotify (GET /callback).
// The surface is dismissed with a redirect home whatever the outcome.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	res := h.callback.Handle(r.Context(), r.URL.Query())
	if res.Err != nil {
		h.setLoginError(auth.UserMessage(res.Err))
	} else {
		h.setLoginError("")
		h.cache.Flush()
	}

	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// Logout clears the session and redirects to home (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		h.logger.Warn("clearing persisted session", zap.Error(err))
	}
	h.cache.Flush()

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// NowPlaying returns the latest poll result (GET /api/now-playing).
func (h *Handlers) NowPlaying(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessions.AccessToken(r.Context()); errors.Is(err, auth.ErrNotAuthenticated) {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	update, ok := h.playback.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch update.Outcome {
	case spotify.OutcomeOK:
		writeJSON(w, http.StatusOK, update.NowPlaying)
	case spotify.OutcomeEmpty:
		w.WriteHeader(http.StatusNoContent)
	case spotify.OutcomeUnauthorized:
		writeError(w, http.StatusUnauthorized, "Spotify rejected the session")
	default:
		writeError(w, http.StatusBadGateway, "Spotify is unavailable")
	}
}

// TopTracks returns the user's top tracks (GET /api/top-tracks?limit=N).
func (h *Handlers) TopTracks(w http.ResponseWriter, r *http.Request) {
	limit := h.topLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	token, err := h.sessions.AccessToken(r.Context())
	if errors.Is(err, auth.ErrNotAuthenticated) {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	if err != nil {
		h.logger.Warn("obtaining access token", zap.Error(err))
		writeError(w, http.StatusBadGateway, "could not refresh the session")
		return
	}

	key := fmt.Sprintf("top:%d", limit)
	if v, ok := h.cache.Get(key); ok {
		writeJSON(w, http.StatusOK, topTracksResponse{Tracks: v.([]spotify.Track)})
		return
	}

	tracks, err := h.api.TopTracks(r.Context(), token, limit)
	switch spotify.Classify(err) {
	case spotify.OutcomeOK:
		h.cache.SetDefault(key, tracks)
		writeJSON(w, http.StatusOK, topTracksResponse{Tracks: tracks})
	case spotify.OutcomeUnauthorized:
		writeError(w, http.StatusUnauthorized, "Spotify rejected the session")
	default:
		h.logger.Warn("fetching top tracks", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Spotify is unavailable")
	}
}

func (h *Handlers) setLoginError(msg string) {
	h.mu.Lock()
	h.loginError = msg
	h.mu.Unlock()
}

func (h *Handlers) lastLoginError() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loginError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
