package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/justestif/go-spotify-now-playing/internal/storage"
)

// DefaultRefreshSkew refreshes slightly before the provider's expiry.
const DefaultRefreshSkew = 30 * time.Second

// ErrNotAuthenticated is returned when no session exists.
var ErrNotAuthenticated = errors.New("not authenticated")

// Refreshing mints new access tokens from a refresh token.
type Refreshing interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// Refresher hands out access tokens that are valid at the time of use.
type Refresher struct {
	state  *State
	store  storage.Store
	client Refreshing
	logger *zap.Logger
	now    func() time.Time
	skew   time.Duration

	// mu serializes refreshes so concurrent callers share one grant.
	mu sync.Mutex
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithClock sets the time source.
func WithClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) {
		r.now = now
	}
}

// WithSkew sets how long before expiry a token is treated as expired.
func WithSkew(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		r.skew = d
	}
}

// NewRefresher creates a Refresher.
func NewRefresher(state *State, store storage.Store, client Refreshing, logger *zap.Logger, opts ...RefresherOption) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Refresher{
		state:  state,
		store:  store,
		client: client,
		logger: logger,
		now:    time.Now,
		skew:   DefaultRefreshSkew,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AccessToken returns the current access token, refreshing it first when it
// has expired (or is about to).
func (r *Refresher) AccessToken(ctx context.Context) (string, error) {
	session := r.state.Session()
	if !session.Authenticated() {
		return "", ErrNotAuthenticated
	}
	if !session.ExpiredAt(r.now().Add(r.skew)) {
		return session.AccessToken, nil
	}

	refreshed, err := r.refreshIfStale(ctx, session.AccessToken)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// Refresh forces a refresh grant regardless of expiry.
func (r *Refresher) Refresh(ctx context.Context) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshLocked(ctx)
}

// refreshIfStale refreshes unless another caller already replaced staleToken.
func (r *Refresher) refreshIfStale(ctx context.Context, staleToken string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.state.Session()
	if current.Authenticated() && current.AccessToken != staleToken && !current.ExpiredAt(r.now().Add(r.skew)) {
		return current, nil
	}
	return r.refreshLocked(ctx)
}

func (r *Refresher) refreshLocked(ctx context.Context) (Session, error) {
	current := r.state.Session()
	if !current.Authenticated() {
		return Session{}, ErrNotAuthenticated
	}

	token, err := r.client.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return Session{}, fmt.Errorf("refreshing access token: %w", err)
	}

	next := Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.ExpiresAt,
	}
	// Rotation is optional for the provider.
	if next.RefreshToken == "" {
		next.RefreshToken = current.RefreshToken
	}

	// A logout or new login may have happened while the grant was in flight.
	if r.state.Session().RefreshToken != current.RefreshToken {
		return Session{}, ErrNotAuthenticated
	}

	if err := SaveSession(ctx, r.store, next); err != nil {
		r.logger.Warn("persisting refreshed session", zap.Error(err))
	}
	r.state.SetSession(next)
	r.logger.Debug("access token refreshed", zap.Time("expires_at", next.ExpiresAt))

	return next, nil
}

// Restore loads a persisted session into state. It is a no-op when nothing is stored.
func (r *Refresher) Restore(ctx context.Context) (Session, error) {
	session, err := LoadSession(ctx, r.store)
	if err != nil {
		return Session{}, err
	}
	if session.Authenticated() {
		r.state.SetSession(session)
		r.logger.Info("restored persisted session", zap.Time("expires_at", session.ExpiresAt))
	}
	return session, nil
}

// Logout clears the session in memory and in durable storage.
func (r *Refresher) Logout(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.loginMu.Lock()
	defer r.state.loginMu.Unlock()

	r.state.Clear()
	return ClearSession(ctx, r.store)
}
