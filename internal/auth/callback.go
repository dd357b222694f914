package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/justestif/go-spotify-now-playing/internal/storage"
)

// Phase is a step of a single authorization attempt.
type Phase string

// Callback phases. Completed and Failed are terminal.
const (
	PhaseAwaitingRedirect Phase = "awaiting_redirect"
	PhaseValidated        Phase = "validated"
	PhaseExchanging       Phase = "exchanging"
	PhaseCompleted        Phase = "completed"
	PhaseFailed           Phase = "failed"
)

var (
	// ErrProviderDenied is returned when the redirect carries an error parameter.
	ErrProviderDenied = errors.New("authorization denied by provider")

	// ErrStateMismatch is returned when the redirect's state does not match the attempt.
	ErrStateMismatch = errors.New("OAuth state mismatch")

	// ErrMissingCode is returned when the redirect carries no authorization code.
	ErrMissingCode = errors.New("no authorization code in redirect")

	// ErrAttemptSuperseded is returned when a newer login started while the
	// callback was exchanging its code.
	ErrAttemptSuperseded = errors.New("authorization attempt superseded by a newer login")

	// ErrExchangeFailed is returned when the code could not be traded for tokens.
	ErrExchangeFailed = errors.New("could not obtain tokens")
)

// Exchanger trades an authorization code for tokens.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code, verifier string) (*TokenResponse, error)
}

// Result describes how a callback ended.
type Result struct {
	Phase       Phase
	Transitions []Phase
	Err         error
	Session     Session // populated only when Phase is PhaseCompleted
}

// CallbackHandler validates authorization redirects and completes the exchange.
type CallbackHandler struct {
	state     *State
	store     storage.Store
	exchanger Exchanger
	logger    *zap.Logger
}

// NewCallbackHandler creates a CallbackHandler.
func NewCallbackHandler(state *State, store storage.Store, exchanger Exchanger, logger *zap.Logger) *CallbackHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallbackHandler{
		state:     state,
		store:     store,
		exchanger: exchanger,
		logger:    logger,
	}
}

// Handle processes the redirect's query parameters. The attempt it read is
// discarded whatever the outcome, unless a newer login has replaced it in the
// meantime; tokens are written only on success and only while that attempt is
// still live.
func (h *CallbackHandler) Handle(ctx context.Context, query url.Values) Result {
	r := Result{Phase: PhaseAwaitingRedirect, Transitions: []Phase{PhaseAwaitingRedirect}}

	verifier, expectedState := h.state.Attempt()
	defer h.state.DiscardAttemptIf(expectedState)

	if errMsg := query.Get("error"); errMsg != "" {
		return h.fail(r, fmt.Errorf("%w: %s", ErrProviderDenied, errMsg))
	}

	if expectedState == "" || query.Get("state") != expectedState {
		return h.fail(r, ErrStateMismatch)
	}

	code := query.Get("code")
	if code == "" {
		return h.fail(r, ErrMissingCode)
	}
	r = advance(r, PhaseValidated)

	r = advance(r, PhaseExchanging)
	token, err := h.exchanger.ExchangeCode(ctx, code, verifier)
	if err == nil && token == nil {
		err = ErrEmptyTokenResponse
	}
	if err != nil {
		return h.fail(r, fmt.Errorf("%w: %w", ErrExchangeFailed, err))
	}

	session := Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.ExpiresAt,
	}

	h.state.loginMu.Lock()
	defer h.state.loginMu.Unlock()

	if !h.state.CompleteAttempt(expectedState, session) {
		return h.fail(r, ErrAttemptSuperseded)
	}

	// Persisting is best effort: the login itself succeeded.
	if err := SaveSession(ctx, h.store, session); err != nil {
		h.logger.Warn("persisting session", zap.Error(err))
	}

	r = advance(r, PhaseCompleted)
	r.Session = session
	h.logger.Info("authorization completed", zap.Time("expires_at", session.ExpiresAt))
	return r
}

func (h *CallbackHandler) fail(r Result, err error) Result {
	h.logger.Warn("authorization failed", zap.String("phase", string(r.Phase)), zap.Error(err))
	r = advance(r, PhaseFailed)
	r.Err = err
	return r
}

func advance(r Result, next Phase) Result {
	r.Phase = next
	r.Transitions = append(r.Transitions, next)
	return r
}
