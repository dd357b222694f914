// Package auth implements the Spotify authorization code flow with PKCE,
// the session state it produces, and access token refresh.
package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const callbackTimeout = 2 * time.Minute

// ErrAuthTimeout is returned when the OAuth callback is not received in time.
var ErrAuthTimeout = errors.New("authentication timed out waiting for callback")

// LoopbackLogin runs a complete login from a terminal: it serves the redirect
// URI on the loopback interface, opens the authorization URL and waits for
// the callback.
type LoopbackLogin struct {
	launcher    *Launcher
	callback    *CallbackHandler
	redirectURI string
	timeout     time.Duration
	out         io.Writer
	logger      *zap.Logger
}

// NewLoopbackLogin creates a LoopbackLogin. The authorization URL is also
// printed to out so it can be opened by hand.
func NewLoopbackLogin(launcher *Launcher, callback *CallbackHandler, redirectURI string, out io.Writer, logger *zap.Logger) *LoopbackLogin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoopbackLogin{
		launcher:    launcher,
		callback:    callback,
		redirectURI: redirectURI,
		timeout:     callbackTimeout,
		out:         out,
		logger:      logger,
	}
}

// Run performs the flow and returns the resulting session.
func (l *LoopbackLogin) Run(ctx context.Context) (Session, error) {
	redirect, err := url.Parse(l.redirectURI)
	if err != nil {
		return Session{}, fmt.Errorf("parsing redirect URI: %w", err)
	}
	path := redirect.Path
	if path == "" {
		path = "/"
	}

	// Listen before starting the attempt so the redirect can never arrive first.
	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return Session{}, fmt.Errorf("listening on %s: %w", redirect.Host, err)
	}

	resultCh := make(chan Result, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		res := l.callback.Handle(r.Context(), r.URL.Query())
		writeCallbackPage(w, res)
		select {
		case resultCh <- res:
		default:
		}
	})

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("callback server error: %w", err)
		}
	}()

	// The callback surface is closed whatever the outcome.
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	authURL, err := l.launcher.StartLogin(ctx)
	if err != nil {
		return Session{}, err
	}

	if l.out != nil {
		fmt.Fprintln(l.out, "\nTo authenticate, open this URL in your browser:")
		fmt.Fprintln(l.out, authURL)
		fmt.Fprintln(l.out, "\nWaiting for authentication...")
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		if res.Err != nil {
			return Session{}, res.Err
		}
		return res.Session, nil
	case err := <-errCh:
		return Session{}, err
	case <-timer.C:
		return Session{}, ErrAuthTimeout
	case <-ctx.Done():
		return Session{}, ctx.Err()
	}
}

// writeCallbackPage tells the user whether the login worked.
func writeCallbackPage(w http.ResponseWriter, res Result) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	title := "Authentication Successful!"
	message := "You can close this window and return to the terminal."
	if res.Err != nil {
		w.WriteHeader(http.StatusBadRequest)
		title = "Authentication Failed"
		message = UserMessage(res.Err)
	}

	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<h1>%s</h1>
<p>%s</p>
</body>
</html>`, html.EscapeString(title), html.EscapeString(title), html.EscapeString(message))
}

// UserMessage maps callback failures to text that is safe to show the user.
// Provider denials are shown as-is; everything else is generic.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrProviderDenied):
		return err.Error()
	case errors.Is(err, ErrStateMismatch), errors.Is(err, ErrMissingCode):
		return "The login response was invalid. Please start the login again."
	case errors.Is(err, ErrAttemptSuperseded):
		return "A newer login was started. Please finish that one instead."
	default:
		return "Could not obtain a token from Spotify. Please try again."
	}
}

