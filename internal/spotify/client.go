// Package spotify queries the Spotify Web API for the authenticated user's
// playback and listening history.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/justestif/go-spotify-now-playing/internal/metrics"
)

const (
	// DefaultBaseURL is the Web API root.
	DefaultBaseURL = "https://api.spotify.com/v1"

	userAgent   = "spotify-now-playing/1.0"
	maxBodySize = 4 << 20
)

// Sentinel errors.
var (
	// ErrNothingPlaying is returned when the player has nothing to report.
	ErrNothingPlaying = errors.New("nothing playing")

	// ErrUnauthorized is returned when the access token was rejected.
	ErrUnauthorized = errors.New("access token rejected")

	// ErrUnexpectedStatus is returned for other non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// Outcome tags the result of a Web API query.
type Outcome string

// Query outcomes.
const (
	OutcomeOK             Outcome = "ok"
	OutcomeEmpty          Outcome = "empty"
	OutcomeUnauthorized   Outcome = "unauthorized"
	OutcomeTransportError Outcome = "transport_error"
)

// Classify maps an error returned by Client to an Outcome.
// Malformed bodies count as transport errors.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrNothingPlaying):
		return OutcomeEmpty
	case errors.Is(err, ErrUnauthorized):
		return OutcomeUnauthorized
	default:
		return OutcomeTransportError
	}
}

// Config configures a Client.
type Config struct {
	BaseURL    string // defaults to DefaultBaseURL
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Client queries the Web API on behalf of whoever owns the access token
// passed to each call.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// New creates a Client.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// get performs an authenticated GET and returns the body of a 2xx response.
// A 204 or an empty body yields ErrNothingPlaying.
func (c *Client) get(ctx context.Context, accessToken, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w%s", ErrUnauthorized, describeAPIError(body))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w %d%s", ErrUnexpectedStatus, resp.StatusCode, describeAPIError(body))
	case resp.StatusCode == http.StatusNoContent || len(strings.TrimSpace(string(body))) == 0:
		return nil, ErrNothingPlaying
	}

	return body, nil
}

// describeAPIError extracts the Web API's error message, if any.
func describeAPIError(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
		return ": " + msg
	}
	return ""
}

func (c *Client) record(endpoint string, err error) {
	outcome := Classify(err)
	c.metrics.RecordPlaybackRequest(endpoint, string(outcome))
	if outcome == OutcomeTransportError {
		c.logger.Warn("web API request failed", zap.String("endpoint", endpoint), zap.Error(err))
	}
}
