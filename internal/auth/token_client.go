package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-now-playing/internal/metrics"
)

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"

	defaultTokenType = "Bearer"
	maxTokenBody     = 1 << 20
)

// Sentinel errors. A nil *TokenResponse accompanies every one of them.
var (
	// ErrMissingVerifier is returned when a code arrives without a prior StartLogin.
	ErrMissingVerifier = errors.New("no code verifier for this authorization attempt")

	// ErrMissingRefreshToken is returned by Refresh when there is nothing to refresh with.
	ErrMissingRefreshToken = errors.New("no refresh token")

	// ErrTokenEndpoint is returned for non-2xx token endpoint responses.
	ErrTokenEndpoint = errors.New("token endpoint rejected the request")

	// ErrEmptyTokenResponse is returned when the token endpoint sends no body.
	ErrEmptyTokenResponse = errors.New("empty token response")

	// ErrMissingAccessToken is returned when access_token is absent or blank.
	ErrMissingAccessToken = errors.New("token response has no access_token")
)

// TokenResponse is a parsed token endpoint response.
type TokenResponse struct {
	AccessToken  string
	TokenType    string
	ExpiresIn    int64     // seconds, as sent
	ExpiresAt    time.Time // receipt time + ExpiresIn
	RefreshToken string    // empty when the provider did not rotate it
	Scope        string
}

// ToOAuth2 converts the response into an oauth2.Token.
func (t *TokenResponse) ToOAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}

// tokenJSON is the wire form of a token response.
type tokenJSON struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    *int64 `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// TokenClientConfig configures a TokenClient.
type TokenClientConfig struct {
	ClientID    string
	RedirectURI string
	TokenURL    string // defaults to Spotify's token endpoint
	HTTPClient  *http.Client
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// TokenClient performs the PKCE code exchange and refresh grants for a public client.
type TokenClient struct {
	clientID    string
	redirectURI string
	tokenURL    string
	httpClient  *http.Client
	logger      *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewTokenClient creates a TokenClient.
func NewTokenClient(cfg TokenClientConfig) *TokenClient {
	c := &TokenClient{
		clientID:    cfg.ClientID,
		redirectURI: cfg.RedirectURI,
		tokenURL:    cfg.TokenURL,
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		now:         cfg.Now,
	}
	if c.tokenURL == "" {
		c.tokenURL = spotifyauth.TokenURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// ExchangeCode trades an authorization code for tokens using the attempt's verifier.
func (c *TokenClient) ExchangeCode(ctx context.Context, code, verifier string) (*TokenResponse, error) {
	if verifier == "" {
		c.logger.Warn("code exchange without a verifier")
		return nil, ErrMissingVerifier
	}

	form := url.Values{
		"grant_type":    {grantAuthorizationCode},
		"code":          {code},
		"redirect_uri":  {c.redirectURI},
		"client_id":     {c.clientID},
		"code_verifier": {verifier},
	}
	return c.request(ctx, grantAuthorizationCode, form)
}

// Refresh mints a new access token. The response's RefreshToken is empty
// when the provider did not rotate it; callers keep the previous one.
func (c *TokenClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, ErrMissingRefreshToken
	}

	form := url.Values{
		"grant_type":    {grantRefreshToken},
		"refresh_token": {refreshToken},
		"client_id":     {c.clientID},
	}
	return c.request(ctx, grantRefreshToken, form)
}

func (c *TokenClient) request(ctx context.Context, grantType string, form url.Values) (*TokenResponse, error) {
	start := time.Now()
	token, err := c.doRequest(ctx, form)

	result := "ok"
	if err != nil {
		result = "error"
		c.logger.Warn("token request failed", zap.String("grant_type", grantType), zap.Error(err))
	} else {
		c.logger.Debug("token request succeeded",
			zap.String("grant_type", grantType),
			zap.String("access_token", redact(token.AccessToken)),
			zap.Time("expires_at", token.ExpiresAt),
			zap.Bool("rotated_refresh_token", token.RefreshToken != ""),
		)
	}
	c.metrics.RecordTokenRequest(grantType, result, time.Since(start))

	return token, err
}

func (c *TokenClient) doRequest(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBody))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d%s", ErrTokenEndpoint, resp.StatusCode, describeOAuthError(body))
	}

	return parseTokenResponse(body, c.now())
}

// parseTokenResponse applies the defaults: token_type "Bearer", expires_in 0.
func parseTokenResponse(body []byte, receivedAt time.Time) (*TokenResponse, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, ErrEmptyTokenResponse
	}

	var raw tokenJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing token response: %w", err)
	}

	if strings.TrimSpace(raw.AccessToken) == "" {
		return nil, ErrMissingAccessToken
	}

	token := &TokenResponse{
		AccessToken:  raw.AccessToken,
		TokenType:    raw.TokenType,
		RefreshToken: raw.RefreshToken,
		Scope:        raw.Scope,
	}
	if token.TokenType == "" {
		token.TokenType = defaultTokenType
	}
	if raw.ExpiresIn != nil && *raw.ExpiresIn > 0 {
		token.ExpiresIn = *raw.ExpiresIn
	}
	token.ExpiresAt = receivedAt.Add(time.Duration(token.ExpiresIn) * time.Second)

	return token, nil
}

// describeOAuthError extracts the RFC 6749 error fields for log output.
func describeOAuthError(body []byte) string {
	code := gjson.GetBytes(body, "error").String()
	desc := gjson.GetBytes(body, "error_description").String()
	switch {
	case code != "" && desc != "":
		return fmt.Sprintf(": %s (%s)", code, desc)
	case code != "":
		return ": " + code
	default:
		return ""
	}
}

// redact keeps a short prefix of a secret for log correlation.
func redact(secret string) string {
	const keep = 6
	if len(secret) <= keep {
		return "***"
	}
	return secret[:keep] + "..."
}
