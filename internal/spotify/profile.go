package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

// Profile returns the current user's ID and display name.
func (c *Client) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	profile, err := c.profile(ctx, accessToken)
	c.record("profile", err)
	return profile, err
}

func (c *Client) profile(ctx context.Context, accessToken string) (*Profile, error) {
	user, err := c.api(ctx, accessToken).CurrentUser(ctx)
	if err != nil {
		var apiErr spotify.Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
		}
		return nil, fmt.Errorf("getting current user: %w", err)
	}

	return &Profile{
		ID:          user.ID,
		DisplayName: user.DisplayName,
	}, nil
}

// api returns a Web API client bound to accessToken.
func (c *Client) api(ctx context.Context, accessToken string) *spotify.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})
	return spotify.New(oauth2.NewClient(ctx, ts), spotify.WithBaseURL(c.baseURL+"/"))
}
