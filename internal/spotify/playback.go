package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

const (
	// DefaultTopTracksLimit is used when the caller does not ask for a size.
	DefaultTopTracksLimit = 20

	maxTopTracksLimit = 50
)

// TimeRanges are the top-tracks windows, tried in this order.
var TimeRanges = []string{"short_term", "medium_term", "long_term"}

// CurrentlyPlaying returns the user's current playback.
// It returns ErrNothingPlaying when the player is idle.
func (c *Client) CurrentlyPlaying(ctx context.Context, accessToken string) (*NowPlaying, error) {
	np, err := c.currentlyPlaying(ctx, accessToken)
	c.record("currently_playing", err)
	return np, err
}

func (c *Client) currentlyPlaying(ctx context.Context, accessToken string) (*NowPlaying, error) {
	body, err := c.get(ctx, accessToken, "/me/player/currently-playing", nil)
	if err != nil {
		return nil, err
	}

	if err := validate(currentlyPlayingSchema, body); err != nil {
		return nil, err
	}

	var resp currentlyPlayingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	return convertNowPlaying(&resp), nil
}

// TopTracks returns up to limit of the user's top tracks, from the first
// time range that has any. It never returns nil. When every window failed
// the last error is returned with the empty result; a rejected token stops
// the search at once.
func (c *Client) TopTracks(ctx context.Context, accessToken string, limit int) ([]Track, error) {
	limit = clampLimit(limit)

	var lastErr error
	for _, timeRange := range TimeRanges {
		tracks, err := c.topTracks(ctx, accessToken, timeRange, limit)
		c.record("top_tracks", err)

		if err != nil {
			if errors.Is(err, ErrUnauthorized) || ctx.Err() != nil {
				return []Track{}, err
			}
			lastErr = err
			continue
		}
		if len(tracks) > 0 {
			return tracks, nil
		}
	}

	return []Track{}, lastErr
}

func (c *Client) topTracks(ctx context.Context, accessToken, timeRange string, limit int) ([]Track, error) {
	params := url.Values{
		"time_range": {timeRange},
		"limit":      {strconv.Itoa(limit)},
	}

	body, err := c.get(ctx, accessToken, "/me/top/tracks", params)
	if errors.Is(err, ErrNothingPlaying) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching %s top tracks: %w", timeRange, err)
	}

	if err := validate(topTracksSchema, body); err != nil {
		return nil, fmt.Errorf("fetching %s top tracks: %w", timeRange, err)
	}

	var resp topTracksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	tracks := convertTopTracks(&resp)
	if len(tracks) > limit {
		tracks = tracks[:limit]
	}
	return tracks, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultTopTracksLimit
	case limit > maxTopTracksLimit:
		return maxTopTracksLimit
	default:
		return limit
	}
}
