package spotify

import "strings"

// Defaults for fields the API may leave out.
const (
	UnknownArtist = "Unknown"
	UntitledTrack = "Untitled"
)

// Track is a summary of a single track.
type Track struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"` // first credited artist only
	DurationMs int    `json:"duration_ms"`
	ImageURL   string `json:"image_url,omitempty"` // first album image, empty if none
}

// NowPlaying is what the user is listening to right now.
// Track is nil when the API reports playback without an item
// (for example during an ad); ProgressMs is still set.
type NowPlaying struct {
	ProgressMs int    `json:"progress_ms"`
	Track      *Track `json:"track"`
}

// Profile identifies the authenticated user.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// currentlyPlayingResponse is the JSON body of GET /me/player/currently-playing.
type currentlyPlayingResponse struct {
	ProgressMs *int       `json:"progress_ms"`
	Item       *trackJSON `json:"item"`
}

// topTracksResponse is the JSON body of GET /me/top/tracks.
type topTracksResponse struct {
	Items []*trackJSON `json:"items"`
}

type trackJSON struct {
	Name       *string `json:"name"`
	DurationMs *int    `json:"duration_ms"`
	Artists    []struct {
		Name *string `json:"name"`
	} `json:"artists"`
	Album *struct {
		Images []struct {
			URL *string `json:"url"`
		} `json:"images"`
	} `json:"album"`
}

// convertTrack applies the field defaults to a decoded item.
func convertTrack(t *trackJSON) Track {
	track := Track{
		Title:  UntitledTrack,
		Artist: UnknownArtist,
	}

	if t.Name != nil && strings.TrimSpace(*t.Name) != "" {
		track.Title = *t.Name
	}
	if t.DurationMs != nil && *t.DurationMs > 0 {
		track.DurationMs = *t.DurationMs
	}
	if len(t.Artists) > 0 && t.Artists[0].Name != nil && strings.TrimSpace(*t.Artists[0].Name) != "" {
		track.Artist = *t.Artists[0].Name
	}
	if t.Album != nil && len(t.Album.Images) > 0 && t.Album.Images[0].URL != nil {
		track.ImageURL = *t.Album.Images[0].URL
	}

	return track
}

func convertNowPlaying(r *currentlyPlayingResponse) *NowPlaying {
	np := &NowPlaying{}
	if r.ProgressMs != nil && *r.ProgressMs > 0 {
		np.ProgressMs = *r.ProgressMs
	}
	if r.Item != nil {
		track := convertTrack(r.Item)
		np.Track = &track
	}
	return np
}

func convertTopTracks(r *topTracksResponse) []Track {
	tracks := make([]Track, 0, len(r.Items))
	for _, item := range r.Items {
		if item == nil {
			continue
		}
		tracks = append(tracks, convertTrack(item))
	}
	return tracks
}
