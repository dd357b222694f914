package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/justestif/go-spotify-now-playing/internal/spotify"
)

// formatDuration renders milliseconds as m:ss.
func formatDuration(ms int) string {
	d := time.Duration(ms) * time.Millisecond
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

func formatNowPlayingHuman(np *spotify.NowPlaying) string {
	if np == nil {
		return "Nothing playing."
	}
	if np.Track == nil {
		return fmt.Sprintf("Playing something without track details (%s in).", formatDuration(np.ProgressMs))
	}

	t := np.Track
	return fmt.Sprintf("%s - %s  [%s / %s]", t.Title, t.Artist, formatDuration(np.ProgressMs), formatDuration(t.DurationMs))
}

func formatTracksHuman(tracks []spotify.Track) string {
	if len(tracks) == 0 {
		return "No top tracks yet."
	}

	var b strings.Builder
	width := len(fmt.Sprint(len(tracks)))
	for i, t := range tracks {
		fmt.Fprintf(&b, "%*d. %s - %s (%s)\n", width, i+1, t.Title, t.Artist, formatDuration(t.DurationMs))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
