package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTopCommand(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "top",
		Short: "List your top tracks",
		Long: `List your most played tracks, trying the last four weeks first and
falling back to the last six months and then all time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, opts.logger, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if limit <= 0 {
				limit = opts.cfg.TopTracks.Limit
			}

			token, err := a.accessToken(ctx)
			if err != nil {
				return err
			}

			tracks, err := a.spotify.TopTracks(ctx, token, limit)
			if err != nil {
				return fmt.Errorf("querying top tracks: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, tracks)
			}
			_, err = fmt.Fprintln(out, formatTracksHuman(tracks))
			return err
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of tracks, 1-50 (default top_tracks.limit)")
	return cmd
}
