package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/justestif/go-spotify-now-playing/internal/auth"
)

func newLoginCommand(opts *options) *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Connect a Spotify account",
		Long: `Start the Spotify authorization flow and wait for the redirect on the
configured redirect URI. Any existing session is discarded first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var opener auth.Opener
			if !noBrowser {
				opener = auth.BrowserOpener
			}

			a, err := newApp(ctx, opts.cfg, opts.logger, opener)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			session, err := a.loopbackLogin(out).Run(ctx)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			name := "Spotify user"
			if profile, err := a.spotify.Profile(ctx, session.AccessToken); err == nil && profile.DisplayName != "" {
				name = profile.DisplayName
			}
			fmt.Fprintf(out, "Logged in as %s.\n", name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	return cmd
}
