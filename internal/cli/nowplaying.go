package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/justestif/go-spotify-now-playing/internal/spotify"
)

func newNowPlayingCommand(opts *options) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "now-playing",
		Short: "Show the track that is playing right now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, opts.logger, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if watch {
				return watchNowPlaying(ctx, a, opts, cmd.OutOrStdout())
			}
			return showNowPlaying(ctx, a, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep polling and print every change")
	return cmd
}

func showNowPlaying(ctx context.Context, a *app, opts *options, w io.Writer) error {
	token, err := a.accessToken(ctx)
	if err != nil {
		return err
	}

	np, err := a.spotify.CurrentlyPlaying(ctx, token)
	if errors.Is(err, spotify.ErrNothingPlaying) {
		np, err = nil, nil
	}
	if err != nil {
		return fmt.Errorf("querying playback: %w", err)
	}

	return printNowPlaying(w, opts.jsonOutput, np)
}

func watchNowPlaying(ctx context.Context, a *app, opts *options, w io.Writer) error {
	if _, err := a.accessToken(ctx); err != nil {
		return err
	}

	poller := spotify.NewPoller(a.spotify, a.refresher, a.state, spotify.PollerConfig{
		Interval:   opts.cfg.Poll.Interval,
		MaxBackoff: opts.cfg.Poll.MaxBackoff,
		Logger:     opts.logger.Named("poller"),
		Metrics:    a.metrics,
	})

	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	var last string
	for {
		select {
		case err := <-done:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case u := <-poller.Updates():
			var line string
			switch u.Outcome {
			case spotify.OutcomeOK:
				line = formatNowPlayingHuman(u.NowPlaying)
			case spotify.OutcomeEmpty:
				line = formatNowPlayingHuman(nil)
			default:
				// Failures are logged by the poller; keep showing the last state.
				continue
			}
			if opts.jsonOutput {
				if err := writeJSON(w, u.NowPlaying); err != nil {
					return err
				}
				continue
			}
			if line != last {
				fmt.Fprintln(w, line)
				last = line
			}
		}
	}
}

func printNowPlaying(w io.Writer, jsonOutput bool, np *spotify.NowPlaying) error {
	if jsonOutput {
		return writeJSON(w, np)
	}
	_, err := fmt.Fprintln(w, formatNowPlayingHuman(np))
	return err
}
