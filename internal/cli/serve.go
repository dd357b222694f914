package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-spotify-now-playing/internal/spotify"
	"github.com/justestif/go-spotify-now-playing/internal/web"
)

func newServeCommand(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the now-playing poller",
		Long: `Serve the login flow, the JSON API and Prometheus metrics.

POST to /auth/login from a same-origin page and follow the redirect to
connect a Spotify account. While a session
exists the current playback is polled in the background and served from
/api/now-playing.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				opts.cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, opts *options) error {
	a, err := newApp(ctx, opts.cfg, opts.logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	poller := spotify.NewPoller(a.spotify, a.refresher, a.state, spotify.PollerConfig{
		Interval:   opts.cfg.Poll.Interval,
		MaxBackoff: opts.cfg.Poll.MaxBackoff,
		Logger:     opts.logger.Named("poller"),
		Metrics:    a.metrics,
	})

	handlers := web.NewHandlers(web.HandlersConfig{
		Launcher:    a.launcher,
		Callback:    a.callback,
		Sessions:    a.refresher,
		API:         a.spotify,
		Playback:    poller,
		TopLimit:    opts.cfg.TopTracks.Limit,
		TopCacheTTL: opts.cfg.TopTracks.CacheTTL,
		Logger:      opts.logger.Named("web"),
	})

	server := web.NewServer(web.ServerConfig{
		Addr:     opts.cfg.Server.Addr,
		Logger:   opts.logger.Named("http"),
		Gatherer: a.registry,
	}, handlers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})
	g.Go(func() error {
		if err := poller.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	err = g.Wait()
	opts.logger.Info("serve stopped", zap.Error(err))
	return err
}
