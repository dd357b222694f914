// Package cli implements the spotify-now-playing command line.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/justestif/go-spotify-now-playing/internal/config"
	"github.com/justestif/go-spotify-now-playing/internal/logger"
)

// options holds global flags and what PersistentPreRunE derives from them.
type options struct {
	configFile string
	logLevel   string
	jsonOutput bool

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "spotify-now-playing",
		Short: "Show what you are listening to on Spotify",
		Long: `spotify-now-playing logs in to Spotify with the authorization code flow
and PKCE, keeps the session refreshed, and reports current playback and
top tracks on the command line or over a small HTTP API.

Environment Variables:
  SPOTIFY_ID                     Spotify app client ID
  SPOTIFY_NP_<SECTION>_<KEY>     Any config key, e.g. SPOTIFY_NP_STORE_BACKEND=keyring`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			opts.cfg = cfg
			opts.logger = logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Config file (default: ./config.yaml or the user config dir)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output JSON instead of human-readable text")

	cmd.AddCommand(
		newServeCommand(opts),
		newLoginCommand(opts),
		newNowPlayingCommand(opts),
		newTopCommand(opts),
		newLogoutCommand(opts),
	)

	return cmd
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return NewRootCommand().ExecuteContext(ctx)
}
