// Package config loads settings from defaults, an optional config file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "SPOTIFY_NP"
	appDir    = "spotify-now-playing"
)

// ErrMissingClientID is returned when no Spotify client ID is configured.
var ErrMissingClientID = errors.New("missing Spotify client ID: set SPOTIFY_NP_SPOTIFY_CLIENT_ID or SPOTIFY_ID")

// Config is the complete application configuration.
type Config struct {
	Spotify   SpotifyConfig   `mapstructure:"spotify"`
	Server    ServerConfig    `mapstructure:"server"`
	Poll      PollConfig      `mapstructure:"poll"`
	TopTracks TopTracksConfig `mapstructure:"top_tracks"`
	Store     StoreConfig     `mapstructure:"store"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
}

// SpotifyConfig identifies the app to Spotify and locates its endpoints.
type SpotifyConfig struct {
	ClientID    string   `mapstructure:"client_id"`
	RedirectURI string   `mapstructure:"redirect_uri"`
	Scopes      []string `mapstructure:"scopes"`
	TokenURL    string   `mapstructure:"token_url"`
	APIURL      string   `mapstructure:"api_url"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// PollConfig configures the now-playing poller.
type PollConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
}

// TopTracksConfig configures top-tracks queries.
type TopTracksConfig struct {
	Limit    int           `mapstructure:"limit"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// StoreConfig selects the durable session store.
type StoreConfig struct {
	Backend        string `mapstructure:"backend"`
	Path           string `mapstructure:"path"`
	KeyringService string `mapstructure:"keyring_service"`
	RedisAddr      string `mapstructure:"redis_addr"`
	RedisKey       string `mapstructure:"redis_key"`
	DatabaseURL    string `mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HTTPConfig configures outbound HTTP.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads the configuration. When configFile is empty, config.yaml is
// looked up in the working directory and the user config directory; a
// missing file is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, appDir))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The bare SPOTIFY_ID variable is accepted as well.
	if err := v.BindEnv("spotify.client_id", envPrefix+"_SPOTIFY_CLIENT_ID", "SPOTIFY_ID"); err != nil {
		return nil, fmt.Errorf("binding client ID environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings needed to talk to Spotify.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Spotify.ClientID) == "" {
		return ErrMissingClientID
	}
	if c.Spotify.RedirectURI == "" {
		return errors.New("spotify.redirect_uri must not be empty")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive, got %s", c.Poll.Interval)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("spotify.client_id", "")
	v.SetDefault("spotify.redirect_uri", "http://127.0.0.1:8080/callback")
	v.SetDefault("spotify.scopes", []string{})
	v.SetDefault("spotify.token_url", "https://accounts.spotify.com/api/token")
	v.SetDefault("spotify.api_url", "https://api.spotify.com/v1")

	v.SetDefault("server.addr", "127.0.0.1:8080")

	v.SetDefault("poll.interval", 5*time.Second)
	v.SetDefault("poll.max_backoff", time.Minute)

	v.SetDefault("top_tracks.limit", 20)
	v.SetDefault("top_tracks.cache_ttl", 5*time.Minute)

	v.SetDefault("store.backend", "file")
	v.SetDefault("store.path", "")
	v.SetDefault("store.keyring_service", "spotify-now-playing")
	v.SetDefault("store.redis_addr", "127.0.0.1:6379")
	v.SetDefault("store.redis_key", "spotify-now-playing:session")
	v.SetDefault("store.database_url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("http.timeout", 10*time.Second)
}
