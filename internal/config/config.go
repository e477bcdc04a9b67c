// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/disgoorg/snowflake/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/osa030/soundlink/catalog"
	"github.com/osa030/soundlink/filter"
	"github.com/osa030/soundlink/internal/logger"
	"github.com/osa030/soundlink/link"
	"github.com/osa030/soundlink/node"
)

// SourceSpotify is the catalog source type for the Spotify Web API.
const SourceSpotify = "spotify"

// Config represents the application configuration.
type Config struct {
	Bot     BotConfig               `yaml:"bot"`
	Nodes   []NodeConfig            `yaml:"nodes" validate:"required,min=1,unique=Name,dive"`
	Player  PlayerConfig            `yaml:"player"`
	Filters map[string]FilterConfig `yaml:"filters"`
	Catalog CatalogConfig           `yaml:"catalog"`
	Log     LogConfig               `yaml:"log"`
}

// BotConfig identifies the bot the nodes play for.
type BotConfig struct {
	UserID snowflake.ID `yaml:"user_id" validate:"required"`
}

// NodeConfig represents a single node.
type NodeConfig struct {
	Name          string        `yaml:"name" validate:"required"`
	Host          string        `yaml:"host" validate:"required"`
	Port          int           `yaml:"port" default:"3030" validate:"gte=1,lte=65535"`
	Password      string        `yaml:"password"`
	Secure        bool          `yaml:"secure"`
	Region        string        `yaml:"region"`
	Resume        bool          `yaml:"resume"`
	ResumeTimeout time.Duration `yaml:"resume_timeout" default:"1m"`
	ReconnectMax  time.Duration `yaml:"reconnect_max" default:"1m"`
	MaxReconnects int           `yaml:"max_reconnects" validate:"gte=0"`
}

// PlayerConfig represents settings applied to every player.
type PlayerConfig struct {
	ConnectTimeout  time.Duration `yaml:"connect_timeout" default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	SelfDeaf        bool          `yaml:"self_deaf"`
	DisableAutoplay bool          `yaml:"disable_autoplay"`
	Volume          int           `yaml:"volume" default:"100" validate:"gte=0,lte=1000"`
	MaxQueueSize    int           `yaml:"max_queue_size" validate:"gte=0"`
}

// FilterConfig represents a default filter.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// CatalogConfig represents the catalog sources.
type CatalogConfig struct {
	Sources []SourceConfig `yaml:"sources" validate:"dive"`
}

// SourceConfig represents a single catalog source.
type SourceConfig struct {
	Type     string         `yaml:"type" validate:"required,oneof=spotify"`
	Settings map[string]any `yaml:"settings"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout" validate:"oneof=stdout stderr file json"`
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	File   string `yaml:"file" validate:"required_if=Output file"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses YAML configuration, applies environment overrides and
// defaults, and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() error {
	if v := os.Getenv("BOT_USER_ID"); v != "" {
		id, err := snowflake.Parse(v)
		if err != nil {
			return errors.Wrap(err, "invalid BOT_USER_ID")
		}
		c.Bot.UserID = id
	}
	if v := os.Getenv("NODE_PASSWORD"); v != "" {
		for i := range c.Nodes {
			c.Nodes[i].Password = v
		}
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.spotifySource().Settings["client_id"] = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.spotifySource().Settings["client_secret"] = v
	}
	return nil
}

// spotifySource returns the Spotify source, adding one when missing.
func (c *Config) spotifySource() *SourceConfig {
	i := slices.IndexFunc(c.Catalog.Sources, func(s SourceConfig) bool {
		return s.Type == SourceSpotify
	})
	if i < 0 {
		c.Catalog.Sources = append(c.Catalog.Sources, SourceConfig{Type: SourceSpotify})
		i = len(c.Catalog.Sources) - 1
	}
	src := &c.Catalog.Sources[i]
	if src.Settings == nil {
		src.Settings = make(map[string]any)
	}
	return src
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if _, err := c.DefaultFilters(); err != nil {
		return err
	}
	if _, _, err := c.SpotifyConfig(); err != nil {
		return err
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(name string) bool {
	if f, ok := c.Filters[name]; ok {
		return f.Enabled
	}
	return false
}

// DefaultFilters builds the sink of enabled filters.
func (c *Config) DefaultFilters() (*filter.Sink, error) {
	sink := filter.NewSink()
	for name, f := range c.Filters {
		if !f.Enabled {
			continue
		}
		decoded, err := filter.Decode(name, f.Settings)
		if err != nil {
			return nil, errors.Wrapf(err, "filter %s", name)
		}
		sink.Set(decoded)
	}
	return sink, nil
}

// SpotifyConfig decodes the Spotify source settings. ok is false when no
// Spotify source is configured.
func (c *Config) SpotifyConfig() (cfg catalog.Config, ok bool, err error) {
	i := slices.IndexFunc(c.Catalog.Sources, func(s SourceConfig) bool {
		return s.Type == SourceSpotify
	})
	if i < 0 {
		return catalog.Config{}, false, nil
	}

	if err := decodeSettings(c.Catalog.Sources[i].Settings, &cfg); err != nil {
		return catalog.Config{}, false, errors.Wrap(err, "failed to decode spotify settings")
	}
	if err := defaults.Set(&cfg); err != nil {
		return catalog.Config{}, false, errors.Wrap(err, "failed to set spotify defaults")
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return catalog.Config{}, false, errors.Wrap(err, "invalid spotify settings")
	}
	return cfg, true, nil
}

// NodeConfigs converts the node entries for node.New.
func (c *Config) NodeConfigs() ([]node.Config, error) {
	filters, err := c.DefaultFilters()
	if err != nil {
		return nil, err
	}

	out := make([]node.Config, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		lc := link.Config{
			Name:                 n.Name,
			Host:                 n.Host,
			Port:                 n.Port,
			Password:             n.Password,
			Secure:               n.Secure,
			UserID:               c.Bot.UserID,
			ReconnectMax:         n.ReconnectMax,
			MaxReconnectAttempts: n.MaxReconnects,
		}
		if n.Resume {
			lc.ResumeKey = uuid.NewString()
			lc.ResumeTimeout = n.ResumeTimeout
		}
		out = append(out, node.Config{
			Link:   lc,
			Region: n.Region,
			Player: node.PlayerSettings{
				ConnectTimeout:  c.Player.ConnectTimeout,
				IdleTimeout:     c.Player.IdleTimeout,
				SelfDeaf:        c.Player.SelfDeaf,
				DisableAutoplay: c.Player.DisableAutoplay,
				Volume:          c.Player.Volume,
				MaxQueueSize:    c.Player.MaxQueueSize,
				Filters:         filters,
			},
		})
	}
	return out, nil
}

// Logger returns the logger configuration.
func (c *Config) Logger() logger.Config {
	return logger.Config{Output: c.Log.Output, Level: c.Log.Level, File: c.Log.File}
}

func decodeSettings(settings map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(settings)
}
