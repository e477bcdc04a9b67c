// Package link maintains the websocket connection to a single node: it
// authenticates, dispatches inbound frames to sessions by guild, writes
// outbound frames in order and reconnects with backoff when the transport
// drops.
package link

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/disgoorg/snowflake/v2"
	"github.com/go-playground/validator/v10"
)

// Config holds connection settings for one node.
type Config struct {
	Name                  string        `validate:"required"`
	Host                  string        `validate:"required"`
	Port                  int           `default:"3030" validate:"gte=1,lte=65535"`
	Password              string
	Secure                bool
	UserID                snowflake.ID  `validate:"required"`
	ClientName            string        `default:"soundlink"`
	Path                  string        `default:"/magma"`
	HandshakeTimeout      time.Duration `default:"10s"`
	ReconnectBase         time.Duration `default:"1s"`
	ReconnectMax          time.Duration `default:"1m"`
	MaxReconnectAttempts  int           `validate:"gte=0"` // 0 retries forever
	OutboundBuffer        int           `default:"64" validate:"gte=1"`
	ResumeKey             string
	ResumeTimeout         time.Duration `default:"1m"`
	DispatchBufferTimeout time.Duration
}

func (c *Config) normalize() error {
	if err := defaults.Set(c); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid link config")
	}
	if c.ReconnectMax < c.ReconnectBase {
		c.ReconnectMax = c.ReconnectBase
	}
	return nil
}

// URL returns the websocket URL of the node.
func (c Config) URL() string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, c.Host, c.Port, c.Path)
}

// BaseURL returns the HTTP URL of the node's REST endpoints.
func (c Config) BaseURL() string {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}
