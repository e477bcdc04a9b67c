package player

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/soundlink/event"
	"github.com/osa030/soundlink/filter"
	"github.com/osa030/soundlink/link"
	"github.com/osa030/soundlink/protocol"
	"github.com/osa030/soundlink/track"
)

// Volume bounds in node units. 100 is unchanged.
const (
	MinVolume     = 0
	MaxVolume     = 1000
	DefaultVolume = 100
)

// Link sends frames to the node and routes inbound frames back.
// *link.Conn implements it.
type Link interface {
	Send(ctx context.Context, frame protocol.Outbound) error
	Register(guildID snowflake.ID, s link.Session)
	Unregister(guildID snowflake.ID)
}

// VoiceLayer is the bot framework's voice gateway. A nil channel leaves the
// current voice channel.
type VoiceLayer interface {
	UpdateVoiceState(ctx context.Context, guildID snowflake.ID, channelID *snowflake.ID, selfMute bool, selfDeaf bool) error
}

// Resolver turns a catalog track into a playable node track.
type Resolver interface {
	Resolve(ctx context.Context, t track.Track) (track.Track, error)
}

// Publisher receives player events. *event.Bus implements it.
type Publisher interface {
	Publish(e event.Event)
}

// Config holds player dependencies and settings.
type Config struct {
	GuildID  snowflake.ID
	Link     Link
	Voice    VoiceLayer // optional
	Resolver Resolver   // optional
	Events   Publisher  // optional

	ConnectTimeout  time.Duration // wait for the node's voice acknowledgement, default 10s
	IdleTimeout     time.Duration // destroy after the queue runs dry, 0 disables
	SelfDeaf        bool
	DisableAutoplay bool
	Volume          int          // initial volume, default 100
	Filters         *filter.Sink // initial filters
	MaxQueueSize    int          // 0 is unlimited

	// OnDestroy is called once after Destroy.
	OnDestroy func(guildID snowflake.ID)
	// Clock overrides time.Now.
	Clock func() time.Time
}

func (c *Config) normalize() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.Volume == 0 {
		c.Volume = DefaultVolume
	}
	c.Volume = clampVolume(c.Volume)
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// PlayOptions control a single Play call.
type PlayOptions struct {
	Start   time.Duration // start offset, ignored unless inside the track
	End     time.Duration // stop offset, ignored unless inside the track
	Replace bool          // replace a playing track instead of failing
}

// DefaultPlayOptions replaces whatever is playing.
func DefaultPlayOptions() PlayOptions {
	return PlayOptions{Replace: true}
}

func clampVolume(v int) int {
	return min(max(v, MinVolume), MaxVolume)
}
