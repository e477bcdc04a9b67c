// Package disgovoice connects disgo's voice gateway events to soundlink
// players. A *bot.Client already satisfies player.VoiceLayer, so only the
// inbound direction needs an adapter.
package disgovoice

import (
	"context"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/soundlink/player"
)

var _ player.VoiceLayer = (*bot.Client)(nil)

// Router receives the bot's voice credentials. *node.Registry and
// *node.Node implement it.
type Router interface {
	OnVoiceStateUpdate(ctx context.Context, guildID snowflake.ID, channelID *snowflake.ID, sessionID string) error
	OnVoiceServerUpdate(ctx context.Context, guildID snowflake.ID, token string, endpoint string) error
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithUserID fixes the bot user id instead of reading it from the client.
func WithUserID(id snowflake.ID) Option {
	return func(a *Adapter) { a.userID = id }
}

// WithTimeout bounds how long forwarding one event may take. Default 5s.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// Adapter forwards the bot's own voice events to a Router.
type Adapter struct {
	router  Router
	userID  snowflake.ID
	timeout time.Duration
}

// New creates an adapter.
func New(router Router, opts ...Option) *Adapter {
	a := &Adapter{router: router, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ConfigOpts returns the listener options to pass to disgo.New.
func (a *Adapter) ConfigOpts() []bot.ConfigOpt {
	return []bot.ConfigOpt{
		bot.WithEventListenerFunc(a.OnGuildVoiceStateUpdate),
		bot.WithEventListenerFunc(a.OnVoiceServerUpdate),
	}
}

// OnGuildVoiceStateUpdate is a disgo listener.
func (a *Adapter) OnGuildVoiceStateUpdate(e *events.GuildVoiceStateUpdate) {
	self := a.userID
	if self == 0 {
		self = e.Client().ID()
	}
	a.HandleVoiceState(self, e.VoiceState)
}

// OnVoiceServerUpdate is a disgo listener.
func (a *Adapter) OnVoiceServerUpdate(e *events.VoiceServerUpdate) {
	a.HandleVoiceServer(e.EventVoiceServerUpdate)
}

// HandleVoiceState forwards state when it belongs to self.
func (a *Adapter) HandleVoiceState(self snowflake.ID, state discord.VoiceState) {
	if state.UserID != self {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.router.OnVoiceStateUpdate(ctx, state.GuildID, state.ChannelID, state.SessionID); err != nil {
		zlog.Warn().Err(err).Msgf("failed to forward voice state: guild=%s", state.GuildID)
	}
}

// HandleVoiceServer forwards voice server credentials. Updates without an
// endpoint mean the voice server is being reallocated and are skipped.
func (a *Adapter) HandleVoiceServer(update gateway.EventVoiceServerUpdate) {
	if update.Endpoint == nil || *update.Endpoint == "" {
		zlog.Debug().Msgf("voice server update without endpoint: guild=%s", update.GuildID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.router.OnVoiceServerUpdate(ctx, update.GuildID, update.Token, *update.Endpoint); err != nil {
		zlog.Warn().Err(err).Msgf("failed to forward voice server: guild=%s", update.GuildID)
	}
}
