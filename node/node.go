// Package node ties a node link, its REST client, the search client and the
// per-guild players together, and provides a Registry for hosts that use
// several nodes.
package node

import (
	"cmp"
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/soundlink/event"
	"github.com/osa030/soundlink/filter"
	"github.com/osa030/soundlink/link"
	"github.com/osa030/soundlink/player"
	"github.com/osa030/soundlink/protocol"
	"github.com/osa030/soundlink/rest"
	"github.com/osa030/soundlink/search"
	"github.com/osa030/soundlink/track"
)

// PlayerSettings are applied to every player the node creates.
type PlayerSettings struct {
	ConnectTimeout  time.Duration
	IdleTimeout     time.Duration
	SelfDeaf        bool
	DisableAutoplay bool
	Volume          int
	MaxQueueSize    int
	Filters         *filter.Sink
}

// Config holds the settings of one node.
type Config struct {
	Link   link.Config
	Region string
	Player PlayerSettings
}

type options struct {
	events     *event.Bus
	catalog    search.Catalog
	voice      player.VoiceLayer
	httpClient *http.Client
}

// Option configures a Node.
type Option func(*options)

// WithEvents publishes node and player events to bus instead of a bus owned
// by the node.
func WithEvents(bus *event.Bus) Option {
	return func(o *options) { o.events = bus }
}

// WithCatalog enables catalog search and resolution.
func WithCatalog(c search.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// WithVoice sets the voice layer players use to join channels.
func WithVoice(v player.VoiceLayer) Option {
	return func(o *options) { o.voice = v }
}

// WithHTTPClient sets the HTTP client of the REST client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// Node is one remote audio node and the players placed on it.
type Node struct {
	cfg       Config
	link      *link.Conn
	rest      *rest.Client
	search    *search.Client
	events    *event.Bus
	ownEvents bool
	voice     player.VoiceLayer

	stats atomic.Pointer[protocol.Stats]

	mu      sync.RWMutex
	players map[snowflake.ID]*player.Player
	closed  bool
}

// New creates a node. It does not connect; call Connect.
func New(cfg Config, opts ...Option) (*Node, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	n := &Node{
		cfg:     cfg,
		events:  o.events,
		voice:   o.voice,
		players: make(map[snowflake.ID]*player.Player),
	}
	if n.events == nil {
		n.events = event.NewBus()
		n.ownEvents = true
	}

	conn, err := link.New(cfg.Link, link.Handlers{
		OnStats:      n.onStats,
		OnReady:      n.onReady,
		OnDisconnect: n.onDisconnect,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "node %q", cfg.Link.Name)
	}
	n.link = conn
	n.cfg.Link = conn.Config()

	n.rest = rest.New(n.cfg.Link.BaseURL(), n.cfg.Link.Password)
	if o.httpClient != nil {
		n.rest.HTTPClient = o.httpClient
	}
	n.search = search.New(n.rest, o.catalog)
	return n, nil
}

// Name returns the node name.
func (n *Node) Name() string {
	return n.cfg.Link.Name
}

// Region returns the node's region, possibly empty.
func (n *Node) Region() string {
	return n.cfg.Region
}

// Connected reports whether the link is ready.
func (n *Node) Connected() bool {
	return n.link.Ready()
}

// Link returns the node's link.
func (n *Node) Link() *link.Conn {
	return n.link
}

// REST returns the node's REST client.
func (n *Node) REST() *rest.Client {
	return n.rest
}

// Events returns the bus the node publishes to.
func (n *Node) Events() *event.Bus {
	return n.events
}

// Stats returns the latest stats report. ok is false until the first report.
func (n *Node) Stats() (stats protocol.Stats, ok bool) {
	s := n.stats.Load()
	if s == nil {
		return protocol.Stats{}, false
	}
	return *s, true
}

// Penalty returns the load score of the latest stats report.
func (n *Node) Penalty() float64 {
	return n.stats.Load().Penalty()
}

// Connect opens the link.
func (n *Node) Connect(ctx context.Context) error {
	if err := n.link.Open(ctx); err != nil {
		return errors.Wrapf(err, "node %q", n.Name())
	}
	return nil
}

// Close destroys every player and closes the link.
func (n *Node) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	players := make([]*player.Player, 0, len(n.players))
	for _, p := range n.players {
		players = append(players, p)
	}
	n.mu.Unlock()

	var errs error
	for _, p := range players {
		if err := p.Destroy(ctx); err != nil && !errors.Is(err, player.ErrPlayerDestroyed) {
			errs = errors.CombineErrors(errs, err)
		}
	}
	errs = errors.CombineErrors(errs, n.link.Close())
	if n.ownEvents {
		n.events.Close()
	}
	zlog.Info().Msgf("node closed: node=%s players=%d", n.Name(), len(players))
	return errs
}

// Player returns the guild's player, creating it when needed. It fails with
// ErrNodeClosed after Close.
func (n *Node) Player(guildID snowflake.ID) (*player.Player, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, errors.Wrapf(ErrNodeClosed, "node %q", n.Name())
	}
	if p, ok := n.players[guildID]; ok {
		return p, nil
	}

	s := n.cfg.Player
	p := player.New(player.Config{
		GuildID:         guildID,
		Link:            n.link,
		Voice:           n.voice,
		Resolver:        n.search,
		Events:          n.events,
		ConnectTimeout:  s.ConnectTimeout,
		IdleTimeout:     s.IdleTimeout,
		SelfDeaf:        s.SelfDeaf,
		DisableAutoplay: s.DisableAutoplay,
		Volume:          s.Volume,
		Filters:         s.Filters,
		MaxQueueSize:    s.MaxQueueSize,
		OnDestroy:       n.forget,
	})
	n.players[guildID] = p
	zlog.Debug().Msgf("player created: node=%s guild=%s", n.Name(), guildID)
	return p, nil
}

// ExistingPlayer returns the guild's player if there is one.
func (n *Node) ExistingPlayer(guildID snowflake.ID) (*player.Player, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	p, ok := n.players[guildID]
	return p, ok
}

// DestroyPlayer destroys the guild's player. It is a no-op without one.
func (n *Node) DestroyPlayer(ctx context.Context, guildID snowflake.ID) error {
	p, ok := n.ExistingPlayer(guildID)
	if !ok {
		return nil
	}
	return p.Destroy(ctx)
}

// Players returns the node's players ordered by guild.
func (n *Node) Players() []*player.Player {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*player.Player, 0, len(n.players))
	for _, p := range n.players {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *player.Player) int {
		return cmp.Compare(a.GuildID(), b.GuildID())
	})
	return out
}

func (n *Node) forget(guildID snowflake.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if p, ok := n.players[guildID]; ok && p.Destroyed() {
		delete(n.players, guildID)
	}
}

// Search resolves a query through the node and the catalog.
func (n *Node) Search(ctx context.Context, query string, opts search.Options) (search.Result, error) {
	return n.search.Search(ctx, query, opts)
}

// Resolve finds a playable track for a catalog track.
func (n *Node) Resolve(ctx context.Context, t track.Track) (track.Track, error) {
	return n.search.Resolve(ctx, t)
}

// OnVoiceStateUpdate forwards the bot's voice state to the guild's player.
// Guilds without a player are ignored.
func (n *Node) OnVoiceStateUpdate(ctx context.Context, guildID snowflake.ID, channelID *snowflake.ID, sessionID string) error {
	p, ok := n.ExistingPlayer(guildID)
	if !ok {
		return nil
	}
	return p.OnVoiceStateUpdate(ctx, channelID, sessionID)
}

// OnVoiceServerUpdate forwards voice server credentials to the guild's
// player. Guilds without a player are ignored.
func (n *Node) OnVoiceServerUpdate(ctx context.Context, guildID snowflake.ID, token string, endpoint string) error {
	p, ok := n.ExistingPlayer(guildID)
	if !ok {
		return nil
	}
	return p.OnVoiceServerUpdate(ctx, token, endpoint)
}

func (n *Node) onStats(stats *protocol.Stats) {
	n.stats.Store(stats)
	n.events.Publish(event.NodeStatsUpdate{Node: n.Name(), Stats: *stats})
}

func (n *Node) onReady(reconnected bool) {
	n.events.Publish(event.NodeReady{Node: n.Name(), Reconnected: reconnected})
}

func (n *Node) onDisconnect(err error, fatal bool) {
	n.events.Publish(event.NodeDisconnected{Node: n.Name(), Err: err, Fatal: fatal})
}
