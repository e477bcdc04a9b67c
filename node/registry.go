package node

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/soundlink/event"
	"github.com/osa030/soundlink/player"
	"github.com/osa030/soundlink/search"
)

// Errors
var (
	ErrNodeExists   = errors.New("node already exists")
	ErrNodeNotFound = errors.New("node not found")
	ErrNoNodes      = errors.New("no connected nodes")
	ErrNodeClosed   = errors.New("node closed")
)

// Registry owns a set of nodes and places players on them.
type Registry struct {
	opts   []Option
	events *event.Bus

	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewRegistry creates a registry. opts are applied to every node it adds;
// all nodes publish to the registry's bus.
func NewRegistry(opts ...Option) *Registry {
	bus := event.NewBus()
	return &Registry{
		opts:   append(slices.Clone(opts), WithEvents(bus)),
		events: bus,
		nodes:  make(map[string]*Node),
	}
}

// Events returns the bus every node publishes to.
func (r *Registry) Events() *event.Bus {
	return r.events
}

// Add creates a node, connects it and adds it to the registry.
func (r *Registry) Add(ctx context.Context, cfg Config) (*Node, error) {
	name := cfg.Link.Name
	r.mu.RLock()
	_, exists := r.nodes[name]
	r.mu.RUnlock()
	if exists {
		return nil, errors.Wrapf(ErrNodeExists, "name=%s", name)
	}

	n, err := New(cfg, r.opts...)
	if err != nil {
		return nil, err
	}
	if err := n.Connect(ctx); err != nil {
		return nil, errors.CombineErrors(err, n.Close(ctx))
	}

	r.mu.Lock()
	if _, exists := r.nodes[name]; exists {
		r.mu.Unlock()
		_ = n.Close(ctx)
		return nil, errors.Wrapf(ErrNodeExists, "name=%s", name)
	}
	r.nodes[name] = n
	r.mu.Unlock()

	zlog.Info().Msgf("node added: node=%s region=%s", name, cfg.Region)
	return n, nil
}

// Get returns a node by name.
func (r *Registry) Get(name string) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[name]
	return n, ok
}

// Remove closes a node and removes it from the registry.
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	n, ok := r.nodes[name]
	delete(r.nodes, name)
	r.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrNodeNotFound, "name=%s", name)
	}
	zlog.Info().Msgf("node removed: node=%s", name)
	return n.Close(ctx)
}

// Nodes returns every node ordered by name.
func (r *Registry) Nodes() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := lo.Values(r.nodes)
	slices.SortFunc(out, func(a, b *Node) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return out
}

// Best returns the connected node with the lowest penalty. Nodes in region
// are preferred when any of them is connected.
func (r *Registry) Best(region string) (*Node, error) {
	connected := lo.Filter(r.Nodes(), func(n *Node, _ int) bool {
		return n.Connected()
	})
	if len(connected) == 0 {
		return nil, ErrNoNodes
	}

	candidates := connected
	if region != "" {
		local := lo.Filter(connected, func(n *Node, _ int) bool {
			return strings.EqualFold(n.Region(), region)
		})
		if len(local) > 0 {
			candidates = local
		}
	}
	return lo.MinBy(candidates, func(a, b *Node) bool {
		return a.Penalty() < b.Penalty()
	}), nil
}

// FindPlayer returns the guild's player on whichever node holds it.
func (r *Registry) FindPlayer(guildID snowflake.ID) (*player.Player, bool) {
	n, ok := r.owner(guildID)
	if !ok {
		return nil, false
	}
	return n.ExistingPlayer(guildID)
}

// Player returns the guild's existing player or creates one on the best
// node for region.
func (r *Registry) Player(guildID snowflake.ID, region string) (*player.Player, error) {
	if p, ok := r.FindPlayer(guildID); ok {
		return p, nil
	}
	n, err := r.Best(region)
	if err != nil {
		return nil, err
	}
	return n.Player(guildID)
}

func (r *Registry) owner(guildID snowflake.ID) (*Node, bool) {
	return lo.Find(r.Nodes(), func(n *Node) bool {
		_, ok := n.ExistingPlayer(guildID)
		return ok
	})
}

// OnVoiceStateUpdate routes the bot's voice state to the node holding the
// guild's player.
func (r *Registry) OnVoiceStateUpdate(ctx context.Context, guildID snowflake.ID, channelID *snowflake.ID, sessionID string) error {
	n, ok := r.owner(guildID)
	if !ok {
		return nil
	}
	return n.OnVoiceStateUpdate(ctx, guildID, channelID, sessionID)
}

// OnVoiceServerUpdate routes voice server credentials to the node holding
// the guild's player.
func (r *Registry) OnVoiceServerUpdate(ctx context.Context, guildID snowflake.ID, token string, endpoint string) error {
	n, ok := r.owner(guildID)
	if !ok {
		return nil
	}
	return n.OnVoiceServerUpdate(ctx, guildID, token, endpoint)
}

// Search runs a query on the best node.
func (r *Registry) Search(ctx context.Context, query string, opts search.Options) (search.Result, error) {
	n, err := r.Best("")
	if err != nil {
		return search.Result{}, err
	}
	return n.Search(ctx, query, opts)
}

// Close closes every node and the event bus.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	nodes := lo.Values(r.nodes)
	r.nodes = make(map[string]*Node)
	r.mu.Unlock()

	var errs error
	for _, n := range nodes {
		errs = errors.CombineErrors(errs, n.Close(ctx))
	}
	r.events.Close()
	return errs
}
