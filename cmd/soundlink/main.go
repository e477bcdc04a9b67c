// Package main provides the soundlink CLI for exercising nodes from a shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/soundlink/catalog"
	"github.com/osa030/soundlink/event"
	"github.com/osa030/soundlink/filter"
	"github.com/osa030/soundlink/internal/config"
	"github.com/osa030/soundlink/internal/logger"
	"github.com/osa030/soundlink/node"
	"github.com/osa030/soundlink/player"
	"github.com/osa030/soundlink/search"
	"github.com/osa030/soundlink/track"
	"github.com/osa030/soundlink/voice/disgovoice"
)

var (
	app        = kingpin.New("soundlink", "soundlink node client")
	configPath = app.Flag("config", "Path to config file").Default("config/soundlink.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// search command
	searchCmd      = app.Command("search", "Search tracks through the best node")
	searchQuery    = searchCmd.Arg("query", "Text, URL or catalog reference").Required().Strings()
	searchSource   = searchCmd.Flag("source", "Search source for free text").Default("youtube").Enum("youtube", "youtubemusic", "soundcloud", "spotify")
	searchLimit    = searchCmd.Flag("limit", "Maximum results").Default("10").Int()
	searchSuppress = searchCmd.Flag("suppress", "Fail instead of waiting on catalog rate limits").Bool()

	// decode command
	decodeCmd     = app.Command("decode", "Decode encoded tracks")
	decodeEncoded = decodeCmd.Arg("track", "Encoded track").Required().Strings()

	// stats command
	statsCmd  = app.Command("stats", "Print node stats reports")
	statsWait = statsCmd.Flag("wait", "How long to collect reports").Default("70s").Duration()

	// filters command
	filtersCmd = app.Command("filters", "List filter kinds and the configured defaults")

	// play command
	playCmd     = app.Command("play", "Join a voice channel and play a query (requires DISCORD_TOKEN)")
	playGuild   = playCmd.Flag("guild", "Guild ID").Required().String()
	playChannel = playCmd.Flag("channel", "Voice channel ID").Required().String()
	playRegion  = playCmd.Flag("region", "Preferred node region").String()
	playQuery   = playCmd.Arg("query", "Text, URL or catalog reference").Required().Strings()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := cfg.Logger()
	if *verbose {
		logCfg.Level = "debug"
	}
	if *logfile != "" {
		logCfg.Output = "file"
		logCfg.File = *logfile
	}
	closer, err := logger.Init(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, command, cfg); err != nil {
		zlog.Error().Msgf("%s failed: %v", command, err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, cfg *config.Config) error {
	switch command {
	case filtersCmd.FullCommand():
		return printFilters(cfg)
	case playCmd.FullCommand():
		return play(ctx, cfg)
	}

	registry, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := registry.Close(context.Background()); err != nil {
			zlog.Warn().Msgf("failed to close nodes: %v", err)
		}
	}()

	switch command {
	case searchCmd.FullCommand():
		return runSearch(ctx, registry)
	case decodeCmd.FullCommand():
		return decode(ctx, registry)
	case statsCmd.FullCommand():
		return stats(ctx, registry)
	}
	return errors.Newf("unknown command %s", command)
}

// connect creates a registry and adds every configured node. Nodes that fail
// to connect are logged and skipped.
func connect(ctx context.Context, cfg *config.Config, opts ...node.Option) (*node.Registry, error) {
	spotifyCfg, ok, err := cfg.SpotifyConfig()
	if err != nil {
		return nil, err
	}
	if ok {
		cat, err := catalog.New(ctx, spotifyCfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create catalog client")
		}
		opts = append(opts, node.WithCatalog(cat))
	}

	nodes, err := cfg.NodeConfigs()
	if err != nil {
		return nil, err
	}

	registry := node.NewRegistry(opts...)
	for _, nc := range nodes {
		if _, err := registry.Add(ctx, nc); err != nil {
			zlog.Warn().Msgf("skipping node: node=%s err=%v", nc.Link.Name, err)
		}
	}
	if len(registry.Nodes()) == 0 {
		_ = registry.Close(ctx)
		return nil, node.ErrNoNodes
	}
	return registry, nil
}

func sourceFlag(name string) track.Source {
	switch name {
	case "youtubemusic":
		return track.SourceYouTubeMusic
	case "soundcloud":
		return track.SourceSoundCloud
	case "spotify":
		return track.SourceSpotify
	default:
		return track.SourceYouTube
	}
}

func runSearch(ctx context.Context, registry *node.Registry) error {
	res, err := registry.Search(ctx, strings.Join(*searchQuery, " "), search.Options{
		Source:   sourceFlag(*searchSource),
		Suppress: *searchSuppress,
		Limit:    *searchLimit,
	})
	if err != nil {
		return err
	}

	if res.Playlist != nil {
		fmt.Printf("Playlist: %s (%d tracks)\n", res.Playlist.Name, len(res.Tracks))
	}
	for i, t := range res.Tracks {
		fmt.Printf("%3d. %s - %s [%s] %s\n", i+1, t.Title, t.Author, formatDuration(t.Duration), t.URI)
	}
	return nil
}

func decode(ctx context.Context, registry *node.Registry) error {
	n, err := registry.Best("")
	if err != nil {
		return err
	}
	tracks, err := n.REST().DecodeTracks(ctx, *decodeEncoded)
	if err != nil {
		return err
	}
	for _, t := range tracks {
		fmt.Printf("%s - %s [%s] source=%s seekable=%v stream=%v\n", t.Title, t.Author, formatDuration(t.Duration), t.Source, t.Seekable, t.Stream)
	}
	return nil
}

func stats(ctx context.Context, registry *node.Registry) error {
	tok := event.On(registry.Events(), func(e event.NodeStatsUpdate) {
		s := e.Stats
		fmt.Printf("[%s] players=%d/%d cpu=%.2f heap=%dMiB penalty=%.1f\n",
			e.Node, s.Players.Active, s.Players.Total, s.CPU.SystemLoad, s.Memory.HeapUsed.Used>>20, s.Penalty())
	})
	defer registry.Events().Unsubscribe(tok)

	select {
	case <-ctx.Done():
	case <-time.After(*statsWait):
	}

	for _, n := range registry.Nodes() {
		if _, ok := n.Stats(); !ok {
			fmt.Printf("[%s] no stats received (connected=%v)\n", n.Name(), n.Connected())
		}
	}
	return nil
}

func printFilters(cfg *config.Config) error {
	sink, err := cfg.DefaultFilters()
	if err != nil {
		return err
	}
	fmt.Println("Available filters:")
	for _, k := range filter.Kinds {
		mark := " "
		if cfg.IsFilterEnabled(string(k)) {
			mark = "*"
		}
		fmt.Printf("  %s %s\n", mark, k)
	}
	if sink.Len() > 0 {
		data, err := sink.MarshalJSON()
		if err != nil {
			return err
		}
		fmt.Printf("Default payload: %s\n", data)
	}
	return nil
}

// play joins a voice channel through a disgo gateway session and plays the
// first search result, then the rest of a loaded playlist.
func play(ctx context.Context, cfg *config.Config) error {
	token := os.Getenv("DISCORD_TOKEN")
	if token == "" {
		return errors.New("DISCORD_TOKEN is required")
	}
	guildID, err := snowflake.Parse(*playGuild)
	if err != nil {
		return errors.Wrap(err, "invalid guild id")
	}
	channelID, err := snowflake.Parse(*playChannel)
	if err != nil {
		return errors.Wrap(err, "invalid channel id")
	}

	// The registry is created before the client so the adapter can route to it.
	var client *bot.Client
	voice := &lazyVoice{client: func() *bot.Client { return client }}
	registry, err := connect(ctx, cfg, node.WithVoice(voice))
	if err != nil {
		return err
	}
	defer func() { _ = registry.Close(context.Background()) }()

	adapter := disgovoice.New(registry, disgovoice.WithUserID(cfg.Bot.UserID))
	opts := append([]bot.ConfigOpt{
		bot.WithGatewayConfigOpts(gateway.WithIntents(gateway.IntentGuilds, gateway.IntentGuildVoiceStates)),
	}, adapter.ConfigOpts()...)
	client, err = disgo.New(token, opts...)
	if err != nil {
		return errors.Wrap(err, "failed to create discord client")
	}
	defer client.Close(context.Background())
	if err := client.OpenGateway(ctx); err != nil {
		return errors.Wrap(err, "failed to open gateway")
	}

	p, err := registry.Player(guildID, *playRegion)
	if err != nil {
		return err
	}
	if err := p.Connect(ctx, channelID); err != nil {
		return err
	}

	res, err := registry.Search(ctx, strings.Join(*playQuery, " "), search.Options{})
	if err != nil {
		return err
	}
	if res.Playlist != nil {
		err = p.Queue().AppendPlaylist(*res.Playlist)
	} else {
		first, _ := res.First()
		err = p.Queue().Append(first)
	}
	if err != nil {
		return err
	}

	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }
	tok := registry.Events().SubscribeAll(func(e event.Event) {
		switch e := e.(type) {
		case event.TrackStart:
			fmt.Printf("Now playing: %s - %s\n", e.Track.Title, e.Track.Author)
		case event.TrackException:
			fmt.Printf("Track failed: %s (%s)\n", e.Track.Title, e.Message)
		case event.TrackEnd:
			if e.Reason.MayStartNext() && len(p.Queue().Upcoming()) == 0 {
				finish()
			}
		case event.PlayerDisconnected:
			finish()
		}
	})
	defer registry.Events().Unsubscribe(tok)

	if err := p.PlayNext(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-done:
	}
	return p.Destroy(context.Background())
}

// lazyVoice defers to the disgo client once it exists.
type lazyVoice struct {
	client func() *bot.Client
}

func (v *lazyVoice) UpdateVoiceState(ctx context.Context, guildID snowflake.ID, channelID *snowflake.ID, selfMute bool, selfDeaf bool) error {
	c := v.client()
	if c == nil {
		return errors.New("discord client is not ready")
	}
	return c.UpdateVoiceState(ctx, guildID, channelID, selfMute, selfDeaf)
}

var _ player.VoiceLayer = (*lazyVoice)(nil)

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
