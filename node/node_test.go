package node

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/soundlink/catalog"
	"github.com/osa030/soundlink/event"
	"github.com/osa030/soundlink/internal/nodetest"
	"github.com/osa030/soundlink/link"
	"github.com/osa030/soundlink/player"
	"github.com/osa030/soundlink/protocol"
	"github.com/osa030/soundlink/rest"
	"github.com/osa030/soundlink/search"
	"github.com/osa030/soundlink/track"
)

const (
	testUser  = snowflake.ID(1000)
	testGuild = snowflake.ID(10)
)

func testConfig(fake *nodetest.FakeNode, name, region string) Config {
	return Config{
		Link: link.Config{
			Name:          name,
			Host:          fake.Host(),
			Port:          fake.Port(),
			Password:      fake.Password,
			UserID:        testUser,
			ReconnectBase: 10 * time.Millisecond,
			ReconnectMax:  50 * time.Millisecond,
		},
		Region: region,
	}
}

func connectedNode(t *testing.T, fake *nodetest.FakeNode, opts ...Option) *Node {
	t.Helper()
	n, err := New(testConfig(fake, "main", ""), opts...)
	require.NoError(t, err)
	require.NoError(t, n.Connect(context.Background()))
	fake.WaitConn(t)
	t.Cleanup(func() { _ = n.Close(context.Background()) })
	return n
}

func record(bus *event.Bus) <-chan event.Event {
	ch := make(chan event.Event, 128)
	bus.SubscribeAll(func(e event.Event) {
		select {
		case ch <- e:
		default:
		}
	})
	return ch
}

func waitFor[E event.Event](t *testing.T, ch <-chan event.Event) E {
	t.Helper()
	deadline := time.After(nodetest.Timeout)
	for {
		select {
		case e := <-ch:
			if want, ok := e.(E); ok {
				return want
			}
		case <-deadline:
			var zero E
			t.Fatalf("timed out waiting for %s event", zero.Kind())
			return zero
		}
	}
}

func searchResult(encoded ...string) rest.LoadResult {
	res := rest.LoadResult{LoadType: track.LoadTypeSearch}
	for _, e := range encoded {
		res.Tracks = append(res.Tracks, rest.LoadedTrack{
			Encoded: e,
			Info:    rest.TrackInfo{Title: e, Length: 200000, Seekable: true, SourceName: "youtube"},
		})
	}
	return res
}

type stubCatalog struct {
	result catalog.Result
	query  string
}

func (c *stubCatalog) Search(_ context.Context, query string, _ catalog.Options) (catalog.Result, error) {
	c.query = query
	return c.result, nil
}

func TestNew(t *testing.T) {
	n, err := New(Config{Link: link.Config{Name: "main", Host: "localhost", UserID: testUser}, Region: "asia"})
	require.NoError(t, err)

	assert.Equal(t, "main", n.Name())
	assert.Equal(t, "asia", n.Region())
	assert.Equal(t, "http://localhost:3030", n.REST().BaseURL)
	assert.False(t, n.Connected())
	_, ok := n.Stats()
	assert.False(t, ok)
	assert.Zero(t, n.Penalty())
	assert.Empty(t, n.Players())

	_, err = New(Config{Link: link.Config{Name: "main", UserID: testUser}})
	assert.Error(t, err)
}

func TestNode_Search(t *testing.T) {
	fake := nodetest.New(t, "secret")
	fake.SetLoadResult("ytsearch:lofi", searchResult("a", "b"))

	n, err := New(testConfig(fake, "main", ""))
	require.NoError(t, err)

	res, err := n.Search(context.Background(), "lofi", search.Options{})
	require.NoError(t, err)
	require.Len(t, res.Tracks, 2)
	assert.Equal(t, "a", res.Tracks[0].Encoded)

	_, err = n.Search(context.Background(), "nothing", search.Options{})
	assert.True(t, errors.Is(err, search.ErrNoMatches))
}

func TestNode_SearchCatalog(t *testing.T) {
	fake := nodetest.New(t, "secret")
	fake.SetLoadResult("ytsearch:Song Artist audio", searchResult("resolved"))
	cat := &stubCatalog{result: catalog.Result{Tracks: []track.Track{
		{ID: "t1", Title: "Song", Author: "Artist", Duration: 200 * time.Second, Source: track.SourceSpotify},
	}}}

	n, err := New(testConfig(fake, "main", ""), WithCatalog(cat))
	require.NoError(t, err)

	res, err := n.Search(context.Background(), "spotify:track:t1", search.Options{})
	require.NoError(t, err)
	assert.Equal(t, "spotify:track:t1", cat.query)
	first, ok := res.First()
	require.True(t, ok)
	assert.False(t, first.Playable())

	resolved, err := n.Resolve(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, "resolved", resolved.Encoded)
}

func TestNode_PlayerLifecycle(t *testing.T) {
	fake := nodetest.New(t, "secret")
	n, err := New(testConfig(fake, "main", ""))
	require.NoError(t, err)

	p, err := n.Player(testGuild)
	require.NoError(t, err)
	again, err := n.Player(testGuild)
	require.NoError(t, err)
	assert.Same(t, p, again)
	_, err = n.Player(5)
	require.NoError(t, err)

	players := n.Players()
	require.Len(t, players, 2)
	assert.Equal(t, snowflake.ID(5), players[0].GuildID())

	_, ok := n.Link().Session(testGuild)
	assert.True(t, ok)

	require.NoError(t, n.DestroyPlayer(context.Background(), testGuild))
	_, ok = n.ExistingPlayer(testGuild)
	assert.False(t, ok)
	_, ok = n.Link().Session(testGuild)
	assert.False(t, ok)
	assert.True(t, p.Destroyed())

	assert.NoError(t, n.DestroyPlayer(context.Background(), 999))
	ch := snowflake.ID(1)
	assert.NoError(t, n.OnVoiceStateUpdate(context.Background(), 999, &ch, "session"))
	assert.NoError(t, n.OnVoiceServerUpdate(context.Background(), 999, "token", "endpoint"))
}

func TestNode_PlayerSettings(t *testing.T) {
	fake := nodetest.New(t, "secret")
	cfg := testConfig(fake, "main", "")
	cfg.Player = PlayerSettings{Volume: 250, DisableAutoplay: true, MaxQueueSize: 1}
	n, err := New(cfg)
	require.NoError(t, err)

	p, err := n.Player(testGuild)
	require.NoError(t, err)
	assert.Equal(t, 250, p.Volume())
	assert.False(t, p.Autoplay())
	require.NoError(t, p.Queue().Append(track.Track{Encoded: "a"}))
	assert.Error(t, p.Queue().Append(track.Track{Encoded: "b"}))
}

func TestNode_Stats(t *testing.T) {
	fake := nodetest.New(t, "secret")
	n := connectedNode(t, fake)
	events := record(n.Events())

	assert.True(t, n.Connected())
	fake.PushRaw(t, `{"op":1,"d":{"players":{"active":3,"total":4},"cpu":{"cores":4}}}`)

	e := waitFor[event.NodeStatsUpdate](t, events)
	assert.Equal(t, "main", e.Node)
	assert.Equal(t, 3, e.Stats.Players.Active)

	stats, ok := n.Stats()
	require.True(t, ok)
	assert.Equal(t, 4, stats.Players.Total)
	assert.InDelta(t, 3.0, n.Penalty(), 0.001)
}

func TestNode_DisconnectEvents(t *testing.T) {
	fake := nodetest.New(t, "secret")
	n := connectedNode(t, fake)
	events := record(n.Events())

	fake.DropConnections()
	e := waitFor[event.NodeDisconnected](t, events)
	assert.Equal(t, "main", e.Node)
	assert.False(t, e.Fatal)

	ready := waitFor[event.NodeReady](t, events)
	assert.True(t, ready.Reconnected)
}

func TestNode_PlaybackFlow(t *testing.T) {
	ctx := context.Background()
	fake := nodetest.New(t, "secret")
	fake.SetLoadResult("ytsearch:lofi", searchResult("enc-a", "enc-b"))
	n := connectedNode(t, fake)
	events := record(n.Events())

	p, err := n.Player(testGuild)
	require.NoError(t, err)
	ch := snowflake.ID(20)
	require.NoError(t, n.OnVoiceStateUpdate(ctx, testGuild, &ch, "session"))
	require.NoError(t, n.OnVoiceServerUpdate(ctx, testGuild, "token", "voice.example:443"))

	var voice protocol.VoiceUpdate
	fake.NextOp(t, protocol.OpSubmitVoiceUpdate).Decode(t, &voice)
	assert.Equal(t, testGuild, voice.GuildID)
	assert.Equal(t, "session", voice.SessionID)
	assert.Equal(t, "voice.example:443", voice.Endpoint)

	fake.PushRaw(t, `{"op":4,"d":{"type":"WEBSOCKET_OPEN","guild_id":"10","target":"voice.example","ssrc":1}}`)
	waitFor[event.WebSocketOpen](t, events)
	assert.Equal(t, player.StateConnected, p.State())

	res, err := n.Search(ctx, "lofi", search.Options{})
	require.NoError(t, err)
	require.NoError(t, p.Queue().AppendMany(res.Tracks))
	require.NoError(t, p.PlayNext(ctx))

	var play protocol.PlayTrack
	fake.NextOp(t, protocol.OpPlayTrack).Decode(t, &play)
	assert.Equal(t, "enc-a", play.Track)
	assert.Equal(t, player.StatePlaying, p.State())

	fake.PushRaw(t, `{"op":5,"d":{"guild_id":"10","current_track":{"track":"enc-a","position":5000,"paused":false}}}`)
	update := waitFor[event.PlayerUpdate](t, events)
	assert.Equal(t, 5*time.Second, update.Position)
	assert.GreaterOrEqual(t, p.Position(), 5*time.Second)

	fake.PushRaw(t, `{"op":4,"d":{"type":"TRACK_END","guild_id":"10","track":"enc-a","reason":"FINISHED"}}`)
	end := waitFor[event.TrackEnd](t, events)
	assert.Equal(t, "enc-a", end.Track.Encoded)

	fake.NextOp(t, protocol.OpPlayTrack).Decode(t, &play)
	assert.Equal(t, "enc-b", play.Track)
	current, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, "enc-b", current.Encoded)
}

func TestNode_CloseDestroysPlayers(t *testing.T) {
	ctx := context.Background()
	fake := nodetest.New(t, "secret")
	n := connectedNode(t, fake)

	p, err := n.Player(testGuild)
	require.NoError(t, err)
	ch := snowflake.ID(20)
	require.NoError(t, n.OnVoiceStateUpdate(ctx, testGuild, &ch, "session"))
	require.NoError(t, n.OnVoiceServerUpdate(ctx, testGuild, "token", "voice.example:443"))
	fake.NextOp(t, protocol.OpSubmitVoiceUpdate)

	require.NoError(t, n.Close(ctx))
	assert.True(t, p.Destroyed())
	assert.Empty(t, n.Players())
	assert.Equal(t, link.StateClosed, n.Link().State())
	assert.NoError(t, n.Close(ctx))

	_, err = n.Player(testGuild)
	assert.True(t, errors.Is(err, ErrNodeClosed), "err=%v", err)
	_, err = n.Player(snowflake.ID(99))
	assert.True(t, errors.Is(err, ErrNodeClosed))
	assert.Empty(t, n.Players())
	_, ok := n.Link().Session(snowflake.ID(99))
	assert.False(t, ok)
}
