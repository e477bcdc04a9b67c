// Package player implements the per-guild playback state machine.
//
// A Player mirrors one playback session on a node. Commands are sent through
// the node link in call order, and node reports (PLAYER_UPDATE and player
// events) reconcile the local view.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/soundlink/event"
	"github.com/osa030/soundlink/filter"
	"github.com/osa030/soundlink/protocol"
	"github.com/osa030/soundlink/queue"
	"github.com/osa030/soundlink/track"
)

// Errors
var (
	ErrPlayerDestroyed   = errors.New("player destroyed")
	ErrAlreadyPlaying    = errors.New("a track is already playing")
	ErrNotSeekable       = errors.New("track is not seekable")
	ErrNothingPlaying    = errors.New("nothing is playing")
	ErrConnectionTimeout = errors.New("voice connection timed out")
	ErrNotResolvable     = errors.New("track could not be resolved")
)

// Player controls playback for one guild.
type Player struct {
	cfg   Config
	queue *queue.PointerQueue

	// background work: auto-advance and idle destroy; cancelled by Destroy
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	destroyed bool

	// voice session
	channelID  *snowflake.ID
	sessionID  string
	voiceToken string
	endpoint   string
	ack        chan struct{}
	cancelWait context.CancelFunc

	// playback
	current   *track.Track
	position  time.Duration
	updatedAt time.Time
	paused    bool
	volume    int
	filters   *filter.Sink
	autoplay  bool
	frames    protocol.Frames
	failed    string // encoded track whose TRACK_END must not advance again
	idle      *time.Timer
}

// New creates a player and registers it with cfg.Link.
func New(cfg Config) *Player {
	cfg.normalize()

	var opts []queue.Option
	if cfg.MaxQueueSize > 0 {
		opts = append(opts, queue.WithMaxSize(cfg.MaxQueueSize))
	}

	filters := filter.NewSink()
	if cfg.Filters != nil {
		filters = cfg.Filters.Clone()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		queue:    queue.NewPointer(opts...),
		state:    StateDisconnected,
		volume:   cfg.Volume,
		filters:  filters,
		autoplay: !cfg.DisableAutoplay,
	}
	cfg.Link.Register(cfg.GuildID, p)
	return p
}

// GuildID returns the guild the player belongs to.
func (p *Player) GuildID() snowflake.ID {
	return p.cfg.GuildID
}

// Queue returns the player's queue.
func (p *Player) Queue() *queue.PointerQueue {
	return p.queue
}

// State returns the current state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Destroyed reports whether Destroy was called.
func (p *Player) Destroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

// ChannelID returns the voice channel, if any.
func (p *Player) ChannelID() *snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channelID == nil {
		return nil
	}
	id := *p.channelID
	return &id
}

// Current returns the playing track.
func (p *Player) Current() (track.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return track.Track{}, false
	}
	return *p.current, true
}

// Position returns the playback position, extrapolated from the last report
// while playing.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() time.Duration {
	if p.current == nil {
		return 0
	}
	pos := p.position
	if p.state == StatePlaying && !p.paused {
		pos += p.cfg.Clock().Sub(p.updatedAt)
	}
	if d := p.current.Duration; d > 0 && pos > d {
		pos = d
	}
	return max(pos, 0)
}

// Paused reports whether playback is paused.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Volume returns the last volume sent to the node.
func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Filters returns a copy of the active filters.
func (p *Player) Filters() *filter.Sink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filters.Clone()
}

// Autoplay reports whether the queue advances when a track ends.
func (p *Player) Autoplay() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoplay
}

// SetAutoplay enables or disables queue advance on track end.
func (p *Player) SetAutoplay(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoplay = on
}

// FrameStats returns the last frame report.
func (p *Player) FrameStats() protocol.Frames {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

// Play starts t. Catalog tracks are resolved first.
func (p *Player) Play(ctx context.Context, t track.Track, opts PlayOptions) error {
	p.mu.Lock()
	err := p.checkPlayLocked(opts)
	p.mu.Unlock()
	if err != nil {
		return err
	}

	if !t.Playable() {
		if t, err = p.resolve(ctx, t); err != nil {
			return err
		}
	}

	frame := protocol.PlayTrack{
		GuildID:   p.cfg.GuildID,
		Track:     t.Encoded,
		NoReplace: !opts.Replace,
	}
	var start time.Duration
	if inside(opts.Start, t.Duration) {
		start = opts.Start
		frame.StartTime = opts.Start.Milliseconds()
	}
	if inside(opts.End, t.Duration) {
		frame.EndTime = opts.End.Milliseconds()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// state may have changed while resolving
	if err := p.checkPlayLocked(opts); err != nil {
		return err
	}
	if err := p.cfg.Link.Send(ctx, frame); err != nil {
		return errors.Wrap(err, "failed to send play")
	}

	p.current = &t
	p.position = start
	p.updatedAt = p.cfg.Clock()
	p.paused = false
	p.state = StatePlaying
	p.stopIdleLocked()
	zlog.Debug().Msgf("play: guild=%s track=%q", p.cfg.GuildID, t.Title)
	return nil
}

func (p *Player) checkPlayLocked(opts PlayOptions) error {
	if p.destroyed {
		return ErrPlayerDestroyed
	}
	if !opts.Replace && p.current != nil {
		return ErrAlreadyPlaying
	}
	return nil
}

func (p *Player) resolve(ctx context.Context, t track.Track) (track.Track, error) {
	if p.cfg.Resolver == nil {
		return t, errors.Wrapf(ErrNotResolvable, "no resolver for %s", t)
	}
	r, err := p.cfg.Resolver.Resolve(ctx, t)
	if err != nil {
		return t, errors.Mark(errors.Wrapf(err, "failed to resolve %s", t), ErrNotResolvable)
	}
	if !r.Playable() {
		return t, errors.Wrapf(ErrNotResolvable, "resolver returned no encoded track for %s", t)
	}

	// Keep the catalog metadata, play the node's encoding.
	t.Encoded = r.Encoded
	t.Seekable = r.Seekable
	t.Stream = r.Stream
	if t.Duration == 0 {
		t.Duration = r.Duration
	}
	if t.ArtworkURL == "" {
		t.ArtworkURL = r.ArtworkURL
	}
	return t, nil
}

// PlayNext advances the queue and plays the result.
func (p *Player) PlayNext(ctx context.Context) error {
	if p.Destroyed() {
		return ErrPlayerDestroyed
	}
	t, err := p.queue.Advance()
	if err != nil {
		return err
	}
	return p.Play(ctx, t, DefaultPlayOptions())
}

// Skip plays the next queued track regardless of track loop. When the queue
// is exhausted playback stops and queue.ErrEndOfQueue is returned.
func (p *Player) Skip(ctx context.Context) error {
	if p.Destroyed() {
		return ErrPlayerDestroyed
	}
	t, err := p.queue.Skip()
	if errors.Is(err, queue.ErrEndOfQueue) {
		if stopErr := p.Stop(ctx); stopErr != nil {
			return stopErr
		}
		return err
	}
	if err != nil {
		return err
	}
	return p.Play(ctx, t, DefaultPlayOptions())
}

// Previous plays the previous queued track.
func (p *Player) Previous(ctx context.Context) error {
	if p.Destroyed() {
		return ErrPlayerDestroyed
	}
	t, err := p.queue.Retreat()
	if err != nil {
		return err
	}
	return p.Play(ctx, t, DefaultPlayOptions())
}

// Jump plays the queue entry at index.
func (p *Player) Jump(ctx context.Context, index int) error {
	if p.Destroyed() {
		return ErrPlayerDestroyed
	}
	t, err := p.queue.Jump(index)
	if err != nil {
		return err
	}
	return p.Play(ctx, t, DefaultPlayOptions())
}

// Stop stops the current track. It does nothing when nothing is playing.
func (p *Player) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrPlayerDestroyed
	}
	if p.current == nil {
		return nil
	}
	if err := p.cfg.Link.Send(ctx, protocol.StopTrack{GuildID: p.cfg.GuildID}); err != nil {
		return errors.Wrap(err, "failed to send stop")
	}
	p.clearTrackLocked()
	return nil
}

// Pause pauses playback.
func (p *Player) Pause(ctx context.Context) error {
	return p.SetPaused(ctx, true)
}

// Resume resumes playback.
func (p *Player) Resume(ctx context.Context) error {
	return p.SetPaused(ctx, false)
}

// SetPaused pauses or resumes playback. It does nothing when already in the
// requested state or when nothing is playing.
func (p *Player) SetPaused(ctx context.Context, paused bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrPlayerDestroyed
	}
	if p.current == nil || p.paused == paused {
		return nil
	}
	if err := p.cfg.Link.Send(ctx, protocol.Pause{GuildID: p.cfg.GuildID, State: paused}); err != nil {
		return errors.Wrap(err, "failed to send pause")
	}

	p.position = p.positionLocked()
	p.updatedAt = p.cfg.Clock()
	p.paused = paused
	if paused {
		p.state = StatePaused
	} else {
		p.state = StatePlaying
	}
	return nil
}

// Seek moves the playback position. pos is clamped to the track.
func (p *Player) Seek(ctx context.Context, pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrPlayerDestroyed
	}
	if p.current == nil {
		return ErrNothingPlaying
	}
	if !p.current.Seekable {
		return errors.Wrapf(ErrNotSeekable, "track=%q", p.current.Title)
	}

	pos = max(pos, 0)
	if d := p.current.Duration; d > 0 && pos > d {
		pos = d
	}
	if err := p.cfg.Link.Send(ctx, protocol.Seek{GuildID: p.cfg.GuildID, Position: pos.Milliseconds()}); err != nil {
		return errors.Wrap(err, "failed to send seek")
	}
	p.position = pos
	p.updatedAt = p.cfg.Clock()
	return nil
}

// SetVolume sets the volume, clamped to [MinVolume, MaxVolume].
func (p *Player) SetVolume(ctx context.Context, volume int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrPlayerDestroyed
	}
	volume = clampVolume(volume)
	if err := p.cfg.Link.Send(ctx, protocol.Configure{GuildID: p.cfg.GuildID, Volume: &volume}); err != nil {
		return errors.Wrap(err, "failed to send volume")
	}
	p.volume = volume
	return nil
}

// SetFilters replaces the active filters with a copy of sink.
func (p *Player) SetFilters(ctx context.Context, sink *filter.Sink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrPlayerDestroyed
	}
	return p.applyFiltersLocked(ctx, sink.Clone())
}

// AddFilters sets filters on top of the active ones.
func (p *Player) AddFilters(ctx context.Context, filters ...filter.Filter) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrPlayerDestroyed
	}
	next := p.filters.Clone()
	for _, f := range filters {
		next.Set(f)
	}
	return p.applyFiltersLocked(ctx, next)
}

// RemoveFilters removes filters by kind.
func (p *Player) RemoveFilters(ctx context.Context, kinds ...filter.Kind) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrPlayerDestroyed
	}
	next := p.filters.Clone()
	for _, k := range kinds {
		next.Remove(k)
	}
	return p.applyFiltersLocked(ctx, next)
}

// ResetFilters removes every filter.
func (p *Player) ResetFilters(ctx context.Context) error {
	return p.SetFilters(ctx, filter.NewSink())
}

func (p *Player) applyFiltersLocked(ctx context.Context, sink *filter.Sink) error {
	frame := protocol.Filters{GuildID: p.cfg.GuildID, Filters: sink.Serialize()}
	if err := p.cfg.Link.Send(ctx, frame); err != nil {
		return errors.Wrap(err, "failed to send filters")
	}
	p.filters = sink
	return nil
}

// Destroy stops playback, tears the player down on the node and leaves the
// voice channel. Every later call fails with ErrPlayerDestroyed.
func (p *Player) Destroy(ctx context.Context) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return ErrPlayerDestroyed
	}
	p.destroyed = true
	p.cancel()
	if p.cancelWait != nil {
		p.cancelWait()
	}
	p.stopIdleLocked()

	var errs error
	if p.state != StateDisconnected || p.current != nil {
		if p.current != nil {
			errs = errors.CombineErrors(errs, p.cfg.Link.Send(ctx, protocol.StopTrack{GuildID: p.cfg.GuildID}))
		}
		errs = errors.CombineErrors(errs, p.cfg.Link.Send(ctx, protocol.Destroy{GuildID: p.cfg.GuildID}))
	}
	channel := p.channelID
	p.clearTrackLocked()
	p.state = StateDisconnected
	p.channelID = nil
	p.mu.Unlock()

	p.cfg.Link.Unregister(p.cfg.GuildID)
	if channel != nil && p.cfg.Voice != nil {
		errs = errors.CombineErrors(errs, p.cfg.Voice.UpdateVoiceState(ctx, p.cfg.GuildID, nil, false, false))
	}
	if p.cfg.OnDestroy != nil {
		p.cfg.OnDestroy(p.cfg.GuildID)
	}
	zlog.Debug().Msgf("player destroyed: guild=%s", p.cfg.GuildID)
	return errors.Wrap(errs, "destroy")
}

func (p *Player) clearTrackLocked() {
	p.current = nil
	p.position = 0
	p.paused = false
	if p.state == StatePlaying || p.state == StatePaused {
		p.state = StateConnected
	}
}

// startIdleLocked arms the idle destroy timer.
func (p *Player) startIdleLocked() {
	if p.cfg.IdleTimeout <= 0 || p.idle != nil {
		return
	}
	p.idle = time.AfterFunc(p.cfg.IdleTimeout, func() {
		p.mu.Lock()
		idle := p.current == nil && !p.destroyed
		p.mu.Unlock()
		if !idle {
			return
		}
		zlog.Info().Msgf("player idle, destroying: guild=%s timeout=%s", p.cfg.GuildID, p.cfg.IdleTimeout)
		// Destroy cancels p.ctx before it sends STOP and DESTROY.
		if err := p.Destroy(context.WithoutCancel(p.ctx)); err != nil && !errors.Is(err, ErrPlayerDestroyed) {
			zlog.Warn().Err(err).Msgf("failed to destroy idle player: guild=%s", p.cfg.GuildID)
		}
	})
}

func (p *Player) stopIdleLocked() {
	if p.idle != nil {
		p.idle.Stop()
		p.idle = nil
	}
}

func (p *Player) publish(e event.Event) {
	if p.cfg.Events != nil {
		p.cfg.Events.Publish(e)
	}
}

func inside(t, length time.Duration) bool {
	return t > 0 && t < length
}
