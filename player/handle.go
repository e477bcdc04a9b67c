package player

import (
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/soundlink/event"
	"github.com/osa030/soundlink/link"
	"github.com/osa030/soundlink/protocol"
	"github.com/osa030/soundlink/queue"
	"github.com/osa030/soundlink/track"
)

// closeDisconnected is the voice close code sent when the bot was removed
// from the channel.
const closeDisconnected = 4014

// HandleFrame applies a node report. It runs on the link's reader goroutine.
func (p *Player) HandleFrame(f protocol.Routed) {
	switch f := f.(type) {
	case *protocol.PlayerUpdate:
		p.handleUpdate(f)
	case *protocol.PlayerEvent:
		p.handleEvent(f)
	}
}

// HandleLinkState is called when the node link changes state.
func (p *Player) HandleLinkState(s link.State) {
	switch s {
	case link.StateReconnecting:
		zlog.Debug().Msgf("link down: guild=%s", p.cfg.GuildID)
	case link.StateReady:
		zlog.Debug().Msgf("link up: guild=%s", p.cfg.GuildID)
	case link.StateFailed, link.StateClosed:
		p.mu.Lock()
		wasConnected := p.state != StateDisconnected && !p.destroyed
		p.clearTrackLocked()
		p.state = StateDisconnected
		p.mu.Unlock()
		if wasConnected {
			p.publish(event.PlayerDisconnected{GuildID: p.cfg.GuildID, Reason: "node link " + s.String()})
		}
	}
}

func (p *Player) handleUpdate(u *protocol.PlayerUpdate) {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.acknowledgeLocked()
	p.frames = u.Frames

	if p.current != nil && u.CurrentTrack.Track == p.current.Encoded {
		p.position = time.Duration(u.CurrentTrack.Position) * time.Millisecond
		p.updatedAt = p.cfg.Clock()
		p.paused = u.CurrentTrack.Paused
		if p.paused {
			p.state = StatePaused
		} else {
			p.state = StatePlaying
		}
	}
	ev := event.PlayerUpdate{GuildID: p.cfg.GuildID, Position: p.position, Paused: p.paused}
	p.mu.Unlock()

	p.publish(ev)
}

func (p *Player) handleEvent(e *protocol.PlayerEvent) {
	switch e.Type {
	case protocol.EventWebSocketOpen, protocol.EventWebSocketReady:
		p.mu.Lock()
		if !p.destroyed {
			p.acknowledgeLocked()
		}
		p.mu.Unlock()
		p.publish(event.WebSocketOpen{GuildID: p.cfg.GuildID, Target: e.Target, SSRC: e.SSRC})

	case protocol.EventWebSocketClosed:
		p.publish(event.WebSocketClosed{GuildID: p.cfg.GuildID, Code: e.Code, Reason: e.Reason, ByRemote: e.ByRemote})
		if e.Code == closeDisconnected {
			p.mu.Lock()
			wasConnected := p.state != StateDisconnected && !p.destroyed
			p.clearTrackLocked()
			p.state = StateDisconnected
			p.mu.Unlock()
			if wasConnected {
				p.publish(event.PlayerDisconnected{GuildID: p.cfg.GuildID, Reason: e.Reason})
			}
		}

	case protocol.EventTrackStart:
		t, _ := p.trackFor(e.Track)
		p.publish(event.TrackStart{GuildID: p.cfg.GuildID, Track: t})

	case protocol.EventTrackEnd:
		p.handleEnd(e)

	case protocol.EventTrackException:
		t, advance := p.fail(e.Track)
		ev := event.TrackException{GuildID: p.cfg.GuildID, Track: t}
		if e.Exception != nil {
			ev.Message = e.Exception.Message
			ev.Cause = e.Exception.Cause
			ev.Severity = e.Exception.Severity
		}
		zlog.Warn().Msgf("track exception: guild=%s track=%q message=%s", p.cfg.GuildID, t.Title, ev.Message)
		p.publish(ev)
		if advance {
			p.advance(true)
		}

	case protocol.EventTrackStuck:
		t, advance := p.fail(e.Track)
		zlog.Warn().Msgf("track stuck: guild=%s track=%q threshold=%dms", p.cfg.GuildID, t.Title, e.ThresholdMs)
		p.publish(event.TrackStuck{GuildID: p.cfg.GuildID, Track: t, Threshold: time.Duration(e.ThresholdMs) * time.Millisecond})
		if advance {
			p.advance(true)
		}

	default:
		zlog.Debug().Msgf("unhandled player event: guild=%s type=%s", p.cfg.GuildID, e.Type)
	}
}

func (p *Player) handleEnd(e *protocol.PlayerEvent) {
	reason := e.EndReason()

	p.mu.Lock()
	t, matches := p.trackForLocked(e.Track)
	advance := false
	switch {
	case p.destroyed:
	case p.failed != "" && p.failed == e.Track:
		// already advanced on the exception or stuck report
		p.failed = ""
	case matches && reason != protocol.ReasonReplaced:
		p.clearTrackLocked()
		advance = reason.MayStartNext() && p.autoplay
	}
	p.mu.Unlock()

	p.publish(event.TrackEnd{GuildID: p.cfg.GuildID, Track: t, Reason: reason})
	if advance {
		p.advance(reason == protocol.ReasonLoadFailed)
	}
}

// fail records a failed current track and reports whether to advance.
func (p *Player) fail(encoded string) (track.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, matches := p.trackForLocked(encoded)
	if !matches || p.destroyed {
		return t, false
	}
	p.failed = encoded
	p.clearTrackLocked()
	return t, p.autoplay
}

func (p *Player) trackFor(encoded string) (track.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trackForLocked(encoded)
}

// trackForLocked returns the current track when it matches encoded, or a
// bare track carrying only the encoding.
func (p *Player) trackForLocked(encoded string) (track.Track, bool) {
	if p.current != nil && p.current.Encoded == encoded {
		return *p.current, true
	}
	return track.Track{ID: encoded, Encoded: encoded}, false
}

// advance plays the next queued track. After a failure the queue is skipped
// so LoopTrack does not replay the broken track. Tracks that need resolving
// are played from a new goroutine so the reader is not blocked on search.
func (p *Player) advance(failed bool) {
	next := p.queue.Advance
	if failed {
		next = p.queue.Skip
	}
	t, err := next()
	if errors.Is(err, queue.ErrEndOfQueue) {
		zlog.Debug().Msgf("queue exhausted: guild=%s", p.cfg.GuildID)
		p.mu.Lock()
		if !p.destroyed && p.current == nil {
			p.startIdleLocked()
		}
		p.mu.Unlock()
		return
	}
	if err != nil {
		zlog.Warn().Err(err).Msgf("failed to advance queue: guild=%s", p.cfg.GuildID)
		return
	}

	play := func() {
		// PlayTrack replaces on the node, so a race with a host Play is harmless.
		err := p.Play(p.ctx, t, DefaultPlayOptions())
		if err != nil && !errors.Is(err, ErrPlayerDestroyed) && p.ctx.Err() == nil {
			zlog.Warn().Err(err).Msgf("failed to play next track: guild=%s track=%q", p.cfg.GuildID, t.Title)
		}
	}
	if t.Playable() {
		play()
		return
	}
	go play()
}
