package player

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/soundlink/event"
	"github.com/osa030/soundlink/protocol"
)

// Connect joins channelID and waits until the node reports the voice
// connection open. The wait is bounded by Config.ConnectTimeout and ends
// early on Destroy.
func (p *Player) Connect(ctx context.Context, channelID snowflake.ID) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return ErrPlayerDestroyed
	}
	if p.state >= StateConnected && p.channelID != nil && *p.channelID == channelID {
		p.mu.Unlock()
		return nil
	}
	if p.cancelWait != nil {
		p.cancelWait()
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()
	ack := make(chan struct{})
	p.ack = ack
	p.cancelWait = cancel
	p.channelID = &channelID
	p.state = StateConnecting
	p.mu.Unlock()

	zlog.Debug().Msgf("connecting: guild=%s channel=%s", p.cfg.GuildID, channelID)
	if p.cfg.Voice != nil {
		if err := p.cfg.Voice.UpdateVoiceState(waitCtx, p.cfg.GuildID, &channelID, false, p.cfg.SelfDeaf); err != nil {
			p.abortConnect(ack)
			return errors.Wrap(err, "failed to join voice channel")
		}
	}

	select {
	case <-ack:
		return nil
	case <-waitCtx.Done():
	}

	// ack may have raced the deadline
	select {
	case <-ack:
		return nil
	default:
	}

	if p.abortConnect(ack) {
		return ErrPlayerDestroyed
	}
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), "connect")
	}
	return errors.Wrapf(ErrConnectionTimeout, "guild=%s channel=%s after %s", p.cfg.GuildID, channelID, p.cfg.ConnectTimeout)
}

// abortConnect reverts a pending connect and reports whether the player was
// destroyed meanwhile.
func (p *Player) abortConnect(ack chan struct{}) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return true
	}
	if p.ack == ack {
		p.ack = nil
		p.cancelWait = nil
		if p.state == StateConnecting {
			p.state = StateDisconnected
			p.channelID = nil
		}
	}
	return false
}

// OnVoiceStateUpdate receives the bot's voice state for this guild. A nil
// channel means the bot left voice.
func (p *Player) OnVoiceStateUpdate(ctx context.Context, channelID *snowflake.ID, sessionID string) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil
	}

	if channelID == nil {
		wasConnected := p.state != StateDisconnected
		p.clearTrackLocked()
		p.state = StateDisconnected
		p.channelID = nil
		p.sessionID = ""
		p.mu.Unlock()
		if wasConnected {
			zlog.Info().Msgf("left voice channel: guild=%s", p.cfg.GuildID)
			p.publish(event.PlayerDisconnected{GuildID: p.cfg.GuildID, Reason: "left voice channel"})
		}
		return nil
	}

	id := *channelID
	p.channelID = &id
	p.sessionID = sessionID
	defer p.mu.Unlock()
	return p.submitVoiceLocked(ctx)
}

// OnVoiceServerUpdate receives the voice server credentials for this guild.
func (p *Player) OnVoiceServerUpdate(ctx context.Context, token string, endpoint string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return nil
	}
	p.voiceToken = token
	p.endpoint = endpoint
	return p.submitVoiceLocked(ctx)
}

// submitVoiceLocked sends SUBMIT_VOICE_UPDATE once all credentials are known.
func (p *Player) submitVoiceLocked(ctx context.Context) error {
	if p.sessionID == "" || p.voiceToken == "" || p.endpoint == "" {
		return nil
	}
	frame := protocol.VoiceUpdate{
		GuildID:   p.cfg.GuildID,
		SessionID: p.sessionID,
		Token:     p.voiceToken,
		Endpoint:  p.endpoint,
	}
	if err := p.cfg.Link.Send(ctx, frame); err != nil {
		return errors.Wrap(err, "failed to send voice update")
	}
	if err := p.syncSettingsLocked(ctx); err != nil {
		return err
	}
	if p.state == StateDisconnected {
		p.state = StateConnecting
	}
	zlog.Debug().Msgf("voice update sent: guild=%s endpoint=%s", p.cfg.GuildID, p.endpoint)
	return nil
}

// syncSettingsLocked pushes non-default volume and filters, since the node
// creates its player state from the voice update.
func (p *Player) syncSettingsLocked(ctx context.Context) error {
	if p.volume != DefaultVolume {
		volume := p.volume
		if err := p.cfg.Link.Send(ctx, protocol.Configure{GuildID: p.cfg.GuildID, Volume: &volume}); err != nil {
			return errors.Wrap(err, "failed to send volume")
		}
	}
	if p.filters.Len() > 0 {
		if err := p.cfg.Link.Send(ctx, protocol.Filters{GuildID: p.cfg.GuildID, Filters: p.filters.Serialize()}); err != nil {
			return errors.Wrap(err, "failed to send filters")
		}
	}
	return nil
}

// acknowledgeLocked marks the voice connection open.
func (p *Player) acknowledgeLocked() {
	if p.state == StateConnecting {
		p.state = StateConnected
	}
	if p.ack != nil {
		close(p.ack)
		p.ack = nil
		p.cancelWait = nil
	}
}
