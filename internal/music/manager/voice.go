package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/keshon/lavaplayer/internal/lavalink"
	"github.com/keshon/lavaplayer/internal/music/player"
	"github.com/keshon/lavaplayer/pkg/util"
)

const (
	disconnectWorkers = 8
	disconnectTimeout = 10 * time.Second
)

// VoiceStateUpdate is a voice presence change in a guild. Self marks the
// bot's own voice state.
type VoiceStateUpdate struct {
	GuildID   string
	UserID    string
	ChannelID string
	Self      bool
	Bot       bool
}

// Connect returns the guild's player, creating it and joining target's
// voice channel when none exists. An existing player bound elsewhere in the
// guild is moved.
func (m *Manager) Connect(ctx context.Context, target Target) (player.Snapshot, error) {
	var snap player.Snapshot
	err := m.registry.Exec(target.GuildID, func() error {
		p, err := m.ensureLocked(ctx, target)
		if err != nil {
			return err
		}
		snap = p.Snapshot()
		return nil
	})
	return snap, err
}

// ensureLocked is Connect for callers already holding the guild lock.
func (m *Manager) ensureLocked(ctx context.Context, target Target) (*player.Player, error) {
	if !target.valid() {
		return nil, ErrInvalidTarget
	}
	log := m.guildLogger(target.GuildID)

	p, created, err := m.registry.GetOrCreate(target.GuildID, func() (*player.Player, error) {
		if err := m.node.Connect(ctx, target.GuildID, target.VoiceChannelID); err != nil {
			log.Warn().Err(err).Str("channel_id", target.VoiceChannelID).Msg("voice connect failed")
			if derr := m.node.Disconnect(ctx, target.GuildID); derr != nil {
				log.Debug().Err(derr).Msg("cleanup after failed connect")
			}
			return nil, fmt.Errorf("connect voice: %w", err)
		}
		return player.New(target.GuildID, target.VoiceChannelID, target.TextChannelID, m.opts.DefaultVolume), nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		log.Info().Str("channel_id", target.VoiceChannelID).Msg("player connected")
		if err := m.node.SetVolume(ctx, p.GuildID, p.Volume); err != nil {
			log.Debug().Err(err).Msg("initial volume not applied")
		}
		m.metrics.SetPlayers(m.registry.Len())
		m.checkIdleLocked(p)
		return p, nil
	}

	p.TextChannelID = target.TextChannelID
	if p.VoiceChannelID != target.VoiceChannelID {
		if err := m.node.Move(ctx, p.GuildID, target.VoiceChannelID); err != nil {
			log.Warn().Err(err).Msg("voice move failed, dropping player")
			m.disconnectLocked(ctx, p)
			return nil, fmt.Errorf("move voice: %w", err)
		}
		log.Info().Str("from", p.VoiceChannelID).Str("to", target.VoiceChannelID).Msg("player moved")
		p.VoiceChannelID = target.VoiceChannelID
		m.checkIdleLocked(p)
	}
	return p, nil
}

// Disconnect tears the guild's player down. It is a no-op without a player.
func (m *Manager) Disconnect(ctx context.Context, guildID string) error {
	return m.registry.Exec(guildID, func() error {
		if p, ok := m.registry.TryGet(guildID); ok {
			m.disconnectLocked(ctx, p)
		}
		return nil
	})
}

// disconnectLocked removes local state first; node teardown failures are
// only logged.
func (m *Manager) disconnectLocked(ctx context.Context, p *player.Player) {
	p.DisarmIdle()
	p.Connected = false
	m.registry.Remove(p.GuildID)
	m.deleteNowPlayingLocked(p)
	m.metrics.SetPlayers(m.registry.Len())

	if err := m.node.Disconnect(ctx, p.GuildID); err != nil {
		m.guildLogger(p.GuildID).Warn().Err(err).Msg("node teardown failed")
	}
	m.guildLogger(p.GuildID).Info().Msg("player disconnected")
}

// DisconnectAll disconnects every player. Each guild gets its own timeout
// and failures never stop the sweep.
func (m *Manager) DisconnectAll(ctx context.Context) {
	guilds := m.registry.GuildIDs()
	if len(guilds) == 0 {
		return
	}
	m.logger.Info().Int("players", len(guilds)).Msg("disconnecting all players")
	err := util.Parallel(ctx, guilds, disconnectWorkers, func(ctx context.Context, guildID string) error {
		ctx, cancel := context.WithTimeout(ctx, disconnectTimeout)
		defer cancel()
		if err := m.Disconnect(ctx, guildID); err != nil {
			m.guildLogger(guildID).Warn().Err(err).Msg("disconnect failed")
		}
		return nil
	})
	if err != nil {
		m.logger.Warn().Err(err).Msg("disconnect sweep interrupted")
	}
}

// HandleVoiceStateUpdate keeps the idle timer in line with the listener
// count and drops the player when the bot itself leaves voice.
func (m *Manager) HandleVoiceStateUpdate(ctx context.Context, u VoiceStateUpdate) {
	if u.GuildID == "" {
		return
	}
	_ = m.registry.Exec(u.GuildID, func() error {
		p, ok := m.registry.TryGet(u.GuildID)
		if !ok {
			return nil
		}
		if u.Self {
			if u.ChannelID == "" {
				m.guildLogger(u.GuildID).Info().Msg("bot left voice, dropping player")
				m.disconnectLocked(ctx, p)
				return nil
			}
			p.VoiceChannelID = u.ChannelID
		}
		m.checkIdleLocked(p)
		return nil
	})
}

// checkIdleLocked arms the idle timer when the bound channel has no
// listeners and disarms it otherwise. Both directions are idempotent.
func (m *Manager) checkIdleLocked(p *player.Player) {
	listeners := m.gateway.CountListeners(p.GuildID, p.VoiceChannelID)
	switch {
	case listeners == 0 && !p.IdleArmed():
		m.guildLogger(p.GuildID).Debug().Dur("after", m.opts.IdleTimeout).Msg("channel empty, idle disconnect armed")
		m.armIdleLocked(p)
	case listeners > 0 && p.IdleArmed():
		m.guildLogger(p.GuildID).Debug().Int("listeners", listeners).Msg("idle disconnect cancelled")
		p.DisarmIdle()
	}
}

func (m *Manager) armIdleLocked(p *player.Player) {
	armed := p
	p.ArmIdle(m.opts.IdleTimeout, func(gen uint64) {
		m.fireIdle(armed, gen)
	})
}

// fireIdle runs on the timer goroutine. It only disconnects if the timer is
// still the one armed on the registered player; a disarm taken under the
// guild lock always wins.
func (m *Manager) fireIdle(armed *player.Player, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.OpTimeout)
	defer cancel()
	_ = m.registry.Exec(armed.GuildID, func() error {
		p, ok := m.registry.TryGet(armed.GuildID)
		if !ok || p != armed || !p.IdleCurrent(gen) {
			return nil
		}
		m.guildLogger(p.GuildID).Info().Msg("idle window elapsed")
		m.metrics.IdleDisconnect()
		m.disconnectLocked(ctx, p)
		return nil
	})
}

// handleNodeEvent reacts to node-wide session changes. A lost session takes
// every node-side player with it.
func (m *Manager) handleNodeEvent(ev lavalink.Event) {
	m.metrics.NodeEvent(string(ev.Type))
	switch ev.Type {
	case lavalink.EventNodeReady:
		m.logger.Info().Msg("audio node ready")
	case lavalink.EventNodeClosed:
		if m.registry.Len() == 0 {
			return
		}
		m.logger.Warn().Int("players", m.registry.Len()).Msg("audio node session lost, dropping players")
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.OpTimeout)
		defer cancel()
		m.DisconnectAll(ctx)
	}
}
