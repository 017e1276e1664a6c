package manager

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/lavaplayer/internal/lavalink"
	"github.com/keshon/lavaplayer/internal/music/player"
	"github.com/keshon/lavaplayer/internal/music/track"
)

// Voice websocket close codes after which the session cannot be resumed.
const (
	closeDisconnected   = 4014
	closeSessionInvalid = 4006
)

// HandleEvent applies one guild-scoped node callback.
func (m *Manager) HandleEvent(ctx context.Context, ev lavalink.Event) {
	m.metrics.NodeEvent(string(ev.Type))
	if ev.GuildID == "" {
		return
	}

	_ = m.registry.Exec(ev.GuildID, func() error {
		p, ok := m.registry.TryGet(ev.GuildID)
		if !ok {
			return nil
		}
		switch ev.Type {
		case lavalink.EventTrackStart:
			m.guildLogger(p.GuildID).Debug().Str("title", title(ev.Track)).Msg("track started")
		case lavalink.EventTrackEnd:
			m.onTrackEndLocked(ctx, p, ev)
		case lavalink.EventTrackException, lavalink.EventTrackStuck:
			m.onTrackFaultLocked(ctx, p, ev)
		case lavalink.EventPlayerUpdate:
			m.onPlayerUpdateLocked(p, ev)
		case lavalink.EventVoiceClosed:
			if ev.Code == closeDisconnected || ev.Code == closeSessionInvalid {
				m.guildLogger(p.GuildID).Info().Int("code", ev.Code).Msg("voice connection closed by discord")
				m.disconnectLocked(ctx, p)
			}
		}
		return nil
	})
}

// isCurrent guards against callbacks for a track that is no longer loaded.
func isCurrent(p *player.Player, t *track.Track) bool {
	cur := p.CurrentTrack()
	return cur != nil && t != nil && cur.Encoded == t.Encoded
}

func (m *Manager) onTrackEndLocked(ctx context.Context, p *player.Player, ev lavalink.Event) {
	log := m.guildLogger(p.GuildID)
	if ev.Reason.Internal() {
		return
	}
	if ev.Reason == track.EndLoadFailed && ev.Track != nil && p.Faulted == ev.Track.Encoded {
		p.Faulted = ""
		log.Debug().Str("title", title(ev.Track)).Msg("ignoring end of already skipped track")
		return
	}
	if !isCurrent(p, ev.Track) {
		log.Debug().Str("title", title(ev.Track)).Str("reason", string(ev.Reason)).Msg("ignoring end of stale track")
		return
	}

	cur := p.CurrentTrack()
	if p.Looping && p.Current.Loopable() && ev.Reason == track.EndFinished {
		cur.ResetPosition()
		err := m.node.Play(ctx, p.GuildID, cur, false)
		if err == nil {
			m.refreshNowPlayingLocked(p)
			return
		}
		log.Warn().Err(err).Msg("loop replay failed")
	}

	if err := m.advanceLocked(ctx, p, cur, false); err != nil {
		log.Warn().Err(err).Msg("advance failed")
	}
}

func (m *Manager) onTrackFaultLocked(ctx context.Context, p *player.Player, ev lavalink.Event) {
	if !isCurrent(p, ev.Track) {
		return
	}
	t := p.CurrentTrack()
	msg := ev.Error
	if ev.Type == lavalink.EventTrackStuck {
		msg = "track got stuck"
	}
	m.guildLogger(p.GuildID).Warn().Str("title", t.Title).Str("uri", t.URI).Str("error", msg).Msg("track failed")

	m.post(p, warningEmbed("Could not play track",
		trackField(t),
		&discordgo.MessageEmbedField{Name: "Error", Value: orDash(msg)},
	))
	if err := m.skipLocked(ctx, p); err != nil {
		m.guildLogger(p.GuildID).Warn().Err(err).Msg("skip after failure failed")
	}
	if ev.Type == lavalink.EventTrackException {
		p.Faulted = t.Encoded
	}
}

func (m *Manager) onPlayerUpdateLocked(p *player.Player, ev lavalink.Event) {
	t := p.CurrentTrack()
	if t == nil {
		return
	}
	t.Position = ev.Position
	if m.opts.LiveUpdates && !t.IsStream {
		m.refreshNowPlayingLocked(p)
	}
}

func trackField(t *track.Track) *discordgo.MessageEmbedField {
	uri := t.URI
	if uri == "" {
		uri = t.Title
	}
	return &discordgo.MessageEmbedField{Name: "URL", Value: "**" + orDash(uri) + "**"}
}

func title(t *track.Track) string {
	if t == nil {
		return ""
	}
	return t.Title
}
