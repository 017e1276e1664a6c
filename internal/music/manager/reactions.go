package manager

import (
	"context"
	"strings"

	"github.com/keshon/lavaplayer/internal/music/player"
)

// Reaction control emojis.
const (
	EmojiPause      = "⏯"
	EmojiLoop       = "🔁"
	EmojiVolumeUp   = "⬆"
	EmojiVolumeDown = "⬇"
	EmojiSkip       = "⏭"
)

type reactionAction string

const (
	actionPause      reactionAction = "pause"
	actionLoop       reactionAction = "loop"
	actionVolumeUp   reactionAction = "volume_up"
	actionVolumeDown reactionAction = "volume_down"
	actionSkip       reactionAction = "skip"
)

var reactionActions = map[string]reactionAction{
	EmojiPause:      actionPause,
	EmojiLoop:       actionLoop,
	EmojiVolumeUp:   actionVolumeUp,
	EmojiVolumeDown: actionVolumeDown,
	EmojiSkip:       actionSkip,
}

// ControlEmojis lists the reactions attached to a status message. Radio
// streams get no loop control.
func ControlEmojis(radio bool) []string {
	if radio {
		return []string{EmojiPause, EmojiVolumeUp, EmojiVolumeDown, EmojiSkip}
	}
	return []string{EmojiPause, EmojiLoop, EmojiVolumeUp, EmojiVolumeDown, EmojiSkip}
}

// Reaction is an emoji added to or removed from a message.
type Reaction struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
	Private   bool
	UserIsBot bool
}

func parseReaction(emoji string) (reactionAction, bool) {
	a, ok := reactionActions[strings.ReplaceAll(emoji, "\ufe0f", "")]
	return a, ok
}

// HandleReaction applies a reaction control and reports whether it was
// accepted. Reactions outside a guild, from bots, with unknown emoji, on
// anything but the current status message, or from users not in the
// player's voice channel are ignored.
func (m *Manager) HandleReaction(ctx context.Context, r Reaction) bool {
	if r.Private || r.UserIsBot || r.GuildID == "" {
		return false
	}
	action, ok := parseReaction(r.Emoji)
	if !ok {
		return false
	}

	var handled bool
	_ = m.registry.Exec(r.GuildID, func() error {
		p, ok := m.registry.TryGet(r.GuildID)
		if !ok || p.NowPlaying == nil || p.NowPlaying.MessageID != r.MessageID {
			return nil
		}
		if ch, ok := m.gateway.UserVoiceChannel(r.GuildID, r.UserID); !ok || ch != p.VoiceChannelID {
			return nil
		}
		handled = m.applyReactionLocked(ctx, p, action)
		return nil
	})
	if handled {
		m.metrics.Reaction(string(action))
	}
	return handled
}

func (m *Manager) applyReactionLocked(ctx context.Context, p *player.Player, action reactionAction) bool {
	log := m.guildLogger(p.GuildID)

	switch action {
	case actionPause:
		if p.Current == nil {
			return false
		}
		if err := m.setPausedLocked(ctx, p, !p.Paused); err != nil {
			log.Warn().Err(err).Msg("pause toggle failed")
			return false
		}
	case actionLoop:
		if p.Current == nil || !p.Current.Loopable() {
			return false
		}
		p.Looping = !p.Looping
	case actionVolumeUp:
		m.setVolumeLocked(ctx, p, p.Volume+m.opts.VolumeStep)
	case actionVolumeDown:
		m.setVolumeLocked(ctx, p, p.Volume-m.opts.VolumeStep)
	case actionSkip:
		m.deleteNowPlayingLocked(p)
		if p.Current == nil {
			return true
		}
		if err := m.skipLocked(ctx, p); err != nil {
			log.Warn().Err(err).Msg("skip failed")
		}
		return true
	}

	m.refreshNowPlayingLocked(p)
	return true
}
