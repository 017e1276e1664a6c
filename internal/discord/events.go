package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/keshon/lavaplayer/internal/music/manager"
)

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info().
		Int("shard", s.ShardID).
		Int("guilds", len(r.Guilds)).
		Str("user", r.User.Username).
		Msg("shard ready")
	b.gate.MarkReady(s.ShardID)
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.VoiceState == nil || v.GuildID == "" {
		return
	}
	self := s.State.User != nil && v.UserID == s.State.User.ID

	// the node needs the session id before the manager sees the move
	if self && b.voice != nil {
		b.voice.HandleVoiceStateUpdate(v.GuildID, v.ChannelID, v.SessionID)
	}
	if b.music != nil {
		b.music.OnVoiceStateUpdate(manager.VoiceStateUpdate{
			GuildID:   v.GuildID,
			UserID:    v.UserID,
			ChannelID: v.ChannelID,
			Self:      self,
			Bot:       self || isBotMember(s, v.GuildID, v.UserID, v.Member),
		})
	}
}

func (b *Bot) onVoiceServerUpdate(s *discordgo.Session, v *discordgo.VoiceServerUpdate) {
	if b.voice != nil {
		b.voice.HandleVoiceServerUpdate(v.GuildID, v.Token, v.Endpoint)
	}
}

func (b *Bot) onMessageReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	b.forwardReaction(s, r.MessageReaction, r.Member)
}

func (b *Bot) onMessageReactionRemove(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
	b.forwardReaction(s, r.MessageReaction, nil)
}

// forwardReaction hands a reaction to the music manager. Adding and
// removing both count as a press.
func (b *Bot) forwardReaction(s *discordgo.Session, r *discordgo.MessageReaction, member *discordgo.Member) {
	if b.music == nil || r == nil {
		return
	}
	self := s.State.User != nil && r.UserID == s.State.User.ID
	b.music.OnReaction(manager.Reaction{
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji.Name,
		Private:   r.GuildID == "",
		UserIsBot: self || isBotMember(s, r.GuildID, r.UserID, member),
	})
}

func isBotMember(s *discordgo.Session, guildID, userID string, member *discordgo.Member) bool {
	if member == nil && guildID != "" {
		member, _ = s.State.Member(guildID, userID)
	}
	return member != nil && member.User != nil && member.User.Bot
}
