package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// SendEmbed posts an embed and returns the message id.
func (b *Bot) SendEmbed(channelID string, embed *discordgo.MessageEmbed) (string, error) {
	msg, err := b.sessions[0].ChannelMessageSendEmbed(channelID, embed)
	if err != nil {
		return "", fmt.Errorf("send embed: %w", err)
	}
	return msg.ID, nil
}

func (b *Bot) EditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed) error {
	if _, err := b.sessions[0].ChannelMessageEditEmbed(channelID, messageID, embed); err != nil {
		return fmt.Errorf("edit embed: %w", err)
	}
	return nil
}

func (b *Bot) DeleteMessage(channelID, messageID string) error {
	if err := b.sessions[0].ChannelMessageDelete(channelID, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (b *Bot) AddReaction(channelID, messageID, emoji string) error {
	if err := b.sessions[0].MessageReactionAdd(channelID, messageID, emoji); err != nil {
		return fmt.Errorf("add reaction: %w", err)
	}
	return nil
}

// CanAddReactions checks the bot's permissions in a cached channel.
func (b *Bot) CanAddReactions(channelID string) bool {
	for _, s := range b.sessions {
		if _, err := s.State.Channel(channelID); err == nil {
			return CheckBotPermissions(s, channelID, discordgo.PermissionAddReactions|discordgo.PermissionReadMessageHistory)
		}
	}
	return false
}

// UserVoiceChannel looks the user up in the shard's voice state cache.
func (b *Bot) UserVoiceChannel(guildID, userID string) (string, bool) {
	vs, err := b.session(guildID).State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", false
	}
	return vs.ChannelID, true
}

func (b *Bot) CountListeners(guildID, channelID string) int {
	s := b.session(guildID)
	selfID := ""
	if s.State.User != nil {
		selfID = s.State.User.ID
	}
	return countListeners(s.State, selfID, guildID, channelID)
}

// countListeners counts users in channelID other than the bot and other bots.
func countListeners(state *discordgo.State, selfID, guildID, channelID string) int {
	guild, err := state.Guild(guildID)
	if err != nil {
		return 0
	}
	n := 0
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID || vs.UserID == selfID {
			continue
		}
		member := vs.Member
		if member == nil {
			member, _ = state.Member(guildID, vs.UserID)
		}
		if member != nil && member.User != nil && member.User.Bot {
			continue
		}
		n++
	}
	return n
}

// JoinVoice sends the voice state update on the shard owning the guild.
// An empty channelID leaves voice.
func (b *Bot) JoinVoice(guildID, channelID string, selfDeaf bool) error {
	return b.session(guildID).ChannelVoiceJoinManual(guildID, channelID, false, selfDeaf)
}
