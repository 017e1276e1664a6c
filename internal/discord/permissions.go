package discord

import (
	"github.com/bwmarrin/discordgo"
)

// CheckBotPermissions reports whether the bot holds every bit of perm in a channel.
func CheckBotPermissions(s *discordgo.Session, channelID string, perm int64) bool {
	if s.State.User == nil {
		return false
	}
	perms, err := s.State.UserChannelPermissions(s.State.User.ID, channelID)
	if err != nil {
		return false
	}
	return perms&perm == perm
}
