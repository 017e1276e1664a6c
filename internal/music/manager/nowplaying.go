package manager

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/lavaplayer/internal/music/player"
	"github.com/keshon/lavaplayer/internal/music/sources/youtube"
	"github.com/keshon/lavaplayer/internal/music/track"
)

const (
	EmbedColor   = 0xb01e66
	WarningColor = 0xe0a526

	footerText = "music player"
)

func embedFooter() *discordgo.MessageEmbedFooter {
	return &discordgo.MessageEmbedFooter{Text: footerText}
}

// NowPlayingEmbed renders the status message for the player's current item.
func NowPlayingEmbed(p *player.Player, showProgress bool) *discordgo.MessageEmbed {
	t := p.CurrentTrack()
	if t == nil {
		return &discordgo.MessageEmbed{
			Title:  player.StatusIdle.StringEmoji() + " Nothing playing",
			Color:  EmbedColor,
			Footer: embedFooter(),
		}
	}
	radio := p.Current.IsRadio()

	title := "🎶 Now playing"
	if radio {
		title = "📻 Radio"
	}

	length := t.DurationText()
	if showProgress && !t.IsStream && t.Position > 0 {
		length = t.ProgressText()
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Author", Value: orDash(t.Author), Inline: true},
		{Name: "Length", Value: length, Inline: true},
		{Name: "Volume", Value: fmt.Sprintf("%d%%", p.Volume), Inline: true},
	}
	if !radio {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Looping", Value: yesNo(p.Looping), Inline: true})
	}
	fields = append(fields,
		&discordgo.MessageEmbedField{Name: "Autoplay", Value: yesNo(p.Autoplay), Inline: true},
		&discordgo.MessageEmbedField{Name: "Status", Value: p.Status().StringEmoji() + " " + string(p.Status()), Inline: true},
	)

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: trackLink(t),
		Color:       EmbedColor,
		Fields:      fields,
		Footer:      embedFooter(),
	}
	if thumb := thumbnail(t); thumb != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: thumb}
	}
	return embed
}

// QueueEmbed renders one page of the queue. Pages are 1-based and clamped.
func QueueEmbed(items []*track.Track, page, perPage int) *discordgo.MessageEmbed {
	if perPage <= 0 {
		perPage = 10
	}
	pages := (len(items) + perPage - 1) / perPage
	if pages == 0 {
		pages = 1
	}
	page = min(max(page, 1), pages)

	start := (page - 1) * perPage
	end := min(start+perPage, len(items))

	var sb strings.Builder
	for i := start; i < end; i++ {
		t := items[i]
		fmt.Fprintf(&sb, "`%d.` %s `%s`\n", i+1, trackLink(t), t.DurationText())
	}

	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🎶 Track queue (%d)", len(items)),
		Description: sb.String(),
		Color:       EmbedColor,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%s • page %d/%d", footerText, page, pages)},
	}
}

func infoEmbed(description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Description: description, Color: EmbedColor, Footer: embedFooter()}
}

func warningEmbed(description string, fields ...*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Description: "⚠️ " + description,
		Color:       WarningColor,
		Fields:      fields,
		Footer:      embedFooter(),
	}
}

func addedEmbed(t *track.Track) *discordgo.MessageEmbed {
	e := infoEmbed("🎶 Added to the queue: " + trackLink(t))
	e.Fields = []*discordgo.MessageEmbedField{
		{Name: "Author", Value: orDash(t.Author), Inline: true},
		{Name: "Length", Value: t.DurationText(), Inline: true},
	}
	if thumb := thumbnail(t); thumb != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: thumb}
	}
	return e
}

func trackLink(t *track.Track) string {
	title := t.Title
	if title == "" {
		title = "Unknown title"
	}
	if t.URI == "" {
		return "**" + title + "**"
	}
	return fmt.Sprintf("**[%s](%s)**", title, t.URI)
}

// thumbnail is best effort: artwork from the node, else a derived video thumbnail.
func thumbnail(t *track.Track) string {
	if t.ArtworkURL != "" {
		return t.ArtworkURL
	}
	if u, ok := youtube.ThumbnailURL(t.URI); ok {
		return u
	}
	return ""
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// postNowPlayingLocked replaces the status message with a fresh one and
// attaches the reaction controls in the background.
func (m *Manager) postNowPlayingLocked(p *player.Player) {
	m.deleteNowPlayingLocked(p)
	if p.Current == nil {
		return
	}

	msgID, err := m.gateway.SendEmbed(p.TextChannelID, NowPlayingEmbed(p, false))
	if err != nil {
		m.guildLogger(p.GuildID).Warn().Err(err).Msg("failed to post now playing")
		return
	}
	radio := p.Current.IsRadio()
	p.NowPlaying = &player.NowPlaying{ChannelID: p.TextChannelID, MessageID: msgID, Radio: radio}
	m.attachControls(p.GuildID, p.TextChannelID, msgID, radio)
}

// refreshNowPlayingLocked edits the status message in place.
func (m *Manager) refreshNowPlayingLocked(p *player.Player) {
	np := p.NowPlaying
	if np == nil || p.Current == nil {
		return
	}
	if err := m.gateway.EditEmbed(np.ChannelID, np.MessageID, NowPlayingEmbed(p, m.opts.LiveUpdates)); err != nil {
		m.guildLogger(p.GuildID).Debug().Err(err).Msg("failed to update now playing")
	}
}

func (m *Manager) deleteNowPlayingLocked(p *player.Player) {
	np := p.NowPlaying
	if np == nil {
		return
	}
	p.NowPlaying = nil
	if err := m.gateway.DeleteMessage(np.ChannelID, np.MessageID); err != nil {
		m.guildLogger(p.GuildID).Debug().Err(err).Msg("failed to delete now playing")
	}
}

// attachControls adds the reaction set unless the bot lacks the permission.
func (m *Manager) attachControls(guildID, channelID, messageID string, radio bool) {
	if !m.gateway.CanAddReactions(channelID) {
		m.guildLogger(guildID).Debug().Str("channel_id", channelID).Msg("no permission to add reactions")
		return
	}
	emojis := ControlEmojis(radio)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for _, e := range emojis {
			if err := m.gateway.AddReaction(channelID, messageID, e); err != nil {
				m.guildLogger(guildID).Debug().Err(err).Str("emoji", e).Msg("failed to add reaction")
				return
			}
		}
	}()
}

// post sends a one-off message to the player's text channel.
func (m *Manager) post(p *player.Player, embed *discordgo.MessageEmbed) {
	if _, err := m.gateway.SendEmbed(p.TextChannelID, embed); err != nil {
		m.guildLogger(p.GuildID).Debug().Err(err).Msg("failed to send message")
	}
}
