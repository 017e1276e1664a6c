// Package discord owns the gateway sessions. It forwards voice and reaction
// events to the audio node and the music manager and implements the chat
// side of the player: status messages, reactions and voice presence.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/lavaplayer/internal/music/manager"
)

const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsDirectMessageReactions

// VoiceSink receives the bot's voice handshake.
type VoiceSink interface {
	HandleVoiceStateUpdate(guildID, channelID, sessionID string)
	HandleVoiceServerUpdate(guildID, token, endpoint string)
}

// MusicSink receives player-relevant gateway events.
type MusicSink interface {
	OnVoiceStateUpdate(u manager.VoiceStateUpdate)
	OnReaction(r manager.Reaction)
}

type Config struct {
	Token      string
	ShardCount int
}

// Bot is a set of shard sessions sharing one token.
type Bot struct {
	sessions []*discordgo.Session
	gate     *ReadyGate
	voice    VoiceSink
	music    MusicSink
	logger   zerolog.Logger
}

// New prepares one session per shard. Nothing connects until Open.
func New(cfg Config, logger zerolog.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord token is empty")
	}
	shards := max(cfg.ShardCount, 1)

	b := &Bot{
		gate:   NewReadyGate(shards),
		logger: logger.With().Str("component", "discord").Logger(),
	}
	bridgeLogs(b.logger)

	for i := range shards {
		s, err := discordgo.New("Bot " + cfg.Token)
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		s.ShardID = i
		s.ShardCount = shards
		s.Identify.Intents = intents
		s.AddHandler(b.onReady)
		s.AddHandler(b.onVoiceStateUpdate)
		s.AddHandler(b.onVoiceServerUpdate)
		s.AddHandler(b.onMessageReactionAdd)
		s.AddHandler(b.onMessageReactionRemove)
		b.sessions = append(b.sessions, s)
	}
	return b, nil
}

// Attach wires the event consumers. Call it before Open.
func (b *Bot) Attach(voice VoiceSink, music MusicSink) {
	b.voice = voice
	b.music = music
}

// Open connects every shard.
func (b *Bot) Open() error {
	for _, s := range b.sessions {
		if err := s.Open(); err != nil {
			_ = b.Close()
			return fmt.Errorf("failed to open shard %d: %w", s.ShardID, err)
		}
	}
	return nil
}

// WaitReady blocks until every shard reported ready.
func (b *Bot) WaitReady(ctx context.Context) error {
	return b.gate.Wait(ctx)
}

// Close disconnects every shard; errors are joined.
func (b *Bot) Close() error {
	var errs []error
	for _, s := range b.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BotUserID is the bot's own user id once a shard is ready.
func (b *Bot) BotUserID() string {
	for _, s := range b.sessions {
		if s.State != nil && s.State.User != nil {
			return s.State.User.ID
		}
	}
	return ""
}

// session returns the shard session that owns guildID.
func (b *Bot) session(guildID string) *discordgo.Session {
	return b.sessions[shardFor(guildID, len(b.sessions))]
}

func shardFor(guildID string, shards int) int {
	id, err := strconv.ParseUint(guildID, 10, 64)
	if err != nil || shards <= 1 {
		return 0
	}
	return int((id >> 22) % uint64(shards))
}
