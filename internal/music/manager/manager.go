// Package manager orchestrates one music player per guild: voice connection
// lifecycle, queue and playback state machine, idle disconnects, the
// now-playing message and its reaction controls.
//
// Every mutation of a guild's player runs under that guild's registry lock.
// Node callbacks and gateway events are funneled through a per-guild serial
// dispatcher so they are applied in arrival order.
package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/lavaplayer/internal/lavalink"
	"github.com/keshon/lavaplayer/internal/music/player"
	"github.com/keshon/lavaplayer/internal/music/track"
	"github.com/keshon/lavaplayer/internal/telemetry"
)

var (
	ErrInvalidTarget    = errors.New("guild, voice channel and text channel are required")
	ErrSeekOutOfRange   = errors.New("seek position is out of range")
	ErrRadioNotLoopable = errors.New("radio streams cannot be looped")
	ErrEmptyPlaylist    = errors.New("playlist does not contain any tracks")
)

// Node is the audio node as seen by the manager.
type Node interface {
	Connect(ctx context.Context, guildID, channelID string) error
	Move(ctx context.Context, guildID, channelID string) error
	Disconnect(ctx context.Context, guildID string) error
	Play(ctx context.Context, guildID string, t *track.Track, noReplace bool) error
	Pause(ctx context.Context, guildID string, paused bool) error
	Stop(ctx context.Context, guildID string) error
	Seek(ctx context.Context, guildID string, position time.Duration) error
	SetVolume(ctx context.Context, guildID string, volume int) error
}

// Gateway is the chat side: status messages, reactions and voice presence.
type Gateway interface {
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) (string, error)
	EditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed) error
	DeleteMessage(channelID, messageID string) error
	AddReaction(channelID, messageID, emoji string) error
	CanAddReactions(channelID string) bool
	// UserVoiceChannel returns the voice channel the user is connected to.
	UserVoiceChannel(guildID, userID string) (string, bool)
	// CountListeners counts non-bot users in a voice channel.
	CountListeners(guildID, channelID string) int
}

// Resolver supplies autoplay recommendations.
type Resolver interface {
	FindRelatedTrack(ctx context.Context, t *track.Track) (*track.LoadResult, bool)
}

// Target addresses a player: the guild, where audio goes and where status
// messages are posted.
type Target struct {
	GuildID        string
	VoiceChannelID string
	TextChannelID  string
}

func (t Target) valid() bool {
	return t.GuildID != "" && t.VoiceChannelID != "" && t.TextChannelID != ""
}

type Options struct {
	IdleTimeout   time.Duration
	DefaultVolume int
	VolumeStep    int
	LiveUpdates   bool
	// OpTimeout bounds work started from callbacks rather than callers.
	OpTimeout time.Duration
}

func (o *Options) defaults() {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = time.Minute
	}
	if o.VolumeStep <= 0 {
		o.VolumeStep = 10
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = 15 * time.Second
	}
	o.DefaultVolume = player.ClampVolume(o.DefaultVolume)
}

type Manager struct {
	opts     Options
	node     Node
	gateway  Gateway
	resolver Resolver
	metrics  *telemetry.Metrics
	logger   zerolog.Logger

	registry   *player.Registry
	dispatcher *Dispatcher

	// background reaction attachment
	wg sync.WaitGroup
}

// New builds a manager. resolver and metrics may be nil.
func New(opts Options, node Node, gateway Gateway, resolver Resolver, metrics *telemetry.Metrics, logger zerolog.Logger) *Manager {
	opts.defaults()
	logger = logger.With().Str("component", "music").Logger()
	return &Manager{
		opts:       opts,
		node:       node,
		gateway:    gateway,
		resolver:   resolver,
		metrics:    metrics,
		logger:     logger,
		registry:   player.NewRegistry(),
		dispatcher: NewDispatcher(logger),
	}
}

// Run consumes node events until ctx is cancelled or events is closed.
// Guild events are applied in order per guild; node-wide events are
// handled inline.
func (m *Manager) Run(ctx context.Context, events <-chan lavalink.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.GuildID == "" {
				m.handleNodeEvent(ev)
				continue
			}
			m.dispatcher.Submit(ev.GuildID, func() {
				ctx, cancel := context.WithTimeout(context.Background(), m.opts.OpTimeout)
				defer cancel()
				m.HandleEvent(ctx, ev)
			})
		}
	}
}

// OnVoiceStateUpdate queues a voice presence change for its guild.
func (m *Manager) OnVoiceStateUpdate(u VoiceStateUpdate) {
	m.dispatcher.Submit(u.GuildID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.OpTimeout)
		defer cancel()
		m.HandleVoiceStateUpdate(ctx, u)
	})
}

// OnReaction queues a reaction for its guild.
func (m *Manager) OnReaction(r Reaction) {
	if r.GuildID == "" {
		return
	}
	m.dispatcher.Submit(r.GuildID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.OpTimeout)
		defer cancel()
		m.HandleReaction(ctx, r)
	})
}

// Snapshot returns a read-only copy of the guild's player.
func (m *Manager) Snapshot(guildID string) (player.Snapshot, bool) {
	var (
		snap player.Snapshot
		ok   bool
	)
	_ = m.registry.Exec(guildID, func() error {
		var p *player.Player
		if p, ok = m.registry.TryGet(guildID); ok {
			snap = p.Snapshot()
		}
		return nil
	})
	return snap, ok
}

// Players returns the number of live players.
func (m *Manager) Players() int {
	return m.registry.Len()
}

// Wait blocks until queued events and background work have finished.
func (m *Manager) Wait() {
	m.dispatcher.Wait()
	m.wg.Wait()
}

func (m *Manager) guildLogger(guildID string) *zerolog.Logger {
	l := m.logger.With().Str("guild_id", guildID).Logger()
	return &l
}
