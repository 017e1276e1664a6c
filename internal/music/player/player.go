package player

import (
	"errors"
	"time"

	"github.com/keshon/lavaplayer/internal/music/queue"
	"github.com/keshon/lavaplayer/internal/music/track"
)

type PlayerStatus string

const (
	StatusIdle    PlayerStatus = "Idle"
	StatusPlaying PlayerStatus = "Playing"
	StatusPaused  PlayerStatus = "Playback Paused"
	StatusAdded   PlayerStatus = "Track(s) Added"
	StatusStopped PlayerStatus = "Playback Stopped"
	StatusError   PlayerStatus = "Error"
)

func (status PlayerStatus) StringEmoji() string {
	m := map[PlayerStatus]string{
		StatusIdle:    "💤",
		StatusPlaying: "▶️",
		StatusPaused:  "⏸",
		StatusAdded:   "🎶",
		StatusStopped: "⏹",
		StatusError:   "❌",
	}
	return m[status]
}

var (
	ErrNoTrackPlaying  = errors.New("no track is currently playing")
	ErrNoTracksInQueue = errors.New("no tracks in queue")
)

const (
	MinVolume = 0
	MaxVolume = 200
)

// NowPlaying identifies the posted status message carrying the reaction controls.
type NowPlaying struct {
	ChannelID string
	MessageID string
	Radio     bool
}

// Player is the per-guild playback state. All fields are guarded by the
// guild lock held through Registry.Exec.
type Player struct {
	GuildID        string
	VoiceChannelID string
	TextChannelID  string

	Queue    *queue.Queue
	Current  track.Playable
	Volume   int
	Paused   bool
	Looping  bool
	Autoplay bool

	// Connected is false once the voice link is known to be gone.
	Connected  bool
	NowPlaying *NowPlaying

	// Faulted holds the encoded track whose exception was already handled;
	// the node's loadFailed end for it is still due and must not advance.
	Faulted string

	idleTimer *time.Timer
	idleGen   uint64
}

// New creates a connected player bound to the given channels.
func New(guildID, voiceChannelID, textChannelID string, volume int) *Player {
	return &Player{
		GuildID:        guildID,
		VoiceChannelID: voiceChannelID,
		TextChannelID:  textChannelID,
		Queue:          queue.New(),
		Volume:         ClampVolume(volume),
		Connected:      true,
	}
}

// Status derives the playback state.
func (p *Player) Status() PlayerStatus {
	switch {
	case p.Current == nil:
		return StatusIdle
	case p.Paused:
		return StatusPaused
	default:
		return StatusPlaying
	}
}

// IsPlaying reports whether a track is loaded on the node.
func (p *Player) IsPlaying() bool {
	return p.Current != nil
}

// CurrentTrack returns the loaded track, or nil.
func (p *Player) CurrentTrack() *track.Track {
	if p.Current == nil {
		return nil
	}
	return p.Current.Info()
}

// SetVolume stores the clamped volume and returns it.
func (p *Player) SetVolume(v int) int {
	p.Volume = ClampVolume(v)
	return p.Volume
}

// ClampVolume bounds v to [MinVolume, MaxVolume].
func ClampVolume(v int) int {
	if v < MinVolume {
		return MinVolume
	}
	if v > MaxVolume {
		return MaxVolume
	}
	return v
}

// ArmIdle schedules fire after d, cancelling any earlier timer first. The
// callback receives the generation token it was armed with; IdleCurrent
// reports whether that token is still the live one.
func (p *Player) ArmIdle(d time.Duration, fire func(gen uint64)) {
	p.DisarmIdle()
	gen := p.idleGen
	p.idleTimer = time.AfterFunc(d, func() { fire(gen) })
}

// DisarmIdle cancels the pending idle timer and invalidates its token.
// A timer that already fired observes the new generation and does nothing.
func (p *Player) DisarmIdle() {
	if p.idleTimer != nil {
		p.idleTimer.Stop()
		p.idleTimer = nil
	}
	p.idleGen++
}

// IdleArmed reports whether an idle disconnect is pending.
func (p *Player) IdleArmed() bool {
	return p.idleTimer != nil
}

// IdleCurrent reports whether gen belongs to the currently armed timer.
func (p *Player) IdleCurrent(gen uint64) bool {
	return p.idleTimer != nil && p.idleGen == gen
}

// Snapshot is a detached read-only view of a player.
type Snapshot struct {
	GuildID        string
	VoiceChannelID string
	TextChannelID  string
	Status         PlayerStatus
	Current        *track.Track
	Radio          bool
	Queue          []*track.Track
	Volume         int
	Looping        bool
	Autoplay       bool
	Connected      bool
	IdleArmed      bool
}

// Snapshot copies the player state for use outside the guild lock.
func (p *Player) Snapshot() Snapshot {
	s := Snapshot{
		GuildID:        p.GuildID,
		VoiceChannelID: p.VoiceChannelID,
		TextChannelID:  p.TextChannelID,
		Status:         p.Status(),
		Queue:          p.Queue.Items(),
		Volume:         p.Volume,
		Looping:        p.Looping,
		Autoplay:       p.Autoplay,
		Connected:      p.Connected,
		IdleArmed:      p.IdleArmed(),
	}
	if p.Current != nil {
		s.Current = p.Current.Info().Clone()
		s.Radio = p.Current.IsRadio()
	}
	return s
}
