package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/keshon/lavaplayer/internal/music/player"
	"github.com/keshon/lavaplayer/internal/music/track"
)

const queuePageSize = 10

// AddTrack plays t right away on an idle player, otherwise appends it to
// the queue and announces it.
func (m *Manager) AddTrack(ctx context.Context, target Target, t *track.Track) error {
	if t == nil {
		return player.ErrNoTrackPlaying
	}
	return m.registry.Exec(target.GuildID, func() error {
		p, err := m.ensureLocked(ctx, target)
		if err != nil {
			return err
		}
		if p.IsPlaying() {
			p.Queue.Enqueue(t)
			m.post(p, addedEmbed(t))
			return nil
		}
		return m.startLocked(ctx, p, t)
	})
}

// AddPlaylist queues every track, starting the first one on an idle player.
func (m *Manager) AddPlaylist(ctx context.Context, target Target, name string, tracks []*track.Track) error {
	return m.registry.Exec(target.GuildID, func() error {
		p, err := m.ensureLocked(ctx, target)
		if err != nil {
			return err
		}
		if len(tracks) == 0 {
			m.post(p, warningEmbed("The loaded playlist does not contain any tracks"))
			return ErrEmptyPlaylist
		}

		if p.IsPlaying() {
			p.Queue.Enqueue(tracks...)
			m.post(p, infoEmbed(fmt.Sprintf("🎶 Added `%d` tracks from `%s`", len(tracks), name)))
			return nil
		}
		first, rest := tracks[0], tracks[1:]
		p.Queue.Enqueue(rest...)
		m.post(p, infoEmbed(fmt.Sprintf("🎶 Added `%d` tracks from `%s`", len(rest), name)))
		return m.startLocked(ctx, p, first)
	})
}

// PlayRadio replaces whatever is playing with a stream and clears the queue.
func (m *Manager) PlayRadio(ctx context.Context, target Target, t *track.Track) error {
	if t == nil {
		return player.ErrNoTrackPlaying
	}
	return m.registry.Exec(target.GuildID, func() error {
		p, err := m.ensureLocked(ctx, target)
		if err != nil {
			return err
		}
		if err := m.startLocked(ctx, p, track.NewRadio(t)); err != nil {
			return err
		}
		p.Queue.Clear()
		p.Looping = false
		return nil
	})
}

// Stop clears the queue and unloads the current track. The player stays
// connected.
func (m *Manager) Stop(ctx context.Context, target Target) error {
	return m.registry.Exec(target.GuildID, func() error {
		p, err := m.ensureLocked(ctx, target)
		if err != nil {
			return err
		}
		p.Queue.Clear()
		if !p.IsPlaying() {
			return nil
		}
		m.idleLocked(ctx, p, true)
		return nil
	})
}

// ToggleLoop flips looping of the current track and returns the new value.
func (m *Manager) ToggleLoop(ctx context.Context, target Target) (bool, error) {
	var looping bool
	err := m.registry.Exec(target.GuildID, func() error {
		p, err := m.ensureLocked(ctx, target)
		if err != nil {
			return err
		}
		if p.Current != nil && !p.Current.Loopable() {
			return ErrRadioNotLoopable
		}
		p.Looping = !p.Looping
		looping = p.Looping
		m.refreshNowPlayingLocked(p)
		return nil
	})
	return looping, err
}

// ToggleAutoplay flips autoplay, confirms it in the text channel and
// returns the new value.
func (m *Manager) ToggleAutoplay(ctx context.Context, target Target) (bool, error) {
	var autoplay bool
	err := m.registry.Exec(target.GuildID, func() error {
		p, err := m.ensureLocked(ctx, target)
		if err != nil {
			return err
		}
		p.Autoplay = !p.Autoplay
		autoplay = p.Autoplay
		state := "disabled"
		if autoplay {
			state = "enabled"
		}
		m.post(p, infoEmbed("🎶 Autoplay "+state))
		m.refreshNowPlayingLocked(p)
		return nil
	})
	return autoplay, err
}

func (m *Manager) Shuffle(ctx context.Context, target Target) error {
	return m.registry.Exec(target.GuildID, func() error {
		p, err := m.ensureLocked(ctx, target)
		if err != nil {
			return err
		}
		if p.Queue.Count() == 0 {
			return player.ErrNoTracksInQueue
		}
		p.Queue.Shuffle()
		return nil
	})
}

func (m *Manager) Clear(ctx context.Context, target Target) error {
	return m.registry.Exec(target.GuildID, func() error {
		p, err := m.ensureLocked(ctx, target)
		if err != nil {
			return err
		}
		p.Queue.Clear()
		return nil
	})
}

func (m *Manager) Pause(ctx context.Context, target Target) error {
	return m.pauseOp(ctx, target, true)
}

func (m *Manager) Resume(ctx context.Context, target Target) error {
	return m.pauseOp(ctx, target, false)
}

func (m *Manager) pauseOp(ctx context.Context, target Target, paused bool) error {
	return m.registry.Exec(target.GuildID, func() error {
		p, err := m.ensureLocked(ctx, target)
		if err != nil {
			return err
		}
		if !p.IsPlaying() {
			return player.ErrNoTrackPlaying
		}
		if p.Paused == paused {
			return nil
		}
		if err := m.setPausedLocked(ctx, p, paused); err != nil {
			return err
		}
		m.refreshNowPlayingLocked(p)
		return nil
	})
}

// Skip ends the current track regardless of looping and moves on.
func (m *Manager) Skip(ctx context.Context, target Target) error {
	return m.registry.Exec(target.GuildID, func() error {
		p, err := m.ensureLocked(ctx, target)
		if err != nil {
			return err
		}
		if !p.IsPlaying() {
			return player.ErrNoTrackPlaying
		}
		return m.skipLocked(ctx, p)
	})
}

// SetVolume clamps v to the allowed range, applies it and returns the
// effective volume. An idle player keeps the value for the next track.
func (m *Manager) SetVolume(ctx context.Context, target Target, v int) (int, error) {
	var applied int
	err := m.registry.Exec(target.GuildID, func() error {
		p, err := m.ensureLocked(ctx, target)
		if err != nil {
			return err
		}
		applied = m.setVolumeLocked(ctx, p, v)
		m.refreshNowPlayingLocked(p)
		return nil
	})
	return applied, err
}

// Seek moves within the current track.
func (m *Manager) Seek(ctx context.Context, target Target, position time.Duration) error {
	return m.registry.Exec(target.GuildID, func() error {
		p, err := m.ensureLocked(ctx, target)
		if err != nil {
			return err
		}
		t := p.CurrentTrack()
		if t == nil {
			return player.ErrNoTrackPlaying
		}
		if t.IsStream || !t.IsSeekable || position < 0 || position > t.Length {
			return ErrSeekOutOfRange
		}
		if err := m.node.Seek(ctx, p.GuildID, position); err != nil {
			return fmt.Errorf("seek: %w", err)
		}
		t.Position = position
		m.refreshNowPlayingLocked(p)
		return nil
	})
}

// Queue returns a snapshot of the guild's player including its queue.
func (m *Manager) Queue(guildID string) (player.Snapshot, bool) {
	return m.Snapshot(guildID)
}

// SendQueue posts one page of the queue to the target's text channel.
func (m *Manager) SendQueue(ctx context.Context, target Target, page int) error {
	return m.registry.Exec(target.GuildID, func() error {
		p, err := m.ensureLocked(ctx, target)
		if err != nil {
			return err
		}
		items := p.Queue.Items()
		if len(items) == 0 {
			m.post(p, infoEmbed("🎶 The track queue is empty"))
			return nil
		}
		m.post(p, QueueEmbed(items, page, queuePageSize))
		return nil
	})
}

func (m *Manager) setPausedLocked(ctx context.Context, p *player.Player, paused bool) error {
	if err := m.node.Pause(ctx, p.GuildID, paused); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	p.Paused = paused
	return nil
}

func (m *Manager) setVolumeLocked(ctx context.Context, p *player.Player, v int) int {
	applied := p.SetVolume(v)
	if p.IsPlaying() {
		if err := m.node.SetVolume(ctx, p.GuildID, applied); err != nil {
			m.guildLogger(p.GuildID).Warn().Err(err).Msg("volume not applied")
		}
	}
	return applied
}

// startLocked makes item the current track and posts a fresh status message.
// When the node refuses the track the player is left exactly as it was.
func (m *Manager) startLocked(ctx context.Context, p *player.Player, item track.Playable) error {
	t := item.Info()
	t.ResetPosition()
	if err := m.node.Play(ctx, p.GuildID, t, false); err != nil {
		return fmt.Errorf("play %q: %w", t.Title, err)
	}
	p.Current = item
	p.Paused = false
	p.Faulted = ""
	if err := m.node.SetVolume(ctx, p.GuildID, p.Volume); err != nil {
		m.guildLogger(p.GuildID).Debug().Err(err).Msg("volume not applied")
	}
	m.guildLogger(p.GuildID).Info().Str("title", t.Title).Bool("radio", item.IsRadio()).Msg("playing")
	m.postNowPlayingLocked(p)
	return nil
}

// skipLocked leaves the current track without honoring loop.
func (m *Manager) skipLocked(ctx context.Context, p *player.Player) error {
	last := p.CurrentTrack()
	return m.advanceLocked(ctx, p, last, true)
}

// advanceLocked picks what follows last: the queue head, then an autoplay
// recommendation, else the player goes idle. nodeActive tells whether the
// node still has last loaded and must be stopped when nothing follows.
func (m *Manager) advanceLocked(ctx context.Context, p *player.Player, last *track.Track, nodeActive bool) error {
	log := m.guildLogger(p.GuildID)

	for {
		next, ok := p.Queue.TryDequeue()
		if !ok {
			break
		}
		err := m.startLocked(ctx, p, next)
		if err == nil {
			return nil
		}
		log.Warn().Err(err).Msg("queued track failed to start, trying the next one")
		m.post(p, warningEmbed("Could not play track", trackField(next)))
	}

	if p.Autoplay {
		res, found := m.findRelated(ctx, last)
		m.metrics.Autoplay(found)
		if found {
			first := res.First()
			if res.Type == track.LoadPlaylist {
				p.Queue.Enqueue(res.Tracks[1:]...)
			}
			err := m.startLocked(ctx, p, first)
			if err == nil {
				return nil
			}
			log.Warn().Err(err).Msg("related track failed to start")
		}
		m.idleLocked(ctx, p, nodeActive)
		m.post(p, warningEmbed("Autoplay could not find a related track"))
		return nil
	}

	m.idleLocked(ctx, p, nodeActive)
	return nil
}

func (m *Manager) findRelated(ctx context.Context, last *track.Track) (*track.LoadResult, bool) {
	if m.resolver == nil {
		return nil, false
	}
	res, ok := m.resolver.FindRelatedTrack(ctx, last)
	if !ok || res.Empty() {
		return nil, false
	}
	return res, true
}

// idleLocked clears the current track and removes the status message.
func (m *Manager) idleLocked(ctx context.Context, p *player.Player, stopNode bool) {
	p.Current = nil
	p.Paused = false
	m.deleteNowPlayingLocked(p)
	if stopNode {
		if err := m.node.Stop(ctx, p.GuildID); err != nil {
			m.guildLogger(p.GuildID).Warn().Err(err).Msg("stop failed")
		}
	}
}
