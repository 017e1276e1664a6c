// Package track holds the playable items handled by the music player and the
// node-facing values that describe them.
package track

import (
	"fmt"
	"time"
)

// Track is a playable item as resolved by the audio node. Everything except
// Position is fixed once the track is loaded.
type Track struct {
	Encoded    string
	Identifier string
	URI        string
	Title      string
	Author     string
	Length     time.Duration
	IsStream   bool
	IsSeekable bool
	ArtworkURL string
	SourceName string

	// Position mirrors the node-reported playback position.
	Position time.Duration
}

// Playable is implemented by every item the player can have as its current track.
type Playable interface {
	Info() *Track
	IsRadio() bool
	Loopable() bool
}

// Radio is a continuous stream source. It never enters the queue and cannot loop.
type Radio struct {
	*Track
}

// NewRadio wraps t as a radio item.
func NewRadio(t *Track) *Radio {
	return &Radio{Track: t}
}

func (t *Track) Info() *Track   { return t }
func (t *Track) IsRadio() bool  { return false }
func (t *Track) Loopable() bool { return true }

func (r *Radio) IsRadio() bool  { return true }
func (r *Radio) Loopable() bool { return false }

// ResetPosition rewinds the local position mirror.
func (t *Track) ResetPosition() {
	t.Position = 0
}

// Clone returns a copy that can be handed out for read-only display.
func (t *Track) Clone() *Track {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// DurationText renders the length, or "stream" for live sources.
func (t *Track) DurationText() string {
	if t.IsStream {
		return "stream"
	}
	return FormatDuration(t.Length)
}

// ProgressText renders "position / length" for seekable tracks.
func (t *Track) ProgressText() string {
	if t.IsStream {
		return "stream"
	}
	return FormatDuration(t.Position) + " / " + FormatDuration(t.Length)
}

// FormatDuration formats d as mm:ss, or hh:mm:ss past the hour.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// EndReason is the node-reported cause of a track ending.
type EndReason string

const (
	EndFinished   EndReason = "finished"
	EndLoadFailed EndReason = "loadFailed"
	EndStopped    EndReason = "stopped"
	EndReplaced   EndReason = "replaced"
	EndCleanup    EndReason = "cleanup"
)

// Internal reports reasons that are node bookkeeping and must not advance
// the local player.
func (r EndReason) Internal() bool {
	return r == EndReplaced || r == EndCleanup
}

// LoadType classifies a node load result.
type LoadType string

const (
	LoadTrack    LoadType = "track"
	LoadPlaylist LoadType = "playlist"
	LoadSearch   LoadType = "search"
	LoadEmpty    LoadType = "empty"
	LoadError    LoadType = "error"
)

// LoadResult is the outcome of resolving an identifier or query.
type LoadResult struct {
	Type         LoadType
	PlaylistName string
	Tracks       []*Track
	Err          string
}

// Empty reports whether the result carries nothing playable.
func (r *LoadResult) Empty() bool {
	return r == nil || len(r.Tracks) == 0
}

// First returns the best match, or nil.
func (r *LoadResult) First() *Track {
	if r.Empty() {
		return nil
	}
	return r.Tracks[0]
}
