package manager

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/keshon/lavaplayer/internal/lavalink"
	"github.com/keshon/lavaplayer/internal/music/player"
	"github.com/keshon/lavaplayer/internal/music/track"
)

func endEvent(t *track.Track, reason track.EndReason) lavalink.Event {
	return lavalink.Event{Type: lavalink.EventTrackEnd, GuildID: guildID, Track: t.Clone(), Reason: reason}
}

func TestAddTrackThenFinish(t *testing.T) {
	h := newHarness(t, Options{})
	a, b := mkTrack("A"), mkTrack("B")

	if err := h.m.AddTrack(h.ctx, target, a); err != nil {
		t.Fatal(err)
	}
	if got := h.n.Calls()[0]; got != "connect:"+voiceID {
		t.Fatalf("first node call = %q, want connect", got)
	}
	if v := h.snapshot(t); v.current != "A" || v.queue != 0 {
		t.Fatalf("after A: %+v", v)
	}

	if err := h.m.AddTrack(h.ctx, target, b); err != nil {
		t.Fatal(err)
	}
	if v := h.snapshot(t); v.current != "A" || v.queue != 1 {
		t.Fatalf("after B: %+v", v)
	}

	h.m.HandleEvent(h.ctx, endEvent(a, track.EndFinished))
	if v := h.snapshot(t); v.current != "B" || v.queue != 0 {
		t.Fatalf("after A finished: %+v", v)
	}
	if got := h.n.Played(); !slices.Equal(got, []string{"A", "B"}) {
		t.Fatalf("played %v", got)
	}

	// B's status message replaced A's.
	deleted := h.g.Deleted()
	if len(deleted) != 1 {
		t.Fatalf("deleted %v, want A's status message", deleted)
	}

	h.m.HandleEvent(h.ctx, endEvent(b, track.EndFinished))
	if v := h.snapshot(t); v.current != "" {
		t.Fatalf("expected idle, got %+v", v)
	}
	if len(h.g.Deleted()) != 2 {
		t.Fatal("idle player must remove its status message")
	}
}

func TestLoopReplaysSameTrack(t *testing.T) {
	h := newHarness(t, Options{})
	a, b := mkTrack("A"), mkTrack("B")
	_ = h.m.AddTrack(h.ctx, target, a)
	_ = h.m.AddTrack(h.ctx, target, b)
	if looping, err := h.m.ToggleLoop(h.ctx, target); err != nil || !looping {
		t.Fatalf("ToggleLoop = %v, %v", looping, err)
	}

	h.m.HandleEvent(h.ctx, lavalink.Event{Type: lavalink.EventPlayerUpdate, GuildID: guildID, Position: 90 * time.Second})
	h.m.HandleEvent(h.ctx, endEvent(a, track.EndFinished))

	s, _ := h.m.Snapshot(guildID)
	if s.Current.Title != "A" || s.Current.Position != 0 {
		t.Fatalf("current = %+v, want A at 0", s.Current)
	}
	if len(s.Queue) != 1 || s.Queue[0].Title != "B" {
		t.Fatalf("queue touched: %v", s.Queue)
	}
	if got := h.n.Played(); !slices.Equal(got, []string{"A", "A"}) {
		t.Fatalf("played %v", got)
	}
}

func TestSkipBypassesLoop(t *testing.T) {
	h := newHarness(t, Options{})
	_ = h.m.AddTrack(h.ctx, target, mkTrack("A"))
	_ = h.m.AddTrack(h.ctx, target, mkTrack("B"))
	_, _ = h.m.ToggleLoop(h.ctx, target)

	if err := h.m.Skip(h.ctx, target); err != nil {
		t.Fatal(err)
	}
	if v := h.snapshot(t); v.current != "B" {
		t.Fatalf("current = %q, want B", v.current)
	}
}

func TestAutoplayFallbackWarnsOnce(t *testing.T) {
	h := newHarness(t, Options{})
	a := mkTrack("A")
	_ = h.m.AddTrack(h.ctx, target, a)
	if on, _ := h.m.ToggleAutoplay(h.ctx, target); !on {
		t.Fatal("autoplay not enabled")
	}

	h.m.HandleEvent(h.ctx, endEvent(a, track.EndFinished))
	// a late duplicate must not retry the lookup
	h.m.HandleEvent(h.ctx, endEvent(a, track.EndFinished))

	if v := h.snapshot(t); v.current != "" {
		t.Fatalf("expected idle, got %+v", v)
	}
	if h.r.calls != 1 {
		t.Fatalf("related lookups = %d, want 1", h.r.calls)
	}
	if n := h.g.warnings(); n != 1 {
		t.Fatalf("warnings = %d, want 1", n)
	}
}

func TestAutoplayPlaysRelated(t *testing.T) {
	h := newHarness(t, Options{})
	h.r.result = &track.LoadResult{Type: track.LoadTrack, Tracks: []*track.Track{mkTrack("R")}}
	a := mkTrack("A")
	_ = h.m.AddTrack(h.ctx, target, a)
	_, _ = h.m.ToggleAutoplay(h.ctx, target)

	h.m.HandleEvent(h.ctx, endEvent(a, track.EndFinished))
	if v := h.snapshot(t); v.current != "R" {
		t.Fatalf("current = %q, want R", v.current)
	}
}

func TestStaleAndInternalEndsIgnored(t *testing.T) {
	h := newHarness(t, Options{})
	a, b := mkTrack("A"), mkTrack("B")
	_ = h.m.AddTrack(h.ctx, target, a)
	_ = h.m.AddTrack(h.ctx, target, b)

	h.m.HandleEvent(h.ctx, endEvent(a, track.EndReplaced))
	h.m.HandleEvent(h.ctx, endEvent(a, track.EndCleanup))
	h.m.HandleEvent(h.ctx, endEvent(mkTrack("other"), track.EndFinished))

	if v := h.snapshot(t); v.current != "A" || v.queue != 1 {
		t.Fatalf("state changed: %+v", v)
	}
}

func TestTrackExceptionWarnsAndSkips(t *testing.T) {
	h := newHarness(t, Options{})
	a, b := mkTrack("A"), mkTrack("B")
	_ = h.m.AddTrack(h.ctx, target, a)
	_ = h.m.AddTrack(h.ctx, target, b)

	h.m.HandleEvent(h.ctx, lavalink.Event{Type: lavalink.EventTrackException, GuildID: guildID, Track: a.Clone(), Error: "video unavailable"})
	if v := h.snapshot(t); v.current != "B" {
		t.Fatalf("current = %q, want B", v.current)
	}
	// the node follows up with loadFailed for A
	h.m.HandleEvent(h.ctx, endEvent(a, track.EndLoadFailed))
	if v := h.snapshot(t); v.current != "B" {
		t.Fatalf("stale end advanced the player: %+v", v)
	}

	var warned bool
	for _, msg := range h.g.Sent() {
		if msg.Embed.Color != WarningColor {
			continue
		}
		warned = true
		if msg.Embed.Fields[0].Value != "**"+a.URI+"**" || msg.Embed.Fields[1].Value != "video unavailable" {
			t.Fatalf("warning fields = %+v", msg.Embed.Fields)
		}
	}
	if !warned {
		t.Fatal("no warning posted")
	}
}

func TestStuckOnLastTrackGoesIdle(t *testing.T) {
	h := newHarness(t, Options{})
	a := mkTrack("A")
	_ = h.m.AddTrack(h.ctx, target, a)

	h.m.HandleEvent(h.ctx, lavalink.Event{Type: lavalink.EventTrackStuck, GuildID: guildID, Track: a.Clone()})
	if v := h.snapshot(t); v.current != "" {
		t.Fatalf("expected idle, got %+v", v)
	}
	if calls := h.n.Calls(); calls[len(calls)-1] != "stop" {
		t.Fatalf("node not stopped: %v", calls)
	}
}

func TestVolumeClamps(t *testing.T) {
	h := newHarness(t, Options{DefaultVolume: 50})
	_ = h.m.AddTrack(h.ctx, target, mkTrack("A"))

	tests := []struct {
		in, want int
	}{
		{250, player.MaxVolume},
		{-10, player.MinVolume},
		{75, 75},
	}
	for _, tt := range tests {
		got, err := h.m.SetVolume(h.ctx, target, tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want || h.n.LastVolume() != tt.want {
			t.Errorf("SetVolume(%d) = %d (node %d), want %d", tt.in, got, h.n.LastVolume(), tt.want)
		}
	}
}

func TestConnectFailureCommitsNothing(t *testing.T) {
	h := newHarness(t, Options{})
	h.n.connectErr = errBoom

	if err := h.m.AddTrack(h.ctx, target, mkTrack("A")); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}
	if h.m.Players() != 0 {
		t.Fatal("player committed after failed connect")
	}
	if h.n.Disconnects() != 1 {
		t.Fatal("half-open connection not cleaned up")
	}
}

func TestConnectMovesExistingPlayer(t *testing.T) {
	h := newHarness(t, Options{})
	_ = h.m.AddTrack(h.ctx, target, mkTrack("A"))

	moved := Target{GuildID: guildID, VoiceChannelID: "v2", TextChannelID: textID}
	h.g.setListeners("v2", 1)
	snap, err := h.m.Connect(h.ctx, moved)
	if err != nil {
		t.Fatal(err)
	}
	if snap.VoiceChannelID != "v2" || snap.Current == nil || snap.Current.Title != "A" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !slices.Contains(h.n.Calls(), "move:v2") {
		t.Fatalf("calls = %v", h.n.Calls())
	}
	if h.m.Players() != 1 {
		t.Fatal("move created a second player")
	}
}

func TestInvalidTarget(t *testing.T) {
	h := newHarness(t, Options{})
	if _, err := h.m.Connect(h.ctx, Target{GuildID: guildID}); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("err = %v", err)
	}
}

func TestRadio(t *testing.T) {
	h := newHarness(t, Options{})
	_ = h.m.AddTrack(h.ctx, target, mkTrack("A"))
	_ = h.m.AddTrack(h.ctx, target, mkTrack("B"))

	stream := mkTrack("FM")
	stream.IsStream = true
	if err := h.m.PlayRadio(h.ctx, target, stream); err != nil {
		t.Fatal(err)
	}
	s, _ := h.m.Snapshot(guildID)
	if !s.Radio || len(s.Queue) != 0 {
		t.Fatalf("snapshot = %+v", s)
	}
	if _, err := h.m.ToggleLoop(h.ctx, target); !errors.Is(err, ErrRadioNotLoopable) {
		t.Fatalf("ToggleLoop err = %v", err)
	}

	h.m.Wait()
	sent := h.g.Sent()
	radioMsg := sent[len(sent)-1].ID
	if got := h.g.Reactions(radioMsg); slices.Contains(got, EmojiLoop) || len(got) != 4 {
		t.Fatalf("radio reactions = %v", got)
	}
}

func TestAddPlaylist(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.m.AddPlaylist(h.ctx, target, "empty", nil); !errors.Is(err, ErrEmptyPlaylist) {
		t.Fatalf("err = %v", err)
	}

	tracks := []*track.Track{mkTrack("A"), mkTrack("B"), mkTrack("C")}
	if err := h.m.AddPlaylist(h.ctx, target, "mix", tracks); err != nil {
		t.Fatal(err)
	}
	if v := h.snapshot(t); v.current != "A" || v.queue != 2 {
		t.Fatalf("after playlist: %+v", v)
	}
	if err := h.m.AddPlaylist(h.ctx, target, "more", []*track.Track{mkTrack("D")}); err != nil {
		t.Fatal(err)
	}
	if v := h.snapshot(t); v.queue != 3 {
		t.Fatalf("queue = %d, want 3", v.queue)
	}
}

func TestStopKeepsConnection(t *testing.T) {
	h := newHarness(t, Options{})
	a := mkTrack("A")
	_ = h.m.AddTrack(h.ctx, target, a)
	_ = h.m.AddTrack(h.ctx, target, mkTrack("B"))

	if err := h.m.Stop(h.ctx, target); err != nil {
		t.Fatal(err)
	}
	// the node's "stopped" end refers to a track that is no longer current
	h.m.HandleEvent(h.ctx, endEvent(a, track.EndStopped))

	if v := h.snapshot(t); v.current != "" || v.queue != 0 {
		t.Fatalf("after stop: %+v", v)
	}
	if h.n.Disconnects() != 0 {
		t.Fatal("stop must not disconnect")
	}
}

func TestPauseResumeAndSeek(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.m.Pause(h.ctx, target); !errors.Is(err, player.ErrNoTrackPlaying) {
		t.Fatalf("pause idle err = %v", err)
	}
	_ = h.m.AddTrack(h.ctx, target, mkTrack("A"))

	if err := h.m.Pause(h.ctx, target); err != nil {
		t.Fatal(err)
	}
	if s, _ := h.m.Snapshot(guildID); s.Status != player.StatusPaused {
		t.Fatalf("status = %s", s.Status)
	}
	if err := h.m.Resume(h.ctx, target); err != nil {
		t.Fatal(err)
	}

	if err := h.m.Seek(h.ctx, target, 4*time.Minute); !errors.Is(err, ErrSeekOutOfRange) {
		t.Fatalf("seek past end err = %v", err)
	}
	if err := h.m.Seek(h.ctx, target, time.Minute); err != nil {
		t.Fatal(err)
	}
	if s, _ := h.m.Snapshot(guildID); s.Current.Position != time.Minute {
		t.Fatalf("position = %v", s.Current.Position)
	}
	want := []string{"pause:true", "pause:false", "seek:1m0s"}
	calls := h.n.Calls()
	if !slices.Equal(calls[len(calls)-3:], want) {
		t.Fatalf("calls = %v", calls)
	}
}

func TestShuffleAndClear(t *testing.T) {
	h := newHarness(t, Options{})
	_ = h.m.AddTrack(h.ctx, target, mkTrack("A"))
	if err := h.m.Shuffle(h.ctx, target); !errors.Is(err, player.ErrNoTracksInQueue) {
		t.Fatalf("shuffle empty err = %v", err)
	}
	for _, title := range []string{"B", "C", "D"} {
		_ = h.m.AddTrack(h.ctx, target, mkTrack(title))
	}
	if err := h.m.Shuffle(h.ctx, target); err != nil {
		t.Fatal(err)
	}
	if v := h.snapshot(t); v.current != "A" || v.queue != 3 {
		t.Fatalf("after shuffle: %+v", v)
	}
	_ = h.m.Clear(h.ctx, target)
	if v := h.snapshot(t); v.queue != 0 {
		t.Fatalf("after clear: %+v", v)
	}
}

func TestPlayerUpdateLiveRefresh(t *testing.T) {
	h := newHarness(t, Options{LiveUpdates: true})
	_ = h.m.AddTrack(h.ctx, target, mkTrack("A"))
	h.m.HandleEvent(h.ctx, lavalink.Event{Type: lavalink.EventPlayerUpdate, GuildID: guildID, Position: 30 * time.Second})
	sent := h.g.Sent()
	if h.g.Edits(sent[len(sent)-1].ID) != 1 {
		t.Fatal("status message not refreshed")
	}
	if s, _ := h.m.Snapshot(guildID); s.Current.Position != 30*time.Second {
		t.Fatalf("position = %v", s.Current.Position)
	}
}

func TestVoiceClosedDisconnects(t *testing.T) {
	h := newHarness(t, Options{})
	_ = h.m.AddTrack(h.ctx, target, mkTrack("A"))

	h.m.HandleEvent(h.ctx, lavalink.Event{Type: lavalink.EventVoiceClosed, GuildID: guildID, Code: 4000})
	if h.m.Players() != 1 {
		t.Fatal("resumable close dropped the player")
	}
	h.m.HandleEvent(h.ctx, lavalink.Event{Type: lavalink.EventVoiceClosed, GuildID: guildID, Code: 4014})
	if h.m.Players() != 0 {
		t.Fatal("player kept after 4014")
	}
}

func TestDisconnectAll(t *testing.T) {
	h := newHarness(t, Options{})
	for _, g := range []string{"g1", "g2", "g3"} {
		if _, err := h.m.Connect(h.ctx, Target{GuildID: g, VoiceChannelID: voiceID, TextChannelID: textID}); err != nil {
			t.Fatal(err)
		}
	}
	h.m.DisconnectAll(h.ctx)
	if h.m.Players() != 0 || h.n.Disconnects() != 3 {
		t.Fatalf("players = %d, disconnects = %d", h.m.Players(), h.n.Disconnects())
	}
}

func TestRunDispatchesEvents(t *testing.T) {
	h := newHarness(t, Options{})
	a := mkTrack("A")
	_ = h.m.AddTrack(h.ctx, target, a)
	_ = h.m.AddTrack(h.ctx, target, mkTrack("B"))

	events := make(chan lavalink.Event, 1)
	events <- endEvent(a, track.EndFinished)
	close(events)

	if err := h.m.Run(h.ctx, events); err != nil {
		t.Fatal(err)
	}
	h.m.Wait()
	if got := h.n.Played(); !slices.Equal(got, []string{"A", "B"}) {
		t.Fatalf("played %v", got)
	}
}

func TestNodeLossDropsPlayers(t *testing.T) {
	h := newHarness(t, Options{})
	_ = h.m.AddTrack(h.ctx, target, mkTrack("A"))

	events := make(chan lavalink.Event, 1)
	events <- lavalink.Event{Type: lavalink.EventNodeClosed}
	close(events)
	_ = h.m.Run(h.ctx, events)

	if h.m.Players() != 0 {
		t.Fatal("players survived node loss")
	}
}

func TestPlayRadioFailureKeepsPlayback(t *testing.T) {
	h := newHarness(t, Options{})
	a, b := mkTrack("A"), mkTrack("B")
	_ = h.m.AddTrack(h.ctx, target, a)
	_ = h.m.AddTrack(h.ctx, target, b)
	_, _ = h.m.ToggleLoop(h.ctx, target)
	h.n.mu.Lock()
	h.n.playErr = map[string]error{"R": errBoom}
	h.n.mu.Unlock()

	if err := h.m.PlayRadio(h.ctx, target, mkTrack("R")); !errors.Is(err, errBoom) {
		t.Fatalf("PlayRadio err = %v", err)
	}
	if v := h.snapshot(t); v.current != "A" || v.queue != 1 || !v.looping {
		t.Fatalf("state changed by failed radio start: %+v", v)
	}
	if slices.Contains(h.n.Calls(), "stop") {
		t.Fatal("node must not be stopped")
	}

	if err := h.m.Skip(h.ctx, target); err != nil {
		t.Fatalf("Skip after failed radio: %v", err)
	}
	if v := h.snapshot(t); v.current != "B" {
		t.Fatalf("current = %q, want B", v.current)
	}
}

func TestExceptionWithDuplicateQueued(t *testing.T) {
	h := newHarness(t, Options{})
	first, again, c := mkTrack("A"), mkTrack("A"), mkTrack("C")
	_ = h.m.AddTrack(h.ctx, target, first)
	_ = h.m.AddTrack(h.ctx, target, again)
	_ = h.m.AddTrack(h.ctx, target, c)

	h.m.HandleEvent(h.ctx, lavalink.Event{Type: lavalink.EventTrackException, GuildID: guildID, Track: first.Clone(), Error: "video unavailable"})
	h.m.HandleEvent(h.ctx, endEvent(first, track.EndLoadFailed))

	if v := h.snapshot(t); v.current != "A" || v.queue != 1 {
		t.Fatalf("after loadFailed of the faulted copy: %+v", v)
	}
	if got := h.n.Played(); !slices.Equal(got, []string{"A", "A"}) {
		t.Fatalf("played %v", got)
	}

	// the second copy still advances normally
	h.m.HandleEvent(h.ctx, endEvent(again, track.EndFinished))
	if v := h.snapshot(t); v.current != "C" || v.queue != 0 {
		t.Fatalf("after second A finished: %+v", v)
	}
}

func TestStartFailureFallsThroughQueue(t *testing.T) {
	h := newHarness(t, Options{})
	a, b, c := mkTrack("A"), mkTrack("B"), mkTrack("C")
	_ = h.m.AddTrack(h.ctx, target, a)
	_ = h.m.AddTrack(h.ctx, target, b)
	_ = h.m.AddTrack(h.ctx, target, c)
	h.n.mu.Lock()
	h.n.playErr = map[string]error{"B": errBoom}
	h.n.mu.Unlock()

	h.m.HandleEvent(h.ctx, endEvent(a, track.EndFinished))
	if v := h.snapshot(t); v.current != "C" || v.queue != 0 {
		t.Fatalf("after A finished: %+v", v)
	}
	if h.g.warnings() != 1 {
		t.Fatalf("warnings = %d, want 1", h.g.warnings())
	}
}
