package manager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/lavaplayer/internal/music/track"
)

type fakeNode struct {
	mu          sync.Mutex
	calls       []string
	played      []string
	volumes     []int
	connectErr  error
	playErr     map[string]error
	disconnects int
}

func (n *fakeNode) record(call string) {
	n.calls = append(n.calls, call)
}

func (n *fakeNode) Connect(ctx context.Context, guildID, channelID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.record("connect:" + channelID)
	return n.connectErr
}

func (n *fakeNode) Move(ctx context.Context, guildID, channelID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.record("move:" + channelID)
	return nil
}

func (n *fakeNode) Disconnect(ctx context.Context, guildID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.record("disconnect")
	n.disconnects++
	return nil
}

func (n *fakeNode) Play(ctx context.Context, guildID string, t *track.Track, noReplace bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.record("play:" + t.Title)
	if err := n.playErr[t.Title]; err != nil {
		return err
	}
	n.played = append(n.played, t.Title)
	return nil
}

func (n *fakeNode) Pause(ctx context.Context, guildID string, paused bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.record(fmt.Sprintf("pause:%t", paused))
	return nil
}

func (n *fakeNode) Stop(ctx context.Context, guildID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.record("stop")
	return nil
}

func (n *fakeNode) Seek(ctx context.Context, guildID string, position time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.record("seek:" + position.String())
	return nil
}

func (n *fakeNode) SetVolume(ctx context.Context, guildID string, volume int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.volumes = append(n.volumes, volume)
	return nil
}

func (n *fakeNode) Played() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.played)
}

func (n *fakeNode) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.calls)
}

func (n *fakeNode) Disconnects() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.disconnects
}

func (n *fakeNode) LastVolume() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.volumes) == 0 {
		return -1
	}
	return n.volumes[len(n.volumes)-1]
}

type sentMessage struct {
	ChannelID string
	ID        string
	Embed     *discordgo.MessageEmbed
}

type fakeGateway struct {
	mu          sync.Mutex
	nextID      int
	sent        []sentMessage
	edits       map[string]int
	deleted     []string
	reactions   map[string][]string
	noReactions bool
	listeners   map[string]int
	userVoice   map[string]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		edits:     make(map[string]int),
		reactions: make(map[string][]string),
		listeners: make(map[string]int),
		userVoice: make(map[string]string),
	}
}

func (g *fakeGateway) SendEmbed(channelID string, embed *discordgo.MessageEmbed) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	id := fmt.Sprintf("msg-%d", g.nextID)
	g.sent = append(g.sent, sentMessage{ChannelID: channelID, ID: id, Embed: embed})
	return id, nil
}

func (g *fakeGateway) EditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edits[messageID]++
	return nil
}

func (g *fakeGateway) DeleteMessage(channelID, messageID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, messageID)
	return nil
}

func (g *fakeGateway) AddReaction(channelID, messageID, emoji string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reactions[messageID] = append(g.reactions[messageID], emoji)
	return nil
}

func (g *fakeGateway) CanAddReactions(channelID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.noReactions
}

func (g *fakeGateway) UserVoiceChannel(guildID, userID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.userVoice[userID]
	return ch, ok
}

func (g *fakeGateway) CountListeners(guildID, channelID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.listeners[channelID]
}

func (g *fakeGateway) setListeners(channelID string, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners[channelID] = n
}

func (g *fakeGateway) Sent() []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.sent)
}

func (g *fakeGateway) Deleted() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.deleted)
}

func (g *fakeGateway) Reactions(messageID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.reactions[messageID])
}

func (g *fakeGateway) Edits(messageID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.edits[messageID]
}

// warnings counts posted warning embeds.
func (g *fakeGateway) warnings() int {
	n := 0
	for _, m := range g.Sent() {
		if m.Embed.Color == WarningColor {
			n++
		}
	}
	return n
}

type fakeResolver struct {
	mu     sync.Mutex
	result *track.LoadResult
	calls  int
}

func (r *fakeResolver) FindRelatedTrack(ctx context.Context, t *track.Track) (*track.LoadResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.result == nil {
		return nil, false
	}
	return r.result, true
}

var errBoom = errors.New("boom")

const (
	guildID = "g1"
	voiceID = "v1"
	textID  = "t1"
	userID  = "u1"
)

var target = Target{GuildID: guildID, VoiceChannelID: voiceID, TextChannelID: textID}

func mkTrack(title string) *track.Track {
	return &track.Track{
		Encoded:    "enc-" + title,
		Title:      title,
		Author:     "artist",
		URI:        "https://example.com/" + title,
		Length:     3 * time.Minute,
		IsSeekable: true,
	}
}

type harness struct {
	m   *Manager
	n   *fakeNode
	g   *fakeGateway
	r   *fakeResolver
	ctx context.Context
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		n:   &fakeNode{},
		g:   newFakeGateway(),
		r:   &fakeResolver{},
		ctx: context.Background(),
	}
	h.g.setListeners(voiceID, 1)
	h.g.userVoice[userID] = voiceID
	h.m = New(opts, h.n, h.g, h.r, nil, zerolog.Nop())
	t.Cleanup(h.m.Wait)
	return h
}

func (h *harness) snapshot(t *testing.T) playerView {
	t.Helper()
	s, ok := h.m.Snapshot(guildID)
	if !ok {
		t.Fatal("expected a player")
	}
	v := playerView{queue: len(s.Queue), volume: s.Volume, looping: s.Looping}
	if s.Current != nil {
		v.current = s.Current.Title
	}
	return v
}

type playerView struct {
	current string
	queue   int
	volume  int
	looping bool
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
