package lavalink

import (
	"context"
	"errors"
	"fmt"
)

// voiceState accumulates the two halves of Discord's voice handshake for a guild.
type voiceState struct {
	channelID string
	sessionID string
	token     string
	endpoint  string

	ready    chan struct{}
	signaled bool
}

func (vs *voiceState) update() *voiceUpdate {
	if vs.sessionID == "" || vs.token == "" || vs.endpoint == "" {
		return nil
	}
	return &voiceUpdate{Token: vs.token, Endpoint: vs.endpoint, SessionID: vs.sessionID}
}

// Connect joins channelID and blocks until the node accepted the voice session.
func (c *Client) Connect(ctx context.Context, guildID, channelID string) error {
	if c.SessionID() == "" {
		return ErrNoSession
	}
	vs := &voiceState{channelID: channelID, ready: make(chan struct{})}
	c.mu.Lock()
	c.guilds[guildID] = vs
	c.mu.Unlock()

	if err := c.voice.JoinVoice(guildID, channelID, true); err != nil {
		return fmt.Errorf("join voice: %w", err)
	}
	return c.awaitVoice(ctx, vs)
}

// Move switches the guild's voice link to another channel.
func (c *Client) Move(ctx context.Context, guildID, channelID string) error {
	c.mu.Lock()
	prev, ok := c.guilds[guildID]
	if !ok {
		c.mu.Unlock()
		return c.Connect(ctx, guildID, channelID)
	}
	vs := &voiceState{
		channelID: channelID,
		token:     prev.token,
		endpoint:  prev.endpoint,
		ready:     make(chan struct{}),
	}
	c.guilds[guildID] = vs
	c.mu.Unlock()

	if err := c.voice.JoinVoice(guildID, channelID, true); err != nil {
		return fmt.Errorf("move voice: %w", err)
	}
	return c.awaitVoice(ctx, vs)
}

// Disconnect leaves voice and destroys the node player. Both steps are
// attempted; their errors are joined.
func (c *Client) Disconnect(ctx context.Context, guildID string) error {
	c.mu.Lock()
	delete(c.guilds, guildID)
	c.mu.Unlock()

	var errs []error
	if err := c.voice.JoinVoice(guildID, "", false); err != nil {
		errs = append(errs, fmt.Errorf("leave voice: %w", err))
	}
	if err := c.destroyPlayer(ctx, guildID); err != nil && !errors.Is(err, ErrNoSession) {
		errs = append(errs, fmt.Errorf("destroy player: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Client) awaitVoice(ctx context.Context, vs *voiceState) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.VoiceTimeout)
	defer cancel()
	select {
	case <-vs.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("voice handshake: %w", ctx.Err())
	}
}

// HandleVoiceStateUpdate consumes VOICE_STATE_UPDATE for the bot user.
func (c *Client) HandleVoiceStateUpdate(guildID, channelID, sessionID string) {
	c.mu.Lock()
	vs, ok := c.guilds[guildID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if channelID == "" {
		delete(c.guilds, guildID)
		c.mu.Unlock()
		return
	}
	vs.channelID = channelID
	vs.sessionID = sessionID
	upd := vs.update()
	c.mu.Unlock()

	c.pushVoice(guildID, vs, upd)
}

// HandleVoiceServerUpdate consumes VOICE_SERVER_UPDATE.
func (c *Client) HandleVoiceServerUpdate(guildID, token, endpoint string) {
	if endpoint == "" {
		return
	}
	c.mu.Lock()
	vs, ok := c.guilds[guildID]
	if !ok {
		c.mu.Unlock()
		return
	}
	vs.token = token
	vs.endpoint = endpoint
	upd := vs.update()
	c.mu.Unlock()

	c.pushVoice(guildID, vs, upd)
}

func (c *Client) pushVoice(guildID string, vs *voiceState, upd *voiceUpdate) {
	if upd == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.VoiceTimeout)
	defer cancel()

	if err := c.updatePlayer(ctx, guildID, playerUpdate{Voice: upd}, false); err != nil {
		c.logger.Warn().Err(err).Str("guild_id", guildID).Msg("voice update rejected by node")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !vs.signaled {
		vs.signaled = true
		close(vs.ready)
	}
}
