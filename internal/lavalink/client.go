// Package lavalink is a client for a Lavalink v4 audio node: the websocket
// session that streams player callbacks, the REST API that drives players,
// and the Discord voice handshake forwarding that binds a guild to the node.
package lavalink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/keshon/lavaplayer/internal/music/track"
	"github.com/keshon/lavaplayer/pkg/retrylimit"
)

// ErrNoSession is returned while the websocket session is not established.
var ErrNoSession = errors.New("lavalink: no active session")

// Config describes how to reach the node.
type Config struct {
	Host              string
	Port              int
	Password          string
	Secure            bool
	ClientName        string
	ReconnectAttempts int
	ReconnectInterval time.Duration
	VoiceTimeout      time.Duration
	RESTAttempts      int
}

// VoiceGateway sends voice join/leave ops on the Discord shard owning a guild.
type VoiceGateway interface {
	JoinVoice(guildID, channelID string, selfDeaf bool) error
	BotUserID() string
}

// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *retrylimit.AdaptiveLimiter
	voice   VoiceGateway
	logger  zerolog.Logger
	events  chan Event

	mu        sync.Mutex
	sessionID string
	conn      *websocket.Conn
	guilds    map[string]*voiceState
}

// New creates a client. Run must be called to open the session.
func New(cfg Config, voice VoiceGateway, logger zerolog.Logger) *Client {
	if cfg.ClientName == "" {
		cfg.ClientName = "lavaplayer"
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = 3
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 15 * time.Second
	}
	if cfg.VoiceTimeout <= 0 {
		cfg.VoiceTimeout = 10 * time.Second
	}
	if cfg.RESTAttempts <= 0 {
		cfg.RESTAttempts = 3
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: retrylimit.NewAdaptiveLimiter(20, 5, 50, 1, 0.5),
		voice:   voice,
		logger:  logger.With().Str("component", "lavalink").Logger(),
		events:  make(chan Event, 256),
		guilds:  make(map[string]*voiceState),
	}
}

// Events delivers decoded node callbacks in arrival order.
func (c *Client) Events() <-chan Event {
	return c.events
}

// SessionID returns the current node session, or "" when disconnected.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) httpBase() string {
	scheme := "http"
	if c.cfg.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.cfg.Host, c.cfg.Port)
}

func (c *Client) wsURL() string {
	scheme := "ws"
	if c.cfg.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/v4/websocket", scheme, c.cfg.Host, c.cfg.Port)
}

// Run keeps a websocket session open until ctx is cancelled or the
// configured reconnect attempts are exhausted.
func (c *Client) Run(ctx context.Context) error {
	for {
		conn, err := c.dialWithRetry(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connect to node: %w", err)
		}

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.sessionID = ""
		c.conn = nil
		c.mu.Unlock()
		c.emit(ctx, Event{Type: EventNodeClosed})

		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn().Msg("node session lost, reconnecting")
	}
}

// Close closes the websocket, if open.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return conn.Close()
}

func (c *Client) dialWithRetry(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	rc := retrylimit.DefaultRetryConfig()
	rc.MaxAttempts = c.cfg.ReconnectAttempts
	rc.InitialDelay = c.cfg.ReconnectInterval
	rc.MaxDelay = c.cfg.ReconnectInterval
	rc.Multiplier = 1
	rc.Jitter = false
	rc.OnRetry = func(attempt int, err error) {
		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("node dial failed")
	}

	err := retrylimit.WithRetryConfig(ctx, func() error {
		header := http.Header{}
		header.Set("Authorization", c.cfg.Password)
		header.Set("User-Id", c.voice.BotUserID())
		header.Set("Client-Name", c.cfg.ClientName)

		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		ws, resp, err := dialer.DialContext(ctx, c.wsURL(), header)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return &retrylimit.FatalError{Err: fmt.Errorf("node rejected credentials: %w", err)}
			}
			return err
		}
		conn = ws
		return nil
	}, nil, rc)
	if err != nil {
		var fatal *retrylimit.FatalError
		if errors.As(err, &fatal) {
			return nil, fatal.Err
		}
		return nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.logger.Info().Str("url", c.wsURL()).Msg("node websocket connected")
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("node websocket read failed")
			}
			_ = conn.Close()
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("undecodable node message")
			continue
		}
		c.handleMessage(ctx, &msg)
	}
}

func (c *Client) handleMessage(ctx context.Context, msg *message) {
	switch msg.Op {
	case "ready":
		c.mu.Lock()
		c.sessionID = msg.SessionID
		c.mu.Unlock()
		c.logger.Info().Str("session_id", msg.SessionID).Bool("resumed", msg.Resumed).Msg("node ready")
		c.emit(ctx, Event{Type: EventNodeReady})

	case "playerUpdate":
		if msg.State == nil {
			return
		}
		c.emit(ctx, Event{
			Type:     EventPlayerUpdate,
			GuildID:  msg.GuildID,
			Position: time.Duration(msg.State.Position) * time.Millisecond,
		})

	case "stats":
		c.logger.Debug().Int("players", msg.Players).Msg("node stats")

	case "event":
		ev := Event{
			Type:    EventType(msg.Type),
			GuildID: msg.GuildID,
			Track:   msg.Track.toTrack(),
		}
		switch ev.Type {
		case EventTrackEnd:
			ev.Reason = track.EndReason(msg.Reason)
		case EventTrackException:
			if msg.Exception != nil {
				ev.Error = msg.Exception.Message
			}
		case EventTrackStuck:
			ev.Error = fmt.Sprintf("track stuck for %dms", msg.Threshold)
		case EventVoiceClosed:
			ev.Code = msg.Code
			ev.Error = msg.Reason
		case EventTrackStart:
		default:
			c.logger.Debug().Str("type", msg.Type).Msg("unhandled node event")
			return
		}
		c.emit(ctx, ev)

	default:
		c.logger.Debug().Str("op", msg.Op).Msg("unhandled node op")
	}
}

func (c *Client) emit(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}
