package lavalink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/keshon/lavaplayer/internal/music/track"
	"github.com/keshon/lavaplayer/pkg/retrylimit"
)

// RESTError is a non-2xx response from the node REST API.
type RESTError struct {
	Status  int
	Message string
}

func (e *RESTError) Error() string {
	return fmt.Sprintf("lavalink: %d %s", e.Status, e.Message)
}

func (e *RESTError) StatusCode() int { return e.Status }

// LoadTracks resolves an identifier (URL or "ytsearch:" query) on the node.
func (c *Client) LoadTracks(ctx context.Context, identifier string) (*track.LoadResult, error) {
	var resp loadResponse
	path := "/v4/loadtracks?identifier=" + url.QueryEscape(identifier)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	res := &track.LoadResult{Type: track.LoadType(resp.LoadType)}
	switch res.Type {
	case track.LoadTrack:
		var wt wireTrack
		if err := json.Unmarshal(resp.Data, &wt); err != nil {
			return nil, fmt.Errorf("decode track: %w", err)
		}
		res.Tracks = []*track.Track{wt.toTrack()}
	case track.LoadPlaylist:
		var pd playlistData
		if err := json.Unmarshal(resp.Data, &pd); err != nil {
			return nil, fmt.Errorf("decode playlist: %w", err)
		}
		res.PlaylistName = pd.Info.Name
		res.Tracks = convertTracks(pd.Tracks)
	case track.LoadSearch:
		var wts []wireTrack
		if err := json.Unmarshal(resp.Data, &wts); err != nil {
			return nil, fmt.Errorf("decode search: %w", err)
		}
		res.Tracks = convertTracks(wts)
	case track.LoadError:
		var ex wireException
		_ = json.Unmarshal(resp.Data, &ex)
		res.Err = ex.Message
	}
	return res, nil
}

func convertTracks(in []wireTrack) []*track.Track {
	out := make([]*track.Track, 0, len(in))
	for i := range in {
		out = append(out, in[i].toTrack())
	}
	return out
}

// Play starts t from the beginning. With noReplace the node keeps an
// already playing track.
func (c *Client) Play(ctx context.Context, guildID string, t *track.Track, noReplace bool) error {
	enc := t.Encoded
	pos := int64(0)
	paused := false
	return c.updatePlayer(ctx, guildID, playerUpdate{
		Track:    &trackUpdate{Encoded: &enc},
		Position: &pos,
		Paused:   &paused,
	}, noReplace)
}

func (c *Client) Pause(ctx context.Context, guildID string, paused bool) error {
	return c.updatePlayer(ctx, guildID, playerUpdate{Paused: &paused}, false)
}

// Stop unloads the current track. The node answers with a "stopped" end event.
func (c *Client) Stop(ctx context.Context, guildID string) error {
	return c.updatePlayer(ctx, guildID, playerUpdate{Track: &trackUpdate{Encoded: nil}}, false)
}

func (c *Client) Seek(ctx context.Context, guildID string, position time.Duration) error {
	ms := position.Milliseconds()
	return c.updatePlayer(ctx, guildID, playerUpdate{Position: &ms}, false)
}

func (c *Client) SetVolume(ctx context.Context, guildID string, volume int) error {
	return c.updatePlayer(ctx, guildID, playerUpdate{Volume: &volume}, false)
}

func (c *Client) updatePlayer(ctx context.Context, guildID string, body playerUpdate, noReplace bool) error {
	sid := c.SessionID()
	if sid == "" {
		return ErrNoSession
	}
	path := fmt.Sprintf("/v4/sessions/%s/players/%s?noReplace=%t", sid, guildID, noReplace)
	return c.do(ctx, http.MethodPatch, path, body, nil)
}

func (c *Client) destroyPlayer(ctx context.Context, guildID string) error {
	sid := c.SessionID()
	if sid == "" {
		return ErrNoSession
	}
	path := fmt.Sprintf("/v4/sessions/%s/players/%s", sid, guildID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// do performs one REST call with adaptive backoff on 429 and 5xx responses.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	err := retrylimit.WithRetryMax(ctx, func() error {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.httpBase()+path, rd)
		if err != nil {
			return &retrylimit.FatalError{Err: err}
		}
		req.Header.Set("Authorization", c.cfg.Password)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			var er errorResponse
			_ = json.NewDecoder(resp.Body).Decode(&er)
			msg := er.Message
			if msg == "" {
				msg = http.StatusText(resp.StatusCode)
			}
			restErr := &RESTError{Status: resp.StatusCode, Message: msg}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return restErr
			}
			return &retrylimit.FatalError{Err: restErr}
		}

		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &retrylimit.FatalError{Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	}, c.limiter, c.cfg.RESTAttempts)

	var fatal *retrylimit.FatalError
	if errors.As(err, &fatal) {
		return fatal.Err
	}
	return err
}
