// Package spotify resolves Spotify catalog ids into artist/title pairs that
// the audio node can search for. Authentication uses the client-credentials
// flow; the token is refreshed by a recurring job.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/keshon/lavaplayer/pkg/jobmgr"
)

const (
	SourceSpotify = "spotify"

	refreshJob        = "spotify-token-refresh"
	maxPlaylistTracks = 500
)

var (
	ErrDisabled      = errors.New("spotify: client credentials not configured")
	ErrNotAuthorized = errors.New("spotify: no access token yet")
	spotifyURLRegex  = regexp.MustCompile(`(?:https?://)?open\.spotify\.com/(?:intl-[a-z]+/)?(track|playlist)/([a-zA-Z0-9]+)`)
	spotifyURIRegex  = regexp.MustCompile(`^spotify:(track|playlist):([a-zA-Z0-9]+)$`)
)

// Config holds catalog credentials and endpoints. Empty URLs select the
// public Spotify endpoints.
type Config struct {
	ClientID        string
	ClientSecret    string
	TokenURL        string
	APIURL          string
	RefreshInterval time.Duration
}

// Entry is a catalog track reduced to what a text search needs.
type Entry struct {
	ID      string
	Name    string
	Artists []string
}

// Query builds the free-text search for the entry.
func (e Entry) Query() string {
	if len(e.Artists) == 0 {
		return e.Name
	}
	return e.Name + " " + e.Artists[0]
}

// Catalog is safe for concurrent use.
type Catalog struct {
	cfg    Config
	logger zerolog.Logger

	mu     sync.RWMutex
	client *spotify.Client
}

func New(cfg Config, logger zerolog.Logger) *Catalog {
	if cfg.TokenURL == "" {
		cfg.TokenURL = spotifyauth.TokenURL
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Hour
	}
	return &Catalog{
		cfg:    cfg,
		logger: logger.With().Str("component", "spotify").Logger(),
	}
}

// Enabled reports whether credentials were supplied.
func (c *Catalog) Enabled() bool {
	return c.cfg.ClientID != "" && c.cfg.ClientSecret != ""
}

// Start refreshes the token now and then on the configured interval.
func (c *Catalog) Start(jobs *jobmgr.Manager) error {
	if !c.Enabled() {
		c.logger.Info().Msg("spotify credentials missing, catalog lookups disabled")
		return nil
	}
	return jobs.Every(refreshJob, c.cfg.RefreshInterval, true, c.Refresh)
}

// Refresh exchanges the client credentials for a fresh bearer token.
func (c *Catalog) Refresh(ctx context.Context) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	cc := &clientcredentials.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		TokenURL:     c.cfg.TokenURL,
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		return fmt.Errorf("spotify token exchange: %w", err)
	}

	opts := []spotify.ClientOption{spotify.WithRetry(true)}
	if c.cfg.APIURL != "" {
		opts = append(opts, spotify.WithBaseURL(c.cfg.APIURL))
	}
	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(tok))

	c.mu.Lock()
	c.client = spotify.New(httpClient, opts...)
	c.mu.Unlock()

	c.logger.Info().Time("expiry", tok.Expiry).Msg("spotify token refreshed")
	return nil
}

func (c *Catalog) api() (*spotify.Client, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, ErrNotAuthorized
	}
	return c.client, nil
}

// Track looks up a single catalog track.
func (c *Catalog) Track(ctx context.Context, id string) (Entry, error) {
	api, err := c.api()
	if err != nil {
		return Entry{}, err
	}
	ft, err := api.GetTrack(ctx, spotify.ID(id))
	if err != nil {
		return Entry{}, fmt.Errorf("spotify track %s: %w", id, err)
	}
	return toEntry(&ft.SimpleTrack), nil
}

// Search runs a catalog track search.
func (c *Catalog) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	res, err := api.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("spotify search: %w", err)
	}
	if res.Tracks == nil {
		return nil, nil
	}
	out := make([]Entry, 0, len(res.Tracks.Tracks))
	for i := range res.Tracks.Tracks {
		out = append(out, toEntry(&res.Tracks.Tracks[i].SimpleTrack))
	}
	return out, nil
}

// Playlist returns the playlist name and its tracks, skipping episodes.
func (c *Catalog) Playlist(ctx context.Context, id string) (string, []Entry, error) {
	api, err := c.api()
	if err != nil {
		return "", nil, err
	}
	pl, err := api.GetPlaylist(ctx, spotify.ID(id))
	if err != nil {
		return "", nil, fmt.Errorf("spotify playlist %s: %w", id, err)
	}

	items, err := api.GetPlaylistItems(ctx, spotify.ID(id), spotify.Limit(100))
	if err != nil {
		return "", nil, fmt.Errorf("spotify playlist items %s: %w", id, err)
	}

	var entries []Entry
	for {
		for _, it := range items.Items {
			if it.Track.Track != nil {
				entries = append(entries, toEntry(&it.Track.Track.SimpleTrack))
			}
		}
		if len(entries) >= maxPlaylistTracks {
			entries = entries[:maxPlaylistTracks]
			break
		}
		err := api.NextPage(ctx, items)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("spotify playlist page: %w", err)
		}
	}
	return pl.Name, entries, nil
}

func toEntry(t *spotify.SimpleTrack) Entry {
	e := Entry{ID: string(t.ID), Name: t.Name}
	for _, a := range t.Artists {
		e.Artists = append(e.Artists, a.Name)
	}
	return e
}

// Kind of catalog object a link points at.
type Kind string

const (
	KindTrack    Kind = "track"
	KindPlaylist Kind = "playlist"
)

// ParseID extracts the object kind and id from an open.spotify.com link or
// a spotify: URI.
func ParseID(input string) (Kind, string, bool) {
	input = strings.TrimSpace(input)
	if m := spotifyURIRegex.FindStringSubmatch(input); m != nil {
		return Kind(m[1]), m[2], true
	}
	if m := spotifyURLRegex.FindStringSubmatch(input); m != nil {
		return Kind(m[1]), m[2], true
	}
	return "", "", false
}
