// Package resolver turns user input, catalog ids and finished tracks into
// playable node tracks. Every lookup degrades to "nothing found" instead of
// failing: callers receive ok=false and render their own message.
package resolver

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/keshon/lavaplayer/internal/music/sources/radio"
	"github.com/keshon/lavaplayer/internal/music/sources/soundcloud"
	"github.com/keshon/lavaplayer/internal/music/sources/spotify"
	"github.com/keshon/lavaplayer/internal/music/sources/youtube"
	"github.com/keshon/lavaplayer/internal/music/track"
	"github.com/keshon/lavaplayer/internal/storage"
	"github.com/keshon/lavaplayer/pkg/util"
)

const (
	searchPrefix      = "ytsearch:"
	playlistWorkers   = 4
	catalogSearchSize = 5
)

// Loader resolves identifiers on the audio node.
type Loader interface {
	LoadTracks(ctx context.Context, identifier string) (*track.LoadResult, error)
}

// Catalog is the music catalog used to turn ids into search terms.
type Catalog interface {
	Track(ctx context.Context, id string) (spotify.Entry, error)
	Playlist(ctx context.Context, id string) (string, []spotify.Entry, error)
	Search(ctx context.Context, query string, limit int) ([]spotify.Entry, error)
}

// StreamChecker confirms a link serves live audio and returns its final URL.
type StreamChecker interface {
	Check(ctx context.Context, rawURL string) (string, error)
}

// Source forces the search backend for text input.
type Source string

const (
	SourceAuto       Source = ""
	SourceYouTube    Source = "youtube"
	SourceSoundCloud Source = soundcloud.SourceSoundCloud
)

// RelatedSource discovers videos related to a video id.
type RelatedSource interface {
	Related(ctx context.Context, videoID string) ([]string, error)
}

type Resolver struct {
	loader  Loader
	catalog Catalog
	related RelatedSource
	store   storage.RecommendationStore
	streams StreamChecker
	logger  zerolog.Logger
}

// New wires the resolver. catalog, related and store may be nil; the
// corresponding lookups then report nothing found.
func New(loader Loader, catalog Catalog, related RelatedSource, store storage.RecommendationStore, logger zerolog.Logger) *Resolver {
	return &Resolver{
		loader:  loader,
		catalog: catalog,
		related: related,
		store:   store,
		streams: radio.NewValidator(),
		logger:  logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve handles free-form input: catalog links, direct URLs or search text.
func (r *Resolver) Resolve(ctx context.Context, input string) (*track.LoadResult, bool) {
	return r.ResolveFrom(ctx, input, SourceAuto)
}

// ResolveFrom is Resolve with the text search sent to src. Links ignore src.
func (r *Resolver) ResolveFrom(ctx context.Context, input string, src Source) (*track.LoadResult, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, false
	}

	if kind, id, ok := spotify.ParseID(input); ok {
		switch kind {
		case spotify.KindTrack:
			t, ok := r.ResolveCatalogTrack(ctx, id)
			if !ok {
				return nil, false
			}
			return &track.LoadResult{Type: track.LoadTrack, Tracks: []*track.Track{t}}, true
		case spotify.KindPlaylist:
			return r.ResolveCatalogPlaylist(ctx, id)
		}
	}

	identifier := input
	if !isLink(input) {
		identifier = searchPrefixFor(src) + input
	} else if youtube.IsYouTubeURL(input) && !strings.Contains(input, "list=") {
		identifier = youtube.CleanVideoURL(input)
	}
	return r.load(ctx, identifier)
}

// ResolveRadio validates a stream link and loads it as a single live item.
func (r *Resolver) ResolveRadio(ctx context.Context, rawURL string) (*track.Track, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if !isLink(rawURL) {
		return nil, false
	}
	final, err := r.streams.Check(ctx, rawURL)
	if err != nil {
		r.logger.Debug().Err(err).Str("url", rawURL).Msg("radio link rejected")
		return nil, false
	}
	res, ok := r.load(ctx, final)
	if !ok {
		return nil, false
	}
	t := res.First()
	t.IsStream = true
	t.IsSeekable = false
	return t, true
}

// ResolveCatalogTrack exchanges a catalog id for artist/title and returns the
// node's first search match.
func (r *Resolver) ResolveCatalogTrack(ctx context.Context, catalogID string) (*track.Track, bool) {
	if r.catalog == nil {
		return nil, false
	}
	entry, err := r.catalog.Track(ctx, catalogID)
	if err != nil {
		r.logger.Debug().Err(err).Str("catalog_id", catalogID).Msg("catalog track lookup failed")
		return nil, false
	}
	return r.searchFirst(ctx, entry.Query())
}

// SearchCatalog searches the catalog and resolves its best match.
func (r *Resolver) SearchCatalog(ctx context.Context, query string) (*track.Track, bool) {
	if r.catalog == nil {
		return nil, false
	}
	entries, err := r.catalog.Search(ctx, query, catalogSearchSize)
	if err != nil || len(entries) == 0 {
		if err != nil {
			r.logger.Debug().Err(err).Str("query", query).Msg("catalog search failed")
		}
		return nil, false
	}
	return r.searchFirst(ctx, entries[0].Query())
}

// ResolveCatalogPlaylist resolves every playlist entry, keeping catalog
// order and dropping entries the node cannot find.
func (r *Resolver) ResolveCatalogPlaylist(ctx context.Context, playlistID string) (*track.LoadResult, bool) {
	if r.catalog == nil {
		return nil, false
	}
	name, entries, err := r.catalog.Playlist(ctx, playlistID)
	if err != nil || len(entries) == 0 {
		if err != nil {
			r.logger.Debug().Err(err).Str("playlist_id", playlistID).Msg("catalog playlist lookup failed")
		}
		return nil, false
	}

	type job struct {
		idx   int
		entry spotify.Entry
	}
	jobs := make([]job, len(entries))
	for i, e := range entries {
		jobs[i] = job{i, e}
	}

	resolved := make([]*track.Track, len(entries))
	var mu sync.Mutex
	err = util.Parallel(ctx, jobs, playlistWorkers, func(ctx context.Context, j job) error {
		t, ok := r.searchFirst(ctx, j.entry.Query())
		if ok {
			mu.Lock()
			resolved[j.idx] = t
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		r.logger.Debug().Err(err).Msg("playlist resolution interrupted")
	}

	res := &track.LoadResult{Type: track.LoadPlaylist, PlaylistName: name}
	for _, t := range resolved {
		if t != nil {
			res.Tracks = append(res.Tracks, t)
		}
	}
	if len(res.Tracks) == 0 {
		r.logger.Debug().Str("playlist", name).Msg("no playlist entry resolved")
		return nil, false
	}
	return res, true
}

// FindRelatedTrack picks a recommendation to follow t. YouTube tracks use the
// related-video lookup; anything else, or a failed lookup, samples a
// previously stored recommendation.
func (r *Resolver) FindRelatedTrack(ctx context.Context, t *track.Track) (*track.LoadResult, bool) {
	if t != nil {
		if id, ok := youtube.VideoID(t.URI); ok {
			if res, ok := r.relatedFromPlatform(ctx, id); ok {
				return res, true
			}
		}
	}
	return r.relatedFromStore(ctx)
}

func (r *Resolver) relatedFromPlatform(ctx context.Context, videoID string) (*track.LoadResult, bool) {
	if r.related == nil {
		return nil, false
	}
	ids, err := r.related.Related(ctx, videoID)
	if err != nil {
		r.logger.Debug().Err(err).Str("video_id", videoID).Msg("related lookup failed")
		return nil, false
	}

	candidates := ids[:0:0]
	for _, id := range ids {
		if id != videoID {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	if r.store != nil {
		if err := r.store.SaveVideoIDs(ctx, candidates...); err != nil {
			r.logger.Warn().Err(err).Msg("failed to persist recommendations")
		}
	}

	pick := candidates[rand.IntN(len(candidates))]
	return r.load(ctx, youtube.WatchURL(pick))
}

func (r *Resolver) relatedFromStore(ctx context.Context) (*track.LoadResult, bool) {
	if r.store == nil {
		return nil, false
	}
	id, err := r.store.RandomVideoID(ctx)
	if err != nil {
		r.logger.Debug().Err(err).Msg("no stored recommendation")
		return nil, false
	}
	return r.load(ctx, youtube.WatchURL(id))
}

func isLink(input string) bool {
	return strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
}

func searchPrefixFor(src Source) string {
	if src == SourceSoundCloud {
		return soundcloud.SearchPrefix
	}
	return searchPrefix
}

func (r *Resolver) searchFirst(ctx context.Context, query string) (*track.Track, bool) {
	res, ok := r.load(ctx, searchPrefix+query)
	if !ok {
		return nil, false
	}
	return res.First(), true
}

func (r *Resolver) load(ctx context.Context, identifier string) (*track.LoadResult, bool) {
	res, err := r.loader.LoadTracks(ctx, identifier)
	if err != nil {
		r.logger.Debug().Err(err).Str("identifier", identifier).Msg("load failed")
		return nil, false
	}
	if res.Type == track.LoadError {
		r.logger.Debug().Str("identifier", identifier).Str("error", res.Err).Msg("node could not load")
		return nil, false
	}
	if res.Empty() {
		return nil, false
	}
	return res, true
}
