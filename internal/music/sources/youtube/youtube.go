// Package youtube talks to the YouTube Data API for related-video discovery
// and holds the URL helpers shared by the player.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"github.com/keshon/lavaplayer/pkg/retrylimit"
)

const (
	SourceYouTube string = "youtube"

	relatedResults = 6
)

// ErrNoAPIKey is returned when related lookups are attempted without a key.
var ErrNoAPIKey = errors.New("youtube: api key not configured")

// APIError is a non-2xx Data API response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string   { return fmt.Sprintf("youtube: %d %s", e.Status, e.Message) }
func (e *APIError) StatusCode() int { return e.Status }

// Client queries the Data API.
type Client struct {
	svc     *ytapi.Service
	limiter *retrylimit.AdaptiveLimiter
	logger  zerolog.Logger
}

// New builds a Data API client. Without apiKey the client is inert and
// Related reports ErrNoAPIKey. endpoint overrides the API root, e.g.
// "https://youtube.googleapis.com/".
func New(apiKey, endpoint string, logger zerolog.Logger) (*Client, error) {
	c := &Client{
		limiter: retrylimit.NewAdaptiveLimiter(5, 1, 10, 1, 0.5),
		logger:  logger.With().Str("component", "youtube").Logger(),
	}
	if apiKey == "" {
		return c, nil
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := ytapi.NewService(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	c.svc = svc
	return c, nil
}

// Related returns ids of videos related to videoID.
func (c *Client) Related(ctx context.Context, videoID string) ([]string, error) {
	if c.svc == nil {
		return nil, ErrNoAPIKey
	}

	var resp *ytapi.SearchListResponse
	err := retrylimit.WithRetryMax(ctx, func() error {
		var err error
		resp, err = c.svc.Search.List([]string{"snippet"}).
			Type("video").
			MaxResults(relatedResults).
			Context(ctx).
			// relatedToVideoId has no typed setter in the generated client
			Do(googleapi.QueryParameter("relatedToVideoId", videoID))
		if err == nil {
			return nil
		}
		var gerr *googleapi.Error
		if !errors.As(err, &gerr) {
			return err
		}
		apiErr := &APIError{Status: gerr.Code, Message: gerr.Message}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(gerr.Code)
		}
		if gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500 {
			return apiErr
		}
		return &retrylimit.FatalError{Err: apiErr}
	}, c.limiter, 2)
	if err != nil {
		var fatal *retrylimit.FatalError
		if errors.As(err, &fatal) {
			return nil, fatal.Err
		}
		return nil, err
	}

	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			ids = append(ids, item.Id.VideoId)
		}
	}
	c.logger.Debug().Str("video_id", videoID).Int("related", len(ids)).Msg("related lookup")
	return ids, nil
}
