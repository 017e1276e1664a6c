// Package radio checks that a link points at a live audio stream before it
// is handed to the node as a radio item.
package radio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

var ErrNotStream = errors.New("radio: not an audio stream")

var validContentTypes = []string{
	"audio/",
	"video/",
	"application/vnd.apple.mpegurl",
	"application/x-mpegurl",
	"application/ogg",
	"application/x-scpls",
	"application/xspf+xml",
	"application/octet-stream", // risky but often used for streams
}

// Validator checks stream links by content type and playlist extension.
type Validator struct {
	Client *http.Client
}

func NewValidator() *Validator {
	return &Validator{
		Client: &http.Client{
			Timeout: 5 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
	}
}

// Check returns the final URL after redirects when rawURL looks like a
// stream or a stream playlist.
func (v *Validator) Check(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: %q is not an http url", ErrNotStream, rawURL)
	}

	contentType, finalURL, err := v.fetchContentType(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("check stream %s: %w", rawURL, err)
	}
	if isAllowedType(contentType) || isLikelyPlaylist(finalURL) {
		return finalURL, nil
	}
	return "", fmt.Errorf("%w: content-type %q at %s", ErrNotStream, contentType, finalURL)
}

func (v *Validator) fetchContentType(ctx context.Context, rawURL string) (string, string, error) {
	resp, err := v.do(ctx, http.MethodHead, rawURL)
	if err != nil || resp.StatusCode >= 400 {
		if resp != nil {
			resp.Body.Close()
		}
		// some stream servers reject HEAD
		resp, err = v.do(ctx, http.MethodGet, rawURL)
		if err != nil {
			return "", "", err
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return "", "", fmt.Errorf("status %d", resp.StatusCode)
		}
	}
	defer resp.Body.Close()
	// never drain a live stream
	_, _ = io.CopyN(io.Discard, resp.Body, 512)

	return resp.Header.Get("Content-Type"), resp.Request.URL.String(), nil
}

func (v *Validator) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	return v.Client.Do(req)
}

func isAllowedType(contentType string) bool {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	for _, allowed := range validContentTypes {
		if strings.HasPrefix(contentType, allowed) {
			return true
		}
	}
	return false
}

func isLikelyPlaylist(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".m3u", ".m3u8", ".pls", ".xspf", ".asx":
		return true
	}
	return false
}
