// Package soundcloud recognizes SoundCloud links and names the node search
// prefix for SoundCloud text queries.
package soundcloud

import (
	"net/url"
	"strings"
)

const (
	SourceSoundCloud = "soundcloud"
	SearchPrefix     = "scsearch:"
)

// IsURL reports whether input links to soundcloud.com.
func IsURL(input string) bool {
	u, err := url.Parse(strings.TrimSpace(input))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	return host == "soundcloud.com" || host == "on.soundcloud.com"
}

// IsSet reports whether a playlist ("set") URL was given.
func IsSet(input string) bool {
	return IsURL(input) && strings.Contains(input, "/sets/")
}
