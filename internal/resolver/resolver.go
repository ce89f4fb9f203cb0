// Package resolver turns user-supplied URLs into media references without
// touching the network.
package resolver

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"mediascribe/internal/domain"
)

var (
	bareVideoIDRE  = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	videoIDRE      = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}`)
	videoParamRE   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	playlistIDRE   = regexp.MustCompile(`^[a-zA-Z0-9_-]{2,64}$`)
	acastSegmentRE = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	appleShowRE    = regexp.MustCompile(`^id(\d+)$`)
	numericRE      = regexp.MustCompile(`^\d+$`)
)

var youtubeHosts = map[string]bool{
	"youtube.com":              true,
	"www.youtube.com":          true,
	"m.youtube.com":            true,
	"music.youtube.com":        true,
	"youtube-nocookie.com":     true,
	"www.youtube-nocookie.com": true,
}

// youtubePathPrefixes are path shapes that carry the video ID as the next segment.
var youtubePathPrefixes = []string{"embed", "shorts", "live", "v"}

// Resolve parses raw into a media reference for any supported platform.
func Resolve(raw string) (domain.MediaReference, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return domain.MediaReference{}, fmt.Errorf("%w: empty input", domain.ErrInvalidURL)
	}

	if bareVideoIDRE.MatchString(input) {
		return domain.MediaReference{
			SourceURL:   "https://www.youtube.com/watch?v=" + input,
			Platform:    domain.PlatformYouTube,
			CanonicalID: input,
		}, nil
	}

	u, err := parseLoose(input)
	if err != nil {
		return domain.MediaReference{}, fmt.Errorf("%w: %s", domain.ErrInvalidURL, input)
	}

	host := strings.ToLower(u.Hostname())
	var (
		ref domain.MediaReference
		ok  bool
	)
	switch {
	case youtubeHosts[host]:
		ref, ok = resolveYouTube(u)
	case host == "youtu.be" || host == "www.youtu.be":
		ref, ok = resolveShortLink(u)
	case host == "shows.acast.com" || host == "embed.acast.com":
		ref, ok = resolveAcast(u)
	case host == "podcasts.apple.com":
		ref, ok = resolveApple(u)
	}
	if !ok {
		return domain.MediaReference{}, fmt.Errorf("%w: unrecognized url %s", domain.ErrInvalidURL, input)
	}

	ref.SourceURL = input
	return ref, nil
}

// ResolveFor resolves raw and rejects references outside the allowed platforms.
func ResolveFor(raw string, allowed ...domain.Platform) (domain.MediaReference, error) {
	ref, err := Resolve(raw)
	if err != nil {
		return domain.MediaReference{}, err
	}
	for _, p := range allowed {
		if ref.Platform == p {
			return ref, nil
		}
	}
	return domain.MediaReference{}, fmt.Errorf("%w: unsupported platform %s for %s", domain.ErrInvalidURL, ref.Platform, raw)
}

// parseLoose accepts URLs with or without a scheme.
func parseLoose(input string) (*url.URL, error) {
	if !strings.Contains(input, "://") {
		input = "https://" + input
	}
	u, err := url.Parse(input)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host")
	}
	return u, nil
}

func pathSegments(u *url.URL) []string {
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func resolveYouTube(u *url.URL) (domain.MediaReference, bool) {
	query := u.Query()
	segments := pathSegments(u)

	// v= longer than an ID keeps its first 11 characters; shorter values are taken as-is.
	if v := query.Get("v"); v != "" {
		if id := videoIDRE.FindString(v); id != "" {
			return youtubeRef(id), true
		}
		if videoParamRE.MatchString(v) {
			return youtubeRef(v), true
		}
		return domain.MediaReference{}, false
	}

	if len(segments) >= 2 {
		for _, prefix := range youtubePathPrefixes {
			if segments[0] == prefix {
				if id := videoIDRE.FindString(segments[1]); id != "" {
					return youtubeRef(id), true
				}
				return domain.MediaReference{}, false
			}
		}
	}

	if list := query.Get("list"); list != "" && playlistIDRE.MatchString(list) {
		return domain.MediaReference{
			Platform:    domain.PlatformYouTube,
			CanonicalID: list,
			Playlist:    true,
		}, true
	}

	return domain.MediaReference{}, false
}

func resolveShortLink(u *url.URL) (domain.MediaReference, bool) {
	segments := pathSegments(u)
	if len(segments) == 0 {
		return domain.MediaReference{}, false
	}
	id := videoIDRE.FindString(segments[0])
	if id == "" {
		return domain.MediaReference{}, false
	}
	return youtubeRef(id), true
}

func youtubeRef(id string) domain.MediaReference {
	return domain.MediaReference{
		Platform:    domain.PlatformYouTube,
		CanonicalID: id,
	}
}

// resolveAcast handles /<show>/<episode> and /<show>/episodes/<episode>.
func resolveAcast(u *url.URL) (domain.MediaReference, bool) {
	segments := pathSegments(u)
	if len(segments) == 3 && segments[1] == "episodes" {
		segments = []string{segments[0], segments[2]}
	}
	if len(segments) != 2 {
		return domain.MediaReference{}, false
	}
	for _, s := range segments {
		if !acastSegmentRE.MatchString(s) {
			return domain.MediaReference{}, false
		}
	}
	return domain.MediaReference{
		Platform:    domain.PlatformAcast,
		CanonicalID: segments[0] + "/" + segments[1],
	}, true
}

// resolveApple handles /<cc>/podcast/<slug>/id<show>?i=<episode>.
func resolveApple(u *url.URL) (domain.MediaReference, bool) {
	segments := pathSegments(u)
	podcastAt := -1
	for i, s := range segments {
		if s == "podcast" {
			podcastAt = i
			break
		}
	}
	if podcastAt < 0 {
		return domain.MediaReference{}, false
	}

	var showID string
	for _, s := range segments[podcastAt+1:] {
		if m := appleShowRE.FindStringSubmatch(s); m != nil {
			showID = m[1]
		}
	}
	if showID == "" {
		return domain.MediaReference{}, false
	}

	canonical := showID
	if episode := u.Query().Get("i"); episode != "" {
		if !numericRE.MatchString(episode) {
			return domain.MediaReference{}, false
		}
		canonical += "/" + episode
	}

	return domain.MediaReference{
		Platform:    domain.PlatformApple,
		CanonicalID: canonical,
	}, true
}
