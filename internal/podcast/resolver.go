// Package podcast finds the audio file behind an Acast or Apple Podcasts
// episode page and downloads it.
package podcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"mediascribe/internal/domain"
	"mediascribe/internal/httpclient"
)

const (
	unknownEpisode = "Unknown Episode"
	unknownShow    = "Unknown Show"

	pageTimeout = 30 * time.Second
	maxPage     = 8 * 1024 * 1024
	maxFeed     = 32 * 1024 * 1024

	defaultAcastPlayBase = "https://play.acast.com/s"
	defaultAcastFeedBase = "https://feeds.acast.com/public/shows"
	defaultITunesLookup  = "https://itunes.apple.com/lookup"
)

var (
	audioURLPattern = regexp.MustCompile(`https?://[^\s<>"']+\.(?:mp3|m4a)`)

	// preferredAudioHosts are podcast CDNs whose URLs win over other audio links on a page.
	preferredAudioHosts = []string{"ausha", "acast", "libsyn", "buzzsprout", "simplecast", "megaphone"}
)

// Endpoints holds the external base URLs the resolver talks to.
type Endpoints struct {
	AcastPlay    string
	AcastFeeds   string
	ITunesLookup string
}

// DefaultEndpoints are the production service URLs.
var DefaultEndpoints = Endpoints{
	AcastPlay:    defaultAcastPlayBase,
	AcastFeeds:   defaultAcastFeedBase,
	ITunesLookup: defaultITunesLookup,
}

// Resolver turns an episode page reference into a downloadable episode.
type Resolver struct {
	client    *httpclient.Client
	feeds     *gofeed.Parser
	endpoints Endpoints
}

// NewResolver creates a resolver that fetches pages with browser headers.
func NewResolver() *Resolver {
	return NewResolverWithClient(httpclient.New(httpclient.BrowserProfile, pageTimeout), DefaultEndpoints)
}

// NewResolverWithClient creates a resolver with a custom client and endpoints.
func NewResolverWithClient(client *httpclient.Client, endpoints Endpoints) *Resolver {
	return &Resolver{client: client, feeds: gofeed.NewParser(), endpoints: endpoints}
}

// Resolve finds the episode title, show and audio URL. Strategies run in order
// until one yields audio: JSON-LD, Open Graph tags, the show feed, any audio
// link in the page, and finally the constructed Acast URL.
func (r *Resolver) Resolve(ctx context.Context, ref domain.MediaReference) (domain.Episode, error) {
	if ref.Platform != domain.PlatformAcast && ref.Platform != domain.PlatformApple {
		return domain.Episode{}, fmt.Errorf("%w: not a podcast episode URL: %s", domain.ErrInvalidURL, ref.SourceURL)
	}

	ep := domain.Episode{Title: unknownEpisode, Show: unknownShow, SourceURL: ref.SourceURL}
	direct := r.directAcastURL(ref)

	page, err := r.client.GetBytes(ctx, ref.SourceURL, maxPage)
	if err != nil {
		if direct != "" && ctx.Err() == nil {
			slog.Warn("episode page unavailable, using constructed audio URL",
				slog.String("url", ref.SourceURL), slog.Any("error", err))
			ep.AudioURL = direct
			return ep, nil
		}
		return domain.Episode{}, fmt.Errorf("fetch episode page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return domain.Episode{}, fmt.Errorf("%w: parse episode page: %w", domain.ErrNetwork, err)
	}

	strategies := []struct {
		name string
		run  func() string
	}{
		{"json-ld", func() string { return fromJSONLD(doc, &ep) }},
		{"open-graph", func() string { return fromOpenGraph(doc, &ep) }},
		{"feed", func() string { return r.fromFeed(ctx, ref, &ep) }},
		{"page-scan", func() string { return scanAudioURL(string(page)) }},
		{"acast-direct", func() string { return direct }},
	}
	for _, s := range strategies {
		audio := s.run()
		if audio == "" {
			continue
		}
		ep.AudioURL = audio
		slog.Info("episode resolved",
			slog.String("strategy", s.name),
			slog.String("episode", ep.Title),
			slog.String("show", ep.Show))
		return ep, nil
	}

	if err := ctx.Err(); err != nil {
		return domain.Episode{}, err
	}
	return domain.Episode{}, fmt.Errorf("%w for %s", domain.ErrNoAudioSource, ref.SourceURL)
}

func (r *Resolver) directAcastURL(ref domain.MediaReference) string {
	if ref.Platform != domain.PlatformAcast || ref.EpisodeID() == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s.mp3", strings.TrimRight(r.endpoints.AcastPlay, "/"), ref.ShowID(), ref.EpisodeID())
}

// fromJSONLD reads PodcastEpisode objects, including ones nested in @graph or arrays.
func fromJSONLD(doc *goquery.Document, ep *domain.Episode) string {
	var audio string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(strings.TrimSpace(sel.Text())), &data); err != nil {
			return true
		}
		for _, obj := range podcastEpisodes(data) {
			if name := stringField(obj, "name"); name != "" {
				ep.Title = name
			}
			if series, ok := obj["partOfSeries"].(map[string]any); ok {
				if name := stringField(series, "name"); name != "" {
					ep.Show = name
				}
			}
			if audio = mediaURL(obj["associatedMedia"]); audio == "" {
				if u := stringField(obj, "url"); looksLikeAudio(u) {
					audio = u
				}
			}
			if audio != "" {
				return false
			}
		}
		return true
	})
	return audio
}

func podcastEpisodes(data any) []map[string]any {
	var out []map[string]any
	switch v := data.(type) {
	case []any:
		for _, item := range v {
			out = append(out, podcastEpisodes(item)...)
		}
	case map[string]any:
		if isEpisodeType(v["@type"]) {
			out = append(out, v)
		}
		if graph, ok := v["@graph"]; ok {
			out = append(out, podcastEpisodes(graph)...)
		}
	}
	return out
}

func isEpisodeType(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "PodcastEpisode"
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "PodcastEpisode" {
				return true
			}
		}
	}
	return false
}

func mediaURL(media any) string {
	switch v := media.(type) {
	case map[string]any:
		if u := stringField(v, "contentUrl"); u != "" {
			return u
		}
		return stringField(v, "url")
	case []any:
		for _, item := range v {
			if u := mediaURL(item); u != "" {
				return u
			}
		}
	}
	return ""
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

// fromOpenGraph fills missing metadata from og: tags and returns og:audio.
func fromOpenGraph(doc *goquery.Document, ep *domain.Episode) string {
	meta := func(property string) string {
		content, _ := doc.Find(fmt.Sprintf(`meta[property="%s"]`, property)).First().Attr("content")
		return strings.TrimSpace(content)
	}

	if ep.Title == unknownEpisode {
		if title := meta("og:title"); title != "" {
			ep.Title = title
		}
	}
	if ep.Show == unknownShow {
		if site := meta("og:site_name"); site != "" && !strings.EqualFold(site, "Apple Podcasts") && !strings.EqualFold(site, "Acast") {
			ep.Show = site
		}
	}
	for _, property := range []string{"og:audio", "og:audio:url", "og:audio:secure_url"} {
		if audio := meta(property); audio != "" {
			return audio
		}
	}
	return ""
}

// fromFeed finds the episode in the show's RSS feed and returns its first audio enclosure.
func (r *Resolver) fromFeed(ctx context.Context, ref domain.MediaReference, ep *domain.Episode) string {
	feedURL, err := r.feedURL(ctx, ref)
	if err != nil || feedURL == "" {
		if err != nil {
			slog.Debug("feed lookup failed", slog.String("show", ref.ShowID()), slog.Any("error", err))
		}
		return ""
	}

	body, err := r.client.GetBytes(ctx, feedURL, maxFeed)
	if err != nil {
		slog.Debug("feed fetch failed", slog.String("feed", feedURL), slog.Any("error", err))
		return ""
	}
	feed, err := r.feeds.Parse(bytes.NewReader(body))
	if err != nil {
		slog.Debug("feed parse failed", slog.String("feed", feedURL), slog.Any("error", err))
		return ""
	}

	item := matchFeedItem(feed.Items, ref.EpisodeID(), ep.Title)
	if item == nil {
		return ""
	}
	if ep.Title == unknownEpisode && item.Title != "" {
		ep.Title = item.Title
	}
	if ep.Show == unknownShow && feed.Title != "" {
		ep.Show = feed.Title
	}
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(enc.Type, "audio/") || looksLikeAudio(enc.URL) {
			return enc.URL
		}
	}
	return ""
}

func (r *Resolver) feedURL(ctx context.Context, ref domain.MediaReference) (string, error) {
	switch ref.Platform {
	case domain.PlatformAcast:
		if ref.ShowID() == "" {
			return "", nil
		}
		return strings.TrimRight(r.endpoints.AcastFeeds, "/") + "/" + ref.ShowID(), nil
	case domain.PlatformApple:
		lookup := r.endpoints.ITunesLookup + "?id=" + url.QueryEscape(ref.ShowID())
		body, err := r.client.GetBytes(ctx, lookup, 1<<20)
		if err != nil {
			return "", err
		}
		var payload struct {
			Results []struct {
				FeedURL string `json:"feedUrl"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return "", fmt.Errorf("decode itunes lookup: %w", err)
		}
		for _, res := range payload.Results {
			if res.FeedURL != "" {
				return res.FeedURL, nil
			}
		}
		return "", nil
	}
	return "", nil
}

func matchFeedItem(items []*gofeed.Item, episodeID, title string) *gofeed.Item {
	if episodeID != "" {
		for _, item := range items {
			if item == nil {
				continue
			}
			if strings.Contains(item.GUID, episodeID) || strings.Contains(item.Link, episodeID) {
				return item
			}
		}
	}
	if title != "" && title != unknownEpisode {
		for _, item := range items {
			if item != nil && strings.EqualFold(strings.TrimSpace(item.Title), title) {
				return item
			}
		}
	}
	return nil
}

// scanAudioURL returns the first audio link on a preferred CDN, else the first audio link.
func scanAudioURL(page string) string {
	matches := audioURLPattern.FindAllString(page, -1)
	if len(matches) == 0 {
		return ""
	}
	for _, m := range matches {
		lower := strings.ToLower(m)
		for _, host := range preferredAudioHosts {
			if strings.Contains(lower, host) {
				return m
			}
		}
	}
	return matches[0]
}

func looksLikeAudio(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".mp3", ".m4a":
		return true
	}
	return false
}
