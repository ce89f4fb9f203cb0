// Package youtube lists and fetches existing caption tracks and downloads
// video or audio through yt-dlp.
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mediascribe/internal/domain"
	"mediascribe/internal/httpclient"
)

const (
	defaultWatchBase = "https://www.youtube.com"
	pageTimeout      = 30 * time.Second
	maxWatchPage     = 6 * 1024 * 1024
	maxTimedText     = 4 * 1024 * 1024
)

// playerResponseMarker marks the start of the player response JSON in watch page HTML.
const playerResponseMarker = "ytInitialPlayerResponse = "

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
	Name         struct {
		SimpleText string `json:"simpleText"`
		Runs       []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"name"`
}

func (t captionTrack) generated() bool {
	return t.Kind == "asr"
}

func (t captionTrack) displayName() string {
	if t.Name.SimpleText != "" {
		return t.Name.SimpleText
	}
	parts := make([]string, 0, len(t.Name.Runs))
	for _, run := range t.Name.Runs {
		parts = append(parts, run.Text)
	}
	if name := strings.Join(parts, ""); name != "" {
		return name
	}
	return t.LanguageCode
}

type playerResponse struct {
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

// Captions reads caption tracks from the public watch page.
type Captions struct {
	client    *httpclient.Client
	watchBase string
}

// NewCaptions creates a caption source using browser headers.
func NewCaptions() *Captions {
	return &Captions{
		client:    httpclient.New(httpclient.BrowserProfile, pageTimeout),
		watchBase: defaultWatchBase,
	}
}

// NewCaptionsForTests points the caption source at a fake watch page server.
func NewCaptionsForTests(client *httpclient.Client, watchBase string) *Captions {
	return &Captions{client: client, watchBase: strings.TrimRight(watchBase, "/")}
}

// ListTracks returns every caption track offered for the video.
func (c *Captions) ListTracks(ctx context.Context, ref domain.MediaReference) ([]domain.TrackInfo, error) {
	tracks, err := c.tracks(ctx, ref)
	if err != nil {
		return nil, err
	}

	infos := make([]domain.TrackInfo, 0, len(tracks))
	for _, t := range tracks {
		infos = append(infos, domain.TrackInfo{
			LanguageCode: t.LanguageCode,
			Name:         t.displayName(),
			Generated:    t.generated(),
		})
	}
	return infos, nil
}

// FetchExisting downloads the best caption track for the language preference.
// found is false with a nil error when the video has no usable track.
func (c *Captions) FetchExisting(ctx context.Context, ref domain.MediaReference, languages []string) (domain.Transcript, bool, error) {
	tracks, err := c.tracks(ctx, ref)
	if err != nil {
		return domain.Transcript{}, false, err
	}

	track, ok := pickTrack(tracks, languages)
	if !ok {
		slog.Info("no usable caption track",
			slog.String("video_id", ref.CanonicalID),
			slog.Int("tracks", len(tracks)))
		return domain.Transcript{}, false, nil
	}

	slog.Debug("selected caption track",
		slog.String("video_id", ref.CanonicalID),
		slog.String("language", track.LanguageCode),
		slog.Bool("generated", track.generated()))

	body, err := c.client.GetBytes(ctx, track.BaseURL, maxTimedText)
	if err != nil {
		return domain.Transcript{}, false, fmt.Errorf("fetch caption track: %w", err)
	}

	segments, err := parseTimedText(body)
	if err != nil {
		return domain.Transcript{}, false, fmt.Errorf("%w: parse caption track: %w", domain.ErrNetwork, err)
	}
	if len(segments) == 0 {
		return domain.Transcript{}, false, nil
	}

	return domain.Transcript{
		Language:  track.LanguageCode,
		Generated: track.generated(),
		Segments:  segments,
	}, true, nil
}

// tracks scrapes the watch page and decodes the caption track list.
func (c *Captions) tracks(ctx context.Context, ref domain.MediaReference) ([]captionTrack, error) {
	if ref.Platform != domain.PlatformYouTube || ref.Playlist {
		return nil, fmt.Errorf("%w: captions need a single YouTube video", domain.ErrInvalidURL)
	}

	watchURL := c.watchBase + "/watch?v=" + ref.CanonicalID
	header := http.Header{}
	header.Set("Cookie", "CONSENT=YES+1")
	resp, err := c.client.Get(ctx, watchURL, header)
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWatchPage))
	if err != nil {
		return nil, fmt.Errorf("%w: read watch page: %w", domain.ErrNetwork, err)
	}

	idx := bytes.Index(body, []byte(playerResponseMarker))
	if idx < 0 {
		slog.Debug("player response not found in watch page", slog.String("video_id", ref.CanonicalID))
		return nil, nil
	}
	jsonData := extractJSON(body[idx+len(playerResponseMarker):])
	if jsonData == nil {
		return nil, fmt.Errorf("%w: truncated player response", domain.ErrNetwork)
	}

	var player playerResponse
	if err := json.Unmarshal(jsonData, &player); err != nil {
		return nil, fmt.Errorf("%w: decode player response: %w", domain.ErrNetwork, err)
	}
	if player.Captions == nil {
		if player.PlayabilityStatus != nil && player.PlayabilityStatus.Reason != "" {
			slog.Info("captions unavailable",
				slog.String("video_id", ref.CanonicalID),
				slog.String("reason", player.PlayabilityStatus.Reason))
		}
		return nil, nil
	}
	return player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks, nil
}

// needsPoToken reports whether a caption track URL requires a PoToken.
// Tracks with &exp=xpe cannot be fetched outside a browser.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickTrack walks the language preference list, manual before generated per
// language. Tracks in languages that were not requested are never picked.
func pickTrack(tracks []captionTrack, languages []string) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if t.BaseURL != "" && !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return captionTrack{}, false
	}

	for _, lang := range languages {
		lang = strings.TrimSpace(lang)
		if lang == "" {
			continue
		}
		var asr *captionTrack
		for i, t := range usable {
			if !strings.EqualFold(t.LanguageCode, lang) {
				continue
			}
			if !t.generated() {
				return t, true
			}
			if asr == nil {
				asr = &usable[i]
			}
		}
		if asr != nil {
			return *asr, true
		}
	}
	return captionTrack{}, false
}

// extractJSON returns the balanced JSON object at the start of data.
func extractJSON(data []byte) []byte {
	if len(data) == 0 || data[0] != '{' {
		return nil
	}
	depth := 0
	inString := false
	escaped := false
	for i, b := range data {
		if escaped {
			escaped = false
			continue
		}
		switch {
		case b == '\\' && inString:
			escaped = true
		case b == '"':
			inString = !inString
		case inString:
		case b == '{':
			depth++
		case b == '}':
			depth--
			if depth == 0 {
				return data[:i+1]
			}
		}
	}
	return nil
}

type timedText struct {
	Lines []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Text  string `xml:",chardata"`
	} `xml:"text"`
	Body struct {
		Paragraphs []struct {
			T    string `xml:"t,attr"`
			D    string `xml:"d,attr"`
			Text string `xml:",innerxml"`
		} `xml:"p"`
	} `xml:"body"`
}

// parseTimedText reads both the legacy <text start dur> and the srv3 <p t d> layouts.
func parseTimedText(data []byte) ([]domain.Segment, error) {
	var tt timedText
	if err := xml.Unmarshal(data, &tt); err != nil {
		return nil, err
	}

	segments := make([]domain.Segment, 0, len(tt.Lines)+len(tt.Body.Paragraphs))
	for _, line := range tt.Lines {
		text := cleanCaption(line.Text)
		if text == "" {
			continue
		}
		start := parseSeconds(line.Start)
		segments = append(segments, domain.Segment{
			Start: start,
			End:   start + parseSeconds(line.Dur),
			Text:  text,
		})
	}
	for _, p := range tt.Body.Paragraphs {
		text := cleanCaption(stripTags(p.Text))
		if text == "" {
			continue
		}
		start := parseMillis(p.T)
		segments = append(segments, domain.Segment{
			Start: start,
			End:   start + parseMillis(p.D),
			Text:  text,
		})
	}
	return segments, nil
}

// cleanCaption unescapes double-encoded entities and folds line breaks.
func cleanCaption(raw string) string {
	text := html.UnescapeString(raw)
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.Join(strings.Fields(text), " ")
}

func stripTags(s string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func parseSeconds(raw string) time.Duration {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v < 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

func parseMillis(raw string) time.Duration {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return time.Duration(v) * time.Millisecond
}
