package domain

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies the hosting service behind a media reference.
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformAcast   Platform = "acast"
	PlatformApple   Platform = "apple_podcasts"
)

// MediaReference is a parsed user-supplied URL. It is never mutated after parsing.
type MediaReference struct {
	SourceURL   string
	Platform    Platform
	CanonicalID string
	Playlist    bool
}

// WatchURL returns the URL handed to downloaders for this reference.
func (r MediaReference) WatchURL() string {
	if r.Platform != PlatformYouTube {
		return r.SourceURL
	}
	if r.Playlist {
		return "https://www.youtube.com/playlist?list=" + r.CanonicalID
	}
	return "https://www.youtube.com/watch?v=" + r.CanonicalID
}

// ShowID returns the show part of a "<show>/<episode>" canonical ID.
func (r MediaReference) ShowID() string {
	show, _, _ := strings.Cut(r.CanonicalID, "/")
	return show
}

// EpisodeID returns the episode part of a "<show>/<episode>" canonical ID.
func (r MediaReference) EpisodeID() string {
	_, episode, _ := strings.Cut(r.CanonicalID, "/")
	return episode
}

// Segment is one timed piece of transcript text.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Transcript is an ordered segment list plus the language it was found in.
type Transcript struct {
	Language  string
	Generated bool
	Segments  []Segment
}

// TrackInfo describes one caption track offered by the platform.
type TrackInfo struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
	Generated    bool   `json:"generated"`
}

// MediaFile is a downloaded file and whatever metadata came with it.
type MediaFile struct {
	Path     string
	Title    string
	Duration time.Duration
}

// Episode is a resolved podcast episode.
type Episode struct {
	Title     string
	Show      string
	AudioURL  string
	SourceURL string
}

// OutputFormat selects how transcripts are rendered.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatVTT  OutputFormat = "vtt"
	FormatSRT  OutputFormat = "srt"
)

// Extension returns the file extension used for the format.
func (f OutputFormat) Extension() string {
	if f == FormatText {
		return "txt"
	}
	return string(f)
}

// Quality is a video download preset.
type Quality string

const (
	QualityBest  Quality = "best"
	Quality1080p Quality = "1080p"
	Quality720p  Quality = "720p"
	Quality480p  Quality = "480p"
	Quality360p  Quality = "360p"
)

// Qualities lists accepted quality presets in flag help order.
var Qualities = []Quality{QualityBest, Quality1080p, Quality720p, Quality480p, Quality360p}

// ParseQuality validates a quality preset name.
func ParseQuality(raw string) (Quality, error) {
	q := Quality(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Qualities {
		if q == known {
			return q, nil
		}
	}
	return "", fmt.Errorf("unknown quality %q (want one of best, 1080p, 720p, 480p, 360p)", raw)
}

// ModelTier is one of the five whisper size/accuracy presets.
type ModelTier string

const (
	TierTiny   ModelTier = "tiny"
	TierBase   ModelTier = "base"
	TierSmall  ModelTier = "small"
	TierMedium ModelTier = "medium"
	TierLarge  ModelTier = "large"
)

// ModelTiers lists tiers from fastest to most accurate.
var ModelTiers = []ModelTier{TierTiny, TierBase, TierSmall, TierMedium, TierLarge}

// ParseModelTier validates a model tier name.
func ParseModelTier(raw string) (ModelTier, error) {
	tier := ModelTier(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range ModelTiers {
		if tier == known {
			return tier, nil
		}
	}
	return "", fmt.Errorf("unknown model tier %q (want one of tiny, base, small, medium, large)", raw)
}

// RunConfig is built once from flags and settings and only read afterwards.
type RunConfig struct {
	OutputPath string
	Format     OutputFormat
	Languages  []string
	Quality    Quality
	ModelTier  ModelTier
	KeepAudio  bool
	AudioOnly  bool
	NoFallback bool
	AudioDir   string
}

// PrimaryLanguage returns the most preferred language or "auto".
func (c RunConfig) PrimaryLanguage() string {
	for _, lang := range c.Languages {
		if lang = strings.TrimSpace(lang); lang != "" {
			return lang
		}
	}
	return "auto"
}

// RunState tracks the fallback pipeline for a single run.
type RunState string

const (
	RunStateIdle          RunState = "idle"
	RunStateCheckExisting RunState = "check_existing"
	RunStateFetchAudio    RunState = "fetch_audio"
	RunStateTranscribe    RunState = "transcribe"
	RunStateDone          RunState = "done"
	RunStateFailed        RunState = "failed"
)

// Settings contains persisted user configuration.
type Settings struct {
	ModelDir           string `json:"modelDir"`
	DownloadDir        string `json:"downloadDir"`
	TranscriptDir      string `json:"transcriptDir"`
	AudioDir           string `json:"audioDir"`
	Engine             string `json:"engine"`
	WhisperModel       string `json:"whisperModel"`
	WhishperURL        string `json:"whishperUrl"`
	FFmpegPath         string `json:"ffmpegPath"`
	WhisperPath        string `json:"whisperPath"`
	Language           string `json:"language"`
	AutoDownloadModels bool   `json:"autoDownloadModels"`
	OpenAIBaseURL      string `json:"openaiBaseUrl,omitempty"`
	OpenAIAPIKey       string `json:"openaiApiKey,omitempty"`
}
