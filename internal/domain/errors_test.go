package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// TestExitCodeMapsWrappedClasses verifies each error class keeps its code through wrapping.
func TestExitCodeMapsWrappedClasses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{fmt.Errorf("resolve: %w", ErrInvalidURL), ExitInvalidURL},
		{fmt.Errorf("fetch page: %w", ErrNetwork), ExitNetwork},
		{fmt.Errorf("podcast: %w", ErrNoAudioSource), ExitNetwork},
		{fmt.Errorf("captions: %w", ErrNoTranscript), ExitNoTranscript},
		{fmt.Errorf("whisper: %w", ErrTranscription), ExitTranscription},
		{fmt.Errorf("flag: %w", ErrUnsupportedFormat), ExitUnsupportedFormat},
		{fmt.Errorf("run: %w", context.Canceled), ExitInterrupted},
		{errors.New("boom"), ExitFailure},
	}

	for _, tc := range cases {
		if got := ExitCode(tc.err); got != tc.want {
			t.Fatalf("ExitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

// TestParseModelTier verifies the five presets and rejection of others.
func TestParseModelTier(t *testing.T) {
	for _, raw := range []string{"tiny", "BASE", " small ", "medium", "large"} {
		if _, err := ParseModelTier(raw); err != nil {
			t.Fatalf("ParseModelTier(%q) error = %v", raw, err)
		}
	}
	if _, err := ParseModelTier("huge"); err == nil {
		t.Fatal("expected error for unknown tier")
	}
}

// TestMediaReferenceHelpers verifies URL and ID helpers.
func TestMediaReferenceHelpers(t *testing.T) {
	yt := MediaReference{Platform: PlatformYouTube, CanonicalID: "dQw4w9WgXcQ"}
	if got := yt.WatchURL(); got != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Fatalf("watch url = %q", got)
	}

	pod := MediaReference{Platform: PlatformAcast, CanonicalID: "abc/def", SourceURL: "https://shows.acast.com/abc/def"}
	if pod.ShowID() != "abc" || pod.EpisodeID() != "def" {
		t.Fatalf("show/episode = %q/%q", pod.ShowID(), pod.EpisodeID())
	}
	if pod.WatchURL() != pod.SourceURL {
		t.Fatalf("podcast watch url = %q", pod.WatchURL())
	}
}

// TestRunConfigPrimaryLanguage verifies the first non-empty language wins.
func TestRunConfigPrimaryLanguage(t *testing.T) {
	cfg := RunConfig{Languages: []string{" ", "fr", "en"}}
	if got := cfg.PrimaryLanguage(); got != "fr" {
		t.Fatalf("primary = %q, want fr", got)
	}
	if got := (RunConfig{}).PrimaryLanguage(); got != "auto" {
		t.Fatalf("primary = %q, want auto", got)
	}
}
