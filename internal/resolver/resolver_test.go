package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediascribe/internal/domain"
)

func TestResolveYouTubeShapes(t *testing.T) {
	cases := map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ":                 "dQw4w9WgXcQ",
		"https://youtube.com/watch?feature=share&v=dQw4w9WgXcQ&t=42s": "dQw4w9WgXcQ",
		"https://m.youtube.com/watch?v=dQw4w9WgXcQ":                   "dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ?si=abc":                         "dQw4w9WgXcQ",
		"https://www.youtube.com/embed/dQw4w9WgXcQ":                   "dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ":                  "dQw4w9WgXcQ",
		"youtube.com/live/dQw4w9WgXcQ":                                "dQw4w9WgXcQ",
		"dQw4w9WgXcQ":                                                 "dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=ABC123":                      "ABC123",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PL123456":   "dQw4w9WgXcQ",
	}

	for raw, want := range cases {
		ref, err := Resolve(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, domain.PlatformYouTube, ref.Platform, raw)
		assert.Equal(t, want, ref.CanonicalID, raw)
		assert.False(t, ref.Playlist, raw)
		if raw != want {
			assert.Equal(t, raw, ref.SourceURL, raw)
		}
	}
}

func TestResolveYouTubePlaylist(t *testing.T) {
	ref, err := Resolve("https://www.youtube.com/playlist?list=PLrAXtmErZgOeiKm4sgNOknGvNjby9efdf")
	require.NoError(t, err)
	assert.True(t, ref.Playlist)
	assert.Equal(t, "PLrAXtmErZgOeiKm4sgNOknGvNjby9efdf", ref.CanonicalID)
	assert.Equal(t, "https://www.youtube.com/playlist?list=PLrAXtmErZgOeiKm4sgNOknGvNjby9efdf", ref.WatchURL())
}

func TestResolveAcast(t *testing.T) {
	for _, raw := range []string{
		"https://shows.acast.com/5f1e0c3a/64b2d9e1",
		"https://shows.acast.com/5f1e0c3a/episodes/64b2d9e1",
		"https://embed.acast.com/5f1e0c3a/64b2d9e1",
	} {
		ref, err := Resolve(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, domain.PlatformAcast, ref.Platform)
		assert.Equal(t, "5f1e0c3a/64b2d9e1", ref.CanonicalID)
		assert.Equal(t, "5f1e0c3a", ref.ShowID())
		assert.Equal(t, "64b2d9e1", ref.EpisodeID())
	}
}

func TestResolveApplePodcasts(t *testing.T) {
	ref, err := Resolve("https://podcasts.apple.com/es/podcast/some-show/id1234567890?i=1000654321000")
	require.NoError(t, err)
	assert.Equal(t, domain.PlatformApple, ref.Platform)
	assert.Equal(t, "1234567890/1000654321000", ref.CanonicalID)

	showOnly, err := Resolve("https://podcasts.apple.com/us/podcast/some-show/id1234567890")
	require.NoError(t, err)
	assert.Equal(t, "1234567890", showOnly.CanonicalID)
}

func TestResolveInvalid(t *testing.T) {
	for _, raw := range []string{
		"",
		"   ",
		"not a url",
		"https://vimeo.com/123456",
		"https://www.youtube.com/",
		"https://www.youtube.com/watch?v=",
		"https://youtu.be/",
		"https://shows.acast.com/only-show",
		"https://podcasts.apple.com/us/podcast/slug",
		"https://podcasts.apple.com/us/podcast/slug/id123?i=abc",
		"short",
	} {
		_, err := Resolve(raw)
		require.Error(t, err, raw)
		assert.ErrorIs(t, err, domain.ErrInvalidURL, raw)
	}
}

func TestResolveForRestrictsPlatforms(t *testing.T) {
	_, err := ResolveFor("https://www.youtube.com/watch?v=dQw4w9WgXcQ", domain.PlatformAcast, domain.PlatformApple)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidURL)

	ref, err := ResolveFor("https://shows.acast.com/abc/def", domain.PlatformAcast, domain.PlatformApple)
	require.NoError(t, err)
	assert.Equal(t, domain.PlatformAcast, ref.Platform)
}
