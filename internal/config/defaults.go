package config

import (
	"os"
	"path/filepath"

	"mediascribe/internal/domain"
)

// DefaultSettings returns baseline configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		ModelDir:           filepath.Join(homeDir(), ".mediascribe", "models"),
		DownloadDir:        "downloads",
		TranscriptDir:      "transcripts",
		AudioDir:           filepath.Join(os.TempDir(), "podcast_audio"),
		Engine:             "whisper",
		WhisperModel:       string(domain.TierBase),
		WhishperURL:        "http://localhost:8082",
		FFmpegPath:         "ffmpeg",
		WhisperPath:        "whisper-cli",
		Language:           "auto",
		AutoDownloadModels: true,
	}
}

func homeDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return dir
}
