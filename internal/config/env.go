package config

import (
	"fmt"
	"strconv"
	"strings"

	"mediascribe/internal/domain"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "MEDIASCRIBE_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays MEDIASCRIBE_* variables on top of cfg. OPENAI_API_KEY is
// honored when MEDIASCRIBE_OPENAI_API_KEY is unset.
func ApplyEnv(cfg domain.Settings, lookup LookupFunc) (domain.Settings, error) {
	strs := []struct {
		key string
		dst *string
	}{
		{"MODEL_DIR", &cfg.ModelDir},
		{"DOWNLOAD_DIR", &cfg.DownloadDir},
		{"TRANSCRIPT_DIR", &cfg.TranscriptDir},
		{"AUDIO_DIR", &cfg.AudioDir},
		{"ENGINE", &cfg.Engine},
		{"WHISPER_MODEL", &cfg.WhisperModel},
		{"WHISHPER_URL", &cfg.WhishperURL},
		{"FFMPEG_PATH", &cfg.FFmpegPath},
		{"WHISPER_PATH", &cfg.WhisperPath},
		{"LANGUAGE", &cfg.Language},
		{"OPENAI_BASE_URL", &cfg.OpenAIBaseURL},
		{"OPENAI_API_KEY", &cfg.OpenAIAPIKey},
	}
	for _, s := range strs {
		if v, ok := lookup(EnvPrefix + s.key); ok && strings.TrimSpace(v) != "" {
			*s.dst = strings.TrimSpace(v)
		}
	}

	if cfg.OpenAIAPIKey == "" {
		if v, ok := lookup("OPENAI_API_KEY"); ok {
			cfg.OpenAIAPIKey = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup(EnvPrefix + "AUTO_DOWNLOAD_MODELS"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return domain.Settings{}, fmt.Errorf("%sAUTO_DOWNLOAD_MODELS: %w", EnvPrefix, err)
		}
		cfg.AutoDownloadModels = b
	}

	return cfg, nil
}
