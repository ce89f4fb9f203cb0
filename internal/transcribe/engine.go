// Package transcribe turns an audio file into timed transcript segments.
//
// Three engines are available: a local whisper.cpp pipeline, a self-hosted
// Whishper service and an OpenAI-compatible transcription API.
package transcribe

import (
	"context"
	"fmt"
	"strings"

	"mediascribe/internal/domain"
)

// Engine names accepted by --engine and the settings file.
const (
	EngineWhisper  = "whisper"
	EngineWhishper = "whishper"
	EngineOpenAI   = "openai"
)

// Engines lists accepted engine names in flag help order.
var Engines = []string{EngineWhisper, EngineWhishper, EngineOpenAI}

// Engine transcribes one local audio file.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string, tier domain.ModelTier, language string) (domain.Transcript, error)
}

// ParseEngine validates an engine name.
func ParseEngine(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return EngineWhisper, nil
	}
	for _, known := range Engines {
		if name == known {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown engine %q (want one of whisper, whishper, openai)", raw)
}

// New builds the engine selected in settings.
func New(settings domain.Settings, models ModelSource) (Engine, error) {
	name, err := ParseEngine(settings.Engine)
	if err != nil {
		return nil, err
	}

	switch name {
	case EngineWhishper:
		if strings.TrimSpace(settings.WhishperURL) == "" {
			return nil, fmt.Errorf("whishper engine requires a service URL (--whishper-url)")
		}
		return NewWhishperEngine(settings.WhishperURL), nil
	case EngineOpenAI:
		if strings.TrimSpace(settings.OpenAIAPIKey) == "" {
			return nil, fmt.Errorf("openai engine requires an API key (MEDIASCRIBE_OPENAI_API_KEY)")
		}
		return NewOpenAIEngine(settings.OpenAIAPIKey, settings.OpenAIBaseURL), nil
	default:
		return NewPipeline(settings.FFmpegPath, settings.WhisperPath, models), nil
	}
}
