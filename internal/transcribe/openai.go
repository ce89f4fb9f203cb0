package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"mediascribe/internal/domain"
)

// audioTranscriber is the slice of the OpenAI client this engine uses.
type audioTranscriber interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// OpenAIEngine sends audio to an OpenAI-compatible /audio/transcriptions endpoint.
type OpenAIEngine struct {
	client audioTranscriber
	model  string
}

// NewOpenAIEngine creates an engine; baseURL may point at any compatible server.
func NewOpenAIEngine(apiKey, baseURL string) *OpenAIEngine {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIEngine{client: openai.NewClientWithConfig(cfg), model: openai.Whisper1}
}

// Transcribe requests verbose JSON so segment timings are preserved.
func (e *OpenAIEngine) Transcribe(ctx context.Context, audioPath string, tier domain.ModelTier, language string) (domain.Transcript, error) {
	req := openai.AudioRequest{
		Model:    e.model,
		FilePath: audioPath,
		Language: normalizeLanguage(language),
		Format:   openai.AudioResponseFormatVerboseJSON,
	}

	slog.Debug("hosted model ignores tier", slog.String("model", e.model), slog.String("tier", string(tier)))
	slog.Info("sending audio to transcription API", slog.String("model", e.model))
	resp, err := e.client.CreateTranscription(ctx, req)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("%w: openai transcription: %w", domain.ErrTranscription, err)
	}

	out := domain.Transcript{Language: resp.Language, Generated: true}
	if out.Language == "" {
		out.Language = req.Language
	}
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		out.Segments = append(out.Segments, domain.Segment{
			Start: secondsToDuration(seg.Start),
			End:   secondsToDuration(seg.End),
			Text:  text,
		})
	}
	if len(out.Segments) == 0 && strings.TrimSpace(resp.Text) != "" {
		out.Segments = []domain.Segment{{Text: strings.TrimSpace(resp.Text)}}
	}
	if len(out.Segments) == 0 {
		return domain.Transcript{}, fmt.Errorf("%w: empty transcription response", domain.ErrTranscription)
	}
	return out, nil
}
