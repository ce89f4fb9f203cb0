package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"mediascribe/internal/domain"
	"mediascribe/internal/format"
	"mediascribe/internal/podcast"
	"mediascribe/internal/resolver"
)

type podcastOptions struct {
	language    string
	model       string
	keepAudio   bool
	audioDir    string
	output      string
	format      string
	engine      string
	whishperURL string
}

// NewPodcastTranscriberCommand builds the podtranscribe program.
func NewPodcastTranscriberCommand(deps Deps) *cobra.Command {
	p := newProgram(deps)
	var opts podcastOptions

	cmd := p.newRoot("podtranscribe <url>", "Transcribe an Acast or Apple Podcasts episode", true)
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if _, err := format.Parse(opts.format); err != nil {
			return err
		}
		if opts.model != "" {
			if _, err := domain.ParseModelTier(opts.model); err != nil {
				return err
			}
		}
		return nil
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return p.runPodcast(cmd, args[0], opts)
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.language, "language", "l", "", "spoken language code or auto (default from settings, auto)")
	flags.StringVarP(&opts.model, "model", "m", "", "whisper model: tiny, base, small, medium, large (default from settings, base)")
	flags.BoolVar(&opts.keepAudio, "keep-audio", false, "keep the downloaded audio file")
	flags.StringVar(&opts.audioDir, "audio-dir", "", "directory for downloaded audio (default <tmp>/podcast_audio)")
	flags.StringVarP(&opts.output, "output", "o", "", "output file (default transcripts/<title>.<ext>)")
	flags.StringVarP(&opts.format, "format", "f", string(domain.FormatText), "output format: text, json, vtt, srt")
	flags.StringVar(&opts.engine, "engine", "", "transcription engine: whisper, whishper, openai (default from settings)")
	flags.StringVar(&opts.whishperURL, "whishper-url", "", "Whishper service URL (default from settings)")
	return cmd
}

func (p *program) runPodcast(cmd *cobra.Command, raw string, opts podcastOptions) error {
	ctx := cmd.Context()

	ref, err := resolver.ResolveFor(raw, domain.PlatformAcast, domain.PlatformApple)
	if err != nil {
		return err
	}
	outFormat, err := format.Parse(opts.format)
	if err != nil {
		return err
	}
	tier, err := p.modelTier(opts.model)
	if err != nil {
		return err
	}
	engine, err := p.engine(opts.engine, opts.whishperURL)
	if err != nil {
		return err
	}

	language := opts.language
	if language == "" {
		language = p.settings.Language
	}
	cfg := domain.RunConfig{
		OutputPath: opts.output,
		Format:     outFormat,
		Languages:  []string{language},
		ModelTier:  tier,
		KeepAudio:  opts.keepAudio,
		AudioDir:   opts.audioDir,
	}
	if cfg.AudioDir == "" {
		cfg.AudioDir = p.settings.AudioDir
	}

	episode, err := p.deps.Podcasts.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	slog.Info("episode resolved",
		slog.String("show", episode.Show),
		slog.String("episode", episode.Title),
		slog.String("audio_url", episode.AudioURL))

	if cfg.OutputPath == "" {
		cfg.OutputPath = filepath.Join(p.settings.TranscriptDir, podcast.SafeFilename(episode.Title)+"."+outFormat.Extension())
	}

	audio := podcast.EpisodeAudio{Episode: episode, Downloader: p.deps.Downloader}
	out, err := p.run(ctx, nil, audio, engine, ref, cfg)
	if err != nil {
		return err
	}

	var content string
	if cfg.Format == domain.FormatText {
		content = format.PodcastHeader(format.PodcastMeta{
			Show:     episode.Show,
			Episode:  episode.Title,
			Source:   episode.SourceURL,
			Language: out.Language,
			Model:    string(tier),
		}) + format.Text(out.Segments)
	} else if content, err = format.Render(out.Segments, cfg.Format); err != nil {
		return err
	}
	if err := writeOutput(cfg.OutputPath, content); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Transcript saved to %s\n", cfg.OutputPath)
	if out.AudioPath != "" {
		fmt.Fprintf(w, "Audio file saved at %s\n", out.AudioPath)
	}
	return nil
}
