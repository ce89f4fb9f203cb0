package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mediascribe/internal/domain"
	"mediascribe/internal/format"
	"mediascribe/internal/resolver"
)

type transcriptOptions struct {
	format       string
	output       string
	languages    string
	listOnly     bool
	audioOnly    bool
	noFallback   bool
	keepAudio    bool
	engine       string
	whisperModel string
	whishperURL  string
}

// NewTranscriptFetcherCommand builds the yttranscript program.
func NewTranscriptFetcherCommand(deps Deps) *cobra.Command {
	p := newProgram(deps)
	var opts transcriptOptions

	cmd := p.newRoot("yttranscript <url>", "Fetch a YouTube transcript, transcribing the audio when none exists", true)
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if _, err := format.Parse(opts.format); err != nil {
			return err
		}
		if opts.whisperModel != "" {
			if _, err := domain.ParseModelTier(opts.whisperModel); err != nil {
				return err
			}
		}
		return nil
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return p.runTranscript(cmd, args[0], opts)
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.format, "format", "f", string(domain.FormatText), "output format: text, json, vtt, srt")
	flags.StringVarP(&opts.output, "output", "o", "", "output file (default transcripts/<video_id>.<ext>)")
	flags.StringVarP(&opts.languages, "languages", "l", "en", "preferred languages, comma separated, most preferred first")
	flags.BoolVar(&opts.listOnly, "list-transcripts", false, "list available transcript tracks and exit")
	flags.BoolVar(&opts.audioOnly, "audio-only", false, "skip existing captions and transcribe the audio")
	flags.BoolVar(&opts.noFallback, "no-fallback", false, "fail instead of transcribing when no transcript exists")
	flags.BoolVar(&opts.keepAudio, "keep-audio", false, "keep the downloaded audio file")
	flags.StringVar(&opts.engine, "engine", "", "transcription engine: whisper, whishper, openai (default from settings)")
	flags.StringVar(&opts.whisperModel, "whisper-model", "", "whisper model: tiny, base, small, medium, large (default from settings, base)")
	flags.StringVar(&opts.whishperURL, "whishper-url", "", "Whishper service URL (default from settings)")
	return cmd
}

func (p *program) runTranscript(cmd *cobra.Command, raw string, opts transcriptOptions) error {
	ctx := cmd.Context()

	ref, err := resolver.ResolveFor(raw, domain.PlatformYouTube)
	if err != nil {
		return err
	}
	if ref.Playlist {
		return fmt.Errorf("%w: playlists are not supported for transcripts: %s", domain.ErrInvalidURL, raw)
	}

	if opts.listOnly {
		return p.listTracks(cmd, ref)
	}

	outFormat, err := format.Parse(opts.format)
	if err != nil {
		return err
	}
	tier, err := p.modelTier(opts.whisperModel)
	if err != nil {
		return err
	}
	engine, err := p.engine(opts.engine, opts.whishperURL)
	if err != nil {
		return err
	}

	cfg := domain.RunConfig{
		OutputPath: opts.output,
		Format:     outFormat,
		Languages:  splitLanguages(opts.languages),
		ModelTier:  tier,
		KeepAudio:  opts.keepAudio,
		AudioOnly:  opts.audioOnly,
		NoFallback: opts.noFallback,
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = filepath.Join(p.settings.TranscriptDir, ref.CanonicalID+"."+outFormat.Extension())
	}

	out, err := p.run(ctx, p.deps.Captions, p.deps.Videos, engine, ref, cfg)
	if err != nil {
		return err
	}

	content, err := format.Render(out.Segments, cfg.Format)
	if err != nil {
		return err
	}
	if err := writeOutput(cfg.OutputPath, content); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Transcript (%s, %s) saved to %s\n", out.Source, out.Language, cfg.OutputPath)
	if out.AudioPath != "" {
		fmt.Fprintf(w, "Audio file saved at %s\n", out.AudioPath)
	}
	return nil
}

func (p *program) listTracks(cmd *cobra.Command, ref domain.MediaReference) error {
	tracks, err := p.deps.Captions.ListTracks(cmd.Context(), ref)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(tracks) == 0 {
		fmt.Fprintf(w, "No transcripts available for %s\n", ref.CanonicalID)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LANGUAGE\tNAME\tTYPE")
	for _, track := range tracks {
		kind := "manual"
		if track.Generated {
			kind = "auto-generated"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", track.LanguageCode, track.Name, kind)
	}
	return tw.Flush()
}

// modelTier resolves a tier flag, falling back to settings.
func (p *program) modelTier(flag string) (domain.ModelTier, error) {
	if flag == "" {
		flag = p.settings.WhisperModel
	}
	if flag == "" {
		return domain.TierBase, nil
	}
	return domain.ParseModelTier(flag)
}

func splitLanguages(csv string) []string {
	var langs []string
	for _, lang := range strings.Split(csv, ",") {
		if lang = strings.TrimSpace(lang); lang != "" {
			langs = append(langs, lang)
		}
	}
	return langs
}
