package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"mediascribe/internal/domain"
	"mediascribe/internal/resolver"
)

type videoOptions struct {
	quality   string
	audioOnly bool
	output    string
}

// NewVideoDownloaderCommand builds the ytdownload program.
func NewVideoDownloaderCommand(deps Deps) *cobra.Command {
	p := newProgram(deps)
	var opts videoOptions

	cmd := p.newRoot("ytdownload <url>", "Download a YouTube video, playlist, or its audio", false)
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		_, err := domain.ParseQuality(opts.quality)
		return err
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return p.runVideo(cmd, args[0], opts)
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.quality, "quality", "q", string(domain.QualityBest), "video quality: best, 1080p, 720p, 480p, 360p")
	flags.BoolVarP(&opts.audioOnly, "audio-only", "a", false, "download audio only as mp3")
	flags.StringVarP(&opts.output, "output", "o", "", "output directory (default from settings, downloads)")
	return cmd
}

func (p *program) runVideo(cmd *cobra.Command, raw string, opts videoOptions) error {
	ctx := cmd.Context()

	ref, err := resolver.ResolveFor(raw, domain.PlatformYouTube)
	if err != nil {
		return err
	}
	quality, err := domain.ParseQuality(opts.quality)
	if err != nil {
		return err
	}
	outDir := opts.output
	if outDir == "" {
		outDir = p.settings.DownloadDir
	}

	refs := []domain.MediaReference{ref}
	if ref.Playlist {
		refs, err = p.deps.Videos.PlaylistEntries(ctx, ref)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Playlist with %d videos\n", len(refs))
	}

	for i, item := range refs {
		log := slog.With(slog.String("video_id", item.CanonicalID))
		if len(refs) > 1 {
			log.Info("downloading playlist entry", slog.Int("index", i+1), slog.Int("total", len(refs)))
		}

		var file domain.MediaFile
		if opts.audioOnly {
			file, err = p.deps.Videos.FetchAudio(ctx, item, outDir)
		} else {
			file, err = p.deps.Videos.FetchVideo(ctx, item, quality, outDir)
		}
		if err != nil {
			return fmt.Errorf("download %s: %w", item.CanonicalID, err)
		}
		printMediaFile(cmd, file)
	}
	return nil
}

func printMediaFile(cmd *cobra.Command, file domain.MediaFile) {
	out := cmd.OutOrStdout()
	if file.Title != "" {
		fmt.Fprintf(out, "Title: %s\n", file.Title)
	}
	if file.Duration > 0 {
		fmt.Fprintf(out, "Duration: %s\n", file.Duration.Round(time.Second))
	}
	fmt.Fprintf(out, "Saved to %s\n", file.Path)
}
