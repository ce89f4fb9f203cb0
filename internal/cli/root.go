// Package cli builds the cobra commands behind the three programs.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"mediascribe/internal/config"
	"mediascribe/internal/diagnostics"
	"mediascribe/internal/domain"
	"mediascribe/internal/models"
	"mediascribe/internal/orchestrator"
	"mediascribe/internal/podcast"
	"mediascribe/internal/transcribe"
	"mediascribe/internal/youtube"
)

// VideoSource downloads YouTube media.
type VideoSource interface {
	FetchVideo(ctx context.Context, ref domain.MediaReference, quality domain.Quality, outDir string) (domain.MediaFile, error)
	FetchAudio(ctx context.Context, ref domain.MediaReference, outDir string) (domain.MediaFile, error)
	PlaylistEntries(ctx context.Context, ref domain.MediaReference) ([]domain.MediaReference, error)
}

// CaptionSource lists and fetches platform caption tracks.
type CaptionSource interface {
	orchestrator.CaptionSource
	ListTracks(ctx context.Context, ref domain.MediaReference) ([]domain.TrackInfo, error)
}

// EpisodeResolver turns a podcast reference into an episode with an audio URL.
type EpisodeResolver interface {
	Resolve(ctx context.Context, ref domain.MediaReference) (domain.Episode, error)
}

// Deps carries the collaborators the commands are built on.
type Deps struct {
	LookupEnv  config.LookupFunc
	Videos     VideoSource
	Captions   CaptionSource
	Podcasts   EpisodeResolver
	Downloader *podcast.Downloader
	NewEngine  func(domain.Settings, transcribe.ModelSource) (transcribe.Engine, error)
	NewChecker func(domain.Settings, *models.Catalog) *diagnostics.Checker
	NewFixer   func(*models.Catalog) *diagnostics.Fixer
	TempDir    string
}

// DefaultDeps wires the production implementations.
func DefaultDeps() Deps {
	return Deps{
		LookupEnv:  os.LookupEnv,
		Videos:     youtube.NewFetcher(),
		Captions:   youtube.NewCaptions(),
		Podcasts:   podcast.NewResolver(),
		Downloader: podcast.NewDownloader(),
		NewEngine:  transcribe.New,
		NewChecker: func(_ domain.Settings, catalog *models.Catalog) *diagnostics.Checker {
			return diagnostics.NewChecker(catalog, youtube.Locate)
		},
		NewFixer: func(catalog *models.Catalog) *diagnostics.Fixer {
			return diagnostics.NewFixer(youtube.Install, catalog)
		},
	}
}

type rootOptions struct {
	verbose    bool
	quiet      bool
	configPath string
}

// program holds state shared between a root command and its subcommands.
type program struct {
	deps         Deps
	opts         rootOptions
	store        config.Store
	settingsPath string
	settings     domain.Settings
}

func newProgram(deps Deps) *program {
	if deps.LookupEnv == nil {
		deps.LookupEnv = os.LookupEnv
	}
	return &program{deps: deps}
}

// newRoot creates the program command with the shared persistent flags and
// the doctor, models and config subcommands.
func (p *program) newRoot(use, short string, quietShorthand bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd.ErrOrStderr(), p.opts.verbose, p.opts.quiet)
			cmd.SilenceUsage = true
			return p.loadSettings()
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&p.opts.verbose, "verbose", "v", false, "verbose logging")
	if quietShorthand {
		flags.BoolVarP(&p.opts.quiet, "quiet", "q", false, "suppress non-error output")
	} else {
		flags.BoolVar(&p.opts.quiet, "quiet", false, "suppress non-error output")
	}
	flags.StringVar(&p.opts.configPath, "config", "", "settings file (default ~/.mediascribe/settings.json)")

	cmd.AddCommand(p.newDoctorCommand(), p.newModelsCommand(), p.newConfigCommand())
	return cmd
}

func setupLogging(w io.Writer, verbose, quiet bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelError
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// loadSettings reads the settings file then applies environment overrides.
// Flags are applied by each command afterwards.
func (p *program) loadSettings() error {
	path := p.opts.configPath
	if path == "" {
		path = config.DefaultPath()
	}

	p.store = config.NewJSONStore(path)
	p.settingsPath = path

	settings, err := p.store.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	settings, err = config.ApplyEnv(settings, p.deps.LookupEnv)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	slog.Debug("settings loaded", slog.String("path", path), slog.String("engine", settings.Engine))
	p.settings = settings
	return nil
}

func (p *program) catalog() *models.Catalog {
	return models.NewCatalog(p.settings.ModelDir, p.settings.AutoDownloadModels)
}

// engine builds the transcription engine from settings plus flag overrides.
func (p *program) engine(engineFlag, whishperURL string) (transcribe.Engine, error) {
	settings := p.settings
	if engineFlag != "" {
		settings.Engine = engineFlag
	}
	if whishperURL != "" {
		settings.WhishperURL = whishperURL
	}
	if _, err := transcribe.ParseEngine(settings.Engine); err != nil {
		return nil, err
	}
	return p.deps.NewEngine(settings, p.catalog())
}

// run executes one pipeline run and logs the states it passed through.
func (p *program) run(ctx context.Context, captions orchestrator.CaptionSource, audio orchestrator.AudioSource, engine transcribe.Engine, ref domain.MediaReference, cfg domain.RunConfig) (orchestrator.Outcome, error) {
	orch := orchestrator.New(captions, audio, engine).WithTempDir(p.deps.TempDir)
	out, err := orch.Run(ctx, ref, cfg)

	last := orch.Tracker().Current()
	slog.Debug("run finished",
		slog.String("run_id", last.ID),
		slog.String("state", string(last.State)),
		slog.Any("history", last.History))
	return out, err
}

func writeOutput(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
