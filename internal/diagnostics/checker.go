// Package diagnostics checks the external tools, model files, and directories
// the three commands depend on, and repairs what it can.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"mediascribe/internal/domain"
	"mediascribe/internal/httpclient"
	"mediascribe/internal/transcribe"
)

const reachTimeout = 5 * time.Second

// ModelLister reports which catalog models are on disk.
type ModelLister interface {
	List() []domain.WhisperModelOption
}

// Checker validates external tools and required filesystem paths.
type Checker struct {
	lookPath    func(string) (string, error)
	locateYTDLP func(context.Context) (string, error)
	models      ModelLister
	reach       func(context.Context, string) error
	mkdirAll    func(string, os.FileMode) error
	createTemp  func(string, string) (*os.File, error)
	remove      func(string) error
}

// NewChecker builds a checker using real OS dependencies. locateYTDLP finds an
// installed yt-dlp without downloading one.
func NewChecker(models ModelLister, locateYTDLP func(context.Context) (string, error)) *Checker {
	client := httpclient.New(httpclient.APIProfile, reachTimeout)
	return &Checker{
		lookPath:    exec.LookPath,
		locateYTDLP: locateYTDLP,
		models:      models,
		reach: func(ctx context.Context, url string) error {
			resp, err := client.Get(ctx, url, nil)
			if err != nil {
				return err
			}
			return resp.Body.Close()
		},
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	locateYTDLP func(context.Context) (string, error),
	models ModelLister,
	reach func(context.Context, string) error,
) *Checker {
	return &Checker{
		lookPath:    lookPath,
		locateYTDLP: locateYTDLP,
		models:      models,
		reach:       reach,
		mkdirAll:    os.MkdirAll,
		createTemp:  os.CreateTemp,
		remove:      os.Remove,
	}
}

// Run executes all checks for the configured engine and returns a combined report.
func (c *Checker) Run(ctx context.Context, settings domain.Settings) domain.DiagnosticReport {
	engine, engineErr := transcribe.ParseEngine(settings.Engine)

	items := []domain.DiagnosticItem{
		c.checkYTDLP(ctx),
		c.checkTool(domain.DiagnosticToolFFmpeg, "ffmpeg", settings.FFmpegPath),
	}

	if engineErr == nil && engine == transcribe.EngineWhisper {
		items = append(items,
			c.checkTool(domain.DiagnosticToolWhisper, "whisper.cpp", settings.WhisperPath),
			c.checkModel(settings),
		)
	} else {
		items = append(items,
			skipped(domain.DiagnosticToolWhisper, "whisper.cpp", "Not used by the configured engine."),
			skipped(domain.DiagnosticModel, "Whisper model", "Not used by the configured engine."),
		)
	}

	items = append(items,
		c.checkWritableDir(domain.DiagnosticOutputDir, "Transcript directory", settings.TranscriptDir),
		c.checkWritableDir(domain.DiagnosticAudioDir, "Podcast audio directory", settings.AudioDir),
	)

	switch {
	case engineErr != nil:
		items = append(items, domain.DiagnosticItem{
			ID:      domain.DiagnosticWhishper,
			Name:    "Transcription engine",
			Status:  domain.DiagnosticStatusFail,
			Message: engineErr.Error(),
			Hint:    "Set engine to whisper, whishper, or openai.",
		})
	case engine == transcribe.EngineWhishper:
		items = append(items, c.checkWhishper(ctx, settings.WhishperURL))
	default:
		items = append(items, skipped(domain.DiagnosticWhishper, "Whishper service", "Not used by the configured engine."))
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

func skipped(id, name, message string) domain.DiagnosticItem {
	return domain.DiagnosticItem{ID: id, Name: name, Status: domain.DiagnosticStatusSkip, Message: message}
}

func (c *Checker) checkYTDLP(ctx context.Context) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: domain.DiagnosticToolYTDLP, Name: "yt-dlp"}

	path, err := c.locateYTDLP(ctx)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "yt-dlp is not installed."
		item.Hint = "Run `doctor --fix` to download a managed copy, or install yt-dlp on PATH."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkTool verifies a CLI executable is on PATH or at the configured location.
func (c *Checker) checkTool(id, name, configured string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: id, Name: name}

	if strings.TrimSpace(configured) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("No path configured for %s.", name)
		item.Hint = "Set the executable path in settings or the environment."
		return item
	}

	path, err := c.lookPath(configured)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Tool not found: %s", configured)
		item.Hint = "Install it and ensure the binary is available on PATH before transcribing."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkModel validates that the configured tier's weights are on disk or can be fetched.
func (c *Checker) checkModel(settings domain.Settings) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: domain.DiagnosticModel, Name: "Whisper model"}

	tier, err := domain.ParseModelTier(settings.WhisperModel)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = err.Error()
		item.Hint = "Set whisperModel to tiny, base, small, medium, or large."
		return item
	}

	for _, model := range c.models.List() {
		if model.Tier != tier {
			continue
		}
		if model.Downloaded {
			item.Status = domain.DiagnosticStatusPass
			item.Message = fmt.Sprintf("Model %s found: %s", tier, model.LocalPath)
			return item
		}
		if settings.AutoDownloadModels {
			item.Status = domain.DiagnosticStatusSkip
			item.Message = fmt.Sprintf("Model %s (%s) will be downloaded on first use.", tier, model.SizeLabel)
			return item
		}
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Model %s is not downloaded and auto download is off.", tier)
		item.Hint = fmt.Sprintf("Run `models download %s` or `doctor --fix`.", tier)
		return item
	}

	item.Status = domain.DiagnosticStatusFail
	item.Message = fmt.Sprintf("Model tier %s is missing from the catalog.", tier)
	return item
}

// checkWritableDir validates directory existence and write access.
func (c *Checker) checkWritableDir(id, name, dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: id, Name: name}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s is empty.", name)
		item.Hint = "Set a directory where files can be written."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

func (c *Checker) checkWhishper(ctx context.Context, baseURL string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: domain.DiagnosticWhishper, Name: "Whishper service"}

	if strings.TrimSpace(baseURL) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Whishper URL is empty."
		item.Hint = "Set whishperUrl or MEDIASCRIBE_WHISHPER_URL."
		return item
	}

	ctx, cancel := context.WithTimeout(ctx, reachTimeout)
	defer cancel()
	if err := c.reach(ctx, baseURL); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot reach %s: %v", baseURL, err)
		item.Hint = "Start the Whishper service or pick another engine."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Reachable: %s", baseURL)
	return item
}
