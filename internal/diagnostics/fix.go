package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	goruntime "runtime"
	"strings"
	"time"

	"mediascribe/internal/domain"
)

const installCommandTimeout = 30 * time.Minute

// ModelDownloader fetches the weights for one tier.
type ModelDownloader interface {
	Download(ctx context.Context, tier domain.ModelTier) (string, error)
}

type installOption struct {
	manager  string
	commands [][]string
}

// Fixer applies remediations for failed diagnostic items.
type Fixer struct {
	installYTDLP     func(context.Context) (string, error)
	models           ModelDownloader
	mkdirAll         func(string, os.FileMode) error
	commandAvailable func(string) bool
	runCommand       func(ctx context.Context, name string, args ...string) error
	goos             string
}

// NewFixer creates a fixer using real OS dependencies.
func NewFixer(installYTDLP func(context.Context) (string, error), models ModelDownloader) *Fixer {
	return &Fixer{
		installYTDLP:     installYTDLP,
		models:           models,
		mkdirAll:         os.MkdirAll,
		commandAvailable: commandAvailable,
		runCommand:       runCommand,
		goos:             goruntime.GOOS,
	}
}

// NewFixerForTests creates a fixer with injectable command execution.
func NewFixerForTests(
	installYTDLP func(context.Context) (string, error),
	models ModelDownloader,
	commandAvailable func(string) bool,
	run func(ctx context.Context, name string, args ...string) error,
	goos string,
) *Fixer {
	return &Fixer{
		installYTDLP:     installYTDLP,
		models:           models,
		mkdirAll:         os.MkdirAll,
		commandAvailable: commandAvailable,
		runCommand:       run,
		goos:             goos,
	}
}

// Fix attempts a remediation for every failed item in report. Items without a
// known remedy are reported in the returned error.
func (f *Fixer) Fix(ctx context.Context, settings domain.Settings, report domain.DiagnosticReport) error {
	var errs []error
	for _, item := range report.Items {
		if item.Status != domain.DiagnosticStatusFail {
			continue
		}
		slog.Info("fixing diagnostic", slog.String("id", item.ID))
		if err := f.fixItem(ctx, settings, item.ID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", item.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fixer) fixItem(ctx context.Context, settings domain.Settings, id string) error {
	switch id {
	case domain.DiagnosticToolYTDLP:
		path, err := f.installYTDLP(ctx)
		if err != nil {
			return fmt.Errorf("install yt-dlp: %w", err)
		}
		slog.Info("yt-dlp installed", slog.String("path", path))
		return nil
	case domain.DiagnosticToolFFmpeg:
		return f.runFirstSuccessfulInstall(ctx, ffmpegInstallOptions(f.goos))
	case domain.DiagnosticModel:
		tier, err := domain.ParseModelTier(settings.WhisperModel)
		if err != nil {
			return err
		}
		_, err = f.models.Download(ctx, tier)
		return err
	case domain.DiagnosticOutputDir:
		return f.mkdir(settings.TranscriptDir)
	case domain.DiagnosticAudioDir:
		return f.mkdir(settings.AudioDir)
	default:
		return fmt.Errorf("no automatic fix available")
	}
}

func (f *Fixer) mkdir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("directory is not configured")
	}
	if err := f.mkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

func ffmpegInstallOptions(goos string) []installOption {
	switch goos {
	case "windows":
		return []installOption{
			{manager: "winget", commands: [][]string{{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
			{manager: "choco", commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
		}
	case "darwin":
		return []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	default:
		return []installOption{
			{manager: "apt-get", commands: [][]string{{"sudo", "-n", "apt-get", "update"}, {"sudo", "-n", "apt-get", "install", "-y", "ffmpeg"}}},
			{manager: "dnf", commands: [][]string{{"sudo", "-n", "dnf", "install", "-y", "ffmpeg"}}},
			{manager: "pacman", commands: [][]string{{"sudo", "-n", "pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
			{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
		}
	}
}

func (f *Fixer) runFirstSuccessfulInstall(ctx context.Context, options []installOption) error {
	failures := make([]string, 0, len(options))
	for _, option := range options {
		if !f.commandAvailable(option.manager) {
			continue
		}
		var err error
		for _, command := range option.commands {
			if err = f.runCommand(ctx, command[0], command[1:]...); err != nil {
				break
			}
		}
		if err == nil {
			return nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", option.manager, err))
	}

	if len(failures) == 0 {
		return fmt.Errorf("no supported package manager found for %s", f.goos)
	}
	return errors.New(strings.Join(failures, " | "))
}

func commandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, installCommandTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", name, installCommandTimeout)
	}

	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return fmt.Errorf("%s failed: %w (%s)", name, err, trimmed)
}
