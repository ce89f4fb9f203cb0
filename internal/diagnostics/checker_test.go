package diagnostics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediascribe/internal/domain"
)

type fakeModels struct {
	list       []domain.WhisperModelOption
	downloaded []domain.ModelTier
	err        error
}

func (f *fakeModels) List() []domain.WhisperModelOption { return f.list }

func (f *fakeModels) Download(_ context.Context, tier domain.ModelTier) (string, error) {
	f.downloaded = append(f.downloaded, tier)
	return "/models/" + string(tier), f.err
}

func foundTools(name string) (string, error) { return "/usr/local/bin/" + name, nil }

func missingTools(string) (string, error) { return "", errors.New("not found") }

func foundYTDLP(context.Context) (string, error) { return "/usr/bin/yt-dlp", nil }

func reachable(context.Context, string) error { return nil }

func baseSettings(root string) domain.Settings {
	return domain.Settings{
		TranscriptDir: filepath.Join(root, "transcripts"),
		AudioDir:      filepath.Join(root, "audio"),
		Engine:        "whisper",
		WhisperModel:  "base",
		FFmpegPath:    "ffmpeg",
		WhisperPath:   "whisper-cli",
	}
}

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()
	models := &fakeModels{list: []domain.WhisperModelOption{
		{Tier: domain.TierBase, Downloaded: true, LocalPath: "/models/ggml-base.bin"},
	}}
	checker := NewCheckerForTests(foundTools, foundYTDLP, models, reachable)

	report := checker.Run(context.Background(), baseSettings(root))
	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	assertStatusByID(t, report, domain.DiagnosticWhishper, domain.DiagnosticStatusSkip)
	if _, err := os.Stat(filepath.Join(root, "transcripts")); err != nil {
		t.Fatalf("transcript dir not created: %v", err)
	}
}

// TestCheckerRunMissingToolsAndPaths validates failure reporting.
func TestCheckerRunMissingToolsAndPaths(t *testing.T) {
	checker := NewCheckerForTests(
		missingTools,
		func(context.Context) (string, error) { return "", errors.New("no yt-dlp") },
		&fakeModels{list: []domain.WhisperModelOption{{Tier: domain.TierBase}}},
		reachable,
	)

	settings := baseSettings(t.TempDir())
	settings.TranscriptDir = ""
	report := checker.Run(context.Background(), settings)

	if !report.HasFailures {
		t.Fatal("expected failures")
	}
	assertStatusByID(t, report, domain.DiagnosticToolYTDLP, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, domain.DiagnosticToolFFmpeg, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, domain.DiagnosticToolWhisper, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, domain.DiagnosticModel, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, domain.DiagnosticOutputDir, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, domain.DiagnosticAudioDir, domain.DiagnosticStatusPass)
}

// TestCheckerModelAutoDownloadIsSkip verifies a missing model is not fatal when it can be fetched.
func TestCheckerModelAutoDownloadIsSkip(t *testing.T) {
	checker := NewCheckerForTests(foundTools, foundYTDLP,
		&fakeModels{list: []domain.WhisperModelOption{{Tier: domain.TierSmall, SizeLabel: "~466 MB"}}},
		reachable)

	settings := baseSettings(t.TempDir())
	settings.WhisperModel = "small"
	settings.AutoDownloadModels = true
	report := checker.Run(context.Background(), settings)

	assertStatusByID(t, report, domain.DiagnosticModel, domain.DiagnosticStatusSkip)
	if report.HasFailures {
		t.Fatalf("unexpected failures: %+v", report.Items)
	}
}

// TestCheckerWhishperEngine verifies the remote engine replaces local whisper checks.
func TestCheckerWhishperEngine(t *testing.T) {
	var reached string
	checker := NewCheckerForTests(
		func(name string) (string, error) {
			if name == "whisper-cli" {
				return "", errors.New("not found")
			}
			return "/bin/" + name, nil
		},
		foundYTDLP,
		&fakeModels{},
		func(_ context.Context, url string) error {
			reached = url
			return domain.ErrNetwork
		},
	)

	settings := baseSettings(t.TempDir())
	settings.Engine = "whishper"
	settings.WhishperURL = "http://whishper.local:8082"
	report := checker.Run(context.Background(), settings)

	assertStatusByID(t, report, domain.DiagnosticToolWhisper, domain.DiagnosticStatusSkip)
	assertStatusByID(t, report, domain.DiagnosticModel, domain.DiagnosticStatusSkip)
	assertStatusByID(t, report, domain.DiagnosticWhishper, domain.DiagnosticStatusFail)
	if reached != settings.WhishperURL {
		t.Fatalf("reached %q", reached)
	}
}

// TestCheckerUnknownEngineFails verifies a bad engine name is reported.
func TestCheckerUnknownEngineFails(t *testing.T) {
	checker := NewCheckerForTests(foundTools, foundYTDLP, &fakeModels{}, reachable)
	settings := baseSettings(t.TempDir())
	settings.Engine = "vosk"

	report := checker.Run(context.Background(), settings)
	if !report.HasFailures {
		t.Fatal("expected failure for unknown engine")
	}
}

// TestFixerRemediatesFailedItems verifies each fixable item reaches its remedy.
func TestFixerRemediatesFailedItems(t *testing.T) {
	root := t.TempDir()
	settings := baseSettings(root)
	models := &fakeModels{}
	installed := false
	var commands []string

	fixer := NewFixerForTests(
		func(context.Context) (string, error) {
			installed = true
			return "/cache/yt-dlp", nil
		},
		models,
		func(name string) bool { return name == "brew" },
		func(_ context.Context, name string, args ...string) error {
			commands = append(commands, name+" "+strings.Join(args, " "))
			return nil
		},
		"darwin",
	)

	report := domain.DiagnosticReport{Items: []domain.DiagnosticItem{
		{ID: domain.DiagnosticToolYTDLP, Status: domain.DiagnosticStatusFail},
		{ID: domain.DiagnosticToolFFmpeg, Status: domain.DiagnosticStatusFail},
		{ID: domain.DiagnosticModel, Status: domain.DiagnosticStatusFail},
		{ID: domain.DiagnosticOutputDir, Status: domain.DiagnosticStatusFail},
		{ID: domain.DiagnosticAudioDir, Status: domain.DiagnosticStatusPass},
	}}
	if err := fixer.Fix(context.Background(), settings, report); err != nil {
		t.Fatalf("Fix() error = %v", err)
	}

	if !installed {
		t.Fatal("yt-dlp install not attempted")
	}
	if len(commands) != 1 || commands[0] != "brew install ffmpeg" {
		t.Fatalf("commands = %v", commands)
	}
	if len(models.downloaded) != 1 || models.downloaded[0] != domain.TierBase {
		t.Fatalf("downloaded = %v", models.downloaded)
	}
	if _, err := os.Stat(settings.TranscriptDir); err != nil {
		t.Fatalf("transcript dir: %v", err)
	}
	if _, err := os.Stat(settings.AudioDir); !os.IsNotExist(err) {
		t.Fatalf("passing item should be left alone, stat err = %v", err)
	}
}

// TestFixerReportsUnfixable checks that items without a remedy surface as errors.
func TestFixerReportsUnfixable(t *testing.T) {
	fixer := NewFixerForTests(foundYTDLP, &fakeModels{},
		func(string) bool { return false },
		func(context.Context, string, ...string) error { return nil },
		"linux",
	)
	report := domain.DiagnosticReport{Items: []domain.DiagnosticItem{
		{ID: domain.DiagnosticWhishper, Status: domain.DiagnosticStatusFail},
		{ID: domain.DiagnosticToolFFmpeg, Status: domain.DiagnosticStatusFail},
	}}

	err := fixer.Fix(context.Background(), baseSettings(t.TempDir()), report)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{domain.DiagnosticWhishper, "no supported package manager"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			if item.Status != want {
				t.Fatalf("item %s: got %s, want %s", id, item.Status, want)
			}
			return
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
}
