package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediascribe/internal/domain"
)

const sampleWhisperJSON = `{
  "result": {"language": "en"},
  "transcription": [
    {"offsets": {"from": 1200, "to": 2500}, "text": " world"},
    {"offsets": {"from": 0, "to": 1200}, "text": " hello"},
    {"offsets": {"from": 2500, "to": 2600}, "text": "  "}
  ]
}`

// fakeModels returns a fixed model path or error.
type fakeModels struct {
	path  string
	err   error
	tiers []domain.ModelTier
}

func (f *fakeModels) Ensure(ctx context.Context, tier domain.ModelTier) (string, error) {
	f.tiers = append(f.tiers, tier)
	return f.path, f.err
}

// fakeRunner simulates command execution order and outcomes.
type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (commandResult, error)
}

// Run delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

// TestPipelineRunSuccessAutoLanguage checks full happy path with auto lang.
func TestPipelineRunSuccessAutoLanguage(t *testing.T) {
	root := t.TempDir()
	inputPath := filepath.Join(root, "meeting.mp4")
	modelPath := filepath.Join(root, "ggml-base.bin")
	mustWriteFile(t, inputPath, "media")
	mustWriteFile(t, modelPath, "model")

	call := 0
	var whisperArgs []string
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			call++
			switch call {
			case 1:
				if name != "ffmpeg-custom" {
					t.Fatalf("command 1 name = %q, want ffmpeg-custom", name)
				}
				outPath := args[len(args)-1]
				mustWriteFile(t, outPath, "wav")
				return commandResult{Stdout: "ffmpeg ok", ExitCode: 0}, nil
			case 2:
				if name != "whisper-custom" {
					t.Fatalf("command 2 name = %q, want whisper-custom", name)
				}
				whisperArgs = append([]string{}, args...)
				base := argValue(args, "-of")
				mustWriteFile(t, base+".json", sampleWhisperJSON)
				return commandResult{Stdout: "whisper ok", ExitCode: 0}, nil
			default:
				t.Fatalf("unexpected command call: %d", call)
				return commandResult{}, nil
			}
		},
	}

	pipeline := NewPipelineForTests("ffmpeg-custom", "whisper-custom", nil, runner, os.MkdirTemp, os.RemoveAll, os.Stat)
	result, err := pipeline.Run(context.Background(), Request{
		InputPath: inputPath,
		ModelPath: modelPath,
		Language:  "auto",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if call != 2 {
		t.Fatalf("command calls = %d, want 2", call)
	}
	if len(result.Logs) != 2 {
		t.Fatalf("logs count = %d, want 2", len(result.Logs))
	}
	if !hasArg(whisperArgs, "-oj") {
		t.Fatalf("expected JSON output flag, args=%v", whisperArgs)
	}
	if hasArg(whisperArgs, "-l") {
		t.Fatalf("auto language should not pass -l, args=%v", whisperArgs)
	}
	if result.Language != "en" {
		t.Fatalf("language = %q, want en", result.Language)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("segments = %d, want 2 (blank dropped)", len(result.Segments))
	}
	if result.Segments[0].Text != "hello" || result.Segments[1].Text != "world" {
		t.Fatalf("segments out of order: %+v", result.Segments)
	}
	if result.Segments[1].Start != 1200*time.Millisecond || result.Segments[1].End != 2500*time.Millisecond {
		t.Fatalf("segment timing = %+v", result.Segments[1])
	}

	if err := result.Cleanup(); err != nil {
		t.Fatalf("cleanup error: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(result.PreprocessedAudioPath)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected temp dir cleanup, stat err = %v", err)
	}
}

// TestPipelineRunFFmpegFailureReturnsPreprocessingError checks conversion error path.
func TestPipelineRunFFmpegFailureReturnsPreprocessingError(t *testing.T) {
	root := t.TempDir()
	inputPath := filepath.Join(root, "clip.mp4")
	modelPath := filepath.Join(root, "model.bin")
	mustWriteFile(t, inputPath, "media")
	mustWriteFile(t, modelPath, "model")

	var cleaned string
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			return commandResult{
				Stderr:   "ffmpeg failed",
				ExitCode: 1,
			}, errors.New("exit status 1")
		},
	}

	pipeline := NewPipelineForTests(
		"ffmpeg",
		"whisper.cpp",
		nil,
		runner,
		os.MkdirTemp,
		func(path string) error {
			cleaned = path
			return os.RemoveAll(path)
		},
		os.Stat,
	)

	_, err := pipeline.Run(context.Background(), Request{
		InputPath: inputPath,
		ModelPath: modelPath,
		Language:  "auto",
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var pErr *PipelineError
	if !errors.As(err, &pErr) {
		t.Fatalf("error type = %T, want *PipelineError", err)
	}
	if pErr.Stage != "preprocessing" {
		t.Fatalf("stage = %s, want preprocessing", pErr.Stage)
	}
	if pErr.CommandLog.Command != "ffmpeg" {
		t.Fatalf("command = %q, want ffmpeg", pErr.CommandLog.Command)
	}
	if pErr.CommandLog.ExitCode != 1 {
		t.Fatalf("exit code = %d, want 1", pErr.CommandLog.ExitCode)
	}
	if strings.TrimSpace(cleaned) == "" {
		t.Fatal("expected temporary directory cleanup")
	}
}

// TestPipelineRunFixedLanguageAndModelDirectory checks model discovery.
func TestPipelineRunFixedLanguageAndModelDirectory(t *testing.T) {
	root := t.TempDir()
	inputPath := filepath.Join(root, "clip.mov")
	modelDir := filepath.Join(root, "models")
	mustWriteFile(t, inputPath, "media")
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatalf("mkdir models: %v", err)
	}
	// lexical sort should pick this first.
	mustWriteFile(t, filepath.Join(modelDir, "a-small.gguf"), "model")
	mustWriteFile(t, filepath.Join(modelDir, "z-large.bin"), "model")

	var usedModel string
	var usedLanguage string
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			if name == "ffmpeg" {
				mustWriteFile(t, args[len(args)-1], "wav")
				return commandResult{ExitCode: 0}, nil
			}

			usedModel = argValue(args, "-m")
			usedLanguage = argValue(args, "-l")
			base := argValue(args, "-of")
			mustWriteFile(t, base+".json", `{"transcription":[{"offsets":{"from":0,"to":900},"text":"transcribed"}]}`)
			return commandResult{ExitCode: 0}, nil
		},
	}

	pipeline := NewPipelineForTests("ffmpeg", "whisper.cpp", nil, runner, os.MkdirTemp, os.RemoveAll, os.Stat)
	result, err := pipeline.Run(context.Background(), Request{
		InputPath: inputPath,
		ModelPath: modelDir,
		Language:  "en",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantModel := filepath.Join(modelDir, "a-small.gguf")
	if usedModel != wantModel {
		t.Fatalf("used model = %q, want %q", usedModel, wantModel)
	}
	if usedLanguage != "en" {
		t.Fatalf("used language = %q, want en", usedLanguage)
	}
	if len(result.Segments) != 1 || result.Segments[0].Text != "transcribed" {
		t.Fatalf("segments = %+v", result.Segments)
	}
	if result.Language != "en" {
		t.Fatalf("language should default to the requested one, got %q", result.Language)
	}
}

// TestPipelineRunWhisperFailureCleansTempDir checks failure cleanup path.
func TestPipelineRunWhisperFailureCleansTempDir(t *testing.T) {
	root := t.TempDir()
	inputPath := filepath.Join(root, "clip.mp4")
	modelPath := filepath.Join(root, "model.bin")
	mustWriteFile(t, inputPath, "media")
	mustWriteFile(t, modelPath, "model")

	var tempDir string
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			if name == "ffmpeg" {
				outPath := args[len(args)-1]
				tempDir = filepath.Dir(outPath)
				mustWriteFile(t, outPath, "wav")
				return commandResult{ExitCode: 0}, nil
			}
			return commandResult{
				Stderr:   "whisper failed",
				ExitCode: 1,
			}, errors.New("exit status 1")
		},
	}

	pipeline := NewPipelineForTests("ffmpeg", "whisper.cpp", nil, runner, os.MkdirTemp, os.RemoveAll, os.Stat)
	_, err := pipeline.Run(context.Background(), Request{
		InputPath: inputPath,
		ModelPath: modelPath,
		Language:  "auto",
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var pErr *PipelineError
	if !errors.As(err, &pErr) {
		t.Fatalf("error type = %T, want *PipelineError", err)
	}
	if pErr.Stage != "transcribing" {
		t.Fatalf("stage = %s, want transcribing", pErr.Stage)
	}
	if pErr.CommandLog.Command != "whisper.cpp" {
		t.Fatalf("command = %q, want whisper.cpp", pErr.CommandLog.Command)
	}
	if pErr.CommandLog.ExitCode != 1 {
		t.Fatalf("exit code = %d, want 1", pErr.CommandLog.ExitCode)
	}
	if !errors.Is(err, domain.ErrTranscription) {
		t.Fatalf("pipeline errors should classify as transcription failures: %v", err)
	}
	if _, statErr := os.Stat(tempDir); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("temp dir should be removed on failure, stat err = %v", statErr)
	}
}

// TestPipelineRunRequiresModelPath checks validation for missing model path.
func TestPipelineRunRequiresModelPath(t *testing.T) {
	root := t.TempDir()
	inputPath := filepath.Join(root, "clip.mp3")
	mustWriteFile(t, inputPath, "media")

	pipeline := NewPipelineForTests("ffmpeg", "whisper.cpp", nil, &fakeRunner{}, os.MkdirTemp, os.RemoveAll, os.Stat)
	_, err := pipeline.Run(context.Background(), Request{
		InputPath: inputPath,
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var pErr *PipelineError
	if !errors.As(err, &pErr) {
		t.Fatalf("error type = %T, want *PipelineError", err)
	}
	if pErr.Stage != "transcribing" {
		t.Fatalf("stage = %s, want transcribing", pErr.Stage)
	}
}

// TestPipelineTranscribeEnsuresModel verifies the tier is resolved through the model source.
func TestPipelineTranscribeEnsuresModel(t *testing.T) {
	root := t.TempDir()
	inputPath := filepath.Join(root, "episode.mp3")
	modelPath := filepath.Join(root, "ggml-small.bin")
	mustWriteFile(t, inputPath, "audio")
	mustWriteFile(t, modelPath, "model")

	var workspace string
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			if name == "ffmpeg" {
				workspace = filepath.Dir(args[len(args)-1])
				mustWriteFile(t, args[len(args)-1], "wav")
				return commandResult{}, nil
			}
			if got := argValue(args, "-m"); got != modelPath {
				t.Fatalf("model arg = %q, want %q", got, modelPath)
			}
			mustWriteFile(t, argValue(args, "-of")+".json", sampleWhisperJSON)
			return commandResult{}, nil
		},
	}

	models := &fakeModels{path: modelPath}
	pipeline := NewPipelineForTests("ffmpeg", "whisper.cpp", models, runner, os.MkdirTemp, os.RemoveAll, os.Stat)
	transcript, err := pipeline.Transcribe(context.Background(), inputPath, domain.TierSmall, "auto")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if len(models.tiers) != 1 || models.tiers[0] != domain.TierSmall {
		t.Fatalf("ensured tiers = %v", models.tiers)
	}
	if !transcript.Generated || transcript.Language != "en" || len(transcript.Segments) != 2 {
		t.Fatalf("transcript = %+v", transcript)
	}
	if _, err := os.Stat(workspace); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("workspace should be removed after Transcribe, stat err = %v", err)
	}
}

// TestPipelineTranscribeModelFailure verifies a missing model is a transcription failure.
func TestPipelineTranscribeModelFailure(t *testing.T) {
	models := &fakeModels{err: errors.New("model missing")}
	pipeline := NewPipelineForTests("ffmpeg", "whisper.cpp", models, &fakeRunner{}, os.MkdirTemp, os.RemoveAll, os.Stat)
	_, err := pipeline.Transcribe(context.Background(), "/nope.mp3", domain.TierBase, "en")
	if !errors.Is(err, domain.ErrTranscription) {
		t.Fatalf("error = %v, want transcription failure", err)
	}
	if !strings.Contains(err.Error(), "model missing") && !errors.Is(err, models.err) {
		t.Fatalf("error should carry the cause: %v", err)
	}
}

// TestBuildFFmpegArgs verifies deterministic ffmpeg command arguments.
func TestBuildFFmpegArgs(t *testing.T) {
	args := buildFFmpegArgs("/in.mp4", "/tmp/out.wav")
	want := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", "/in.mp4",
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		"/tmp/out.wav",
	}

	if len(args) != len(want) {
		t.Fatalf("args len = %d, want %d", len(args), len(want))
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

// TestBuildWhisperArgsAutoLanguage verifies no language flag for auto mode.
func TestBuildWhisperArgsAutoLanguage(t *testing.T) {
	args := buildWhisperArgs("/m.bin", "/audio.wav", "/out/base", "auto")
	if hasArg(args, "-l") {
		t.Fatalf("did not expect -l in args: %v", args)
	}
}

// TestBuildWhisperArgsFixedLanguage verifies language flag for fixed mode.
func TestBuildWhisperArgsFixedLanguage(t *testing.T) {
	args := buildWhisperArgs("/m.bin", "/audio.wav", "/out/base", "ru")
	if !hasArg(args, "-l") {
		t.Fatalf("expected -l in args: %v", args)
	}
	if got := argValue(args, "-l"); got != "ru" {
		t.Fatalf("language arg = %q, want ru", got)
	}
}

// mustWriteFile creates parent directory and writes file content.
func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}

// argValue returns value for key-style CLI args.
func argValue(args []string, key string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == key {
			return args[i+1]
		}
	}
	return ""
}

// hasArg reports whether args include the target flag.
func hasArg(args []string, key string) bool {
	for _, arg := range args {
		if arg == key {
			return true
		}
	}
	return false
}
