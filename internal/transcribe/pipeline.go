package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mediascribe/internal/domain"
)

// Request contains input audio and execution callbacks for one run.
type Request struct {
	InputPath string
	ModelPath string
	Language  string
	OnStage   func(stage string)
	OnLog     func(log CommandLog)
}

// Result contains parsed segments, the detected language and command logs.
type Result struct {
	PreprocessedAudioPath string
	Language              string
	Segments              []domain.Segment
	Logs                  []CommandLog
	tempDir               string
	removeAll             func(string) error
}

// Cleanup removes temporary preprocessing artifacts created by Run.
func (r *Result) Cleanup() error {
	if r == nil || r.tempDir == "" {
		return nil
	}

	removeAll := r.removeAll
	if removeAll == nil {
		removeAll = os.RemoveAll
	}
	if err := removeAll(r.tempDir); err != nil {
		return err
	}
	r.tempDir = ""
	return nil
}

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// PipelineError is a stage-aware error with optional command context.
type PipelineError struct {
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats pipeline failures for logs and the terminal.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is classifies every pipeline error as a transcription failure.
func (e *PipelineError) Is(target error) bool {
	return target == domain.ErrTranscription
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// ModelSource resolves a tier to a local whisper.cpp model file.
type ModelSource interface {
	Ensure(ctx context.Context, tier domain.ModelTier) (string, error)
}

// Pipeline runs ffmpeg preprocessing followed by whisper.cpp transcription.
type Pipeline struct {
	ffmpegPath  string
	whisperPath string
	models      ModelSource
	runner      commandRunner
	mkdirTemp   func(dir, pattern string) (string, error)
	removeAll   func(path string) error
	stat        func(name string) (os.FileInfo, error)
	readDir     func(name string) ([]os.DirEntry, error)
	readFile    func(name string) ([]byte, error)
}

// NewPipeline constructs the production pipeline with OS dependencies.
func NewPipeline(ffmpegPath, whisperPath string, models ModelSource) *Pipeline {
	return &Pipeline{
		ffmpegPath:  ffmpegPath,
		whisperPath: whisperPath,
		models:      models,
		runner:      &execRunner{},
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
		stat:        os.Stat,
		readDir:     os.ReadDir,
		readFile:    os.ReadFile,
	}
}

// Transcribe resolves the tier's model, runs the pipeline and always removes its workspace.
func (p *Pipeline) Transcribe(ctx context.Context, audioPath string, tier domain.ModelTier, language string) (domain.Transcript, error) {
	if p.models == nil {
		return domain.Transcript{}, &PipelineError{Stage: "transcribing", Message: "no model source configured"}
	}
	modelPath, err := p.models.Ensure(ctx, tier)
	if err != nil {
		return domain.Transcript{}, &PipelineError{
			Stage:   "transcribing",
			Message: fmt.Sprintf("resolve %s model", tier),
			Err:     err,
		}
	}

	result, err := p.Run(ctx, Request{
		InputPath: audioPath,
		ModelPath: modelPath,
		Language:  language,
		OnStage: func(stage string) {
			slog.Info("whisper.cpp stage", slog.String("stage", stage), slog.String("model", string(tier)))
		},
		OnLog: func(log CommandLog) {
			slog.Debug("command finished",
				slog.String("command", log.Command),
				slog.Int("exit", log.ExitCode),
				slog.String("stderr", tail(log.Stderr, 2000)))
		},
	})
	if err != nil {
		return domain.Transcript{}, err
	}
	defer func() {
		if cleanupErr := result.Cleanup(); cleanupErr != nil {
			slog.Warn("cleanup whisper workspace", slog.Any("error", cleanupErr))
		}
	}()

	return domain.Transcript{
		Language:  result.Language,
		Generated: true,
		Segments:  result.Segments,
	}, nil
}

// Run performs preprocessing, transcription and JSON parsing.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.InputPath) == "" {
		return Result{}, &PipelineError{
			Stage:   "preprocessing",
			Message: "input audio path is required",
		}
	}

	if _, err := p.stat(req.InputPath); err != nil {
		return Result{}, &PipelineError{
			Stage:   "preprocessing",
			Message: fmt.Sprintf("cannot access input audio: %s", req.InputPath),
			Err:     err,
		}
	}

	modelPath, err := p.resolveModelPath(req.ModelPath)
	if err != nil {
		return Result{}, &PipelineError{
			Stage:   "transcribing",
			Message: err.Error(),
			Err:     err,
		}
	}

	tempDir, err := p.mkdirTemp("", "mediascribe-whisper-*")
	if err != nil {
		return Result{}, &PipelineError{
			Stage:   "preprocessing",
			Message: "failed to create temporary workspace",
			Err:     err,
		}
	}

	outPath := filepath.Join(tempDir, "preprocessed-16k-mono.wav")
	emitStage(req.OnStage, "preprocessing")
	args := buildFFmpegArgs(req.InputPath, outPath)

	cmdResult, runErr := p.runner.Run(ctx, p.ffmpegPath, args...)
	log := CommandLog{
		Command:  p.ffmpegPath,
		Args:     args,
		ExitCode: cmdResult.ExitCode,
		Stdout:   cmdResult.Stdout,
		Stderr:   cmdResult.Stderr,
	}
	emitLog(req.OnLog, log)
	if runErr != nil {
		_ = p.removeAll(tempDir)
		return Result{}, &PipelineError{
			Stage:      "preprocessing",
			Message:    "ffmpeg audio conversion failed",
			CommandLog: log,
			Err:        runErr,
		}
	}

	if _, err := p.stat(outPath); err != nil {
		_ = p.removeAll(tempDir)
		return Result{}, &PipelineError{
			Stage:      "preprocessing",
			Message:    "ffmpeg completed but output file is missing",
			CommandLog: log,
			Err:        err,
		}
	}

	outBase := filepath.Join(tempDir, "transcript")
	jsonPath := outBase + ".json"
	emitStage(req.OnStage, "transcribing")
	whisperArgs := buildWhisperArgs(modelPath, outPath, outBase, req.Language)

	whisperResult, runErr := p.runner.Run(ctx, p.whisperPath, whisperArgs...)
	whisperLog := CommandLog{
		Command:  p.whisperPath,
		Args:     whisperArgs,
		ExitCode: whisperResult.ExitCode,
		Stdout:   whisperResult.Stdout,
		Stderr:   whisperResult.Stderr,
	}
	emitLog(req.OnLog, whisperLog)
	if runErr != nil {
		_ = p.removeAll(tempDir)
		return Result{}, &PipelineError{
			Stage:      "transcribing",
			Message:    "whisper.cpp transcription failed",
			CommandLog: whisperLog,
			Err:        runErr,
		}
	}

	emitStage(req.OnStage, "exporting")
	content, err := p.readFile(jsonPath)
	if err != nil {
		_ = p.removeAll(tempDir)
		return Result{}, &PipelineError{
			Stage:      "exporting",
			Message:    "whisper.cpp completed but transcript .json file is missing",
			CommandLog: whisperLog,
			Err:        err,
		}
	}

	language, segments, err := parseWhisperJSON(content)
	if err != nil {
		_ = p.removeAll(tempDir)
		return Result{}, &PipelineError{
			Stage:      "exporting",
			Message:    fmt.Sprintf("failed to parse transcript file: %s", jsonPath),
			CommandLog: whisperLog,
			Err:        err,
		}
	}
	if language == "" {
		language = normalizeLanguage(req.Language)
	}

	return Result{
		PreprocessedAudioPath: outPath,
		Language:              language,
		Segments:              segments,
		Logs:                  []CommandLog{log, whisperLog},
		tempDir:               tempDir,
		removeAll:             p.removeAll,
	}, nil
}

// whisperOutput is the subset of whisper.cpp's -oj output we consume.
type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// parseWhisperJSON converts whisper.cpp JSON output into ordered segments.
func parseWhisperJSON(data []byte) (string, []domain.Segment, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return "", nil, err
	}

	segments := make([]domain.Segment, 0, len(out.Transcription))
	for _, item := range out.Transcription {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}
		segments = append(segments, domain.Segment{
			Start: time.Duration(item.Offsets.From) * time.Millisecond,
			End:   time.Duration(item.Offsets.To) * time.Millisecond,
			Text:  text,
		})
	}
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
	return out.Result.Language, segments, nil
}

// emitStage forwards stage updates when callback is configured.
func emitStage(cb func(stage string), stage string) {
	if cb != nil {
		cb(stage)
	}
}

// emitLog forwards command logs when callback is configured.
func emitLog(cb func(log CommandLog), log CommandLog) {
	if cb != nil {
		cb(log)
	}
}

// resolveModelPath returns model file path from file or directory input.
func (p *Pipeline) resolveModelPath(rawPath string) (string, error) {
	modelPath := strings.TrimSpace(rawPath)
	if modelPath == "" {
		return "", fmt.Errorf("model path is required")
	}

	info, err := p.stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path: %s", modelPath)
	}
	if !info.IsDir() {
		return modelPath, nil
	}

	entries, err := p.readDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", modelPath)
	}

	modelNames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".bin" || ext == ".gguf" {
			modelNames = append(modelNames, entry.Name())
		}
	}
	if len(modelNames) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", modelPath)
	}

	sort.Strings(modelNames)
	return filepath.Join(modelPath, modelNames[0]), nil
}

// normalizeLanguage maps "auto" and empty language to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

// buildFFmpegArgs builds preprocessing CLI args for mono 16k PCM WAV output.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

// buildWhisperArgs builds whisper.cpp args for JSON transcript export.
func buildWhisperArgs(modelPath, audioPath, outBase, language string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outBase,
		"-oj",
	}

	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}

	return args
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// NewPipelineForTests constructs a pipeline with injectable dependencies.
func NewPipelineForTests(
	ffmpegPath string,
	whisperPath string,
	models ModelSource,
	runner commandRunner,
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(path string) error,
	stat func(name string) (os.FileInfo, error),
) *Pipeline {
	return &Pipeline{
		ffmpegPath:  ffmpegPath,
		whisperPath: whisperPath,
		models:      models,
		runner:      runner,
		mkdirTemp:   mkdirTemp,
		removeAll:   removeAll,
		stat:        stat,
		readDir:     os.ReadDir,
		readFile:    os.ReadFile,
	}
}
