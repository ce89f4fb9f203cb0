// Package orchestrator runs the caption-first, transcription-fallback pipeline
// for a single media reference.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"mediascribe/internal/domain"
	"mediascribe/internal/transcribe"
)

// Transcript sources reported in Outcome.Source.
const (
	SourceCaptions      = "captions"
	SourceTranscription = "transcription"
)

// CaptionSource looks up a transcript the platform already has.
type CaptionSource interface {
	FetchExisting(ctx context.Context, ref domain.MediaReference, languages []string) (domain.Transcript, bool, error)
}

// AudioSource downloads the audio of a reference into dir.
type AudioSource interface {
	FetchAudio(ctx context.Context, ref domain.MediaReference, dir string) (domain.MediaFile, error)
}

// Outcome is the result of one successful run.
type Outcome struct {
	RunID     string
	Source    string
	Language  string
	Segments  []domain.Segment
	Title     string
	AudioPath string
}

// Orchestrator wires the three stages together. Captions may be nil, in which
// case every run starts at FETCH_AUDIO.
type Orchestrator struct {
	captions  CaptionSource
	audio     AudioSource
	engine    transcribe.Engine
	tracker   *Tracker
	newRunID  func() (uuid.UUID, error)
	tempDir   func() string
	remove    func(name string) error
	removeAll func(path string) error
}

// New creates an orchestrator with OS defaults.
func New(captions CaptionSource, audio AudioSource, engine transcribe.Engine) *Orchestrator {
	return &Orchestrator{
		captions:  captions,
		audio:     audio,
		engine:    engine,
		tracker:   NewTracker(),
		newRunID:  uuid.NewV7,
		tempDir:   os.TempDir,
		remove:    os.Remove,
		removeAll: os.RemoveAll,
	}
}

// WithTempDir places run-private directories under dir instead of os.TempDir.
// An empty dir keeps the OS default.
func (o *Orchestrator) WithTempDir(dir string) *Orchestrator {
	if dir != "" {
		o.tempDir = func() string { return dir }
	}
	return o
}

// NewForTests creates an orchestrator whose run-private directories live under tempDir.
func NewForTests(captions CaptionSource, audio AudioSource, engine transcribe.Engine, tempDir string) *Orchestrator {
	return New(captions, audio, engine).WithTempDir(tempDir)
}

// Tracker exposes the run state tracker. It keeps the last run until the next
// one starts. Run refuses to start while a run on the same orchestrator is
// still active.
func (o *Orchestrator) Tracker() *Tracker {
	return o.tracker
}

// Run executes CHECK_EXISTING -> FETCH_AUDIO -> TRANSCRIBE. Failures are terminal.
func (o *Orchestrator) Run(ctx context.Context, ref domain.MediaReference, cfg domain.RunConfig) (out Outcome, err error) {
	id, err := o.newRunID()
	if err != nil {
		return Outcome{}, fmt.Errorf("generate run id: %w", err)
	}
	runID := id.String()
	log := slog.With(slog.String("run_id", runID))

	first := domain.RunStateCheckExisting
	if cfg.AudioOnly || o.captions == nil {
		first = domain.RunStateFetchAudio
	}
	if err := o.tracker.Start(runID, first); err != nil {
		return Outcome{}, err
	}
	defer func() {
		if err != nil {
			if tErr := o.tracker.Transition(domain.RunStateFailed); tErr != nil {
				err = errors.Join(err, tErr)
			}
			log.Debug("run failed", slog.Any("error", err))
		}
	}()

	if first == domain.RunStateCheckExisting {
		log.Info("checking for existing transcript", slog.String("stage", string(first)), slog.Any("languages", cfg.Languages))
		transcript, found, err := o.captions.FetchExisting(ctx, ref, cfg.Languages)
		if err != nil {
			return Outcome{}, err
		}
		if found {
			if err := o.tracker.Transition(domain.RunStateDone); err != nil {
				return Outcome{}, err
			}
			log.Info("existing transcript found",
				slog.String("language", transcript.Language),
				slog.Bool("generated", transcript.Generated),
				slog.Int("segments", len(transcript.Segments)))
			return Outcome{
				RunID:    runID,
				Source:   SourceCaptions,
				Language: transcript.Language,
				Segments: transcript.Segments,
			}, nil
		}
		if cfg.NoFallback {
			return Outcome{}, fmt.Errorf("%w for %s (fallback disabled)", domain.ErrNoTranscript, ref.CanonicalID)
		}
		if err := o.tracker.Transition(domain.RunStateFetchAudio); err != nil {
			return Outcome{}, err
		}
	}

	dir := cfg.AudioDir
	privateDir := ""
	if dir == "" {
		dir = filepath.Join(o.tempDir(), "mediascribe-"+runID)
		privateDir = dir
	}

	var media domain.MediaFile
	keep := false
	defer func() {
		o.release(log, media.Path, privateDir, keep)
	}()

	log.Info("fetching audio", slog.String("stage", string(domain.RunStateFetchAudio)), slog.String("dir", dir))
	media, err = o.audio.FetchAudio(ctx, ref, dir)
	if err != nil {
		return Outcome{}, err
	}
	keep = cfg.KeepAudio
	if err := o.tracker.Transition(domain.RunStateTranscribe); err != nil {
		return Outcome{}, err
	}

	log.Info("transcribing audio",
		slog.String("stage", string(domain.RunStateTranscribe)),
		slog.String("path", media.Path),
		slog.String("model", string(cfg.ModelTier)))
	transcript, err := o.engine.Transcribe(ctx, media.Path, cfg.ModelTier, cfg.PrimaryLanguage())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, fmt.Errorf("%w: %w", ctxErr, err)
		}
		if !errors.Is(err, domain.ErrTranscription) {
			err = fmt.Errorf("%w: %w", domain.ErrTranscription, err)
		}
		return Outcome{}, err
	}
	if len(transcript.Segments) == 0 {
		return Outcome{}, fmt.Errorf("%w: no speech recognized", domain.ErrTranscription)
	}
	if err := o.tracker.Transition(domain.RunStateDone); err != nil {
		return Outcome{}, err
	}

	out = Outcome{
		RunID:    runID,
		Source:   SourceTranscription,
		Language: transcript.Language,
		Segments: transcript.Segments,
		Title:    media.Title,
	}
	if keep {
		out.AudioPath = media.Path
	}
	return out, nil
}

// release removes the fetched audio and the run-private directory unless kept.
func (o *Orchestrator) release(log *slog.Logger, audioPath, privateDir string, keep bool) {
	if keep {
		if audioPath != "" {
			log.Info("keeping audio", slog.String("path", audioPath))
		}
		return
	}
	if audioPath != "" {
		if err := o.remove(audioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("remove audio", slog.String("path", audioPath), slog.Any("error", err))
		}
	}
	if privateDir != "" {
		if err := o.removeAll(privateDir); err != nil {
			log.Warn("remove run directory", slog.String("path", privateDir), slog.Any("error", err))
		}
	}
}
