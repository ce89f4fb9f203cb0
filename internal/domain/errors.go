package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error classes surfaced to the user. Components wrap these with %w.
var (
	ErrInvalidURL        = errors.New("invalid url")
	ErrNetwork           = errors.New("network failure")
	ErrNoTranscript      = errors.New("no transcript available")
	ErrTranscription     = errors.New("transcription failed")
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrNoAudioSource means every audio discovery strategy came up empty.
	ErrNoAudioSource = fmt.Errorf("%w: no audio source found", ErrNetwork)
)

// Process exit codes per error class.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitInvalidURL        = 2
	ExitNetwork           = 3
	ExitNoTranscript      = 4
	ExitTranscription     = 5
	ExitUnsupportedFormat = 6
	ExitInterrupted       = 130
)

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, ErrInvalidURL):
		return ExitInvalidURL
	case errors.Is(err, ErrUnsupportedFormat):
		return ExitUnsupportedFormat
	case errors.Is(err, ErrNoTranscript):
		return ExitNoTranscript
	case errors.Is(err, ErrTranscription):
		return ExitTranscription
	case errors.Is(err, ErrNetwork):
		return ExitNetwork
	default:
		return ExitFailure
	}
}
