package domain

import "time"

// DiagnosticStatus indicates whether a single environment check passed.
type DiagnosticStatus string

const (
	DiagnosticStatusPass DiagnosticStatus = "pass"
	DiagnosticStatusFail DiagnosticStatus = "fail"
	DiagnosticStatusSkip DiagnosticStatus = "skip"
)

// Diagnostic item IDs that doctor --fix knows how to remediate.
const (
	DiagnosticToolYTDLP   = "tool_yt-dlp"
	DiagnosticModel       = "model"
	DiagnosticOutputDir   = "output_dir"
	DiagnosticAudioDir    = "audio_dir"
	DiagnosticWhishper    = "whishper"
	DiagnosticToolFFmpeg  = "tool_ffmpeg"
	DiagnosticToolWhisper = "tool_whisper"
)

// DiagnosticItem is one check result with an optional hint.
type DiagnosticItem struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Status  DiagnosticStatus `json:"status"`
	Message string           `json:"message"`
	Hint    string           `json:"hint,omitempty"`
}

// DiagnosticReport aggregates checks for the doctor command.
type DiagnosticReport struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	HasFailures bool             `json:"hasFailures"`
	Items       []DiagnosticItem `json:"items"`
}
