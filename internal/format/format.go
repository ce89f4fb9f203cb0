// Package format renders transcript segments as text, JSON records or subtitle cues.
package format

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"mediascribe/internal/domain"
)

// lastCueLength is used when the final segment carries no end time.
const lastCueLength = 2 * time.Second

// Formats lists accepted selectors in flag help order.
var Formats = []domain.OutputFormat{domain.FormatText, domain.FormatJSON, domain.FormatVTT, domain.FormatSRT}

// Parse validates a format selector.
func Parse(raw string) (domain.OutputFormat, error) {
	f := domain.OutputFormat(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want one of text, json, vtt, srt)", domain.ErrUnsupportedFormat, raw)
}

// Render formats segments with the selected format.
func Render(segments []domain.Segment, f domain.OutputFormat) (string, error) {
	switch f {
	case domain.FormatText:
		return Text(segments), nil
	case domain.FormatJSON:
		return JSON(segments)
	case domain.FormatVTT:
		return WebVTT(segments), nil
	case domain.FormatSRT:
		return SRT(segments), nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, f)
	}
}

// Text joins trimmed segment texts with newlines.
func Text(segments []domain.Segment) string {
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		lines = append(lines, strings.TrimSpace(seg.Text))
	}
	return strings.Join(lines, "\n")
}

// Record is one entry of the JSON output.
type Record struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// JSON renders segments as an indented array of records.
func JSON(segments []domain.Segment) (string, error) {
	records := make([]Record, 0, len(segments))
	for i, seg := range segments {
		end := cueEnd(segments, i)
		records = append(records, Record{
			Text:     strings.TrimSpace(seg.Text),
			Start:    seconds(seg.Start),
			Duration: seconds(end - seg.Start),
		})
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}
	return string(data), nil
}

// WebVTT renders segments as a WEBVTT cue list.
func WebVTT(segments []domain.Segment) string {
	var sb strings.Builder
	sb.WriteString("WEBVTT\n\n")
	for i, seg := range segments {
		fmt.Fprintf(&sb, "%s --> %s\n%s\n\n",
			timestamp(seg.Start, '.'),
			timestamp(cueEnd(segments, i), '.'),
			strings.TrimSpace(seg.Text),
		)
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// SRT renders segments as numbered SubRip cues.
func SRT(segments []domain.Segment) string {
	var sb strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n",
			i+1,
			timestamp(seg.Start, ','),
			timestamp(cueEnd(segments, i), ','),
			strings.TrimSpace(seg.Text),
		)
	}
	return sb.String()
}

// PodcastMeta is the metadata block written above podcast transcripts.
type PodcastMeta struct {
	Show     string
	Episode  string
	Source   string
	Language string
	Model    string
}

// PodcastHeader renders meta between two rules of 60 '='.
func PodcastHeader(meta PodcastMeta) string {
	rule := strings.Repeat("=", 60)
	var sb strings.Builder
	sb.WriteString(rule + "\n")
	fmt.Fprintf(&sb, "Show: %s\n", meta.Show)
	fmt.Fprintf(&sb, "Episode: %s\n", meta.Episode)
	fmt.Fprintf(&sb, "Source: %s\n", meta.Source)
	fmt.Fprintf(&sb, "Language: %s\n", meta.Language)
	fmt.Fprintf(&sb, "Model: %s\n", meta.Model)
	sb.WriteString(rule + "\n\n")
	return sb.String()
}

// cueEnd returns the segment end, borrowing the next start when it is missing.
func cueEnd(segments []domain.Segment, i int) time.Duration {
	seg := segments[i]
	if seg.End > seg.Start {
		return seg.End
	}
	if i+1 < len(segments) && segments[i+1].Start > seg.Start {
		return segments[i+1].Start
	}
	return seg.Start + lastCueLength
}

func seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

// timestamp formats d as HH:MM:SS<sep>mmm.
func timestamp(d time.Duration, sep byte) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	hours := ms / 3_600_000
	ms %= 3_600_000
	minutes := ms / 60_000
	ms %= 60_000
	secs := ms / 1000
	ms %= 1000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", hours, minutes, secs, sep, ms)
}
