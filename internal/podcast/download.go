package podcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"mediascribe/internal/domain"
	"mediascribe/internal/httpclient"
)

const copyBufferSize = 32 * 1024

var (
	unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	filenameSeparators  = regexp.MustCompile(`[-\s]+`)
)

// SafeFilename reduces an episode title to a short file-system friendly stem.
func SafeFilename(title string) string {
	name := unsafeFilenameChars.ReplaceAllString(title, "")
	name = filenameSeparators.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if runes := []rune(name); len(runes) > 50 {
		name = strings.TrimRight(string(runes[:50]), "-")
	}
	if name == "" {
		return "episode"
	}
	return name
}

// Downloader streams episode audio to disk.
type Downloader struct {
	client *httpclient.Client
}

// NewDownloader creates a downloader without an overall timeout, since episodes can be large.
func NewDownloader() *Downloader {
	return &Downloader{client: httpclient.New(httpclient.AudioProfile, 0)}
}

// NewDownloaderWithClient creates a downloader using an existing client.
func NewDownloaderWithClient(client *httpclient.Client) *Downloader {
	return &Downloader{client: client}
}

// Download writes audioURL to <dir>/<name><ext> and returns the final path.
func (d *Downloader) Download(ctx context.Context, audioURL, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio directory: %w", err)
	}

	target := filepath.Join(dir, name+audioExtension(audioURL))
	tmpPath := target + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("remove stale temp file: %w", err)
	}

	header := http.Header{}
	if referer := refererFor(audioURL); referer != "" {
		header.Set("Referer", referer)
	}

	slog.Info("downloading episode audio", slog.String("url", audioURL), slog.String("path", target))
	resp, err := d.client.Get(ctx, audioURL, header)
	if err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create temporary file: %w", err)
	}

	written, copyErr := copyWithProgress(file, resp.Body, resp.ContentLength)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: write audio file: %w", domain.ErrNetwork, copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close audio file: %w", closeErr)
	}
	if written == 0 {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: empty audio response from %s", domain.ErrNetwork, audioURL)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("move downloaded file into place: %w", err)
	}

	slog.Info("audio downloaded", slog.String("path", target), slog.Float64("mb", float64(written)/1024/1024))
	return target, nil
}

// copyWithProgress copies src to dst, logging every 10% when the size is known.
func copyWithProgress(dst io.Writer, src io.Reader, total int64) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var written int64
	nextMark := int64(10)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
			if total > 0 {
				pct := written * 100 / total
				for pct >= nextMark && nextMark <= 100 {
					slog.Info("download progress",
						slog.Int64("percent", nextMark),
						slog.Float64("mb", float64(written)/1024/1024),
						slog.Float64("total_mb", float64(total)/1024/1024))
					nextMark += 10
				}
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// refererFor returns the Referer some podcast CDNs require before serving audio.
func refererFor(audioURL string) string {
	lower := strings.ToLower(audioURL)
	switch {
	case strings.Contains(lower, "acast"):
		return "https://shows.acast.com/"
	case strings.Contains(lower, "ausha"):
		return "https://podcasts.apple.com/"
	}
	return ""
}

func audioExtension(audioURL string) string {
	u, err := url.Parse(audioURL)
	if err != nil {
		return ".mp3"
	}
	switch ext := strings.ToLower(path.Ext(u.Path)); ext {
	case ".mp3", ".m4a", ".aac", ".ogg", ".opus", ".wav", ".flac":
		return ext
	}
	return ".mp3"
}

// EpisodeAudio fetches the audio of an already resolved episode.
type EpisodeAudio struct {
	Episode    domain.Episode
	Downloader *Downloader
}

// FetchAudio downloads the episode into dir, named after its title.
func (e EpisodeAudio) FetchAudio(ctx context.Context, _ domain.MediaReference, dir string) (domain.MediaFile, error) {
	if e.Episode.AudioURL == "" {
		return domain.MediaFile{}, domain.ErrNoAudioSource
	}
	p, err := e.Downloader.Download(ctx, e.Episode.AudioURL, dir, SafeFilename(e.Episode.Title))
	if err != nil {
		return domain.MediaFile{}, err
	}
	return domain.MediaFile{Path: p, Title: e.Episode.Title}, nil
}
