package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
	ytlist "github.com/ytget/ytdlp/v2"

	"mediascribe/internal/domain"
)

const (
	progressInterval = 500 * time.Millisecond
	playlistTimeout  = 60 * time.Second
)

// formatTable maps quality presets to yt-dlp format selectors.
var formatTable = map[domain.Quality]string{
	domain.QualityBest:  "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
	domain.Quality1080p: "bestvideo[height<=1080][ext=mp4]+bestaudio[ext=m4a]/best[height<=1080]",
	domain.Quality720p:  "bestvideo[height<=720][ext=mp4]+bestaudio[ext=m4a]/best[height<=720]",
	domain.Quality480p:  "bestvideo[height<=480][ext=mp4]+bestaudio[ext=m4a]/best[height<=480]",
	domain.Quality360p:  "bestvideo[height<=360][ext=mp4]+bestaudio[ext=m4a]/best[height<=360]",
}

// FormatFor returns the yt-dlp format selector for a quality preset.
func FormatFor(q domain.Quality) string {
	if f, ok := formatTable[q]; ok {
		return f
	}
	return formatTable[domain.QualityBest]
}

// Fetcher downloads YouTube media through the yt-dlp binary.
type Fetcher struct {
	mkdirAll func(path string, perm os.FileMode) error
	stat     func(name string) (os.FileInfo, error)
}

// NewFetcher creates a fetcher using the yt-dlp binary on PATH.
func NewFetcher() *Fetcher {
	return &Fetcher{mkdirAll: os.MkdirAll, stat: os.Stat}
}

// progressLog forwards yt-dlp progress to slog and remembers the latest metadata.
type progressLog struct {
	mu       sync.Mutex
	videoID  string
	title    string
	duration time.Duration
	lastPct  int
}

func (p *progressLog) update(update ytdlp.ProgressUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if update.Info != nil {
		if update.Info.Title != nil && *update.Info.Title != "" {
			p.title = *update.Info.Title
		}
		if update.Info.Duration != nil && *update.Info.Duration > 0 {
			p.duration = time.Duration(*update.Info.Duration * float64(time.Second))
		}
	}

	if update.TotalBytes <= 0 {
		return
	}
	pct := int(float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100)
	if pct < p.lastPct+10 && pct < 100 {
		return
	}
	p.lastPct = pct

	attrs := []any{
		slog.String("video_id", p.videoID),
		slog.Int("percent", pct),
	}
	if !update.Started.IsZero() {
		if elapsed := time.Since(update.Started).Seconds(); elapsed > 0 {
			attrs = append(attrs, slog.String("speed", fmt.Sprintf("%.1fMB/s", float64(update.DownloadedBytes)/elapsed/1024/1024)))
		}
	}
	if eta := update.ETA(); eta > 0 {
		attrs = append(attrs, slog.Duration("eta", eta.Round(time.Second)))
	}
	slog.Info("download progress", attrs...)
}

func (p *progressLog) snapshot() (string, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, p.duration
}

// FetchVideo downloads one video at the requested quality into outDir.
func (f *Fetcher) FetchVideo(ctx context.Context, ref domain.MediaReference, quality domain.Quality, outDir string) (domain.MediaFile, error) {
	if err := f.mkdirAll(outDir, 0o755); err != nil {
		return domain.MediaFile{}, fmt.Errorf("create output directory: %w", err)
	}

	progress := &progressLog{videoID: ref.CanonicalID, lastPct: -10}
	dl := ytdlp.New().
		Format(FormatFor(quality)).
		NoPlaylist().
		ForceOverwrites().
		RestrictFilenames().
		Output(filepath.Join(outDir, "%(title)s.%(ext)s"))
	dl.ProgressFunc(progressInterval, progress.update)

	started := time.Now()
	slog.Info("downloading video",
		slog.String("video_id", ref.CanonicalID),
		slog.String("quality", string(quality)),
		slog.String("dir", outDir))

	result, err := dl.Run(ctx, ref.WatchURL())
	if err != nil {
		return domain.MediaFile{}, wrapRunError(ctx, "download video", err)
	}

	file := domain.MediaFile{}
	file.Title, file.Duration = progress.snapshot()
	fillFromResult(&file, result)
	if file.Path == "" {
		file.Path = newestFile(outDir, started)
	}
	if file.Path == "" {
		return domain.MediaFile{}, fmt.Errorf("%w: yt-dlp finished but no output file was found in %s", domain.ErrNetwork, outDir)
	}
	return file, nil
}

// FetchAudio downloads the audio track as <outDir>/<id>.mp3.
func (f *Fetcher) FetchAudio(ctx context.Context, ref domain.MediaReference, outDir string) (domain.MediaFile, error) {
	if err := f.mkdirAll(outDir, 0o755); err != nil {
		return domain.MediaFile{}, fmt.Errorf("create audio directory: %w", err)
	}

	progress := &progressLog{videoID: ref.CanonicalID, lastPct: -10}
	dl := ytdlp.New().
		Format("bestaudio/best").
		ExtractAudio().
		AudioFormat("mp3").
		AudioQuality("192").
		NoPlaylist().
		ForceOverwrites().
		Output(filepath.Join(outDir, "%(id)s.%(ext)s"))
	dl.ProgressFunc(progressInterval, progress.update)

	slog.Info("downloading audio", slog.String("video_id", ref.CanonicalID), slog.String("dir", outDir))
	if _, err := dl.Run(ctx, ref.WatchURL()); err != nil {
		return domain.MediaFile{}, wrapRunError(ctx, "download audio", err)
	}

	path := filepath.Join(outDir, ref.CanonicalID+".mp3")
	if _, err := f.stat(path); err != nil {
		return domain.MediaFile{}, fmt.Errorf("%w: audio file not found after download: %s", domain.ErrNetwork, path)
	}

	title, duration := progress.snapshot()
	return domain.MediaFile{Path: path, Title: title, Duration: duration}, nil
}

// PlaylistEntries lists the videos of a playlist in playlist order.
func (f *Fetcher) PlaylistEntries(ctx context.Context, ref domain.MediaReference) ([]domain.MediaReference, error) {
	if !ref.Playlist {
		return []domain.MediaReference{ref}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, playlistTimeout)
	defer cancel()

	items, err := ytlist.New().GetPlaylistItemsAll(ctx, ref.CanonicalID, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: list playlist %s: %w", domain.ErrNetwork, ref.CanonicalID, err)
	}

	entries := make([]domain.MediaReference, 0, len(items))
	for _, it := range items {
		if it.VideoID == "" {
			continue
		}
		entries = append(entries, domain.MediaReference{
			SourceURL:   "https://www.youtube.com/watch?v=" + it.VideoID,
			Platform:    domain.PlatformYouTube,
			CanonicalID: it.VideoID,
		})
	}
	slog.Info("playlist resolved", slog.String("playlist", ref.CanonicalID), slog.Int("videos", len(entries)))
	return entries, nil
}

// Install downloads a managed yt-dlp binary when none is usable.
func Install(ctx context.Context) (string, error) {
	resolved, err := ytdlp.Install(ctx, nil)
	if err != nil {
		return "", err
	}
	return resolved.Executable, nil
}

// Locate returns an already installed yt-dlp, from PATH or the managed cache,
// without downloading anything.
func Locate(ctx context.Context) (string, error) {
	resolved, err := ytdlp.Install(ctx, &ytdlp.InstallOptions{DisableDownload: true})
	if err != nil {
		return "", err
	}
	return resolved.Executable, nil
}

func fillFromResult(file *domain.MediaFile, result *ytdlp.Result) {
	if result == nil {
		return
	}
	info, err := result.GetExtractedInfo()
	if err != nil || len(info) == 0 {
		return
	}
	if info[0].Filename != nil {
		file.Path = *info[0].Filename
	}
	if file.Title == "" && info[0].Title != nil {
		file.Title = *info[0].Title
	}
	if file.Duration == 0 && info[0].Duration != nil {
		file.Duration = time.Duration(*info[0].Duration * float64(time.Second))
	}
}

// newestFile returns the most recently written regular file in dir modified at or after since.
func newestFile(dir string, since time.Time) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var best string
	var bestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".part") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().Before(since.Add(-time.Second)) {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best = filepath.Join(dir, entry.Name())
			bestMod = info.ModTime()
		}
	}
	return best
}

func wrapRunError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrNetwork, op, err)
}
