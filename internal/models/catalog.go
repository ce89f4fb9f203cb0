// Package models maps model tiers to whisper.cpp weight files and keeps them on disk.
package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"mediascribe/internal/domain"
	"mediascribe/internal/httpclient"
)

const modelDownloadTimeout = 2 * time.Hour

var whisperModelCatalog = []domain.WhisperModelOption{
	{
		Tier:        domain.TierTiny,
		Name:        "Tiny",
		FileName:    "ggml-tiny.bin",
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.bin",
		SizeLabel:   "~75 MB",
		Description: "Fastest multilingual model.",
	},
	{
		Tier:        domain.TierBase,
		Name:        "Base",
		FileName:    "ggml-base.bin",
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.bin",
		SizeLabel:   "~142 MB",
		Description: "Balanced speed/quality, multilingual.",
	},
	{
		Tier:        domain.TierSmall,
		Name:        "Small",
		FileName:    "ggml-small.bin",
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.bin",
		SizeLabel:   "~466 MB",
		Description: "Higher quality multilingual model.",
	},
	{
		Tier:        domain.TierMedium,
		Name:        "Medium",
		FileName:    "ggml-medium.bin",
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.bin",
		SizeLabel:   "~1.5 GB",
		Description: "High quality multilingual model.",
	},
	{
		Tier:        domain.TierLarge,
		Name:        "Large v3",
		FileName:    "ggml-large-v3.bin",
		URL:         "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3.bin",
		SizeLabel:   "~2.9 GB",
		Description: "Slowest, most accurate multilingual model.",
	},
}

// Catalog resolves tiers to local model files under one directory.
type Catalog struct {
	dir          string
	autoDownload bool
	entries      []domain.WhisperModelOption
	client       *httpclient.Client
	retry        httpclient.RetryConfig
	stat         func(string) (os.FileInfo, error)
}

// NewCatalog creates the production catalog rooted at dir.
func NewCatalog(dir string, autoDownload bool) *Catalog {
	return &Catalog{
		dir:          dir,
		autoDownload: autoDownload,
		entries:      whisperModelCatalog,
		client:       httpclient.New(httpclient.APIProfile, modelDownloadTimeout),
		retry:        httpclient.DefaultRetryConfig,
		stat:         os.Stat,
	}
}

// NewCatalogForTests creates a catalog with custom entries and HTTP client.
func NewCatalogForTests(dir string, autoDownload bool, entries []domain.WhisperModelOption, client *httpclient.Client) *Catalog {
	return &Catalog{
		dir:          dir,
		autoDownload: autoDownload,
		entries:      entries,
		client:       client,
		retry:        httpclient.RetryConfig{MaxRetries: 1, Multiplier: 1},
		stat:         os.Stat,
	}
}

// Dir returns the directory models are stored in.
func (c *Catalog) Dir() string {
	return c.dir
}

// Lookup returns the catalog entry for a tier.
func (c *Catalog) Lookup(tier domain.ModelTier) (domain.WhisperModelOption, bool) {
	for _, model := range c.entries {
		if model.Tier == tier {
			return model, true
		}
	}
	return domain.WhisperModelOption{}, false
}

// List returns all entries with their download state.
func (c *Catalog) List() []domain.WhisperModelOption {
	models := make([]domain.WhisperModelOption, len(c.entries))
	copy(models, c.entries)

	for i := range models {
		candidate := filepath.Join(c.dir, models[i].FileName)
		info, err := c.stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		models[i].Downloaded = true
		models[i].LocalPath = candidate
	}
	return models
}

// Ensure returns the local model path for tier, downloading it when allowed.
func (c *Catalog) Ensure(ctx context.Context, tier domain.ModelTier) (string, error) {
	model, ok := c.Lookup(tier)
	if !ok {
		return "", fmt.Errorf("unknown model tier: %s", tier)
	}

	target := filepath.Join(c.dir, model.FileName)
	info, err := c.stat(target)
	if err == nil && !info.IsDir() {
		return target, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("check model file: %w", err)
	}

	if !c.autoDownload {
		return "", fmt.Errorf("model %s not found at %s (run `models download %s`)", model.Name, target, tier)
	}
	return c.Download(ctx, tier)
}

// Download fetches the tier's model into the catalog directory, replacing any existing file.
func (c *Catalog) Download(ctx context.Context, tier domain.ModelTier) (string, error) {
	model, ok := c.Lookup(tier)
	if !ok {
		return "", fmt.Errorf("unknown model tier: %s", tier)
	}

	target := filepath.Join(c.dir, model.FileName)
	slog.Info("downloading whisper model",
		slog.String("tier", string(tier)),
		slog.String("size", model.SizeLabel),
		slog.String("path", target))

	started := time.Now()
	_, err := httpclient.RetryDo(ctx, c.retry, func() (struct{}, error) {
		return struct{}{}, c.downloadURLToFile(ctx, target, model.URL)
	})
	if err != nil {
		return "", fmt.Errorf("download model %s: %w", model.Name, err)
	}

	slog.Info("model ready", slog.String("path", target), slog.Duration("took", time.Since(started)))
	return target, nil
}

func (c *Catalog) downloadURLToFile(ctx context.Context, destinationPath string, sourceURL string) error {
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return fmt.Errorf("prepare destination directory: %w", err)
	}

	tmpPath := destinationPath + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale temp file: %w", err)
	}

	resp, err := c.client.Get(ctx, sourceURL, http.Header{})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	_, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write destination file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close destination file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destinationPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move downloaded file into place: %w", err)
	}

	return nil
}
