package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediascribe/internal/domain"
	"mediascribe/internal/httpclient"
)

const whishperTimeout = 10 * time.Minute

// WhishperEngine uploads audio to a self-hosted Whishper server.
type WhishperEngine struct {
	baseURL string
	client  *httpclient.Client
}

// NewWhishperEngine creates an engine for the server at baseURL.
func NewWhishperEngine(baseURL string) *WhishperEngine {
	return NewWhishperEngineWithClient(baseURL, httpclient.New(httpclient.APIProfile, whishperTimeout))
}

// NewWhishperEngineWithClient creates an engine using an existing client.
func NewWhishperEngineWithClient(baseURL string, client *httpclient.Client) *WhishperEngine {
	return &WhishperEngine{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type whishperResponse struct {
	Language string `json:"language"`
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe posts the file as multipart form data. The tier is chosen server-side.
func (e *WhishperEngine) Transcribe(ctx context.Context, audioPath string, _ domain.ModelTier, language string) (domain.Transcript, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("%w: open audio: %w", domain.ErrTranscription, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		err := writeWhishperForm(mw, f, audioPath, language)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
		errCh <- err
	}()

	endpoint := e.baseURL + "/api/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		_ = pr.Close()
		return domain.Transcript{}, fmt.Errorf("%w: create request: %w", domain.ErrTranscription, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	slog.Info("uploading audio to whishper", slog.String("url", endpoint), slog.String("file", filepath.Base(audioPath)))
	resp, err := e.client.Do(req)
	if err != nil {
		_ = pr.Close()
		return domain.Transcript{}, fmt.Errorf("%w: could not reach whishper at %s: %w", domain.ErrTranscription, e.baseURL, err)
	}
	defer resp.Body.Close()

	if writeErr := <-errCh; writeErr != nil {
		return domain.Transcript{}, fmt.Errorf("%w: multipart write error: %w", domain.ErrTranscription, writeErr)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.Transcript{}, fmt.Errorf("%w: whishper returned status %d: %s",
			domain.ErrTranscription, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload whishperResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Transcript{}, fmt.Errorf("%w: decode whishper response: %w", domain.ErrTranscription, err)
	}
	return payload.transcript(language)
}

func writeWhishperForm(mw *multipart.Writer, f io.Reader, audioPath, language string) error {
	if lang := normalizeLanguage(language); lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return err
		}
	}
	if err := mw.WriteField("task", "transcribe"); err != nil {
		return err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filepath.Base(audioPath)))
	h.Set("Content-Type", mimeFromExt(filepath.Ext(audioPath)))
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// transcript prefers timed segments and falls back to a single untimed text block.
func (r whishperResponse) transcript(requested string) (domain.Transcript, error) {
	out := domain.Transcript{Language: r.Language, Generated: true}
	if out.Language == "" {
		out.Language = normalizeLanguage(requested)
	}

	for _, seg := range r.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		out.Segments = append(out.Segments, domain.Segment{
			Start: secondsToDuration(seg.Start),
			End:   secondsToDuration(seg.End),
			Text:  text,
		})
	}
	if len(out.Segments) > 0 {
		return out, nil
	}

	if text := strings.TrimSpace(r.Text); text != "" {
		out.Segments = []domain.Segment{{Text: text}}
		return out, nil
	}
	return domain.Transcript{}, fmt.Errorf("%w: whishper response has neither segments nor text", domain.ErrTranscription)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// mimeFromExt returns the MIME type for common audio extensions.
func mimeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/m4a"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	case ".aac":
		return "audio/aac"
	default:
		return "application/octet-stream"
	}
}
