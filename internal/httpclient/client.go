package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"mediascribe/internal/domain"
)

// Profile selects the header set applied to outgoing requests.
type Profile string

const (
	// BrowserProfile mimics a desktop browser fetching an HTML page.
	BrowserProfile Profile = "browser"

	// AudioProfile mimics a browser media element pulling an audio file.
	AudioProfile Profile = "audio"

	// APIProfile sends a plain identifying User-Agent for APIs and model downloads.
	APIProfile Profile = "api"
)

// ChromeUserAgent is sent by the browser and audio profiles.
const ChromeUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const apiUserAgent = "mediascribe"

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected HTTP status %s", e.URL, e.Status)
}

// Unwrap classifies every bad status as a network failure.
func (e *StatusError) Unwrap() error {
	return domain.ErrNetwork
}

// Client wraps an http.Client with a header profile.
type Client struct {
	client  *http.Client
	profile Profile
}

// New creates a client for the profile with the given overall timeout.
// A zero timeout means no client-side limit, which suits long media downloads.
func New(profile Profile, timeout time.Duration) *Client {
	return NewWithHTTPClient(profile, &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	})
}

// NewWithHTTPClient wraps an existing http.Client, mainly for tests.
func NewWithHTTPClient(profile Profile, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{client: hc, profile: profile}
}

// Do applies profile headers that the caller has not set and sends the request.
// Transport errors are wrapped as network failures.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.setHeaders(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}
	return resp, nil
}

// Get sends a GET and returns the response only for 2xx statuses.
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrNetwork, err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp, nil
}

// GetBytes fetches url and reads at most limit bytes of the body.
func (c *Client) GetBytes(ctx context.Context, url string, limit int64) ([]byte, error) {
	resp, err := c.Get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrNetwork, url, err)
	}
	return body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	setDefault := func(key, value string) {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}

	switch c.profile {
	case BrowserProfile:
		setDefault("User-Agent", ChromeUserAgent)
		setDefault("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		setDefault("Accept-Language", "en-US,en;q=0.9")
	case AudioProfile:
		setDefault("User-Agent", ChromeUserAgent)
		setDefault("Accept", "audio/webm,audio/ogg,audio/wav,audio/*;q=0.9,application/ogg;q=0.7,video/*;q=0.6,*/*;q=0.5")
		setDefault("Accept-Language", "en-US,en;q=0.9")
	case APIProfile:
		setDefault("User-Agent", apiUserAgent)
	}
}
