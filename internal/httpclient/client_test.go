package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediascribe/internal/domain"
)

func TestBrowserProfileHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	client := NewWithHTTPClient(BrowserProfile, srv.Client())
	body, err := client.GetBytes(context.Background(), srv.URL, 1024)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(body))
	assert.Equal(t, ChromeUserAgent, got.Get("User-Agent"))
	assert.Contains(t, got.Get("Accept"), "text/html")
}

func TestCallerHeadersWin(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	client := NewWithHTTPClient(AudioProfile, srv.Client())
	resp, err := client.Get(context.Background(), srv.URL, http.Header{
		"Referer":    []string{"https://shows.acast.com/"},
		"User-Agent": []string{"custom"},
	})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "custom", got.Get("User-Agent"))
	assert.Equal(t, "https://shows.acast.com/", got.Get("Referer"))
	assert.Contains(t, got.Get("Accept"), "audio/*")
}

func TestGetStatusErrorIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewWithHTTPClient(APIProfile, srv.Client())
	_, err := client.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.False(t, IsRetryable(err))
}

func TestRetryDoRetriesTransientStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := NewWithHTTPClient(APIProfile, srv.Client())
	rc := RetryConfig{MaxRetries: 3, InitialWait: 0, MaxWait: 0, Multiplier: 1}
	body, err := RetryDo(context.Background(), rc, func() ([]byte, error) {
		return client.GetBytes(context.Background(), srv.URL, 16)
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, 3, calls)
}

func TestRetryDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := RetryDo(context.Background(), DefaultRetryConfig, func() (int, error) {
		calls++
		return 0, errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
