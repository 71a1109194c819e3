package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "squire-test/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	client := NewClient(Options{UserAgent: "squire-test/1.0"})
	resp, err := client.Get(context.Background(), server.URL+"/file")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, int64(5), resp.ContentLength)
}

func TestGetDefaultUserAgent(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	resp, err := NewClient(Options{}).Get(context.Background(), server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, DefaultUserAgent, got)
}

func TestGetStatusErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusServiceUnavailable, ErrServerError},
		{http.StatusTeapot, ErrUnexpectedStatus},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := NewClient(DefaultOptions()).Get(context.Background(), server.URL)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestGetNoRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient(DefaultOptions()).Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestGetConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(DefaultOptions()).Get(context.Background(), url)
	assert.Error(t, err)
}

func TestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(DefaultOptions()).Get(ctx, server.URL)
	assert.Error(t, err)
}

func TestGetResponseHeaderTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(Options{ResponseHeaderTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := client.Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewClientTransportTimeouts(t *testing.T) {
	transport := NewClient(Options{}).client.Transport.(*http.Transport)

	assert.NotNil(t, transport.DialContext)
	assert.Equal(t, 60*time.Second, transport.ResponseHeaderTimeout)
	assert.Equal(t, 10*time.Second, transport.TLSHandshakeTimeout)
}

func TestCheckStatusCode(t *testing.T) {
	assert.NoError(t, checkStatusCode(http.StatusOK))
	assert.NoError(t, checkStatusCode(http.StatusNoContent))
	assert.ErrorIs(t, checkStatusCode(http.StatusBadGateway), ErrServerError)
}
