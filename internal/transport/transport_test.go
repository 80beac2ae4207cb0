package transport

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icloud-photos/icloudpd-go/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestDoRetriesOnRetryableStatus(t *testing.T) {
	var attempts int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	sess := session.New()
	client := NewClient(&http.Client{}, sess, nil, "test@example.com", "icloudpd-go/1.0", "client-id", discardLogger())

	body, status, err := client.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestDoSurfacesNonRetryableAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"hasError":true,"errorCode":"ZONE_NOT_FOUND","errorMessage":"no such zone"}`))
	}))
	defer srv.Close()

	sess := session.New()
	client := NewClient(&http.Client{}, sess, nil, "test@example.com", "icloudpd-go/1.0", "client-id", discardLogger())

	_, _, err := client.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.Error(t, err)

	var apiErr *APIResponseError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "ZONE_NOT_FOUND", apiErr.Code)
	assert.False(t, apiErr.Retryable)
}

func TestApplyHeadersPersistsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Apple-ID-Session-Id", "abc123")
		w.Header().Set("Scnt", "scnt-value")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	store := session.NewStore(dir)
	sess := session.New()

	client := NewClient(&http.Client{}, sess, store, "test@example.com", "icloudpd-go/1.0", "client-id", discardLogger())

	_, _, err := client.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)

	reloaded, err := store.Load("test@example.com")
	require.NoError(t, err)
	assert.Equal(t, "abc123", reloaded.Snapshot().SessionID)
	assert.Equal(t, "scnt-value", reloaded.Snapshot().Scnt)
}

func TestReclassifyKnownCodes(t *testing.T) {
	err := reclassify(200, "ACCESS_DENIED", "")
	assert.False(t, err.Retryable)

	err = reclassify(421, "SOME_CODE", "")
	assert.True(t, err.Retryable)

	err = reclassify(503, "", "")
	assert.True(t, err.Retryable)
}

func TestRedactURL(t *testing.T) {
	u := "https://example.com/path?dsid=1234&token=secret"
	assert.Equal(t, "https://example.com/path?<redacted>", redactURL(u))

	plain := "https://example.com/path"
	assert.Equal(t, plain, redactURL(plain))
}

func TestHostsForDomain(t *testing.T) {
	authHost, setupHost, err := HostsForDomain("com")
	require.NoError(t, err)
	assert.Equal(t, "idmsa.apple.com", authHost)
	assert.Equal(t, "setup.icloud.com", setupHost)

	_, _, err = HostsForDomain("xx")
	require.Error(t, err)
}
