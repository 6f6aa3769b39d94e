package transport

import (
	"context"
	"courtfetch/internal/components/chrono"
	"courtfetch/internal/components/retry"
	"courtfetch/internal/components/telemetry"
	"courtfetch/internal/portal"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientKeepsCookies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/entry":
			http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "abc", Path: "/"})
		case "/query":
			cookie, err := r.Cookie("PHPSESSID")
			if assert.NoError(t, err) {
				assert.Equal(t, "abc", cookie.Value)
			}
			assert.Equal(t, "courtfetch-test", r.UserAgent())
		}
	}))
	defer server.Close()

	client, err := NewClient(Options{
		BaseURL:   server.URL,
		UserAgent: "courtfetch-test",
		RateLimit: 100,
		RateBurst: 2,
	}, telemetry.NewRecorder())
	require.NoError(t, err)

	_, err = client.R().Get("/entry")
	require.NoError(t, err)
	res, err := client.R().Get("/query")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode())
}

func TestClientsAreIsolated(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("PHPSESSID")
		if err == nil {
			seen = append(seen, cookie.Value)
		}
		http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "first", Path: "/"})
	}))
	defer server.Close()

	first, err := NewClient(Options{BaseURL: server.URL}, telemetry.NewRecorder())
	require.NoError(t, err)
	second, err := NewClient(Options{BaseURL: server.URL}, telemetry.NewRecorder())
	require.NoError(t, err)

	_, err = first.R().Get("/")
	require.NoError(t, err)
	_, err = second.R().Get("/")
	require.NoError(t, err)
	require.Empty(t, seen)
}

func TestOptionsFor(t *testing.T) {
	opts := OptionsFor(portal.Andhra())
	require.Equal(t, 40*time.Second, opts.Timeout)
	require.True(t, opts.InsecureTLS)
	require.Equal(t, "courtfetch/portal/andhra", opts.TracerName)
}

func TestClientDumpsExchanges(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/plain")
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "andhra")
	client, err := NewClient(Options{BaseURL: server.URL, DumpDir: dir}, telemetry.NewRecorder())
	require.NoError(t, err)
	_, err = client.R().Get("/entry")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCheckStatus(t *testing.T) {
	testCases := []struct {
		code      int
		failed    bool
		permanent bool
	}{
		{code: http.StatusOK},
		{code: http.StatusFound},
		{code: http.StatusServiceUnavailable, failed: true},
		{code: http.StatusTooManyRequests, failed: true},
		{code: http.StatusNotFound, failed: true, permanent: true},
		{code: http.StatusForbidden, failed: true, permanent: true},
	}

	for _, test := range testCases {
		calls := 0
		err := retry.Policy{MaxAttempts: 3}.Run(context.Background(), chrono.NewFake(time.Now()), func(context.Context, int) error {
			calls++
			return CheckStatus(test.code, "")
		})
		if !test.failed {
			require.NoError(t, err, test.code)
			continue
		}
		require.ErrorIs(t, err, ErrStatus, test.code)
		if test.permanent {
			require.Equal(t, 1, calls, test.code)
		} else {
			require.Equal(t, 3, calls, test.code)
			require.ErrorIs(t, err, retry.ErrExhausted, test.code)
		}
	}
}
