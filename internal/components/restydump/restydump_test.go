package restydump

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestAttach(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/order.pdf":
			w.Header().Set("content-type", "application/pdf")
			w.Write([]byte("%PDF-1.4 binary"))
		default:
			w.Header().Set("content-type", "text/html; charset=utf-8")
			w.Write([]byte("<html>entry</html>"))
		}
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "dumps")
	output, err := NewFilesystemOutput(dir)
	require.NoError(t, err)

	client := resty.New().SetBaseURL(server.URL)
	require.NoError(t, Attach(client, output))

	_, err = client.R().SetFormData(map[string]string{"captcha": "abc123"}).Post("/search.php")
	require.NoError(t, err)
	_, err = client.R().Get("/order.pdf")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	names := []string{entries[0].Name(), entries[1].Name()}
	sort.Strings(names)

	first, err := os.ReadFile(filepath.Join(dir, names[0]))
	require.NoError(t, err)
	require.Contains(t, string(first), "POST "+server.URL+"/search.php")
	require.Contains(t, string(first), "captcha=abc123")
	require.Contains(t, string(first), "<html>entry</html>")

	second, err := os.ReadFile(filepath.Join(dir, names[1]))
	require.NoError(t, err)
	require.Contains(t, string(second), "GET "+server.URL+"/order.pdf")
	require.Contains(t, string(second), "<15 bytes of application/pdf>")
	require.NotContains(t, string(second), "binary")
}

func TestFormatRequestBodyWithoutBody(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.com/entry", nil)
	require.NoError(t, err)
	require.Empty(t, formatRequestBody(req))

	req.GetBody = func() (io.ReadCloser, error) { return nil, nil }
	require.Empty(t, formatRequestBody(req))
}
