package resolver

import (
	"context"
	"courtfetch/internal/captcha"
	"courtfetch/internal/components/chrono"
	"courtfetch/internal/components/retry"
	"courtfetch/internal/components/telemetry"
	"courtfetch/internal/portal"
	"courtfetch/internal/records"
	"courtfetch/internal/session"
	"courtfetch/internal/store"
	"courtfetch/internal/transport"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "embed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//go:embed display_wrapper_test.html
var displayWrapper string

const pdfBody = "%PDF-1.4\n%fake order\n"

type noSolver struct{}

func (noSolver) Solve(context.Context, captcha.Challenge, captcha.Syntax) (captcha.Answer, error) {
	return captcha.Answer{}, captcha.ErrChallengeUnsolved
}

type fixture struct {
	requests atomic.Int32
	flaky    atomic.Int32
	clock    *chrono.Fake
	mutex    sync.Mutex
	referers map[string]string
	session  *session.Session
	resolver Resolver
	root     string
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{referers: map[string]string{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/cases/display_pdf.php", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		f.setReferer("display", r.Referer())
		switch r.URL.Query().Get("filename") {
		case "direct":
			w.Header().Set("content-type", "application/pdf")
			io.WriteString(w, pdfBody)
		case "magic":
			w.Header().Set("content-type", "text/html")
			io.WriteString(w, pdfBody)
		case "wrapper":
			w.Header().Set("content-type", "text/html")
			io.WriteString(w, displayWrapper)
		case "expired":
			io.WriteString(w, "<html>Session Timeout</html>")
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
		case "flaky":
			if f.flaky.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("content-type", "application/pdf")
			io.WriteString(w, pdfBody)
		case "gone":
			w.WriteHeader(http.StatusNotFound)
		default:
			io.WriteString(w, "<html><body>nothing to see</body></html>")
		}
	})
	mux.HandleFunc("/orders/", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		f.setReferer("document", r.Referer())
		if r.URL.Path != "/orders/order one.pdf" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("content-type", "application/octet-stream")
		io.WriteString(w, pdfBody)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	profile := portal.Andhra()
	profile.BaseURL = server.URL
	profile.EntryPath = "entry.php"
	profile.RateLimit = 0

	recorder := telemetry.NewRecorder()
	f.clock = chrono.NewFake(time.Now())
	manager := session.NewManager(noSolver{}, f.clock, recorder, session.DefaultHandshakePolicy)
	s, err := manager.New(profile)
	require.NoError(t, err)

	f.root = t.TempDir()
	f.session = s
	policy := retry.Policy{MaxAttempts: 3, Delay: time.Second}
	f.resolver = NewResolver(store.NewStore(f.root, recorder), f.clock, policy, recorder)
	return f
}

func (f *fixture) setReferer(kind, referer string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.referers[kind] = referer
}

func (f *fixture) target(name string) string {
	return filepath.Join(f.root, "12-03-2025", name+".pdf")
}

func record(locator string) records.Record {
	return records.Record{
		Sequence:   1,
		CaseNumber: "CRLP/11871/2025",
		OrderDate:  "12-03-2025",
		Locator:    locator,
		CourtCode:  "1",
		CINO:       "APHC010456782025",
	}
}

func TestNominalURL(t *testing.T) {
	rec := record("CRLP%252F11871%252F2025%252Forder.pdf")
	expected := "https://hcservices.ecourts.gov.in/ecourtindiaHC/cases/display_pdf.php" +
		"?filename=CRLP%2F11871%2F2025%2Forder.pdf" +
		"&caseno=CRLP/11871/2025" +
		"&cCode=1" +
		"&cino=APHC010456782025" +
		"&state_code=2" +
		"&appFlag="
	require.Equal(t, expected, NominalURL(portal.Andhra(), rec))

	rec.CaseNumber = "WP (C)/1/2024"
	require.Contains(t, NominalURL(portal.Andhra(), rec), "caseno=WP%20%28C%29/1/2024")
}

func TestFindCandidate(t *testing.T) {
	page, err := url.Parse("https://portal.example/app/cases/display_pdf.php?filename=x")
	require.NoError(t, err)

	testCases := []struct {
		name     string
		body     string
		expected Candidate
		found    bool
	}{
		{
			name:     "embed wins over iframe",
			body:     `<iframe src="frame.pdf"></iframe><embed src="/files/a.pdf">`,
			expected: Candidate{URL: "https://portal.example/files/a.pdf", Method: MethodEmbeddedFrame},
			found:    true,
		},
		{
			name:     "iframe",
			body:     `<iframe src="view.php?id=1"></iframe>`,
			expected: Candidate{URL: "https://portal.example/app/cases/view.php?id=1", Method: MethodInlineFrame},
			found:    true,
		},
		{
			name:     "anchor with marker",
			body:     `<a href="home.php">home</a><a href="display_pdf.php?filename=y">open</a>`,
			expected: Candidate{URL: "https://portal.example/app/cases/display_pdf.php?filename=y", Method: MethodAnchorHref},
			found:    true,
		},
		{
			name:     "script redirect",
			body:     `<script>window.location = '/out/b.pdf';</script>`,
			expected: Candidate{URL: "https://portal.example/out/b.pdf", Method: MethodScriptRedirect},
			found:    true,
		},
		{
			name:     "meta refresh",
			body:     `<meta http-equiv="refresh" content="2;url='docs/c.pdf'">`,
			expected: Candidate{URL: "https://portal.example/app/cases/docs/c.pdf", Method: MethodMetaRefresh},
			found:    true,
		},
		{
			name:     "text scan",
			body:     `<p>download from https://cdn.example/x/d%2520e.PDF today</p>`,
			expected: Candidate{URL: "https://cdn.example/x/d%20e.PDF", Method: MethodFallbackTextScan},
			found:    true,
		},
		{
			name:     "wrapper page",
			body:     displayWrapper,
			expected: Candidate{URL: "https://portal.example/app/orders/order%20one.pdf", Method: MethodAnchorHref},
			found:    true,
		},
		{
			name:  "nothing",
			body:  `<html><body><a href="help.php">help</a></body></html>`,
			found: false,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			candidate, ok := FindCandidate(context.Background(), []byte(test.body), page, "display_pdf.php")
			require.Equal(t, test.found, ok)
			require.Equal(t, test.expected, candidate)
		})
	}
}

func TestResolveDirect(t *testing.T) {
	for _, locator := range []string{"direct", "magic"} {
		f := newFixture(t)
		doc, err := f.resolver.Resolve(context.Background(), f.session, record(locator), f.target(locator))
		require.NoError(t, err)
		require.True(t, doc.Validated)
		require.False(t, doc.Existing)
		require.EqualValues(t, 1, f.requests.Load())

		contents, err := os.ReadFile(f.target(locator))
		require.NoError(t, err)
		require.Equal(t, pdfBody, string(contents))
	}
}

func TestResolveWrapper(t *testing.T) {
	f := newFixture(t)
	doc, err := f.resolver.Resolve(context.Background(), f.session, record("wrapper"), f.target("wrapper"))
	require.NoError(t, err)
	require.True(t, doc.Validated)
	require.EqualValues(t, 2, f.requests.Load())

	require.True(t, strings.HasSuffix(f.referers["display"], "/entry.php"), f.referers["display"])
	require.Contains(t, f.referers["document"], "/cases/display_pdf.php?filename=wrapper")
}

func TestResolveExistingSkipsNetwork(t *testing.T) {
	f := newFixture(t)
	target := f.target("present")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0755))
	require.NoError(t, os.WriteFile(target, []byte(pdfBody), 0644))

	doc, err := f.resolver.Resolve(context.Background(), f.session, record("direct"), target)
	require.NoError(t, err)
	require.True(t, doc.Existing)
	require.EqualValues(t, 0, f.requests.Load())
}

func TestResolveNoCandidate(t *testing.T) {
	f := newFixture(t)
	target := f.target("nothing")
	_, err := f.resolver.Resolve(context.Background(), f.session, record("nothing"), target)
	require.ErrorIs(t, err, ErrNoDocumentCandidate)
	require.ErrorIs(t, err, store.ErrInvalidDocument)
	// the display page is fetched again as a stream before giving up
	require.EqualValues(t, 2, f.requests.Load())

	_, statErr := os.Stat(target)
	require.True(t, os.IsNotExist(statErr))
}

func TestResolveFailures(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolver.Resolve(context.Background(), f.session, record("expired"), f.target("expired"))
	require.ErrorIs(t, err, session.ErrSessionExpired)

	_, err = f.resolver.Resolve(context.Background(), f.session, record("broken"), f.target("broken"))
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, retry.ErrExhausted)

	_, err = f.resolver.Resolve(context.Background(), f.session, record("N"), f.target("none"))
	require.ErrorIs(t, err, ErrNoDocumentCandidate)
	assert.EqualValues(t, 4, f.requests.Load())
	assert.Equal(t, []time.Duration{time.Second, time.Second}, f.clock.Slept())
}

func TestResolveRetriesTransientFailure(t *testing.T) {
	f := newFixture(t)
	doc, err := f.resolver.Resolve(context.Background(), f.session, record("flaky"), f.target("flaky"))
	require.NoError(t, err)
	require.True(t, doc.Validated)
	require.EqualValues(t, 2, f.requests.Load())
	require.Equal(t, []time.Duration{time.Second}, f.clock.Slept())

	contents, err := os.ReadFile(f.target("flaky"))
	require.NoError(t, err)
	require.Equal(t, pdfBody, string(contents))
}

func TestResolveClientErrorNotRetried(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.Resolve(context.Background(), f.session, record("gone"), f.target("gone"))
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, transport.ErrStatus)
	require.NotErrorIs(t, err, retry.ErrExhausted)
	require.EqualValues(t, 1, f.requests.Load())
	require.Empty(t, f.clock.Slept())
}
