package session

import (
	"context"
	"courtfetch/internal/captcha"
	"courtfetch/internal/components/chrono"
	"courtfetch/internal/components/retry"
	"courtfetch/internal/components/telemetry"
	"courtfetch/internal/portal"
	"courtfetch/internal/transport"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const entryPage = `<html><body>
<form name="search">
  <input type="hidden" name="__csrf_magic" value="sid:abc,123">
  <input type="hidden" name="state_code" value="2">
  <img id="captcha_image" src="captcha/show.php?x=1">
</form>
</body></html>`

type stubSolver struct {
	mutex   sync.Mutex
	answers []string
	calls   int
}

func (s *stubSolver) Solve(ctx context.Context, challenge captcha.Challenge, syntax captcha.Syntax) (captcha.Answer, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.calls++
	if len(s.answers) == 0 {
		return captcha.Answer{}, captcha.ErrChallengeUnsolved
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	if answer == "" {
		return captcha.Answer{}, captcha.ErrChallengeUnsolved
	}
	return captcha.Answer{Text: answer, Confidence: captcha.ConfidenceLocal}, nil
}

type fakePortal struct {
	entries    atomic.Int32
	challenges atomic.Int32
	busters    []string
	mutex      sync.Mutex
	// accept is the only answer the verification endpoint accepts
	accept string
	// entry page answers with this status until the counter runs out
	unavailable atomic.Int32
	entryStatus int
}

func (f *fakePortal) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/entry.php", func(w http.ResponseWriter, r *http.Request) {
		f.entries.Add(1)
		if f.unavailable.Add(-1) >= 0 {
			w.WriteHeader(f.entryStatus)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "HCSERVICES", Value: "s1", Path: "/"})
		fmt.Fprint(w, entryPage)
	})
	challenge := func(w http.ResponseWriter, r *http.Request) {
		f.challenges.Add(1)
		f.mutex.Lock()
		f.busters = append(f.busters, r.URL.Query().Get("sid"))
		f.mutex.Unlock()
		_, err := r.Cookie("HCSERVICES")
		assert.NoError(t, err)
		w.Header().Set("content-type", "image/png")
		w.Write([]byte("not really a png"))
	}
	mux.HandleFunc("/securimage/show.php", challenge)
	mux.HandleFunc("/captcha/show.php", challenge)
	mux.HandleFunc("/verify.php", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "sid:abc,123", r.PostForm.Get("__csrf_magic"))
		w.Header().Set("content-type", "application/json")
		if r.PostForm.Get("captcha") == f.accept {
			fmt.Fprint(w, `{"captcha_status":"1","app_token":"continued"}`)
			return
		}
		fmt.Fprint(w, `{"captcha_status":"0"}`)
	})
	return mux
}

func testProfile(baseURL string) portal.Profile {
	p := portal.Andhra()
	p.BaseURL = baseURL
	p.EntryPath = "entry.php"
	p.Challenge = portal.Challenge{Path: "securimage/show.php", CacheBuster: "sid"}
	p.RateLimit = 0
	return p
}

func newTestManager(solver Solver) (*Manager, *chrono.Fake, *telemetry.Recorder) {
	clock := chrono.NewFake(time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))
	recorder := telemetry.NewRecorder()
	return NewManager(solver, clock, recorder, DefaultHandshakePolicy), clock, recorder
}

func TestAcquireWithoutVerification(t *testing.T) {
	fake := &fakePortal{}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	manager, _, _ := newTestManager(&stubSolver{answers: []string{"a1b2c3"}})
	s, err := manager.Acquire(context.Background(), testProfile(server.URL))
	require.NoError(t, err)

	require.Equal(t, StateReady, s.State())
	require.True(t, s.ExpiresHeuristically())
	require.Equal(t, "sid:abc,123", s.Token())
	require.Equal(t, "2", s.HiddenFields().Get("state_code"))
	require.Len(t, fake.busters, 1)
	require.Len(t, fake.busters[0], 8)

	require.True(t, s.HasPendingAnswer())
	require.Equal(t, "a1b2c3", s.TakeAnswer())
	require.Equal(t, "", s.TakeAnswer())
}

func TestHandshakeIncorrectCaptchaRetries(t *testing.T) {
	fake := &fakePortal{accept: "right1"}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	profile := testProfile(server.URL)
	profile.Verification = &portal.Verification{
		Path:        "verify.php",
		StatusField: "captcha_status",
		AcceptValue: "1",
		TokenField:  "app_token",
	}

	solver := &stubSolver{answers: []string{"wrong1", "", "right1"}}
	manager, clock, _ := newTestManager(solver)
	s, err := manager.Acquire(context.Background(), profile)
	require.NoError(t, err)

	require.Equal(t, StateReady, s.State())
	require.Equal(t, "continued", s.Token())
	require.False(t, s.HasPendingAnswer())
	require.EqualValues(t, 3, fake.challenges.Load())
	require.EqualValues(t, 1, fake.entries.Load())
	require.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, clock.Slept())
}

func TestHandshakeExhausted(t *testing.T) {
	fake := &fakePortal{accept: "never"}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	profile := testProfile(server.URL)
	profile.Verification = &portal.Verification{
		Path:        "verify.php",
		StatusField: "captcha_status",
		AcceptValue: "1",
	}

	solver := &stubSolver{answers: []string{"aaaaaa", "bbbbbb", "cccccc"}}
	clock := chrono.NewFake(time.Now())
	recorder := telemetry.NewRecorder()
	manager := NewManager(solver, clock, recorder, retry.Policy{MaxAttempts: 3, Delay: time.Second})

	_, err := manager.Acquire(context.Background(), profile)
	require.ErrorIs(t, err, captcha.ErrChallengeUnsolved)
	require.ErrorIs(t, err, retry.ErrExhausted)
	require.EqualValues(t, 3, fake.challenges.Load())
	require.NotEmpty(t, recorder.Find(telemetry.KindWarning, report_manager_handshake))
}

func TestChallengeSelector(t *testing.T) {
	fake := &fakePortal{}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	profile := testProfile(server.URL)
	profile.Challenge = portal.Challenge{Selector: "img#captcha_image"}

	manager, _, _ := newTestManager(&stubSolver{answers: []string{"zzzzzz"}})
	_, err := manager.Acquire(context.Background(), profile)
	require.NoError(t, err)
	require.EqualValues(t, 1, fake.challenges.Load())
	require.Equal(t, []string{""}, fake.busters)
}

func TestRefreshOncePerGeneration(t *testing.T) {
	fake := &fakePortal{}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	manager, _, _ := newTestManager(&stubSolver{answers: []string{"aaaaaa", "bbbbbb", "cccccc"}})
	s, err := manager.Acquire(context.Background(), testProfile(server.URL))
	require.NoError(t, err)

	generation := s.Generation()
	s.MarkExpired(generation)
	require.Equal(t, StateExpired, s.State())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, manager.Refresh(context.Background(), s, generation))
		}()
	}
	wg.Wait()

	require.EqualValues(t, 2, fake.entries.Load())
	require.Equal(t, StateReady, s.State())
	require.Equal(t, "bbbbbb", s.TakeAnswer())

	// a stale generation must not expire the refreshed session
	s.MarkExpired(generation)
	require.Equal(t, StateReady, s.State())

	fresh, err := manager.EnsureFresh(context.Background(), s)
	require.NoError(t, err)
	require.Same(t, s, fresh)
	require.EqualValues(t, 2, fake.entries.Load())
}

func TestEntryPageRetried(t *testing.T) {
	fake := &fakePortal{entryStatus: http.StatusServiceUnavailable}
	fake.unavailable.Store(2)
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	manager, clock, _ := newTestManager(&stubSolver{answers: []string{"a1b2c3"}})
	manager.RetryTransport(retry.Policy{MaxAttempts: 3, Delay: time.Second, Step: time.Second})
	s, err := manager.Acquire(context.Background(), testProfile(server.URL))
	require.NoError(t, err)
	require.Equal(t, StateReady, s.State())
	require.EqualValues(t, 3, fake.entries.Load())
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Slept())
}

func TestEntryPageClientErrorNotRetried(t *testing.T) {
	fake := &fakePortal{entryStatus: http.StatusNotFound}
	fake.unavailable.Store(5)
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	manager, clock, _ := newTestManager(&stubSolver{answers: []string{"a1b2c3"}})
	s, err := manager.New(testProfile(server.URL))
	require.NoError(t, err)
	err = manager.Refresh(context.Background(), s, s.Generation())
	require.ErrorIs(t, err, transport.ErrStatus)
	require.NotErrorIs(t, err, retry.ErrExhausted)
	require.EqualValues(t, 1, fake.entries.Load())
	require.Empty(t, clock.Slept())
	require.Equal(t, StateInvalidated, s.State())
}
