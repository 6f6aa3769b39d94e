package session

import (
	"bytes"
	"context"
	"courtfetch/internal/captcha"
	"courtfetch/internal/components/assert"
	"courtfetch/internal/components/chrono"
	"courtfetch/internal/components/retry"
	"courtfetch/internal/components/telemetry"
	"courtfetch/internal/portal"
	"courtfetch/internal/transport"
	"courtfetch/pkg/htmlutil"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
)

const (
	report_manager_handshake = "manager.handshake"
	report_manager_verify    = "manager.verify"
	report_manager_refresh   = "manager.refresh"
)

// DefaultHandshakePolicy bounds how many challenges are tried before a
// handshake gives up.
var DefaultHandshakePolicy = retry.Policy{
	MaxAttempts: 5,
	Delay:       3 * time.Second,
}

var errAnswerRejected = errors.New("answer rejected")

// Solver is whatever turns a challenge into an answer, usually a
// captcha.Solver.
type Solver interface {
	Solve(ctx context.Context, challenge captcha.Challenge, syntax captcha.Syntax) (captcha.Answer, error)
}

type Manager struct {
	solver    Solver
	clock     chrono.API
	tel       telemetry.API
	handshake retry.Policy
	fetch     retry.Policy
	dumpDir   string
}

func NewManager(solver Solver, clock chrono.API, tel telemetry.API, handshake retry.Policy) *Manager {
	assert.NotNil(solver)
	assert.NotNil(clock)
	assert.NotNil(tel)
	return &Manager{
		solver:    solver,
		clock:     clock,
		tel:       telemetry.NewScopedAPI("session", tel),
		handshake: handshake,
		fetch:     transport.DefaultRetryPolicy,
	}
}

// New creates a session that has not done its handshake yet, it is enough
// for endpoints that are not gated by a challenge.
func (m *Manager) New(profile portal.Profile) (*Session, error) {
	opts := transport.OptionsFor(profile)
	if m.dumpDir != "" {
		opts.DumpDir = filepath.Join(m.dumpDir, profile.ID)
	}
	client, err := transport.NewClient(opts, m.tel)
	if err != nil {
		return nil, err
	}
	return &Session{
		Profile: profile,
		http:    client,
		state:   StateUninitialized,
		hidden:  url.Values{},
	}, nil
}

// DumpExchanges makes every session created afterwards write its http
// exchanges under dir/<portal id>.
func (m *Manager) DumpExchanges(dir string) {
	m.dumpDir = dir
}

// RetryTransport replaces the policy entry page fetches are retried with.
func (m *Manager) RetryTransport(policy retry.Policy) {
	m.fetch = policy
}

// Acquire creates a fresh session and completes its handshake.
func (m *Manager) Acquire(ctx context.Context, profile portal.Profile) (*Session, error) {
	s, err := m.New(profile)
	if err != nil {
		return nil, err
	}
	err = m.Refresh(ctx, s, s.Generation())
	if err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureFresh re-handshakes a session the portal has rejected and leaves a
// ready session alone.
func (m *Manager) EnsureFresh(ctx context.Context, s *Session) (*Session, error) {
	if s.State() == StateReady {
		return s, nil
	}
	err := m.Refresh(ctx, s, s.Generation())
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh performs a new handshake unless another caller already did one
// since generation. It waits for every in-flight request of the session.
func (m *Manager) Refresh(ctx context.Context, s *Session, generation uint64) error {
	s.requests.Lock()
	defer s.requests.Unlock()

	s.mutex.Lock()
	current := s.generation
	state := s.state
	if current == generation {
		s.generation++
		s.state = StateHandshaking
	}
	s.mutex.Unlock()

	if current != generation {
		if state == StateReady {
			return nil
		}
		return fmt.Errorf("%w: the last handshake of %s failed", ErrSessionExpired, s.Profile.ID)
	}

	if generation > 0 {
		m.tel.ReportDebug(report_manager_refresh, s.Profile.ID, generation)
	}
	err := m.doHandshake(ctx, s)
	if err != nil {
		s.setState(StateInvalidated)
		return err
	}
	s.setState(StateReady)
	return nil
}

func (m *Manager) doHandshake(ctx context.Context, s *Session) error {
	profile := s.Profile
	entryURL := profile.URL(profile.EntryPath)

	var res *resty.Response
	err := m.fetch.Run(ctx, m.clock, func(ctx context.Context, attempt int) error {
		var err error
		res, err = s.http.R().
			SetContext(ctx).
			Get(entryURL)
		return transport.Check(res, err)
	})
	if err != nil {
		m.tel.ReportWarning(report_manager_handshake, fmt.Errorf("entry page: %w", err))
		return fmt.Errorf("fetch entry page of %s: %w", profile.ID, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return fmt.Errorf("parse entry page of %s: %w", profile.ID, err)
	}

	if res.RawResponse != nil && res.RawResponse.Request != nil {
		entryURL = res.RawResponse.Request.URL.String()
	}
	hidden := htmlutil.HiddenFields(doc.Selection)
	token := ""
	if profile.TokenField != "" {
		token = hidden.Get(profile.TokenField)
		if token == "" {
			m.tel.ReportWarning(report_manager_handshake, "anti-forgery field missing", profile.ID, profile.TokenField)
		}
	}

	challengeURL, err := m.challengeURL(profile, doc, entryURL)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	s.entryURL = entryURL
	s.hidden = hidden
	s.token = token
	s.pending = ""
	s.mutex.Unlock()

	err = m.handshake.Run(ctx, m.clock, func(ctx context.Context, attempt int) error {
		return m.cycle(ctx, s, challengeURL, attempt)
	})
	if errors.Is(err, retry.ErrExhausted) {
		err = fmt.Errorf("%w: handshake with %s: %w", captcha.ErrChallengeUnsolved, profile.ID, err)
		m.tel.ReportWarning(report_manager_handshake, err)
		return err
	}
	return err
}

func (m *Manager) challengeURL(profile portal.Profile, doc *goquery.Document, entryURL string) (string, error) {
	if profile.Challenge.Selector == "" {
		return profile.URL(profile.Challenge.Path), nil
	}
	src, ok := doc.Find(profile.Challenge.Selector).First().Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		if profile.Challenge.Path != "" {
			return profile.URL(profile.Challenge.Path), nil
		}
		err := fmt.Errorf("challenge image %q not found on the entry page of %s", profile.Challenge.Selector, profile.ID)
		m.tel.ReportBroken(report_manager_handshake, err)
		return "", err
	}
	base, err := url.Parse(entryURL)
	if err != nil {
		return "", err
	}
	resolved, err := base.Parse(strings.TrimSpace(src))
	if err != nil {
		return "", err
	}
	return resolved.String(), nil
}

// cycle fetches one challenge, solves it and, when the portal has a
// verification endpoint, checks the answer with it.
func (m *Manager) cycle(ctx context.Context, s *Session, challengeURL string, attempt int) error {
	profile := s.Profile

	req := s.http.R().
		SetContext(ctx).
		SetHeader("referer", s.EntryURL())
	if profile.Challenge.CacheBuster != "" {
		buster, err := random.String(8)
		if err != nil {
			return retry.Permanent(err)
		}
		req.SetQueryParam(profile.Challenge.CacheBuster, buster)
	}
	res, err := req.Get(challengeURL)
	if err != nil {
		return fmt.Errorf("fetch challenge: %w", err)
	}
	if res.IsError() || len(res.Body()) == 0 {
		return fmt.Errorf("fetch challenge: %s", res.Status())
	}

	answer, err := m.solver.Solve(ctx, captcha.Challenge{
		Image:    res.Body(),
		IssuedAt: m.clock.Now(),
	}, profile.Syntax)
	if err != nil {
		m.tel.ReportDebug("challenge unsolved", profile.ID, attempt, err)
		return err
	}
	m.tel.ReportDebug("challenge solved", profile.ID, attempt, answer.Confidence.String())

	if profile.Verification == nil {
		s.mutex.Lock()
		s.pending = answer.Text
		s.mutex.Unlock()
		return nil
	}
	return m.verify(ctx, s, answer)
}

func (m *Manager) verify(ctx context.Context, s *Session, answer captcha.Answer) error {
	v := s.Profile.Verification

	form := map[string]string{}
	for k, value := range v.Static {
		form[k] = value
	}
	answerField := v.AnswerField
	if answerField == "" {
		answerField = s.Profile.AnswerField
	}
	form[answerField] = answer.Text
	if s.Profile.TokenField != "" && s.Token() != "" {
		form[s.Profile.TokenField] = s.Token()
	}

	res, err := s.http.R().
		SetContext(ctx).
		SetHeader("referer", s.EntryURL()).
		SetHeader("x-requested-with", "XMLHttpRequest").
		SetFormData(form).
		Post(s.Profile.URL(v.Path))
	if err != nil {
		return fmt.Errorf("verify answer: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("verify answer: %s", res.Status())
	}

	var reply map[string]any
	err = json.Unmarshal(res.Body(), &reply)
	if err != nil {
		m.tel.ReportWarning(report_manager_verify, "non-json reply", res.Header().Get("content-type"))
		return fmt.Errorf("verify answer: %w", err)
	}
	status := fmt.Sprint(reply[v.StatusField])
	if status != v.AcceptValue {
		return fmt.Errorf("%w: status %q", errAnswerRejected, status)
	}

	if v.TokenField != "" {
		if token, ok := reply[v.TokenField].(string); ok && token != "" {
			s.mutex.Lock()
			s.token = token
			s.mutex.Unlock()
		}
	}
	return nil
}
