package query

import (
	"context"
	"courtfetch/internal/components/assert"
	"courtfetch/internal/components/chrono"
	"courtfetch/internal/components/retry"
	"courtfetch/internal/components/telemetry"
	"courtfetch/internal/session"
	"courtfetch/internal/transport"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	report_dispatcher_submit   = "dispatcher.submit"
	report_dispatcher_rejected = "dispatcher.rejected"
)

// Refresher re-handshakes a session, usually a *session.Manager.
type Refresher interface {
	Refresh(ctx context.Context, s *session.Session, generation uint64) error
}

type Dispatcher struct {
	refresher Refresher
	clock     chrono.API
	policy    retry.Policy
	tel       telemetry.API
}

// NewDispatcher retries submissions that fail in transit with policy, a
// rejected answer is never retried this way.
func NewDispatcher(refresher Refresher, clock chrono.API, policy retry.Policy, tel telemetry.API) Dispatcher {
	assert.NotNil(refresher)
	assert.NotNil(clock)
	assert.NotNil(tel)
	return Dispatcher{
		refresher: refresher,
		clock:     clock,
		policy:    policy,
		tel:       telemetry.NewScopedAPI("query", tel),
	}
}

// Submit sends q and returns the raw response feed. When the portal
// rejects the session the dispatcher refreshes it once and submits again,
// a second rejection returns session.ErrSessionExpired.
func (d Dispatcher) Submit(ctx context.Context, s *session.Session, q Query) (string, error) {
	err := q.Validate()
	if err != nil {
		return "", err
	}
	endpoint, form, err := Form(s.Profile, q)
	if err != nil {
		return "", err
	}

	for attempt := 1; attempt <= 2; attempt++ {
		generation := s.Generation()
		needsAnswer := s.ExpiresHeuristically() && !s.HasPendingAnswer()
		if s.State() != session.StateReady || needsAnswer {
			err = d.refresher.Refresh(ctx, s, generation)
			if err != nil {
				return "", err
			}
			generation = s.Generation()
		}

		body, rejected, err := d.submit(ctx, s, endpoint.Path, form)
		if err != nil {
			d.tel.ReportWarning(report_dispatcher_submit, s.Profile.ID, q.Label(), err)
			return "", err
		}
		if !rejected {
			return body, nil
		}

		d.tel.ReportWarning(report_dispatcher_rejected, s.Profile.ID, q.Label(), attempt)
		s.MarkExpired(generation)
	}
	return "", fmt.Errorf("%w: %s rejected %q twice", session.ErrSessionExpired, s.Profile.ID, q.Label())
}

func (d Dispatcher) submit(ctx context.Context, s *session.Session, path string, base map[string]string) (string, bool, error) {
	form := make(map[string]string, len(base)+2)
	for k, v := range base {
		form[k] = v
	}
	if s.Profile.TokenField != "" && s.Token() != "" {
		form[s.Profile.TokenField] = s.Token()
	}
	if answer := s.TakeAnswer(); answer != "" && s.Profile.AnswerField != "" {
		form[s.Profile.AnswerField] = answer
	}

	var res *resty.Response
	err := d.policy.Run(ctx, d.clock, func(ctx context.Context, attempt int) error {
		return s.Do(func(client *resty.Client) error {
			var err error
			res, err = client.R().
				SetContext(ctx).
				SetHeader("referer", s.EntryURL()).
				SetHeader("x-requested-with", "XMLHttpRequest").
				SetFormData(form).
				Post(s.Profile.URL(path))
			return transport.Check(res, err)
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("submit query: %w", err)
	}

	body := string(res.Body())
	contentType := strings.ToLower(res.Header().Get("content-type"))
	// a rejected answer makes some portals answer with a fresh challenge image
	rejected := strings.HasPrefix(contentType, "image/") ||
		s.Profile.IsIncorrect(body) ||
		s.Profile.IsExpired(body)
	return body, rejected, nil
}
