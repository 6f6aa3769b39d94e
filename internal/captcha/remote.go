package captcha

import (
	"bytes"
	"context"
	"courtfetch/internal/components/assert"
	"courtfetch/internal/components/chrono"
	"courtfetch/internal/components/retry"
	"courtfetch/internal/components/telemetry"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_remote_upload = "remote.upload"
	report_remote_poll   = "remote.poll"
)

var errNotReady = errors.New("remote solution not ready")

// RemoteOptions configures a solving service that speaks the
// upload-then-poll protocol: a multipart upload answers with an url encoded
// `captcha=<id>`, polling `<endpoint>/<id>` eventually answers with `text=<solution>`.
type RemoteOptions struct {
	Endpoint     string
	Username     string
	Password     string
	PollAttempts int
	PollInterval time.Duration
	Timeout      time.Duration
}

type RemoteSolver struct {
	http       *resty.Client
	poll       retry.Policy
	clock      chrono.API
	tel        telemetry.API
	preprocess Preprocess
}

func NewRemoteSolver(opts RemoteOptions, clock chrono.API, tel telemetry.API) RemoteSolver {
	assert.NotEmptyStr(opts.Endpoint)
	assert.NotNil(clock)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("captcha_remote", tel)

	if opts.PollAttempts <= 0 {
		opts.PollAttempts = 8
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(opts.Endpoint, "/"))
	client.SetTimeout(opts.Timeout)
	client.SetFormData(map[string]string{
		"username": opts.Username,
		"password": opts.Password,
	})
	telemetry.InstrumentResty(client, tel, "courtfetch/captcha/remote")

	return RemoteSolver{
		http: client,
		poll: retry.Policy{
			MaxAttempts: opts.PollAttempts,
			Delay:       opts.PollInterval,
		},
		clock:      clock,
		tel:        tel,
		preprocess: DefaultPreprocess,
	}
}

func (s RemoteSolver) Name() string {
	return "remote"
}

func (s RemoteSolver) upload(ctx context.Context, image []byte) (string, error) {
	res, err := s.http.R().
		SetContext(ctx).
		SetFileReader("captchafile", "captcha.png", bytes.NewReader(image)).
		Post("")
	if err != nil {
		return "", err
	}
	if res.IsError() {
		return "", fmt.Errorf("upload: unexpected status %s", res.Status())
	}
	values, err := url.ParseQuery(strings.TrimSpace(res.String()))
	if err != nil {
		return "", fmt.Errorf("upload: parse reply: %w", err)
	}
	id := values.Get("captcha")
	if id == "" || id == "0" {
		return "", fmt.Errorf("upload: reply did not contain a captcha id")
	}
	return id, nil
}

func (s RemoteSolver) fetchText(ctx context.Context, id string) (string, error) {
	var text string
	err := s.poll.Run(ctx, s.clock, func(ctx context.Context, attempt int) error {
		res, err := s.http.R().
			SetContext(ctx).
			SetPathParam("id", id).
			Get("/{id}")
		if err != nil {
			s.tel.ReportWarning(report_remote_poll, err, attempt)
			return err
		}
		if res.IsError() {
			return fmt.Errorf("poll: unexpected status %s", res.Status())
		}
		values, err := url.ParseQuery(strings.TrimSpace(res.String()))
		if err != nil {
			return retry.Permanent(fmt.Errorf("poll: parse reply: %w", err))
		}
		if values.Get("is_correct") == "0" {
			return retry.Permanent(fmt.Errorf("poll: service could not solve the challenge"))
		}
		text = values.Get("text")
		if text == "" {
			return errNotReady
		}
		return nil
	})
	return text, err
}

func (s RemoteSolver) Solve(ctx context.Context, challenge Challenge, syntax Syntax) (Answer, error) {
	id, err := s.upload(ctx, challenge.Image)
	if err != nil {
		s.tel.ReportWarning(report_remote_upload, err)
		return Answer{}, err
	}

	// the service never answers immediately
	err = s.clock.Sleep(ctx, s.poll.Delay)
	if err != nil {
		return Answer{}, err
	}
	raw, err := s.fetchText(ctx, id)
	if err != nil {
		return Answer{}, err
	}
	decoded := strings.NewReplacer(" ", "", "=", "", "?", "").Replace(strings.TrimSpace(raw))
	s.tel.ReportDebug("remote solution", id, decoded)

	if syntax.Kind != SyntaxArithmetic {
		if err := syntax.Validate(decoded); err != nil {
			return Answer{}, err
		}
		return Answer{Text: decoded, Confidence: ConfidenceRemote}, nil
	}
	return s.interpretArithmetic(challenge, decoded, syntax)
}

func (s RemoteSolver) interpretArithmetic(challenge Challenge, decoded string, syntax Syntax) (Answer, error) {
	if result, ok := Evaluate(decoded); ok {
		answer := strconv.Itoa(result)
		if err := syntax.Validate(answer); err != nil {
			return Answer{}, err
		}
		return Answer{Text: answer, Confidence: ConfidenceRemote}, nil
	}

	// two bare digits usually mean the service dropped the operator
	if len(decoded) == 2 && isDigits(decoded) {
		op, err := recoverOperator(challenge.Image, s.preprocess, 3)
		if err == nil {
			answer := strconv.Itoa(apply(int(decoded[0]-'0'), int(decoded[1]-'0'), op))
			if err := syntax.Validate(answer); err != nil {
				return Answer{}, err
			}
			return Answer{Text: answer, Confidence: ConfidenceHybrid}, nil
		}
		s.tel.ReportDebug("operator recovery failed, using digits as the result", decoded, err)
	}

	// otherwise the service already evaluated the expression
	if err := syntax.Validate(decoded); err != nil {
		return Answer{}, err
	}
	return Answer{Text: decoded, Confidence: ConfidenceRemote}, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
