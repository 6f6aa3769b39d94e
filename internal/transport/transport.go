// Package transport builds the http clients used to talk to portals.
package transport

import (
	"courtfetch/internal/components/assert"
	"courtfetch/internal/components/restydump"
	"courtfetch/internal/components/telemetry"
	"courtfetch/internal/portal"
	"crypto/tls"
	"net/http"
	"net/http/cookiejar"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// RateLimit is the number of requests allowed per second, zero disables
	// limiting.
	RateLimit        float64
	RateBurst        int
	InsecureTLS      bool
	CloudflareBypass bool
	TracerName       string
	// DumpDir receives a file per http exchange when set.
	DumpDir string
}

// OptionsFor returns the transport options a portal profile asks for.
func OptionsFor(p portal.Profile) Options {
	return Options{
		BaseURL:          p.BaseURL,
		UserAgent:        p.UserAgent,
		Timeout:          time.Duration(p.TimeoutSeconds) * time.Second,
		RateLimit:        p.RateLimit,
		RateBurst:        p.RateBurst,
		InsecureTLS:      p.InsecureTLS,
		CloudflareBypass: p.CloudflareBypass,
		TracerName:       "courtfetch/portal/" + p.ID,
	}
}

// NewClient creates a resty client with its own cookie jar, so every client
// is an independent browser session.
func NewClient(opts Options, tel telemetry.API) (*resty.Client, error) {
	assert.NotNil(tel)

	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.TracerName == "" {
		opts.TracerName = "courtfetch/transport"
	}

	client := resty.New()
	if opts.BaseURL != "" {
		client.SetBaseURL(opts.BaseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)

	base := http.DefaultTransport.(*http.Transport).Clone()
	var roundTripper http.RoundTripper = base
	if opts.CloudflareBypass {
		roundTripper = cloudflarebp.AddCloudFlareByPass(base)
	}
	if opts.InsecureTLS {
		if base.TLSClientConfig == nil {
			base.TLSClientConfig = &tls.Config{}
		}
		base.TLSClientConfig.InsecureSkipVerify = true
	}
	client.SetTransport(roundTripper)

	client.SetHeader("user-agent", opts.UserAgent)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	client.SetTimeout(opts.Timeout)

	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(client, tel, opts.TracerName)
	if opts.DumpDir != "" {
		output, err := restydump.NewFilesystemOutput(opts.DumpDir)
		if err != nil {
			return nil, err
		}
		err = restydump.Attach(client, output)
		if err != nil {
			return nil, err
		}
	}
	return client, nil
}
