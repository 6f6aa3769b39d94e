package commands

import (
	"courtfetch/internal/captcha"
	"courtfetch/internal/components/configutil"
	"courtfetch/internal/components/retry"
	"courtfetch/internal/components/telemetry"
	"courtfetch/internal/ledger"
	"courtfetch/internal/notify"
	"courtfetch/internal/portal"
	"errors"
	"os"
	"time"
)

type RetryConfig struct {
	MaxAttempts  int     `json:"max_attempts"`
	DelaySeconds float64 `json:"delay_seconds"`
	StepSeconds  float64 `json:"step_seconds"`
}

func (c RetryConfig) Policy(fallback retry.Policy) retry.Policy {
	if c.MaxAttempts <= 0 {
		return fallback
	}
	return retry.Policy{
		MaxAttempts: c.MaxAttempts,
		Delay:       seconds(c.DelaySeconds),
		Step:        seconds(c.StepSeconds),
	}
}

type RemoteSolverConfig struct {
	Endpoint            string  `json:"endpoint"`
	Username            string  `json:"username"`
	Password            string  `json:"password"`
	PollAttempts        int     `json:"poll_attempts"`
	PollIntervalSeconds float64 `json:"poll_interval_seconds"`
	TimeoutSeconds      float64 `json:"timeout_seconds"`
}

type SolverConfig struct {
	// bounds a whole solve across every tier
	TimeoutSeconds float64             `json:"timeout_seconds"`
	Remote         *RemoteSolverConfig `json:"remote"`
}

func (c SolverConfig) RemoteOptions() *captcha.RemoteOptions {
	if c.Remote == nil || c.Remote.Endpoint == "" {
		return nil
	}
	return &captcha.RemoteOptions{
		Endpoint:     c.Remote.Endpoint,
		Username:     c.Remote.Username,
		Password:     c.Remote.Password,
		PollAttempts: c.Remote.PollAttempts,
		PollInterval: seconds(c.Remote.PollIntervalSeconds),
		Timeout:      seconds(c.Remote.TimeoutSeconds),
	}
}

// WatchConfig is a search that `courtfetch watch` runs on a cron schedule.
type WatchConfig struct {
	Name     string      `json:"name"`
	Schedule string      `json:"schedule"`
	Portal   string      `json:"portal"`
	Query    QueryConfig `json:"query"`
}

type Config struct {
	// where documents are written, relative to the config file
	OutputDir string `json:"output_dir"`
	Workers   int    `json:"workers"`
	// IANA zone used for search directory dates and watch schedules
	TimeZone string `json:"time_zone"`

	Handshake RetryConfig `json:"handshake"`
	// entry pages, query submissions and downloads
	Requests RetryConfig          `json:"requests"`
	Solver   SolverConfig         `json:"solver"`
	Ledger   ledger.Config        `json:"ledger"`
	Notify   notify.Config        `json:"notify"`
	Otlp     telemetry.OtlpConfig `json:"otlp"`

	// extra portal profiles, a profile with a builtin id replaces it
	Portals []portal.Profile `json:"portals"`
	Watches []WatchConfig    `json:"watches"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (c Config) withDefaults() Config {
	if c.OutputDir == "" {
		c.OutputDir = "downloads"
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.Solver.TimeoutSeconds <= 0 {
		c.Solver.TimeoutSeconds = 60
	}
	return c
}

// loadConfig reads the config file, a missing file is not an error and
// gives the defaults relative to the working directory.
func loadConfig(name string) (Config, string, error) {
	cfg, dir, err := configutil.ReadRecursively[Config](name)
	if errors.Is(err, os.ErrNotExist) {
		dir, err = os.Getwd()
		if err != nil {
			return Config{}, "", err
		}
		return Config{}.withDefaults(), dir, nil
	}
	if err != nil {
		return Config{}, "", err
	}
	return cfg.withDefaults(), dir, nil
}
