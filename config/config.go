// Package config loads enginebridge settings from YAML and turns them into
// the functional options of the executor, session gateway, engines and
// runner.
//
// A minimal file:
//
//	log:
//	  level: debug
//	backoff:
//	  strategy: exponential
//	  initial: 500ms
//	  max: 10s
//	store:
//	  driver: sqlite
//	  path: runs.db
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/enginebridge/backoff"
	"github.com/hupe1980/enginebridge/core"
	"github.com/hupe1980/enginebridge/engine"
	"github.com/hupe1980/enginebridge/engines/browser"
	"github.com/hupe1980/enginebridge/engines/web"
	"github.com/hupe1980/enginebridge/logging"
	"github.com/hupe1980/enginebridge/runner"
	"github.com/hupe1980/enginebridge/session"
	"github.com/hupe1980/enginebridge/store"
	"github.com/hupe1980/enginebridge/store/sqlite"
)

// ErrInvalid is returned for settings that fail validation.
var ErrInvalid = errors.New("config: invalid")

// Backoff strategy names.
const (
	StrategyConstant    = "constant"
	StrategyLinear      = "linear"
	StrategyExponential = "exponential"
	StrategyJitter      = "jitter"
)

// Store drivers.
const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config is the root of a configuration file.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Executor ExecutorConfig `yaml:"executor"`
	Backoff  BackoffConfig  `yaml:"backoff"`
	Store    StoreConfig    `yaml:"store"`
	Session  SessionConfig  `yaml:"session"`
	Browser  BrowserConfig  `yaml:"browser"`
	Web      WebConfig      `yaml:"web"`
	Runner   RunnerConfig   `yaml:"runner"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // json or text
	AddSource bool   `yaml:"add_source"`
}

// ExecutorConfig mirrors engine.Config.
type ExecutorConfig struct {
	EventBufferSize int  `yaml:"event_buffer_size"`
	MarkSkipped     bool `yaml:"mark_skipped"`
}

// BackoffConfig selects the retry delay strategy.
type BackoffConfig struct {
	Strategy string        `yaml:"strategy"`
	Initial  time.Duration `yaml:"initial"`
	Max      time.Duration `yaml:"max"`
}

// StoreConfig selects the run history backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// SessionConfig configures the cookie gateway.
type SessionConfig struct {
	Domains []string `yaml:"domains"`
}

// BrowserConfig configures the chromedp engine.
type BrowserConfig struct {
	Headless  *bool         `yaml:"headless"`
	NoSandbox bool          `yaml:"no_sandbox"`
	ExecPath  string        `yaml:"exec_path"`
	Timeout   time.Duration `yaml:"timeout"`
}

// WebConfig configures the HTTP engine.
type WebConfig struct {
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RunnerConfig configures concurrent workflow execution.
type RunnerConfig struct {
	MaxConcurrency int  `yaml:"max_concurrency"`
	Async          bool `yaml:"async"`
	FailFast       bool `yaml:"fail_fast"`
}

// Default returns the configuration used for unset fields.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Executor: ExecutorConfig{
			EventBufferSize: engine.DefaultConfig.EventBufferSize,
			MarkSkipped:     engine.DefaultConfig.MarkSkipped,
		},
		Backoff: BackoffConfig{Strategy: StrategyConstant, Initial: time.Second, Max: 30 * time.Second},
		Store:   StoreConfig{Driver: DriverMemory},
		Browser: BrowserConfig{Timeout: 60 * time.Second},
		Web:     WebConfig{Timeout: 30 * time.Second},
		Runner:  RunnerConfig{MaxConcurrency: 4},
	}
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerations and ranges.
func (c Config) Validate() error {
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	switch strings.ToLower(c.Backoff.Strategy) {
	case StrategyConstant, StrategyLinear, StrategyExponential, StrategyJitter:
	default:
		return fmt.Errorf("%w: backoff.strategy %q", ErrInvalid, c.Backoff.Strategy)
	}
	if c.Backoff.Initial < 0 || c.Backoff.Max < 0 {
		return fmt.Errorf("%w: backoff durations must not be negative", ErrInvalid)
	}
	switch strings.ToLower(c.Store.Driver) {
	case DriverNone, DriverMemory:
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path is required for sqlite", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: store.driver %q", ErrInvalid, c.Store.Driver)
	}
	if c.Executor.EventBufferSize < 0 {
		return fmt.Errorf("%w: executor.event_buffer_size must not be negative", ErrInvalid)
	}
	if c.Runner.MaxConcurrency < 0 {
		return fmt.Errorf("%w: runner.max_concurrency must not be negative", ErrInvalid)
	}
	return nil
}

// Logger builds a BridgeLogger writing to stdout.
func (c Config) Logger() *logging.BridgeLogger {
	return c.LoggerTo(os.Stdout)
}

// LoggerTo builds a BridgeLogger writing to w.
func (c Config) LoggerTo(w io.Writer) *logging.BridgeLogger {
	lc := logging.DefaultLoggerConfig()
	lc.Level = logging.ParseLevel(c.Log.Level)
	lc.Format = strings.ToLower(c.Log.Format)
	lc.AddSource = c.Log.AddSource
	lc.Output = w
	return logging.NewLogger(lc)
}

// Backoff builds the retry delay strategy.
func (c Config) Backoff() backoff.Strategy {
	b := c.Backoff
	switch strings.ToLower(b.Strategy) {
	case StrategyLinear:
		return backoff.NewLinear(b.Initial, b.Max)
	case StrategyExponential:
		return backoff.NewExponential(b.Initial, b.Max)
	case StrategyJitter:
		return backoff.NewExponentialWithJitter(b.Initial, b.Max)
	default:
		return backoff.NewConstant(b.Initial)
	}
}

// OpenStore opens the configured run store. The returned close function is
// never nil. A "none" driver yields a nil store.
func (c Config) OpenStore() (core.RunStore, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(c.Store.Driver) {
	case DriverNone:
		return nil, noop, nil
	case DriverSQLite:
		s, err := sqlite.New(c.Store.Path)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		return store.NewInMemoryStore(), noop, nil
	}
}

// ExecutorOptions applies executor settings. Logger and RunStore are left
// to the caller.
func (c Config) ExecutorOptions() func(o *engine.Options) {
	return func(o *engine.Options) {
		o.Config.EventBufferSize = c.Executor.EventBufferSize
		o.Config.MarkSkipped = c.Executor.MarkSkipped
		o.Backoff = c.Backoff()
	}
}

// GatewayOptions applies session gateway settings.
func (c Config) GatewayOptions() func(o *session.Options) {
	return func(o *session.Options) {
		o.Domains = append([]string(nil), c.Session.Domains...)
	}
}

// BrowserOptions applies browser engine settings.
func (c Config) BrowserOptions() func(o *browser.Options) {
	return func(o *browser.Options) {
		if c.Browser.Headless != nil {
			o.Headless = *c.Browser.Headless
		}
		o.NoSandbox = c.Browser.NoSandbox
		o.ExecPath = c.Browser.ExecPath
		if c.Browser.Timeout > 0 {
			o.Timeout = c.Browser.Timeout
		}
	}
}

// WebOptions applies HTTP engine settings.
func (c Config) WebOptions() func(o *web.Options) {
	return func(o *web.Options) {
		o.BaseURL = c.Web.BaseURL
		if c.Web.UserAgent != "" {
			o.UserAgent = c.Web.UserAgent
		}
		if c.Web.Timeout > 0 {
			o.Timeout = c.Web.Timeout
		}
	}
}

// RunnerOptions applies runner settings.
func (c Config) RunnerOptions() func(o *runner.Options) {
	return func(o *runner.Options) {
		if c.Runner.MaxConcurrency > 0 {
			o.MaxConcurrency = c.Runner.MaxConcurrency
		}
		o.Async = c.Runner.Async
		o.FailFast = c.Runner.FailFast
	}
}
