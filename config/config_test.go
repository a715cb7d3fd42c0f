package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/enginebridge/backoff"
	"github.com/hupe1980/enginebridge/engine"
	"github.com/hupe1980/enginebridge/engines/browser"
	"github.com/hupe1980/enginebridge/engines/web"
	"github.com/hupe1980/enginebridge/runner"
	"github.com/hupe1980/enginebridge/session"
	"github.com/hupe1980/enginebridge/store"
	"github.com/hupe1980/enginebridge/store/sqlite"
)

const fullYAML = `
log:
  level: debug
  format: text
executor:
  event_buffer_size: 16
  mark_skipped: true
backoff:
  strategy: exponential
  initial: 200ms
  max: 2s
store:
  driver: memory
session:
  domains: [example.com]
browser:
  headless: false
  no_sandbox: true
  timeout: 20s
web:
  base_url: https://shop.example.com
  user_agent: test-agent
runner:
  max_concurrency: 2
  fail_fast: true
`

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 16, cfg.Executor.EventBufferSize)
	assert.True(t, cfg.Executor.MarkSkipped)
	assert.Equal(t, 200*time.Millisecond, cfg.Backoff.Initial)
	assert.Equal(t, 2*time.Second, cfg.Backoff.Max)
	assert.Equal(t, []string{"example.com"}, cfg.Session.Domains)
	require.NotNil(t, cfg.Browser.Headless)
	assert.False(t, *cfg.Browser.Headless)
	assert.Equal(t, "https://shop.example.com", cfg.Web.BaseURL)
	// unset fields keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Web.Timeout)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "nope: 1"},
		{"format", "log: {format: xml}"},
		{"strategy", "backoff: {strategy: fibonacci}"},
		{"negative backoff", "backoff: {initial: -1s}"},
		{"driver", "store: {driver: mongo}"},
		{"sqlite without path", "store: {driver: sqlite}"},
		{"buffer", "executor: {event_buffer_size: -1}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
		})
	}

	_, err := Parse([]byte("store: {driver: mongo}"))
	require.ErrorIs(t, err, ErrInvalid)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enginebridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backoff: {strategy: linear, initial: 1s, max: 5s}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StrategyLinear, cfg.Backoff.Strategy)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestConfig_Backoff(t *testing.T) {
	cfg := Default()
	assert.IsType(t, &backoff.Constant{}, cfg.Backoff())
	assert.Equal(t, time.Second, cfg.Backoff().Delay(3))

	cfg.Backoff.Strategy = StrategyLinear
	assert.IsType(t, &backoff.Linear{}, cfg.Backoff())

	cfg.Backoff.Strategy = StrategyExponential
	assert.IsType(t, &backoff.Exponential{}, cfg.Backoff())

	cfg.Backoff.Strategy = StrategyJitter
	assert.IsType(t, &backoff.ExponentialWithJitter{}, cfg.Backoff())
}

func TestConfig_LoggerTo(t *testing.T) {
	cfg, err := Parse([]byte("log: {level: warn}"))
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := cfg.LoggerTo(&buf)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestConfig_OpenStore(t *testing.T) {
	cfg := Default()
	s, closeFn, err := cfg.OpenStore()
	require.NoError(t, err)
	assert.IsType(t, &store.InMemoryStore{}, s)
	require.NoError(t, closeFn())

	cfg.Store.Driver = DriverNone
	s, closeFn, err = cfg.OpenStore()
	require.NoError(t, err)
	assert.Nil(t, s)
	require.NoError(t, closeFn())

	cfg.Store = StoreConfig{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "runs.db")}
	s, closeFn, err = cfg.OpenStore()
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, s)
	require.NoError(t, closeFn())
}

func TestConfig_Options(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	require.NoError(t, err)

	var eo engine.Options
	cfg.ExecutorOptions()(&eo)
	assert.Equal(t, 16, eo.Config.EventBufferSize)
	assert.True(t, eo.Config.MarkSkipped)
	assert.Equal(t, 400*time.Millisecond, eo.Backoff.Delay(2))

	var so session.Options
	cfg.GatewayOptions()(&so)
	assert.Equal(t, []string{"example.com"}, so.Domains)

	bo := browser.Options{Headless: true, Timeout: time.Minute}
	cfg.BrowserOptions()(&bo)
	assert.False(t, bo.Headless)
	assert.True(t, bo.NoSandbox)
	assert.Equal(t, 20*time.Second, bo.Timeout)

	wo := web.Options{UserAgent: web.DefaultUserAgent}
	cfg.WebOptions()(&wo)
	assert.Equal(t, "https://shop.example.com", wo.BaseURL)
	assert.Equal(t, "test-agent", wo.UserAgent)
	assert.Equal(t, 30*time.Second, wo.Timeout)

	var ro runner.Options
	cfg.RunnerOptions()(&ro)
	assert.Equal(t, 2, ro.MaxConcurrency)
	assert.True(t, ro.FailFast)
	assert.False(t, ro.Async)
}
