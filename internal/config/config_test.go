package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Fetch: FetchConfig{
			Timeout:         30 * time.Second,
			MaxRedirects:    10,
			MaxResponseSize: 64 << 20,
			ValidateHeader:  true,
		},
		Filter:  FilterConfig{Mode: ModePreserve},
		Runner:  RunnerConfig{BaseDir: ".", Concurrency: 1},
		History: HistoryConfig{Driver: "sqlite", DSN: "test.db", Retention: 10},
		Watch:   WatchConfig{Schedule: "@every 6h"},
		Jobs: []JobConfig{
			{Name: "rtv", Source: "https://example.com/list.m3u", Destination: "rtv.m3u", Exclude: Exclusions{"Adult"}},
		},
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "m3uclean.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))
	return configPath
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, time.RFC3339, cfg.Logging.TimeFormat)

	// Fetch defaults
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 10, cfg.Fetch.MaxRedirects)
	assert.Equal(t, ByteSize(64*1024*1024), cfg.Fetch.MaxResponseSize)
	assert.True(t, cfg.Fetch.ValidateHeader)
	assert.False(t, cfg.Fetch.InsecureSkipVerify)

	// Filter and runner defaults
	assert.Equal(t, ModePreserve, cfg.Filter.Mode)
	assert.False(t, cfg.Filter.SeparateRecords)
	assert.Equal(t, ".", cfg.Runner.BaseDir)
	assert.Equal(t, 1, cfg.Runner.Concurrency)
	assert.False(t, cfg.Runner.FailOnError)

	// History defaults
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, "sqlite", cfg.History.Driver)
	assert.Equal(t, "m3uclean.db", cfg.History.DSN)
	assert.Equal(t, 200, cfg.History.Retention)

	// Watch defaults
	assert.Equal(t, "@every 6h", cfg.Watch.Schedule)
	assert.True(t, cfg.Watch.RunOnStart)

	assert.Empty(t, cfg.Jobs)
}

func TestLoad_FromFile(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: "DEBUG"
  format: "json"

fetch:
  timeout: 5s
  max_redirects: 3
  max_response_size: 1MiB

filter:
  mode: compact

runner:
  base_dir: /srv/playlists
  concurrency: 4

jobs:
  - name: rtv
    source: "https://example.com/list.m3u?raw=1"
    exclude: "LOVE 🔞"
    destination: "R$_TV.m3u"
  - source: "local.m3u"
    exclude: ["Adult", "Shopping, Deals"]
    destination: "out/clean.m3u"
    mode: preserve
    separate_records: true
    encoding: windows-1251
  - source: "other.m3u"
    destination: "other.m3u"
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 3, cfg.Fetch.MaxRedirects)
	assert.Equal(t, ByteSize(1024*1024), cfg.Fetch.MaxResponseSize)
	assert.Equal(t, ModeCompact, cfg.Filter.Mode)
	assert.Equal(t, "/srv/playlists", cfg.Runner.BaseDir)
	assert.Equal(t, 4, cfg.Runner.Concurrency)

	require.Len(t, cfg.Jobs, 3)

	rtv := cfg.Jobs[0]
	assert.Equal(t, "rtv", rtv.Name)
	assert.Equal(t, "https://example.com/list.m3u?raw=1", rtv.Source)
	assert.Equal(t, Exclusions{"LOVE 🔞"}, rtv.Exclude)
	assert.Equal(t, "R$_TV.m3u", rtv.Destination)
	assert.Equal(t, ModeCompact, rtv.EffectiveMode(cfg.Filter))
	assert.False(t, rtv.EffectiveSeparateRecords(cfg.Filter))

	local := cfg.Jobs[1]
	assert.Equal(t, "clean", local.Name)
	assert.Equal(t, Exclusions{"Adult", "Shopping, Deals"}, local.Exclude)
	assert.Equal(t, ModePreserve, local.EffectiveMode(cfg.Filter))
	assert.True(t, local.EffectiveSeparateRecords(cfg.Filter))
	assert.Equal(t, "windows-1251", local.Encoding)

	other := cfg.Jobs[2]
	assert.Equal(t, "other", other.Name)
	assert.Empty(t, other.Exclude)
}

func TestLoad_InvalidJobIsIsolated(t *testing.T) {
	configPath := writeConfig(t, `
jobs:
  - name: good
    source: good.m3u
    destination: good-clean.m3u
    exclude: Adult
  - name: broken
    source: broken.m3u
    destination: broken-clean.m3u
    exclude: 42
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.Len(t, cfg.Jobs, 2)

	good := cfg.Jobs[0]
	assert.NoError(t, good.Err)
	assert.Equal(t, Exclusions{"Adult"}, good.Exclude)

	broken := cfg.Jobs[1]
	assert.Equal(t, "broken", broken.Name)
	assert.Equal(t, "broken.m3u", broken.Source)
	assert.Equal(t, "broken-clean.m3u", broken.Destination)

	var cfgErr *ConfigError
	require.ErrorAs(t, broken.Err, &cfgErr)
	assert.True(t, strings.HasPrefix(cfgErr.Field, "jobs[1]"), "field %q", cfgErr.Field)

	invalid := cfg.InvalidJobs()
	require.Len(t, invalid, 1)
	assert.Equal(t, "broken", invalid[0].Name)
}

func TestLoad_InvalidJobShapes(t *testing.T) {
	tests := []struct {
		name    string
		job     string
		message string
	}{
		{"exclude mapping", "exclude:\n      group: adult", "exclude"},
		{"exclude list item", "exclude: [adult, 42]", "exclude[1]"},
		{"missing source", "source: \"\"", "jobs[0].source"},
		{"bad mode", "mode: squash", "jobs[0].mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := "source: a.m3u\n    destination: b.m3u\n    " + tt.job
			if strings.HasPrefix(tt.job, "source:") {
				body = "destination: b.m3u\n    " + tt.job
			}
			configPath := writeConfig(t, "jobs:\n  - "+body+"\n")

			cfg, err := Load(configPath)
			require.NoError(t, err)
			require.Len(t, cfg.Jobs, 1)
			require.Error(t, cfg.Jobs[0].Err)
			assert.Contains(t, cfg.Jobs[0].Err.Error(), tt.message)
		})
	}
}

func TestLoad_DuplicateJobName(t *testing.T) {
	configPath := writeConfig(t, `
jobs:
  - name: tv
    source: a.m3u
    destination: a-clean.m3u
  - name: tv
    source: b.m3u
    destination: b-clean.m3u
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.Len(t, cfg.Jobs, 2)
	assert.NoError(t, cfg.Jobs[0].Err)

	var cfgErr *ConfigError
	require.ErrorAs(t, cfg.Jobs[1].Err, &cfgErr)
	assert.Equal(t, "jobs[1].name", cfgErr.Field)
}

func TestLoad_JobsNotAList(t *testing.T) {
	configPath := writeConfig(t, "jobs: everything\n")

	_, err := Load(configPath)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "jobs", cfgErr.Field)
}

func TestLoad_TopLevelErrorsStayFatal(t *testing.T) {
	configPath := writeConfig(t, `
filter:
  mode: squash
jobs:
  - source: a.m3u
    destination: b.m3u
`)

	_, err := Load(configPath)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "filter.mode", cfgErr.Field)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("M3UCLEAN_FETCH_TIMEOUT", "10s")
	t.Setenv("M3UCLEAN_LOGGING_LEVEL", "warn")
	t.Setenv("M3UCLEAN_RUNNER_CONCURRENCY", "3")
	t.Setenv("M3UCLEAN_FETCH_MAX_RESPONSE_SIZE", "2MiB")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Runner.Concurrency)
	assert.Equal(t, ByteSize(2*1024*1024), cfg.Fetch.MaxResponseSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	configPath := writeConfig(t, `
runner:
  concurrency: 2
filter:
  mode: compact
`)
	t.Setenv("M3UCLEAN_RUNNER_CONCURRENCY", "8")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Runner.Concurrency)
	assert.Equal(t, ModeCompact, cfg.Filter.Mode)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "jobs: [\n")
	_, err := Load(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validTestConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"timeout", func(c *Config) { c.Fetch.Timeout = 0 }, "fetch.timeout"},
		{"redirects", func(c *Config) { c.Fetch.MaxRedirects = -1 }, "fetch.max_redirects"},
		{"filter mode", func(c *Config) { c.Filter.Mode = "squash" }, "filter.mode"},
		{"base dir", func(c *Config) { c.Runner.BaseDir = "" }, "runner.base_dir"},
		{"concurrency", func(c *Config) { c.Runner.Concurrency = 0 }, "runner.concurrency"},
		{"history driver", func(c *Config) { c.History.Enabled = true; c.History.Driver = "oracle" }, "history.driver"},
		{"history dsn", func(c *Config) { c.History.Enabled = true; c.History.DSN = "" }, "history.dsn"},
		{"history retention", func(c *Config) { c.History.Retention = -1 }, "history.retention"},
		{"watch schedule", func(c *Config) { c.Watch.Schedule = " " }, "watch.schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestJobConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(j *JobConfig)
		field  string
	}{
		{"source", func(j *JobConfig) { j.Source = "" }, "jobs[3].source"},
		{"destination", func(j *JobConfig) { j.Destination = " " }, "jobs[3].destination"},
		{"mode", func(j *JobConfig) { j.Mode = "squash" }, "jobs[3].mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := validTestConfig().Jobs[0]
			tt.mutate(&job)

			var cfgErr *ConfigError
			require.ErrorAs(t, job.Validate(3), &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	assert.NoError(t, validTestConfig().Jobs[0].Validate(0))
}

func TestValidate_JobsDoNotFailConfig(t *testing.T) {
	cfg := validTestConfig()
	cfg.Jobs[0].Source = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidate_HistoryDriverIgnoredWhenDisabled(t *testing.T) {
	cfg := validTestConfig()
	cfg.History.Driver = "oracle"
	assert.NoError(t, cfg.Validate())
}

func TestDefaultJobName(t *testing.T) {
	tests := []struct {
		destination string
		expected    string
	}{
		{"R$_TV.m3u", "R$_TV"},
		{"out/clean.m3u8", "clean"},
		{`C:\lists\win.m3u`, "win"},
		{"-", "job-3"},
		{"", "job-3"},
	}

	for _, tt := range tests {
		t.Run(tt.destination, func(t *testing.T) {
			assert.Equal(t, tt.expected, DefaultJobName(tt.destination, 2))
		})
	}
}

func TestSelectJobs(t *testing.T) {
	cfg := validTestConfig()
	cfg.Jobs = append(cfg.Jobs, JobConfig{Name: "second", Source: "a", Destination: "b"})

	all, err := cfg.SelectJobs(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	picked, err := cfg.SelectJobs([]string{"second"})
	require.NoError(t, err)
	require.Len(t, picked, 1)
	assert.Equal(t, "second", picked[0].Name)

	_, err = cfg.SelectJobs([]string{"missing"})
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Message, "missing")
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{Field: "filter.mode", Message: "must be one of: preserve, compact"}
	assert.Equal(t, "invalid config filter.mode: must be one of: preserve, compact", err.Error())
}
