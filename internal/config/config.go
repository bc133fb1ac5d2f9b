// Package config provides configuration management for m3uclean using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides.
// Example: M3UCLEAN_FETCH_TIMEOUT=10s.
const EnvPrefix = "M3UCLEAN"

// Default configuration values.
const (
	defaultFetchTimeout     = 30 * time.Second
	defaultMaxRedirects     = 10
	defaultMaxResponseSize  = "64MiB"
	defaultConcurrency      = 1
	defaultHistoryRetention = 200
	defaultWatchSchedule    = "@every 6h"
)

// Filter modes accepted in configuration.
const (
	ModePreserve = "preserve"
	ModeCompact  = "compact"
)

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Message)
}

// Config holds all configuration for the application.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Filter  FilterConfig  `mapstructure:"filter"`
	Runner  RunnerConfig  `mapstructure:"runner"`
	History HistoryConfig `mapstructure:"history"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Watch   WatchConfig   `mapstructure:"watch"`
	// Jobs are decoded one entry at a time so a malformed job does not
	// invalidate the rest of the file. See JobConfig.Err.
	Jobs []JobConfig `mapstructure:"-"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// FetchConfig holds settings for downloading remote playlists.
type FetchConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRedirects       int           `mapstructure:"max_redirects"`
	UserAgent          string        `mapstructure:"user_agent"` // empty = m3uclean/<version>
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	// MaxResponseSize caps the decompressed body. Zero disables the cap.
	MaxResponseSize ByteSize `mapstructure:"max_response_size"`
	// ValidateHeader rejects remote bodies that do not start with #EXTM3U.
	ValidateHeader bool `mapstructure:"validate_header"`
}

// FilterConfig holds the default line policy applied to every job.
type FilterConfig struct {
	Mode            string `mapstructure:"mode"` // preserve, compact
	SeparateRecords bool   `mapstructure:"separate_records"`
}

// RunnerConfig controls job execution.
type RunnerConfig struct {
	// BaseDir is the directory local paths are resolved against.
	BaseDir string `mapstructure:"base_dir"`
	// StrictPaths rejects local paths that escape BaseDir.
	StrictPaths bool `mapstructure:"strict_paths"`
	Concurrency int  `mapstructure:"concurrency"`
	// FailOnError makes any failed job a non-zero exit.
	FailOnError bool `mapstructure:"fail_on_error"`
}

// HistoryConfig holds run history database configuration.
type HistoryConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Driver    string `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN       string `mapstructure:"dsn"`
	LogLevel  string `mapstructure:"log_level"` // silent, error, warn, info
	Retention int    `mapstructure:"retention"` // runs kept; 0 keeps everything
}

// MetricsConfig holds metrics export configuration.
type MetricsConfig struct {
	// Textfile is written in Prometheus text format after every run.
	Textfile string `mapstructure:"textfile"`
}

// WatchConfig holds settings for the watch command.
type WatchConfig struct {
	Schedule   string `mapstructure:"schedule"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// JobConfig is one source → destination filtering job.
type JobConfig struct {
	Name        string     `mapstructure:"name"`
	Source      string     `mapstructure:"source"`
	Exclude     Exclusions `mapstructure:"exclude"`
	Destination string     `mapstructure:"destination"`
	// Mode and SeparateRecords override the filter section when set.
	Mode            string `mapstructure:"mode"`
	SeparateRecords *bool  `mapstructure:"separate_records"`
	// Encoding is a charset label used to decode the source, e.g. "windows-1251".
	Encoding string `mapstructure:"encoding"`

	// Err is the *ConfigError of an entry that could not be decoded or
	// validated. Running such a job fails it without touching the others.
	Err error `mapstructure:"-"`
}

// EffectiveMode returns the job's mode, falling back to the filter default.
func (j JobConfig) EffectiveMode(defaults FilterConfig) string {
	if j.Mode != "" {
		return j.Mode
	}
	return defaults.Mode
}

// EffectiveSeparateRecords returns the job's record separation setting,
// falling back to the filter default.
func (j JobConfig) EffectiveSeparateRecords(defaults FilterConfig) bool {
	if j.SeparateRecords != nil {
		return *j.SeparateRecords
	}
	return defaults.SeparateRecords
}

// Exclusions is the set of group names to drop. In configuration it may be
// a single string, a list of strings, or absent.
type Exclusions []string

var exclusionsType = reflect.TypeOf(Exclusions{})

// ExclusionsHookFunc decodes a string or a list of strings into Exclusions.
// A single string is never split, since group names may contain commas.
func ExclusionsHookFunc() mapstructure.DecodeHookFuncType {
	return func(_ reflect.Type, t reflect.Type, data any) (any, error) {
		if t != exclusionsType {
			return data, nil
		}

		switch v := data.(type) {
		case nil:
			return Exclusions(nil), nil
		case string:
			return Exclusions{v}, nil
		case []string:
			return Exclusions(v), nil
		case []any:
			out := make(Exclusions, 0, len(v))
			for i, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, &ConfigError{
						Field:   fmt.Sprintf("exclude[%d]", i),
						Message: fmt.Sprintf("expected a string, got %T", item),
					}
				}
				out = append(out, s)
			}
			return out, nil
		default:
			return nil, &ConfigError{
				Field:   "exclude",
				Message: fmt.Sprintf("expected a string or a list of strings, got %T", data),
			}
		}
	}
}

// DecodeHook returns the decode hooks used when unmarshaling configuration.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		ExclusionsHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// New returns a Viper instance with defaults, environment binding and the
// config file read in. An empty configPath searches the default locations;
// a missing file there is not an error.
func New(configPath string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("m3uclean")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/m3uclean")
		v.AddConfigPath("/etc/m3uclean")
	}

	BindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return v, nil
}

// BindEnv enables M3UCLEAN_ prefixed environment overrides on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
func Load(configPath string) (*Config, error) {
	v, err := New(configPath)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes, normalizes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	jobs, err := decodeJobs(v.Get("jobs"))
	if err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Jobs = jobs

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	cfg.validateJobs()

	return &cfg, nil
}

// decodeJobs decodes every entry of the jobs list on its own. An entry that
// fails becomes a JobConfig carrying Err; only a jobs value that is not a
// list at all is returned as an error.
func decodeJobs(raw any) ([]JobConfig, error) {
	var items []any
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		items = v
	case []map[string]any:
		for _, item := range v {
			items = append(items, item)
		}
	default:
		return nil, &ConfigError{Field: "jobs", Message: fmt.Sprintf("expected a list of jobs, got %T", raw)}
	}

	jobs := make([]JobConfig, 0, len(items))
	for i, item := range items {
		var job JobConfig
		if err := decodeJob(item, &job); err != nil {
			fields, _ := item.(map[string]any)
			job = JobConfig{
				Name:        stringField(fields, "name"),
				Source:      stringField(fields, "source"),
				Destination: stringField(fields, "destination"),
				Err:         jobDecodeError(i, err),
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func decodeJob(item any, job *JobConfig) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       DecodeHook(),
		WeaklyTypedInput: true,
		Result:           job,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(item)
}

// jobDecodeError qualifies a decode failure with the job's position.
func jobDecodeError(index int, err error) error {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return &ConfigError{Field: fmt.Sprintf("jobs[%d].%s", index, cfgErr.Field), Message: cfgErr.Message}
	}
	return &ConfigError{Field: fmt.Sprintf("jobs[%d]", index), Message: err.Error()}
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Fetch defaults
	v.SetDefault("fetch.timeout", defaultFetchTimeout)
	v.SetDefault("fetch.max_redirects", defaultMaxRedirects)
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.insecure_skip_verify", false)
	v.SetDefault("fetch.max_response_size", defaultMaxResponseSize)
	v.SetDefault("fetch.validate_header", true)

	// Filter defaults
	v.SetDefault("filter.mode", ModePreserve)
	v.SetDefault("filter.separate_records", false)

	// Runner defaults
	v.SetDefault("runner.base_dir", ".")
	v.SetDefault("runner.strict_paths", false)
	v.SetDefault("runner.concurrency", defaultConcurrency)
	v.SetDefault("runner.fail_on_error", false)

	// History defaults
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.dsn", "m3uclean.db")
	v.SetDefault("history.log_level", "warn")
	v.SetDefault("history.retention", defaultHistoryRetention)

	// Metrics defaults
	v.SetDefault("metrics.textfile", "")

	// Watch defaults
	v.SetDefault("watch.schedule", defaultWatchSchedule)
	v.SetDefault("watch.run_on_start", true)
}

// normalize lower-cases enumerations and names unnamed jobs after their
// destination file.
func (c *Config) normalize() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Filter.Mode = strings.ToLower(strings.TrimSpace(c.Filter.Mode))
	c.History.Driver = strings.ToLower(strings.TrimSpace(c.History.Driver))

	for i := range c.Jobs {
		job := &c.Jobs[i]
		job.Mode = strings.ToLower(strings.TrimSpace(job.Mode))
		job.Name = strings.TrimSpace(job.Name)
		if job.Name == "" {
			job.Name = DefaultJobName(job.Destination, i)
		}
	}
}

// DefaultJobName derives a job name from its destination: the base file
// name without extension, or "job-<n>" when that is empty.
func DefaultJobName(destination string, index int) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(destination), "\\", "/"))
	name := strings.TrimSuffix(base, path.Ext(base))
	if name == "" || name == "." || name == "/" || name == "-" {
		return fmt.Sprintf("job-%d", index+1)
	}
	return name
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Logging validation
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return &ConfigError{Field: "logging.level", Message: "must be one of: trace, debug, info, warn, error"}
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return &ConfigError{Field: "logging.format", Message: "must be one of: json, text"}
	}

	// Fetch validation
	if c.Fetch.Timeout <= 0 {
		return &ConfigError{Field: "fetch.timeout", Message: "must be positive"}
	}
	if c.Fetch.MaxRedirects < 0 {
		return &ConfigError{Field: "fetch.max_redirects", Message: "must not be negative"}
	}
	if c.Fetch.MaxResponseSize < 0 {
		return &ConfigError{Field: "fetch.max_response_size", Message: "must not be negative"}
	}

	// Filter validation
	if !validMode(c.Filter.Mode) {
		return &ConfigError{Field: "filter.mode", Message: "must be one of: preserve, compact"}
	}

	// Runner validation
	if c.Runner.BaseDir == "" {
		return &ConfigError{Field: "runner.base_dir", Message: "is required"}
	}
	if c.Runner.Concurrency < 1 {
		return &ConfigError{Field: "runner.concurrency", Message: "must be at least 1"}
	}

	// History validation
	if c.History.Enabled {
		validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
		if !validDrivers[c.History.Driver] {
			return &ConfigError{Field: "history.driver", Message: "must be one of: sqlite, postgres, mysql"}
		}
		if c.History.DSN == "" {
			return &ConfigError{Field: "history.dsn", Message: "is required"}
		}
	}
	if c.History.Retention < 0 {
		return &ConfigError{Field: "history.retention", Message: "must not be negative"}
	}

	// Watch validation; the cron expression itself is parsed by the scheduler.
	if strings.TrimSpace(c.Watch.Schedule) == "" {
		return &ConfigError{Field: "watch.schedule", Message: "is required"}
	}

	return nil
}

// validateJobs sets Err on every job that fails validation or reuses the
// name of an earlier job. Entries that already failed to decode keep their
// decode error.
func (c *Config) validateJobs() {
	seen := make(map[string]int, len(c.Jobs))
	for i := range c.Jobs {
		job := &c.Jobs[i]
		if job.Err == nil {
			job.Err = job.Validate(i)
		}
		if prev, ok := seen[job.Name]; ok {
			if job.Err == nil {
				job.Err = &ConfigError{
					Field:   fmt.Sprintf("jobs[%d].name", i),
					Message: fmt.Sprintf("duplicate job name %q (also jobs[%d])", job.Name, prev),
				}
			}
			continue
		}
		seen[job.Name] = i
	}
}

// InvalidJobs returns the jobs whose entries could not be decoded or validated.
func (c *Config) InvalidJobs() []JobConfig {
	var out []JobConfig
	for _, job := range c.Jobs {
		if job.Err != nil {
			out = append(out, job)
		}
	}
	return out
}

// Validate checks a single job; index is used in error messages.
func (j JobConfig) Validate(index int) error {
	field := func(name string) string { return fmt.Sprintf("jobs[%d].%s", index, name) }

	if strings.TrimSpace(j.Source) == "" {
		return &ConfigError{Field: field("source"), Message: "is required"}
	}
	if strings.TrimSpace(j.Destination) == "" {
		return &ConfigError{Field: field("destination"), Message: "is required"}
	}
	if j.Mode != "" && !validMode(j.Mode) {
		return &ConfigError{Field: field("mode"), Message: "must be one of: preserve, compact"}
	}
	return nil
}

// Job returns the job with the given name.
func (c *Config) Job(name string) (JobConfig, bool) {
	for _, job := range c.Jobs {
		if job.Name == name {
			return job, true
		}
	}
	return JobConfig{}, false
}

// SelectJobs returns the named jobs in the given order, or every job when
// names is empty. Unknown names are a *ConfigError.
func (c *Config) SelectJobs(names []string) ([]JobConfig, error) {
	if len(names) == 0 {
		return c.Jobs, nil
	}
	out := make([]JobConfig, 0, len(names))
	for _, name := range names {
		job, ok := c.Job(name)
		if !ok {
			return nil, &ConfigError{Field: "jobs", Message: fmt.Sprintf("no job named %q", name)}
		}
		out = append(out, job)
	}
	return out, nil
}

func validMode(mode string) bool {
	return mode == ModePreserve || mode == ModeCompact
}
