package cmd

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/m3uclean/internal/config"
	"github.com/jmylchreest/m3uclean/internal/scheduler"
	"github.com/jmylchreest/m3uclean/internal/urlutil"
	"github.com/jmylchreest/m3uclean/pkg/format"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing m3uclean configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format, followed by one
example job.

You can redirect this output to a file to create a configuration template:

  m3uclean config dump > m3uclean.yaml

Configuration can be set via:
  - Config file (./m3uclean.yaml, $HOME/.config/m3uclean/m3uclean.yaml, /etc/m3uclean/m3uclean.yaml)
  - Environment variables (M3UCLEAN_FETCH_TIMEOUT, M3UCLEAN_RUNNER_BASE_DIR, etc.)
  - Command-line flags (for some options)

Environment variables use the M3UCLEAN_ prefix and underscores for nesting.
Example: fetch.timeout -> M3UCLEAN_FETCH_TIMEOUT`,
	RunE: runConfigDump,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long:  `Load the configuration, check every job and the watch schedule, and list the jobs that would run.`,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
	configCmd.AddCommand(configValidateCmd)
}

// exampleJob is appended to the dumped defaults as a starting point.
var exampleJob = config.JobConfig{
	Name:        "tv",
	Source:      "https://provider.example/get.php?username=USER&password=PASS&type=m3u_plus",
	Exclude:     config.Exclusions{"Adult", "Shopping", "Radio"},
	Destination: "tv.m3u",
}

// toMap converts a struct to a map, formatting durations and sizes for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "-" {
			continue
		}
		if key == "" {
			key = fieldType.Name
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = v.String()
		case config.ByteSize:
			result[key] = v.String()
		case config.Exclusions:
			result[key] = []string(v)
		default:
			switch field.Kind() {
			case reflect.Struct:
				result[key] = toMap(field.Interface())
			case reflect.Ptr:
				// Unset overrides are left out so the section default applies.
				if !field.IsNil() {
					result[key] = field.Elem().Interface()
				}
			case reflect.Slice:
				if field.Type().Elem().Kind() == reflect.Struct {
					items := make([]map[string]any, 0, field.Len())
					for j := 0; j < field.Len(); j++ {
						items = append(items, toMap(field.Index(j).Interface()))
					}
					result[key] = items
				} else {
					result[key] = field.Interface()
				}
			default:
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, _ []string) error {
	// Defaults only; the config file and environment are ignored.
	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	dump := toMap(cfg)
	dump["jobs"] = []map[string]any{toMap(exampleJob)}

	yamlData, err := yaml.Marshal(dump)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	w := cmd.OutOrStdout()
	writeDumpHeader(w)
	_, err = w.Write(yamlData)
	return err
}

func writeDumpHeader(w io.Writer) {
	fmt.Fprintln(w, "# m3uclean Configuration File")
	fmt.Fprintln(w, "# ============================")
	fmt.Fprintln(w, "#")
	fmt.Fprintln(w, "# All values shown below are defaults; the job is an example.")
	fmt.Fprintln(w, "# Duration format: 30s, 5m, 1h")
	fmt.Fprintln(w, "# Size format: 64MiB, 10MB")
	fmt.Fprintln(w, "# Schedule format: cron (0 */6 * * *) or descriptor (@every 6h, @daily)")
	fmt.Fprintln(w, "#")
	fmt.Fprintln(w, "# Each job reads source (URL, path or -), drops every #EXTINF record whose")
	fmt.Fprintln(w, "# group-title matches exclude (case-insensitive), and writes destination.")
	fmt.Fprintln(w, "# mode, separate_records and encoding may also be set per job.")
	fmt.Fprintln(w, "#")
	fmt.Fprintln(w, "# Environment variable overrides:")
	fmt.Fprintln(w, "#   M3UCLEAN_LOGGING_LEVEL, M3UCLEAN_LOGGING_FORMAT")
	fmt.Fprintln(w, "#   M3UCLEAN_FETCH_TIMEOUT, M3UCLEAN_FETCH_USER_AGENT")
	fmt.Fprintln(w, "#   M3UCLEAN_RUNNER_BASE_DIR, M3UCLEAN_HISTORY_DSN")
	fmt.Fprintln(w, "#   etc.")
	fmt.Fprintln(w, "#")
	fmt.Fprintln(w, "")
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := scheduler.ValidateSchedule(cfg.Watch.Schedule); err != nil {
		return fmt.Errorf("invalid config watch.schedule: %w", err)
	}

	w := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(w, "config file: %s\n", used)
	} else {
		fmt.Fprintln(w, "config file: none (defaults and environment only)")
	}
	fmt.Fprintf(w, "watch schedule: %s\n", format.ScheduleDescription(cfg.Watch.Schedule))
	fmt.Fprintf(w, "%s jobs:\n", format.Count(len(cfg.Jobs)))
	for _, job := range cfg.Jobs {
		if job.Err != nil {
			fmt.Fprintf(w, "  %s: invalid: %v\n", job.Name, job.Err)
			continue
		}
		fmt.Fprintf(w, "  %s: %s -> %s (%s excluded groups, mode %s)\n",
			job.Name,
			urlutil.Redact(job.Source),
			job.Destination,
			format.Count(len(job.Exclude)),
			job.EffectiveMode(cfg.Filter),
		)
	}
	if invalid := cfg.InvalidJobs(); len(invalid) > 0 {
		errs := make([]error, 0, len(invalid))
		for _, job := range invalid {
			errs = append(errs, job.Err)
		}
		return fmt.Errorf("%d of %d jobs are invalid: %w", len(invalid), len(cfg.Jobs), errors.Join(errs...))
	}
	return nil
}
