package cmd

import (
	"fmt"
	"log/slog"

	"github.com/jmylchreest/m3uclean/internal/storage"
	"github.com/jmylchreest/m3uclean/pkg/format"
	"github.com/jmylchreest/m3uclean/pkg/m3u"
	"github.com/spf13/cobra"
)

var filterCmd = &cobra.Command{
	Use:   "filter [source]",
	Short: "Filter a single playlist without a job definition",
	Long: `Filter one playlist given on the command line.

The source may be an http(s) URL, a file:// URL, a local path, or - for
stdin (the default). Groups passed with --exclude are matched
case-insensitively after trimming. The result is written to --output,
which defaults to stdout.

Examples:
  m3uclean filter https://example.com/list.m3u -x "Adult" -x "Shopping" -o clean.m3u
  curl -s https://example.com/list.m3u | m3uclean filter -x news`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFilter,
}

func init() {
	rootCmd.AddCommand(filterCmd)

	filterCmd.Flags().StringArrayP("exclude", "x", nil, "group-title to drop (repeatable)")
	filterCmd.Flags().StringP("output", "o", storage.StdioIdentifier, "destination path, or - for stdout")
	filterCmd.Flags().String("mode", "", "line policy: preserve or compact (default from config)")
	filterCmd.Flags().Bool("separate", false, "emit a blank line after every record")
	filterCmd.Flags().Bool("require-header", false, "reject input that does not start with #EXTM3U")
	filterCmd.Flags().String("encoding", "", "source charset label, e.g. windows-1251")
	filterCmd.Flags().Bool("quiet", false, "do not print statistics")
}

func runFilter(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	identifier := storage.StdioIdentifier
	if len(args) == 1 {
		identifier = args[0]
	}

	flags := cmd.Flags()
	excludes, _ := flags.GetStringArray("exclude")
	output, _ := flags.GetString("output")
	encoding, _ := flags.GetString("encoding")
	requireHeader, _ := flags.GetBool("require-header")
	quiet, _ := flags.GetBool("quiet")

	modeName := cfg.Filter.Mode
	if flags.Changed("mode") {
		modeName, _ = flags.GetString("mode")
	}
	mode, err := m3u.ParseMode(modeName)
	if err != nil {
		return err
	}
	separate := cfg.Filter.SeparateRecords
	if flags.Changed("separate") {
		separate, _ = flags.GetBool("separate")
	}

	ctx, cancel := signalContext(commandContext(cmd), slog.Default())
	defer cancel()

	a, err := newApp(ctx, cmd, cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	doc, err := a.resolver.WithEncoding(encoding).Read(ctx, identifier)
	if err != nil {
		return err
	}

	text, stats, err := m3u.Filter(doc.Text, m3u.NewExclusionSet(excludes...), m3u.Options{
		Mode:            mode,
		SeparateRecords: separate,
		RequireHeader:   requireHeader,
	})
	if err != nil {
		return fmt.Errorf("filtering %s: %w", doc.Identifier, err)
	}

	written, err := a.workspace.Write(ctx, output, text)
	if err != nil {
		return err
	}

	if !quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "removed %s of %s records, fixed %s lines, wrote %s\n",
			format.Count(stats.Removed),
			format.Count(stats.Records),
			format.Count(stats.Fixed),
			format.Bytes(written),
		)
	}
	return nil
}
