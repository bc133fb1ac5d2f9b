package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/jmylchreest/m3uclean/internal/storage"
	"github.com/jmylchreest/m3uclean/pkg/format"
	"github.com/jmylchreest/m3uclean/pkg/m3u"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// noGroupLabel is shown for records without a group-title attribute.
const noGroupLabel = "(none)"

var groupsCmd = &cobra.Command{
	Use:   "groups [source]",
	Short: "List the group-title values of a playlist",
	Long: `List every group-title found in a playlist with its record count, in
the order the groups first appear. Use it to pick values for exclude.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGroups,
}

func init() {
	rootCmd.AddCommand(groupsCmd)

	groupsCmd.Flags().String("encoding", "", "source charset label, e.g. windows-1251")
	groupsCmd.Flags().String("output", "table", "output format: table or yaml")
}

func runGroups(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	identifier := storage.StdioIdentifier
	if len(args) == 1 {
		identifier = args[0]
	}
	encoding, _ := cmd.Flags().GetString("encoding")
	output, _ := cmd.Flags().GetString("output")
	if output != "table" && output != "yaml" {
		return fmt.Errorf("unknown output format %q (expected table or yaml)", output)
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
	groups := m3u.Groups(doc.Text)

	w := cmd.OutOrStdout()
	if output == "yaml" {
		data, err := yaml.Marshal(groups)
		if err != nil {
			return fmt.Errorf("marshaling groups: %w", err)
		}
		_, err = w.Write(data)
		return err
	}

	total := 0
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tRECORDS\tSHARE")
	for _, g := range groups {
		total += g.Records
	}
	for _, g := range groups {
		name := g.Group
		if name == "" {
			name = noGroupLabel
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, format.Count(g.Records), format.Percentage(g.Records, total))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\n%s groups, %s records\n", format.Count(len(groups)), format.Count(total))
	return err
}
