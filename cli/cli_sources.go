package cli

import (
	"os"
	"strconv"

	cli "github.com/lxc/incus/v6/shared/cmd"
	"github.com/spf13/cobra"

	"github.com/apkupdater/apkupdaterd/api"
)

// Sources command.
type cmdSources struct {
	root *cmdRoot
}

func (c *cmdSources) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = cli.Usage("sources")
	cmd.Short = "Show update sources"
	cmd.Long = cli.FormatSection("Description", `Show update sources

Sources are enabled and ordered through the preferences.`)

	// List.
	listCmd := cmdSourcesList{root: c.root}
	cmd.AddCommand(listCmd.command())

	// Workaround for subcommand usage errors. See: https://github.com/spf13/cobra/issues/706.
	cmd.Args = cobra.NoArgs
	cmd.Run = func(cmd *cobra.Command, _ []string) { _ = cmd.Usage() }

	return cmd
}

// List.
type cmdSourcesList struct {
	root *cmdRoot

	flagFormat string
}

func (c *cmdSourcesList) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = cli.Usage("list")
	cmd.Aliases = []string{"ls"}
	cmd.Short = "List update sources"
	cmd.Long = cli.FormatSection("Description", "List update sources, enabled ones in priority order")
	cmd.Flags().StringVarP(&c.flagFormat, "format", "f", c.root.args.DefaultListFormat, "Format (csv|json|table|yaml|compact|markdown), use suffix \",noheader\" to disable headers and \",header\" to enable it if missing, e.g. csv,header``")

	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		return cli.ValidateFlagFormatForListOutput(cmd.Flag("format").Value.String())
	}

	cmd.RunE = c.run

	return cmd
}

func (c *cmdSourcesList) run(cmd *cobra.Command, args []string) error {
	// Quick checks.
	exit, err := cli.CheckArgs(cmd, args, 0, 0)
	if exit {
		return err
	}

	resp, _, err := doQuery(c.root.args.DoHTTP, "GET", "/1.0/sources", nil, "")
	if err != nil {
		return err
	}

	sources := []api.Source{}

	err = resp.MetadataAsStruct(&sources)
	if err != nil {
		return err
	}

	data := [][]string{}

	for _, source := range sources {
		priority := ""
		if source.Enabled {
			priority = strconv.Itoa(source.Priority + 1)
		}

		data = append(data, []string{
			source.ID.String(),
			strconv.FormatBool(source.Enabled),
			priority,
		})
	}

	header := []string{
		"SOURCE",
		"ENABLED",
		"PRIORITY",
	}

	return cli.RenderTable(os.Stdout, c.flagFormat, header, data, sources)
}
