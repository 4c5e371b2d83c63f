package cli

import (
	"os"
	"strconv"

	cli "github.com/lxc/incus/v6/shared/cmd"
	"github.com/spf13/cobra"

	"github.com/apkupdater/apkupdaterd/api"
)

// Apps command.
type cmdApps struct {
	root *cmdRoot
}

func (c *cmdApps) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = cli.Usage("apps")
	cmd.Short = "Manage installed applications"
	cmd.Long = cli.FormatSection("Description", "Manage installed applications")

	// Ignore.
	ignoreCmd := cmdGenericRun{
		root:        c.root,
		action:      "ignore",
		description: "Toggle whether an application is checked for updates",
		endpoint:    "apps",
		entity:      "package",
		result:      printIgnoreStatus("Application"),
	}
	cmd.AddCommand(ignoreCmd.command())

	// List.
	listCmd := cmdAppsList{root: c.root}
	cmd.AddCommand(listCmd.command())

	// Workaround for subcommand usage errors. See: https://github.com/spf13/cobra/issues/706.
	cmd.Args = cobra.NoArgs
	cmd.Run = func(cmd *cobra.Command, _ []string) { _ = cmd.Usage() }

	return cmd
}

// List.
type cmdAppsList struct {
	root *cmdRoot

	flagFormat string
}

func (c *cmdAppsList) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = cli.Usage("list")
	cmd.Aliases = []string{"ls"}
	cmd.Short = "List installed applications"
	cmd.Long = cli.FormatSection("Description", "List installed applications")
	cmd.Flags().StringVarP(&c.flagFormat, "format", "f", c.root.args.DefaultListFormat, "Format (csv|json|table|yaml|compact|markdown), use suffix \",noheader\" to disable headers and \",header\" to enable it if missing, e.g. csv,header``")

	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		return cli.ValidateFlagFormatForListOutput(cmd.Flag("format").Value.String())
	}

	cmd.RunE = c.run

	return cmd
}

func (c *cmdAppsList) run(cmd *cobra.Command, args []string) error {
	// Quick checks.
	exit, err := cli.CheckArgs(cmd, args, 0, 0)
	if exit {
		return err
	}

	resp, _, err := doQuery(c.root.args.DoHTTP, "GET", "/1.0/apps", nil, "")
	if err != nil {
		return err
	}

	apps := []api.App{}

	err = resp.MetadataAsStruct(&apps)
	if err != nil {
		return err
	}

	data := [][]string{}

	for _, app := range apps {
		data = append(data, []string{
			app.Name,
			app.PackageName,
			app.VersionName,
			strconv.FormatInt(app.VersionCode, 10),
			strconv.FormatBool(app.Ignored),
		})
	}

	header := []string{
		"NAME",
		"PACKAGE",
		"VERSION",
		"VERSION CODE",
		"IGNORED",
	}

	return cli.RenderTable(os.Stdout, c.flagFormat, header, data, apps)
}
