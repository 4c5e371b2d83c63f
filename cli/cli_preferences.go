package cli

import (
	cli "github.com/lxc/incus/v6/shared/cmd"
	"github.com/spf13/cobra"
)

// Preferences command.
type cmdPreferences struct {
	root *cmdRoot
}

func (c *cmdPreferences) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = cli.Usage("preferences")
	cmd.Short = "Manage update preferences"
	cmd.Long = cli.FormatSection("Description", "Manage ignore lists, enabled sources and the check schedule")

	// Edit.
	editCmd := cmdGenericEdit{root: c.root, endpoint: "preferences", entity: "preferences"}
	cmd.AddCommand(editCmd.command())

	// Show.
	showCmd := cmdGenericShow{root: c.root, description: "Show the preferences", endpoint: "preferences"}
	cmd.AddCommand(showCmd.command())

	// Workaround for subcommand usage errors. See: https://github.com/spf13/cobra/issues/706.
	cmd.Args = cobra.NoArgs
	cmd.Run = func(cmd *cobra.Command, _ []string) { _ = cmd.Usage() }

	return cmd
}
