package cli

import (
	cli "github.com/lxc/incus/v6/shared/cmd"
	"github.com/spf13/cobra"
)

// Root command.
type cmdRoot struct {
	args *Args
}

func (c *cmdRoot) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "apkupdater"
	cmd.Short = "Manage application updates"
	cmd.Long = cli.FormatSection("Description", "Check for, ignore and install application updates")
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	// Apps.
	appsCmd := cmdApps{root: c}
	cmd.AddCommand(appsCmd.command())

	// Preferences.
	preferencesCmd := cmdPreferences{root: c}
	cmd.AddCommand(preferencesCmd.command())

	// Show.
	showCmd := cmdGenericShow{root: c, name: "status", description: "Show the daemon status"}
	cmd.AddCommand(showCmd.command())

	// Sources.
	sourcesCmd := cmdSources{root: c}
	cmd.AddCommand(sourcesCmd.command())

	// Updates.
	updatesCmd := cmdUpdates{root: c}
	cmd.AddCommand(updatesCmd.command())

	// Workaround for subcommand usage errors. See: https://github.com/spf13/cobra/issues/706.
	cmd.Args = cobra.NoArgs
	cmd.Run = func(cmd *cobra.Command, _ []string) { _ = cmd.Usage() }

	return cmd
}
