package cli

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	incusapi "github.com/lxc/incus/v6/shared/api"
	cli "github.com/lxc/incus/v6/shared/cmd"
	"github.com/spf13/cobra"

	"github.com/apkupdater/apkupdaterd/api"
)

// Updates command.
type cmdUpdates struct {
	root *cmdRoot
}

func (c *cmdUpdates) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = cli.Usage("updates")
	cmd.Short = "Manage available updates"
	cmd.Long = cli.FormatSection("Description", "Manage available updates")

	// Cancel.
	cancelCmd := cmdGenericRun{
		root:        c.root,
		action:      "cancel",
		description: "Cancel the install of an update",
		endpoint:    "updates",
		entity:      "id",
		confirm:     "cancel the install",
	}
	cmd.AddCommand(cancelCmd.command())

	// Ignore.
	ignoreCmd := cmdGenericRun{
		root:        c.root,
		action:      "ignore",
		description: "Toggle whether an update is ignored",
		endpoint:    "updates",
		entity:      "id",
		result:      printIgnoreStatus("Update"),
	}
	cmd.AddCommand(ignoreCmd.command())

	// Install.
	installCmd := cmdUpdatesInstall{root: c.root}
	cmd.AddCommand(installCmd.command())

	// List.
	listCmd := cmdUpdatesList{root: c.root}
	cmd.AddCommand(listCmd.command())

	// Refresh.
	refreshCmd := cmdUpdatesRefresh{root: c.root}
	cmd.AddCommand(refreshCmd.command())

	// Show.
	showCmd := cmdGenericShow{root: c.root, description: "Show update details", endpoint: "updates", entity: "id"}
	cmd.AddCommand(showCmd.command())

	// Workaround for subcommand usage errors. See: https://github.com/spf13/cobra/issues/706.
	cmd.Args = cobra.NoArgs
	cmd.Run = func(cmd *cobra.Command, _ []string) { _ = cmd.Usage() }

	return cmd
}

// renderUpdates prints the updates as a table.
func renderUpdates(format string, updates []api.AppUpdate) error {
	data := [][]string{}

	for _, update := range updates {
		status := ""
		if update.IsInstalling {
			status = fmt.Sprintf("installing (%d%%)", update.Progress)
		}

		data = append(data, []string{
			strconv.FormatInt(update.ID, 10),
			update.Name,
			update.PackageName,
			update.OldVersionName + " -> " + update.VersionName,
			update.Source.String(),
			status,
		})
	}

	header := []string{
		"ID",
		"NAME",
		"PACKAGE",
		"VERSION",
		"SOURCE",
		"STATUS",
	}

	return cli.RenderTable(os.Stdout, format, header, data, updates)
}

// List.
type cmdUpdatesList struct {
	root *cmdRoot

	flagFormat string
}

func (c *cmdUpdatesList) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = cli.Usage("list")
	cmd.Aliases = []string{"ls"}
	cmd.Short = "List available updates"
	cmd.Long = cli.FormatSection("Description", "List available updates, as found by the last check")
	cmd.Flags().StringVarP(&c.flagFormat, "format", "f", c.root.args.DefaultListFormat, "Format (csv|json|table|yaml|compact|markdown), use suffix \",noheader\" to disable headers and \",header\" to enable it if missing, e.g. csv,header``")

	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		return cli.ValidateFlagFormatForListOutput(cmd.Flag("format").Value.String())
	}

	cmd.RunE = c.run

	return cmd
}

func (c *cmdUpdatesList) run(cmd *cobra.Command, args []string) error {
	// Quick checks.
	exit, err := cli.CheckArgs(cmd, args, 0, 0)
	if exit {
		return err
	}

	resp, _, err := doQuery(c.root.args.DoHTTP, "GET", "/1.0/updates?recursion=1", nil, "")
	if err != nil {
		return err
	}

	updates := []api.AppUpdate{}

	err = resp.MetadataAsStruct(&updates)
	if err != nil {
		return err
	}

	return renderUpdates(c.flagFormat, updates)
}

// Refresh.
type cmdUpdatesRefresh struct {
	root *cmdRoot

	flagFormat string
	flagForce  bool
}

func (c *cmdUpdatesRefresh) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = cli.Usage("refresh")
	cmd.Short = "Check for updates"
	cmd.Long = cli.FormatSection("Description", "Query every enabled source for updates and list them")
	cmd.Flags().StringVarP(&c.flagFormat, "format", "f", c.root.args.DefaultListFormat, "Format (csv|json|table|yaml|compact|markdown)``")
	cmd.Flags().BoolVar(&c.flagForce, "force", false, "Drop cached catalogs before checking")

	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		return cli.ValidateFlagFormatForListOutput(cmd.Flag("format").Value.String())
	}

	cmd.RunE = c.run

	return cmd
}

func (c *cmdUpdatesRefresh) run(cmd *cobra.Command, args []string) error {
	// Quick checks.
	exit, err := cli.CheckArgs(cmd, args, 0, 0)
	if exit {
		return err
	}

	apiURL := "/1.0/updates/:refresh"
	if c.flagForce {
		apiURL += "?force=1"
	}

	resp, _, err := doQuery(c.root.args.DoHTTP, "POST", apiURL, nil, "")
	if err != nil {
		return err
	}

	updates := []api.AppUpdate{}

	err = resp.MetadataAsStruct(&updates)
	if err != nil {
		return err
	}

	return renderUpdates(c.flagFormat, updates)
}

// Install.
type cmdUpdatesInstall struct {
	root *cmdRoot

	flagStrategy string
	flagNoWait   bool
	flagInterval time.Duration
}

func (c *cmdUpdatesInstall) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = cli.Usage("install", "<id>")
	cmd.Short = "Install an update"
	cmd.Long = cli.FormatSection("Description", `Download and install an update

By default, the command waits for the install to complete.`)
	cmd.Flags().StringVarP(&c.flagStrategy, "strategy", "s", string(api.InstallStrategyAuto), "Install strategy (auto|elevated|session)``")
	cmd.Flags().BoolVar(&c.flagNoWait, "no-wait", false, "Return as soon as the install started")
	cmd.Flags().DurationVar(&c.flagInterval, "interval", time.Second, "How often to poll for progress``")

	cmd.RunE = c.run

	return cmd
}

func (c *cmdUpdatesInstall) run(cmd *cobra.Command, args []string) error {
	// Quick checks.
	exit, err := cli.CheckArgs(cmd, args, 1, 1)
	if exit {
		return err
	}

	var strategy api.InstallStrategy

	err = strategy.UnmarshalText([]byte(c.flagStrategy))
	if err != nil {
		return err
	}

	apiURL := "/1.0/updates/" + args[0]

	_, _, err = doQuery(c.root.args.DoHTTP, "POST", apiURL+"/:install", api.UpdateInstallPost{Strategy: strategy}, "")
	if err != nil {
		return err
	}

	if c.flagNoWait {
		return nil
	}

	lastProgress := -1

	for {
		time.Sleep(c.flagInterval)

		resp, _, err := doQuery(c.root.args.DoHTTP, "GET", apiURL, nil, "")
		if err != nil {
			// Installed updates leave the list.
			if incusapi.StatusErrorCheck(err, http.StatusNotFound) {
				_, _ = fmt.Println("Update installed") //nolint:forbidigo

				return nil
			}

			return err
		}

		detail := api.AppUpdateDetail{}

		err = resp.MetadataAsStruct(&detail)
		if err != nil {
			return err
		}

		switch detail.InstallState {
		case api.InstallStateFailed:
			return errors.New("install failed, check the daemon logs")
		case api.InstallStateCancelled:
			return errors.New("install cancelled")
		case api.InstallStateCompleted:
			_, _ = fmt.Println("Update installed") //nolint:forbidigo

			return nil
		default:
		}

		if detail.Progress != lastProgress {
			lastProgress = detail.Progress

			_, _ = fmt.Printf("Downloading %s: %d%%\n", detail.PackageName, detail.Progress) //nolint:forbidigo
		}
	}
}

// printIgnoreStatus reports the result of an ignore toggle.
func printIgnoreStatus(entity string) func(resp *incusapi.Response, resource string) error {
	return func(resp *incusapi.Response, resource string) error {
		status := api.IgnoreStatus{}

		err := resp.MetadataAsStruct(&status)
		if err != nil {
			return err
		}

		if status.Ignored {
			_, _ = fmt.Printf("%s %s is now ignored\n", entity, resource) //nolint:forbidigo
		} else {
			_, _ = fmt.Printf("%s %s is no longer ignored\n", entity, resource) //nolint:forbidigo
		}

		return nil
	}
}
