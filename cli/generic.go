package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/lxc/incus/v6/shared/api"
	"github.com/lxc/incus/v6/shared/ask"
	cli "github.com/lxc/incus/v6/shared/cmd"
	"github.com/lxc/incus/v6/shared/termios"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Edit.
type cmdGenericEdit struct {
	endpoint string
	entity   string

	root *cmdRoot
}

func (c *cmdGenericEdit) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = cli.Usage("edit")
	cmd.Short = "Edit " + c.entity
	cmd.Long = cli.FormatSection("Description", "Edit "+c.entity)
	cmd.Example = cli.FormatSection("", `apkupdater `+c.endpoint+` edit < `+c.endpoint+`.yaml
    Update the `+c.entity+` using the content of `+c.endpoint+`.yaml.`)

	cmd.RunE = c.run

	return cmd
}

func (c *cmdGenericEdit) run(cmd *cobra.Command, args []string) error {
	// Quick checks.
	exit, err := cli.CheckArgs(cmd, args, 0, 0)
	if exit {
		return err
	}

	apiURL := "/1.0/" + c.endpoint

	// If stdin isn't a terminal, read text from it
	if !termios.IsTerminal(getStdinFd()) {
		var newdata any

		err = yaml.NewDecoder(os.Stdin).Decode(&newdata)
		if err != nil {
			return err
		}

		_, _, err = doQuery(c.root.args.DoHTTP, "PUT", apiURL, newdata, "")

		return err
	}

	// Extract the current value
	resp, etag, err := doQuery(c.root.args.DoHTTP, "GET", apiURL, nil, "")
	if err != nil {
		return err
	}

	var rawData any

	err = resp.MetadataAsStruct(&rawData)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(rawData)
	if err != nil {
		return err
	}

	// Spawn the editor
	content, err := cli.TextEditor("", data)
	if err != nil {
		return err
	}

	for {
		// Parse the text received from the editor
		var newdata any

		err = yaml.Unmarshal(content, &newdata)
		if err == nil {
			_, _, err = doQuery(c.root.args.DoHTTP, "PUT", apiURL, newdata, etag)
		}

		// Respawn the editor
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Config parsing error: %s\n", err)
			_, _ = fmt.Println("Press enter to open the editor again or ctrl+c to abort change") //nolint:forbidigo

			_, err := os.Stdin.Read(make([]byte, 1))
			if err != nil {
				return err
			}

			content, err = cli.TextEditor("", content)
			if err != nil {
				return err
			}

			continue
		}

		break
	}

	return nil
}

// Run.
type cmdGenericRun struct {
	action      string
	name        string
	description string
	endpoint    string
	entity      string
	confirm     string

	// result, if set, reports the response to the user.
	result func(resp *api.Response, resource string) error

	root *cmdRoot

	flagForce bool
}

func (c *cmdGenericRun) command() *cobra.Command {
	cmd := &cobra.Command{}

	usage := ""
	if c.entity != "" {
		usage = "<" + c.entity + ">"
	}

	if c.name == "" {
		c.name = c.action
	}

	cmd.Use = cli.Usage(c.name, usage)
	cmd.Short = c.description
	cmd.Long = cli.FormatSection("Description", c.description)

	if c.confirm != "" {
		cmd.Flags().BoolVar(&c.flagForce, "force", false, "Don't ask for confirmation")
	}

	cmd.RunE = c.run

	return cmd
}

func (c *cmdGenericRun) run(cmd *cobra.Command, args []string) error {
	// Quick checks.
	minArgs := 0
	maxArgs := 0

	if c.entity != "" {
		minArgs++
		maxArgs++
	}

	exit, err := cli.CheckArgs(cmd, args, minArgs, maxArgs)
	if exit {
		return err
	}

	resource := ""
	if len(args) > 0 {
		resource = args[0]
	}

	if c.entity != "" && resource == "" {
		return errors.New("missing " + c.entity)
	}

	// Ask for confirmation if needed.
	if c.confirm != "" && !c.flagForce {
		asker := ask.NewAsker(bufio.NewReader(os.Stdin))

		confirm, err := asker.AskBool(fmt.Sprintf("Are you sure you want to %s? (yes/no) [default=no]: ", c.confirm), "no")
		if err != nil {
			return err
		}

		if !confirm {
			return nil
		}
	}

	apiURL := "/1.0/" + c.endpoint

	if c.entity != "" {
		apiURL += "/" + resource
	}

	apiURL += "/:" + c.action

	// Run the command.
	resp, _, err := doQuery(c.root.args.DoHTTP, "POST", apiURL, nil, "")
	if err != nil {
		return err
	}

	if c.result == nil {
		return nil
	}

	return c.result(resp, resource)
}

// Show.
type cmdGenericShow struct {
	root *cmdRoot

	name        string
	description string
	endpoint    string
	entity      string
}

func (c *cmdGenericShow) command() *cobra.Command {
	if c.name == "" {
		c.name = "show"
	}

	usage := ""
	if c.entity != "" {
		usage = "<" + c.entity + ">"
	}

	cmd := &cobra.Command{}
	cmd.Use = cli.Usage(c.name, usage)
	cmd.Short = c.description
	cmd.Long = cli.FormatSection("Description", c.description)

	cmd.RunE = c.run

	return cmd
}

func (c *cmdGenericShow) run(cmd *cobra.Command, args []string) error {
	// Quick checks.
	minArgs := 0
	maxArgs := 0

	if c.entity != "" {
		minArgs = 1
		maxArgs = 1
	}

	exit, err := cli.CheckArgs(cmd, args, minArgs, maxArgs)
	if exit {
		return err
	}

	apiURL := "/1.0"

	if c.endpoint != "" {
		apiURL += "/" + c.endpoint
	}

	if len(args) > 0 {
		apiURL += "/" + args[0]
	}

	resp, _, err := doQuery(c.root.args.DoHTTP, "GET", apiURL, nil, "")
	if err != nil {
		return err
	}

	var rawData any

	err = resp.MetadataAsStruct(&rawData)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(rawData)
	if err != nil {
		return err
	}

	_, _ = fmt.Printf("%s", data) //nolint:forbidigo

	return nil
}
