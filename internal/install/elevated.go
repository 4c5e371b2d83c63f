package install

import (
	"context"
	"os/exec"
	"strings"

	"github.com/lxc/incus/v6/shared/subprocess"

	"github.com/apkupdater/apkupdaterd/api"
)

// Elevated installs through a privileged command, "su -c 'pm install -r {path}'" by default.
//
// The "{path}" and "{package}" placeholders are replaced in every argument.
type Elevated struct {
	Command string
	Args    []string
}

// NewElevated returns an elevated installer, falling back to su and pm for empty values.
func NewElevated(command string, args []string) *Elevated {
	if command == "" {
		command = "su"
	}

	if len(args) == 0 {
		args = []string{"-c", "pm install -r '{path}'"}
	}

	return &Elevated{Command: command, Args: args}
}

// Name returns the strategy implemented.
func (*Elevated) Name() api.InstallStrategy {
	return api.InstallStrategyElevated
}

// CheckPermission checks that the privileged command can be found.
func (e *Elevated) CheckPermission(_ context.Context) error {
	_, err := exec.LookPath(e.Command)
	if err != nil {
		return &RejectedError{Strategy: e.Name(), Reason: err.Error()}
	}

	return nil
}

// Install runs the privileged command and interprets its output.
func (e *Elevated) Install(ctx context.Context, packageName string, path string) error {
	replacer := strings.NewReplacer("{path}", path, "{package}", packageName)

	args := make([]string, 0, len(e.Args))
	for _, arg := range e.Args {
		args = append(args, replacer.Replace(arg))
	}

	output, err := subprocess.RunCommandContext(ctx, e.Command, args...)
	if ctx.Err() != nil {
		return ErrInstallCancelled
	}

	return resultError(output, err)
}
