package api

import (
	"fmt"
)

// InstallState represents the state of an install request for a single update.
type InstallState string

const (
	// InstallStateIdle means no installation was requested.
	InstallStateIdle InstallState = "idle"

	// InstallStateInstalling means the artifact is being downloaded or installed.
	InstallStateInstalling InstallState = "installing"

	// InstallStateCompleted means the installation succeeded.
	InstallStateCompleted InstallState = "completed"

	// InstallStateCancelled means the user or the system cancelled the installation.
	InstallStateCancelled InstallState = "cancelled"

	// InstallStateFailed means the installation failed.
	InstallStateFailed InstallState = "failed"
)

// IsTerminal returns whether no further transition is expected.
func (s InstallState) IsTerminal() bool {
	return s == InstallStateCompleted || s == InstallStateCancelled || s == InstallStateFailed
}

// InstallStrategy selects how a downloaded artifact gets installed.
type InstallStrategy string

const (
	// InstallStrategyAuto picks the elevated strategy when permitted, the session one otherwise.
	InstallStrategyAuto InstallStrategy = "auto"

	// InstallStrategyElevated runs a privileged install command.
	InstallStrategyElevated InstallStrategy = "elevated"

	// InstallStrategySession uses an OS-mediated install session.
	InstallStrategySession InstallStrategy = "session"
)

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (s *InstallStrategy) UnmarshalText(text []byte) error {
	switch InstallStrategy(text) {
	case "":
		*s = InstallStrategyAuto
	case InstallStrategyAuto, InstallStrategyElevated, InstallStrategySession:
		*s = InstallStrategy(text)
	default:
		return fmt.Errorf("unknown install strategy %q", string(text))
	}

	return nil
}

// UpdateInstallPost is the body of an install request.
type UpdateInstallPost struct {
	Strategy InstallStrategy `json:"strategy" yaml:"strategy"`
}
