package install

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/apkupdater/apkupdaterd/api"
)

// Orchestrator drives installs, making sure at most one is active at any time.
type Orchestrator struct {
	installers map[api.InstallStrategy]Installer

	mu        sync.Mutex
	states    map[int64]api.InstallState
	active    int64
	hasActive bool
	gen       uint64
	installer Installer
	cancel    context.CancelFunc
}

// NewOrchestrator returns an orchestrator using the provided installers.
func NewOrchestrator(installers ...Installer) *Orchestrator {
	o := &Orchestrator{
		installers: map[api.InstallStrategy]Installer{},
		states:     map[int64]api.InstallState{},
	}

	for _, installer := range installers {
		o.installers[installer.Name()] = installer
	}

	return o
}

// Strategies returns the strategies that have an installer.
func (o *Orchestrator) Strategies() []api.InstallStrategy {
	strategies := []api.InstallStrategy{api.InstallStrategyAuto}

	for _, strategy := range []api.InstallStrategy{api.InstallStrategyElevated, api.InstallStrategySession} {
		_, ok := o.installers[strategy]
		if ok {
			strategies = append(strategies, strategy)
		}
	}

	return strategies
}

// resolve picks the installer for the strategy and checks it may be used.
// The auto strategy prefers elevated installs, falling back to sessions.
func (o *Orchestrator) resolve(ctx context.Context, strategy api.InstallStrategy) (Installer, error) {
	if strategy == "" || strategy == api.InstallStrategyAuto {
		var rejection error

		for _, candidate := range []api.InstallStrategy{api.InstallStrategyElevated, api.InstallStrategySession} {
			installer, ok := o.installers[candidate]
			if !ok {
				continue
			}

			err := installer.CheckPermission(ctx)
			if err == nil {
				return installer, nil
			}

			rejection = err
		}

		if rejection == nil {
			rejection = &RejectedError{Strategy: api.InstallStrategyAuto, Reason: "no installer configured"}
		}

		return nil, rejection
	}

	installer, ok := o.installers[strategy]
	if !ok {
		return nil, &RejectedError{Strategy: strategy, Reason: "strategy not available"}
	}

	err := installer.CheckPermission(ctx)
	if err != nil {
		return nil, err
	}

	return installer, nil
}

// Start claims the install slot for the update and checks the strategy's permission.
//
// The returned context is cancelled by Cancel and must be used for the download and Run.
// On rejection the slot is released and the update stays idle.
func (o *Orchestrator) Start(ctx context.Context, id int64, strategy api.InstallStrategy) (context.Context, error) {
	o.mu.Lock()

	if o.hasActive {
		o.mu.Unlock()

		return nil, ErrInstallInProgress
	}

	o.hasActive = true
	o.active = id
	o.gen++
	gen := o.gen

	o.mu.Unlock()

	installer, err := o.resolve(ctx, strategy)

	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		o.release(gen)
		o.states[id] = api.InstallStateIdle

		var rejected *RejectedError
		if !errors.As(err, &rejected) {
			err = &RejectedError{Strategy: strategy, Reason: err.Error()}
		}

		return nil, err
	}

	opCtx, cancel := context.WithCancel(ctx)

	o.installer = installer
	o.cancel = cancel
	o.states[id] = api.InstallStateInstalling

	slog.InfoContext(ctx, "Starting install", "id", id, "strategy", installer.Name())

	return opCtx, nil
}

// Run hands the artifact to the installer chosen by Start and records the outcome.
//
// A successful install keeps the slot until Finish is called. Failures and cancellations release it.
func (o *Orchestrator) Run(ctx context.Context, id int64, packageName string, path string) error {
	o.mu.Lock()

	if !o.hasActive || o.active != id || o.states[id] != api.InstallStateInstalling {
		o.mu.Unlock()

		return ErrNotInstalling
	}

	installer := o.installer
	gen := o.gen

	o.mu.Unlock()

	err := installer.Install(ctx, packageName, path)
	if err == nil && ctx.Err() != nil {
		err = ErrInstallCancelled
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	// The slot was already given up, typically through Cancel.
	if o.gen != gen || !o.hasActive {
		if err == nil {
			return ErrInstallCancelled
		}

		return err
	}

	switch {
	case err == nil:
		o.states[id] = api.InstallStateCompleted

		slog.InfoContext(ctx, "Install completed", "id", id, "package", packageName)
	case errors.Is(err, ErrInstallCancelled):
		o.states[id] = api.InstallStateCancelled
		o.release(gen)
	default:
		o.states[id] = api.InstallStateFailed
		o.release(gen)

		slog.ErrorContext(ctx, "Install failed", "id", id, "package", packageName, "err", err)

		if !errors.Is(err, ErrInstallFailed) {
			err = &FailedError{Reason: "UNKNOWN", Err: err}
		}
	}

	return err
}

// Fail marks the active install as failed, for errors happening outside of Run (downloads).
func (o *Orchestrator) Fail(id int64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.hasActive || o.active != id {
		return
	}

	slog.Error("Install failed", "id", id, "err", err)

	o.states[id] = api.InstallStateFailed
	o.release(o.gen)
}

// Cancel aborts the active install of the update. It returns false if it wasn't installing.
func (o *Orchestrator) Cancel(id int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.hasActive || o.active != id || o.states[id] != api.InstallStateInstalling {
		return false
	}

	o.states[id] = api.InstallStateCancelled
	o.release(o.gen)

	return true
}

// Finish forgets about the update, releasing the slot if it holds it.
func (o *Orchestrator) Finish(id int64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.hasActive && o.active == id {
		o.release(o.gen)
	}

	delete(o.states, id)
}

// State returns the install state of the update.
func (o *Orchestrator) State(id int64) api.InstallState {
	o.mu.Lock()
	defer o.mu.Unlock()

	state, ok := o.states[id]
	if !ok {
		return api.InstallStateIdle
	}

	return state
}

// Active returns the update currently holding the install slot, if any.
func (o *Orchestrator) Active() (int64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.active, o.hasActive
}

// release frees the slot if it's still held by the given generation. Must be called with mu held.
func (o *Orchestrator) release(gen uint64) {
	if !o.hasActive || o.gen != gen {
		return
	}

	if o.cancel != nil {
		o.cancel()
	}

	o.hasActive = false
	o.active = 0
	o.installer = nil
	o.cancel = nil
}
