// Package main is used for the apkupdaterd daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/apkupdater/apkupdaterd/api"
	"github.com/apkupdater/apkupdaterd/internal/config"
	"github.com/apkupdater/apkupdaterd/internal/download"
	"github.com/apkupdater/apkupdaterd/internal/install"
	"github.com/apkupdater/apkupdaterd/internal/inventory"
	"github.com/apkupdater/apkupdaterd/internal/metrics"
	"github.com/apkupdater/apkupdaterd/internal/notify"
	"github.com/apkupdater/apkupdaterd/internal/providers"
	"github.com/apkupdater/apkupdaterd/internal/rest"
	"github.com/apkupdater/apkupdaterd/internal/scheduling"
	"github.com/apkupdater/apkupdaterd/internal/state"
	"github.com/apkupdater/apkupdaterd/internal/updates"
)

var version = "dev"

const checkJob = scheduling.JobName("update-check")

type cmdDaemon struct {
	flagConfig string
}

func main() {
	// Prepare a logger.
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	daemon := cmdDaemon{}

	app := &cobra.Command{}
	app.Use = "apkupdaterd"
	app.Short = "Application update daemon"
	app.Version = version
	app.SilenceUsage = true
	app.SilenceErrors = true
	app.Args = cobra.NoArgs
	app.Flags().StringVarP(&daemon.flagConfig, "config", "c", "/etc/apkupdaterd/config.yaml", "Path to the configuration file``")
	app.RunE = daemon.run

	err := app.Execute()
	if err != nil {
		slog.Error(err.Error())

		// Sleep for a second to allow output buffers to flush.
		time.Sleep(1 * time.Second)

		os.Exit(1)
	}
}

func (c *cmdDaemon) run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.flagConfig)
	if err != nil {
		return err
	}

	level, err := cfg.Level()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, unix.SIGTERM)
	defer stop()

	return runDaemon(ctx, cfg)
}

func runDaemon(ctx context.Context, cfg *config.Config) error {
	if unix.Geteuid() != 0 {
		slog.InfoContext(ctx, "Not running as root, elevated installs go through the configured command")
	}

	// Create storage paths if missing.
	for _, path := range []string{filepath.Dir(cfg.StatePath), cfg.DownloadPath} {
		err := os.MkdirAll(path, 0o700)
		if err != nil {
			return err
		}
	}

	// Get persistent state.
	s, err := state.LoadOrCreate(cfg.StatePath)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Starting up", "version", version, "state", cfg.StatePath)

	m := metrics.New()

	// Load the sources.
	client := providers.NewClient(providers.ClientConfig{
		UserAgent:         cfg.HTTP.UserAgent,
		RetryMax:          cfg.HTTP.RetryMax,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Timeout:           cfg.HTTP.Timeout,
	})

	sources, err := providers.LoadAll(ctx, api.DefaultSourceOrder, cfg.SourceConfigs(), client)
	if err != nil {
		return err
	}

	// Get the inventory.
	var inv updates.Inventory

	switch cfg.Inventory.Type {
	case "file":
		inv = &inventory.File{Path: cfg.Inventory.Path}
	default:
		inv = inventory.NewPackageManager()
	}

	// Prepare the installers.
	installers := []install.Installer{}

	if cfg.Install.Strategy != api.InstallStrategySession {
		installers = append(installers, install.NewElevated(cfg.Install.Elevated.Command, cfg.Install.Elevated.Args))
	}

	if cfg.Install.Strategy != api.InstallStrategyElevated {
		installers = append(installers, &install.SessionInstaller{Backend: install.NewPMBackend(cfg.Install.Session.InstallerPackage)})
	}

	orchestrator := install.NewOrchestrator(installers...)

	// Prepare the notifiers.
	notifiers := notify.Multi{notify.Log{}}

	webhook := notify.NewWebhook(cfg.Notify.Webhooks, cfg.Notify.WebhookTimeout)
	if webhook != nil {
		defer webhook.Close()

		notifiers = append(notifiers, webhook)
	}

	manager := updates.NewManager(updates.Config{
		Inventory:   inv,
		Preferences: s,
		Sources:     sources,
		Aggregator: updates.NewAggregator(updates.AggregatorConfig{
			Concurrency:   cfg.Aggregation.Concurrency,
			LookupTimeout: cfg.Aggregation.LookupTimeout,
		}, m),
		Downloader:   download.NewManager(cfg.DownloadPath, client.HTTPClient(), client.UserAgent()),
		Orchestrator: orchestrator,
		Notifier:     notifiers,
		Recorder:     m,
	})

	// Schedule the periodic check.
	scheduler, err := scheduling.NewScheduler()
	if err != nil {
		return err
	}

	schedule := func(_ context.Context, prefs api.Preferences) error {
		mirror := slices.Contains(prefs.EnabledSources, api.SourceMirror)
		start := scheduling.NextStart(time.Now(), prefs.RefreshHour, scheduling.Jitter(mirror))

		err := scheduler.RegisterJob(checkJob, scheduling.Schedule{
			Every:   time.Duration(prefs.RefreshFrequencyDays) * 24 * time.Hour,
			StartAt: start,
		}, manager.RunScheduledCheck)
		if err != nil {
			return fmt.Errorf("unable to schedule update checks: %w", err)
		}

		slog.InfoContext(ctx, "Scheduled update checks", "every_days", prefs.RefreshFrequencyDays, "next", start)

		return nil
	}

	err = schedule(ctx, s.GetPreferences())
	if err != nil {
		return err
	}

	scheduler.Start()

	defer func() { _ = scheduler.Shutdown() }()

	// Start the API.
	server, err := rest.NewServer(ctx, rest.Config{
		Version:             version,
		SocketPath:          cfg.SocketPath,
		State:               s,
		Manager:             manager,
		Orchestrator:        orchestrator,
		Metrics:             m.Handler(),
		NextCheck:           func() (time.Time, error) { return scheduler.NextRun(checkJob) },
		OnPreferencesChange: schedule,
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Serving API", "socket", cfg.SocketPath)

	err = server.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	slog.InfoContext(ctx, "Shutting down")

	return s.Save()
}
