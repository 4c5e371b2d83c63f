package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/apkupdater/apkupdaterd/api"
	"github.com/apkupdater/apkupdaterd/internal/install"
	"github.com/apkupdater/apkupdaterd/internal/state"
	"github.com/apkupdater/apkupdaterd/internal/updates"
)

// Config holds what the REST API server exposes.
type Config struct {
	Version      string
	SocketPath   string
	State        *state.State
	Manager      *updates.Manager
	Orchestrator *install.Orchestrator

	// Metrics is served under /metrics when set.
	Metrics http.Handler

	// NextCheck reports when the next scheduled check runs.
	NextCheck func() (time.Time, error)

	// OnPreferencesChange is called after new preferences were saved.
	OnPreferencesChange func(ctx context.Context, prefs api.Preferences) error
}

// Server holds the internal state of the REST API server.
type Server struct {
	config Config
	state  *state.State

	manager      *updates.Manager
	orchestrator *install.Orchestrator
}

// NewServer returns a REST API server object.
func NewServer(_ context.Context, config Config) (*Server, error) {
	// Define the struct.
	server := Server{
		config:       config,
		state:        config.State,
		manager:      config.Manager,
		orchestrator: config.Orchestrator,
	}

	// Create runtime path if missing.
	if config.SocketPath != "" {
		err := os.MkdirAll(filepath.Dir(config.SocketPath), 0o700)
		if err != nil {
			return nil, err
		}
	}

	return &server, nil
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	router := http.NewServeMux()

	router.HandleFunc("/", s.apiRoot)
	router.HandleFunc("/1.0", s.apiRoot10)
	router.HandleFunc("/1.0/apps", s.apiApps)
	router.HandleFunc("/1.0/apps/{name}/:ignore", s.apiAppsIgnore)
	router.HandleFunc("/1.0/preferences", s.apiPreferences)
	router.HandleFunc("/1.0/sources", s.apiSources)
	router.HandleFunc("/1.0/updates", s.apiUpdates)
	router.HandleFunc("/1.0/updates/:refresh", s.apiUpdatesRefresh)
	router.HandleFunc("/1.0/updates/{id}", s.apiUpdatesEndpoint)
	router.HandleFunc("/1.0/updates/{id}/:cancel", s.apiUpdatesCancel)
	router.HandleFunc("/1.0/updates/{id}/:ignore", s.apiUpdatesIgnore)
	router.HandleFunc("/1.0/updates/{id}/:install", s.apiUpdatesInstall)

	if s.config.Metrics != nil {
		router.Handle("/metrics", s.config.Metrics)
	}

	return router
}

// Serve starts the REST API server and stops it when the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	// Setup listener.
	_ = os.Remove(s.config.SocketPath)
	lc := &net.ListenConfig{}

	listener, err := lc.Listen(ctx, "unix", s.config.SocketPath)
	if err != nil {
		return err
	}

	// Setup server.
	server := &http.Server{
		Handler: s.Handler(),

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	err = server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// getAPIRoot returns the root of the versioned API.
func getAPIRoot(_ *http.Request) string {
	return "/1.0"
}
