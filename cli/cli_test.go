package cli

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	incusapi "github.com/lxc/incus/v6/shared/api"
	"github.com/stretchr/testify/require"

	"github.com/apkupdater/apkupdaterd/api"
)

// fakeDaemon answers API calls from a fixed set of handlers and records the requests.
type fakeDaemon struct {
	mu       sync.Mutex
	requests []string
	bodies   []string
	polls    int
	states   []api.InstallState
}

func (f *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.RequestURI())

	body, _ := io.ReadAll(r.Body)
	f.bodies = append(f.bodies, strings.TrimSpace(string(body)))

	write := func(code int, metadata any) {
		resp := incusapi.ResponseRaw{Type: incusapi.SyncResponse, Status: "Success", StatusCode: 200, Metadata: metadata}
		if code >= 400 {
			resp = incusapi.ResponseRaw{Type: incusapi.ErrorResponse, Error: "not found", Code: code}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}

	switch {
	case r.URL.Path == "/1.0/updates" || r.URL.Path == "/1.0/updates/:refresh":
		write(http.StatusOK, []api.AppUpdate{{ID: 1, UpdateCandidate: api.UpdateCandidate{PackageName: "a.b.c", VersionName: "2"}}})
	case r.URL.Path == "/1.0/updates/1/:install":
		write(http.StatusAccepted, api.AppUpdateDetail{InstallState: api.InstallStateInstalling})
	case r.URL.Path == "/1.0/updates/1":
		if f.polls >= len(f.states) {
			write(http.StatusNotFound, nil)

			return
		}

		state := f.states[f.polls]
		f.polls++

		write(http.StatusOK, api.AppUpdateDetail{InstallState: state, AppUpdate: api.AppUpdate{ID: 1, Progress: 50}})
	case r.URL.Path == "/1.0/updates/1/:cancel":
		write(http.StatusOK, nil)
	case r.URL.Path == "/1.0/apps/a.b.c/:ignore":
		write(http.StatusOK, api.IgnoreStatus{Ignored: true})
	case r.URL.Path == "/1.0/sources":
		write(http.StatusOK, []api.Source{{ID: api.SourceMirror, Enabled: true}})
	default:
		write(http.StatusNotFound, nil)
	}
}

func runCommand(t *testing.T, daemon *fakeDaemon, args ...string) error {
	t.Helper()

	server := httptest.NewServer(daemon)
	t.Cleanup(server.Close)

	target, err := url.Parse(server.URL)
	require.NoError(t, err)

	cmd := NewCommand(&Args{
		DefaultListFormat: "csv",
		DoHTTP: func(req *http.Request) (*http.Response, error) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host

			return server.Client().Do(req)
		},
	})

	cmd.SetArgs(args)

	return cmd.Execute()
}

func TestUpdatesList(t *testing.T) {
	t.Parallel()

	daemon := &fakeDaemon{}

	require.NoError(t, runCommand(t, daemon, "updates", "list"))
	require.NoError(t, runCommand(t, daemon, "updates", "refresh", "--force"))
	require.Equal(t, []string{"GET /1.0/updates?recursion=1", "POST /1.0/updates/:refresh?force=1"}, daemon.requests)
}

func TestUpdatesInstall(t *testing.T) {
	t.Parallel()

	daemon := &fakeDaemon{states: []api.InstallState{api.InstallStateInstalling, api.InstallStateInstalling}}

	require.NoError(t, runCommand(t, daemon, "updates", "install", "1", "--strategy", "session", "--interval", "1ms"))
	require.Equal(t, "POST /1.0/updates/1/:install", daemon.requests[0])
	require.JSONEq(t, `{"strategy": "session"}`, daemon.bodies[0])
	require.Len(t, daemon.requests, 4)

	daemon = &fakeDaemon{states: []api.InstallState{api.InstallStateInstalling, api.InstallStateFailed}}
	require.Error(t, runCommand(t, daemon, "updates", "install", "1", "--interval", "1ms"))

	daemon = &fakeDaemon{}
	require.Error(t, runCommand(t, daemon, "updates", "install", "1", "--strategy", "magic"))
	require.Empty(t, daemon.requests)

	require.NoError(t, runCommand(t, daemon, "updates", "install", "1", "--no-wait"))
	require.Len(t, daemon.requests, 1)
}

func TestIgnoreAndSources(t *testing.T) {
	t.Parallel()

	daemon := &fakeDaemon{}

	require.NoError(t, runCommand(t, daemon, "apps", "ignore", "a.b.c"))
	require.NoError(t, runCommand(t, daemon, "sources", "list"))
	require.NoError(t, runCommand(t, daemon, "updates", "cancel", "1", "--force"))
	require.Error(t, runCommand(t, daemon, "updates", "ignore"))

	require.Equal(t, []string{
		"POST /1.0/apps/a.b.c/:ignore",
		"GET /1.0/sources",
		"POST /1.0/updates/1/:cancel",
	}, daemon.requests)
}
