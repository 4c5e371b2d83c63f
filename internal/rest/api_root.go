package rest

import (
	"net/http"
	"time"

	"github.com/apkupdater/apkupdaterd/api"
	"github.com/apkupdater/apkupdaterd/internal/rest/response"
)

func (*Server) apiRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		_ = response.NotFound(nil).Render(w)

		return
	}

	_ = response.SyncResponse(true, []string{"/1.0"}).Render(w)
}

// swagger:operation GET /1.0 server server_get
//
//	Get the server environment
//
//	Returns the daemon version, available install strategies and update check status.
//
//	---
//	produces:
//	  - application/json
//	responses:
//	  "200":
//	    description: Server environment
func (s *Server) apiRoot10(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		_ = response.NotImplemented(nil).Render(w)

		return
	}

	check := s.state.LastCheck()

	env := api.ServerEnvironment{
		Version:          s.config.Version,
		Strategies:       s.orchestrator.Strategies(),
		Updates:          len(s.manager.Updates()),
		LastCheck:        check.LastCheck,
		LastCheckUpdates: check.Updates,
	}

	id, ok := s.orchestrator.Active()
	if ok {
		env.Installing = id
	}

	if s.config.NextCheck != nil {
		next, err := s.config.NextCheck()
		if err == nil && !next.IsZero() {
			env.NextCheck = next.Format(time.RFC3339)
		}
	}

	_ = response.SyncResponse(true, map[string]any{"environment": env}).Render(w)
}
