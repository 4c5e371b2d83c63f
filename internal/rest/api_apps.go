package rest

import (
	"errors"
	"net/http"

	"github.com/apkupdater/apkupdaterd/api"
	"github.com/apkupdater/apkupdaterd/internal/rest/response"
)

// swagger:operation GET /1.0/apps apps apps_get
//
//	Get the installed applications
//
//	Returns the installed applications along with whether they're ignored.
//
//	---
//	produces:
//	  - application/json
//	responses:
//	  "200":
//	    description: List of applications
//	  "503":
//	    $ref: "#/responses/InternalServerError"
func (s *Server) apiApps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		_ = response.NotImplemented(nil).Render(w)

		return
	}

	apps, err := s.manager.Apps(r.Context())
	if err != nil {
		_ = smartError(err).Render(w)

		return
	}

	_ = response.SyncResponse(true, apps).Render(w)
}

// swagger:operation POST /1.0/apps/{name}/:ignore apps apps_post_ignore
//
//	Ignore an application
//
//	Toggles whether updates for the application are looked up at all.
//
//	---
//	produces:
//	  - application/json
//	responses:
//	  "200":
//	    description: New ignore status
func (s *Server) apiAppsIgnore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		_ = response.NotImplemented(nil).Render(w)

		return
	}

	name := r.PathValue("name")
	if name == "" {
		_ = response.BadRequest(errors.New("missing package name")).Render(w)

		return
	}

	ignored, err := s.manager.IgnoreApp(name)
	if err != nil {
		_ = smartError(err).Render(w)

		return
	}

	_ = response.SyncResponse(true, api.IgnoreStatus{Ignored: ignored}).Render(w)
}
