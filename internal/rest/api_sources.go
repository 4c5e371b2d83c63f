package rest

import (
	"net/http"

	"github.com/apkupdater/apkupdaterd/internal/rest/response"
)

// swagger:operation GET /1.0/sources sources sources_get
//
//	Get the sources
//
//	Returns the loaded sources, enabled ones first in priority order.
//
//	---
//	produces:
//	  - application/json
//	responses:
//	  "200":
//	    description: List of sources
func (s *Server) apiSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		_ = response.NotImplemented(nil).Render(w)

		return
	}

	_ = response.SyncResponse(true, s.manager.Sources()).Render(w)
}
