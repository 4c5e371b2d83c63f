package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/apkupdater/apkupdaterd/api"
	"github.com/apkupdater/apkupdaterd/internal/rest/response"
)

// swagger:operation GET /1.0/preferences preferences preferences_get
//
//	Get the preferences
//
//	Returns the ignore lists, enabled sources and refresh schedule.
//
//	---
//	produces:
//	  - application/json
//	responses:
//	  "200":
//	    description: Preferences

// swagger:operation PUT /1.0/preferences preferences preferences_put
//
//	Update the preferences
//
//	Replaces the preferences. The order of enabled_sources sets their priority.
//
//	---
//	consumes:
//	  - application/json
//	produces:
//	  - application/json
//	responses:
//	  "200":
//	    $ref: "#/responses/EmptySyncResponse"
//	  "400":
//	    $ref: "#/responses/BadRequest"
//	  "412":
//	    $ref: "#/responses/PreconditionFailed"
func (s *Server) apiPreferences(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		prefs := s.state.GetPreferences()

		_ = response.SyncResponseETag(true, prefs, prefs).Render(w)
	case http.MethodPut:
		err := response.EtagCheck(r, s.state.GetPreferences())
		if err != nil {
			_ = response.PreconditionFailed(err).Render(w)

			return
		}

		prefs := api.Preferences{}

		err = json.NewDecoder(r.Body).Decode(&prefs)
		if err != nil {
			_ = response.BadRequest(err).Render(w)

			return
		}

		err = s.state.SetPreferences(prefs)
		if err != nil {
			_ = smartError(err).Render(w)

			return
		}

		if s.config.OnPreferencesChange != nil {
			err = s.config.OnPreferencesChange(r.Context(), s.state.GetPreferences())
			if err != nil {
				slog.ErrorContext(r.Context(), "Failed to apply new preferences", "err", err)
			}
		}

		_ = response.EmptySyncResponse.Render(w)
	default:
		// If none of the supported methods, return NotImplemented.
		_ = response.NotImplemented(nil).Render(w)
	}
}
