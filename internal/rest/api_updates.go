package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/apkupdater/apkupdaterd/api"
	"github.com/apkupdater/apkupdaterd/internal/rest/response"
)

// updateID parses the {id} path value.
func updateID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, errors.New("invalid update id")
	}

	return id, nil
}

func updateURL(r *http.Request, id int64) string {
	endpoint, _ := url.JoinPath(getAPIRoot(r), "updates", strconv.FormatInt(id, 10))

	return endpoint
}

// swagger:operation GET /1.0/updates updates updates_get
//
//	Get the available updates
//
//	Returns the list of available updates (URLs), or the updates themselves with recursion=1.
//
//	---
//	produces:
//	  - application/json
//	responses:
//	  "200":
//	    description: List of updates
func (s *Server) apiUpdates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		_ = response.NotImplemented(nil).Render(w)

		return
	}

	list := s.manager.Updates()

	if r.URL.Query().Get("recursion") == "1" {
		_ = response.SyncResponse(true, list).Render(w)

		return
	}

	urls := make([]string, 0, len(list))
	for _, update := range list {
		urls = append(urls, updateURL(r, update.ID))
	}

	_ = response.SyncResponse(true, urls).Render(w)
}

// swagger:operation POST /1.0/updates/:refresh updates updates_post_refresh
//
//	Check for updates
//
//	Queries every enabled source and returns the new list of updates. With force=1, the
//	catalogs cached by the sources are dropped first.
//
//	---
//	produces:
//	  - application/json
//	responses:
//	  "200":
//	    description: List of updates
//	  "503":
//	    $ref: "#/responses/InternalServerError"
func (s *Server) apiUpdatesRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		_ = response.NotImplemented(nil).Render(w)

		return
	}

	if r.URL.Query().Get("force") == "1" {
		err := s.manager.ClearCaches(r.Context())
		if err != nil {
			slog.WarnContext(r.Context(), "Failed to clear source caches", "err", err)
		}
	}

	list, err := s.manager.Refresh(r.Context())
	if err != nil {
		_ = smartError(err).Render(w)

		return
	}

	err = s.state.RecordCheck(time.Now(), len(list))
	if err != nil {
		slog.WarnContext(r.Context(), "Failed to record update check", "err", err)
	}

	_ = response.SyncResponse(true, list).Render(w)
}

// swagger:operation GET /1.0/updates/{id} updates updates_get_update
//
//	Get an update
//
//	Returns a single update along with its install state.
//
//	---
//	produces:
//	  - application/json
//	responses:
//	  "200":
//	    description: The update
//	  "404":
//	    $ref: "#/responses/NotFound"
func (s *Server) apiUpdatesEndpoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		_ = response.NotImplemented(nil).Render(w)

		return
	}

	id, err := updateID(r)
	if err != nil {
		_ = response.BadRequest(err).Render(w)

		return
	}

	update, err := s.manager.Update(id)
	if err != nil {
		_ = smartError(err).Render(w)

		return
	}

	_ = response.SyncResponse(true, api.AppUpdateDetail{AppUpdate: update, InstallState: s.manager.InstallState(id)}).Render(w)
}

// swagger:operation POST /1.0/updates/{id}/:install updates updates_post_install
//
//	Install an update
//
//	Starts downloading and installing the update in the background. Poll the update to follow
//	the progress, it disappears from the list once installed.
//
//	---
//	consumes:
//	  - application/json
//	produces:
//	  - application/json
//	parameters:
//	  - in: body
//	    name: install
//	    description: Install strategy
//	    required: false
//	    schema:
//	      type: object
//	      example: {"strategy": "auto"}
//	responses:
//	  "202":
//	    description: Install started
//	  "404":
//	    $ref: "#/responses/NotFound"
//	  "409":
//	    $ref: "#/responses/Conflict"
//	  "412":
//	    $ref: "#/responses/PreconditionFailed"
func (s *Server) apiUpdatesInstall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		_ = response.NotImplemented(nil).Render(w)

		return
	}

	id, err := updateID(r)
	if err != nil {
		_ = response.BadRequest(err).Render(w)

		return
	}

	req := &api.UpdateInstallPost{Strategy: api.InstallStrategyAuto}

	counter := &countWrapper{ReadCloser: r.Body}

	err = json.NewDecoder(counter).Decode(req)
	if err != nil && counter.n > 0 {
		_ = response.BadRequest(err).Render(w)

		return
	}

	// The install outlives the request.
	ctx := context.WithoutCancel(r.Context())

	done, err := s.manager.Install(ctx, id, req.Strategy)
	if err != nil {
		_ = smartError(err).Render(w)

		return
	}

	go func() {
		err := <-done
		if err != nil {
			slog.WarnContext(ctx, "Update install didn't complete", "id", id, "err", err)

			return
		}

		slog.InfoContext(ctx, "Update installed", "id", id)
	}()

	_ = response.SyncResponseAccepted(api.AppUpdateDetail{InstallState: api.InstallStateInstalling}, updateURL(r, id)).Render(w)
}

// swagger:operation POST /1.0/updates/{id}/:cancel updates updates_post_cancel
//
//	Cancel an install
//
//	Aborts the download or install of the update. The update stays listed.
//
//	---
//	produces:
//	  - application/json
//	responses:
//	  "200":
//	    $ref: "#/responses/EmptySyncResponse"
//	  "409":
//	    $ref: "#/responses/Conflict"
func (s *Server) apiUpdatesCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		_ = response.NotImplemented(nil).Render(w)

		return
	}

	id, err := updateID(r)
	if err != nil {
		_ = response.BadRequest(err).Render(w)

		return
	}

	err = s.manager.CancelInstall(id)
	if err != nil {
		_ = smartError(err).Render(w)

		return
	}

	_ = response.EmptySyncResponse.Render(w)
}

// swagger:operation POST /1.0/updates/{id}/:ignore updates updates_post_ignore
//
//	Ignore an update
//
//	Toggles whether this version of the application is ignored.
//
//	---
//	produces:
//	  - application/json
//	responses:
//	  "200":
//	    description: New ignore status
func (s *Server) apiUpdatesIgnore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		_ = response.NotImplemented(nil).Render(w)

		return
	}

	id, err := updateID(r)
	if err != nil {
		_ = response.BadRequest(err).Render(w)

		return
	}

	ignored, err := s.manager.IgnoreVersion(id)
	if err != nil {
		_ = smartError(err).Render(w)

		return
	}

	_ = response.SyncResponse(true, api.IgnoreStatus{Ignored: ignored}).Render(w)
}
