package rest

import (
	"context"
	"errors"

	"github.com/apkupdater/apkupdaterd/internal/install"
	"github.com/apkupdater/apkupdaterd/internal/inventory"
	"github.com/apkupdater/apkupdaterd/internal/rest/response"
	"github.com/apkupdater/apkupdaterd/internal/state"
	"github.com/apkupdater/apkupdaterd/internal/updates"
)

// smartError maps an error to the matching API response.
func smartError(err error) response.Response {
	switch {
	case errors.Is(err, updates.ErrUpdateNotFound):
		return response.NotFound(err)
	case errors.Is(err, install.ErrInstallInProgress), errors.Is(err, install.ErrNotInstalling):
		return response.Conflict(err)
	case errors.Is(err, install.ErrInstallRejected):
		return response.PreconditionFailed(err)
	case errors.Is(err, state.ErrInvalidPreferences):
		return response.BadRequest(err)
	case errors.Is(err, inventory.ErrNoInventory), errors.Is(err, context.DeadlineExceeded):
		return response.Unavailable(err)
	default:
		return response.InternalError(err)
	}
}
