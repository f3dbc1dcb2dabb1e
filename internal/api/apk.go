package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/halvard-dev/storefront/internal/apkstore"
)

type apkVersionResponse struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
	Source     string    `json:"source"`
}

// handleAPKVersion reports the newest build's metadata so clients can decide
// whether to download without pulling the whole archive.
func (a *API) handleAPKVersion(w http.ResponseWriter, r *http.Request) {
	if a.opts.APK == nil {
		writeError(w, http.StatusNotFound, "APK not available", "")
		return
	}

	apk, err := a.opts.APK.Latest(r.Context())
	if errors.Is(err, apkstore.ErrNoAPK) {
		writeError(w, http.StatusNotFound, "APK not available", "")
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, apkVersionResponse{
		Name:       apk.Name,
		Size:       apk.Size,
		ModifiedAt: apk.ModTime.UTC(),
		Source:     apk.Source,
	})
}

// handleDownloadAPK streams the newest companion-app build. The file is
// looked up per request so a new upload is served without a restart.
func (a *API) handleDownloadAPK(w http.ResponseWriter, r *http.Request) {
	if a.opts.APK == nil {
		writeError(w, http.StatusNotFound, "APK not available", "")
		return
	}

	apk, err := a.opts.APK.Latest(r.Context())
	if errors.Is(err, apkstore.ErrNoAPK) {
		writeError(w, http.StatusNotFound, "APK not available", "")
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	if a.opts.Metrics != nil {
		a.opts.Metrics.IncAPKDownload(apk.Source)
	}

	w.Header().Set("Content-Type", "application/vnd.android.package-archive")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", apk.Name))
	http.ServeFile(w, r, apk.Path)
}
