package api

import (
	"net/http"

	"github.com/starboard-io/starboard/internal/buildinfo"
)

// HandleHealthz handles GET /healthz.
func HandleHealthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": buildinfo.Version,
			"commit":  buildinfo.GitCommit,
		})
	})
}
