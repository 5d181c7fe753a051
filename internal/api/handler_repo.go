package api

import (
	"net/http"

	"github.com/starboard-io/starboard/internal/query"
	"github.com/starboard-io/starboard/internal/respcache"
)

// historySegmentLimit caps /api/repo/history at two years of segments
// (4 runs per day).
const historySegmentLimit = 2920

// HandleGetRepo handles GET /api/repo?name=owner/repo.
func HandleGetRepo(q *query.Engine, cache *respcache.Cache) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			writeInvalidArgument(w, "name: required (owner/repo)")
			return
		}

		key := respcache.Key("repo", name)
		if cached, ok := cache.Get(key); ok {
			WriteJSON(w, http.StatusOK, cached)
			return
		}

		view, err := q.GetRepoLatest(name)
		if err != nil {
			writeQueryError(w, err)
			return
		}
		cache.Set(key, view)
		WriteJSON(w, http.StatusOK, view)
	})
}

// HistoryResponse is the envelope for /api/repo/history.
type HistoryResponse struct {
	NameWithOwner string          `json:"nameWithOwner"`
	Segments      []query.Segment `json:"segments"`
}

// HandleRepoHistory handles GET /api/repo/history?name=owner/repo.
func HandleRepoHistory(q *query.Engine, cache *respcache.Cache) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			writeInvalidArgument(w, "name: required (owner/repo)")
			return
		}

		key := respcache.Key("hist", name)
		if cached, ok := cache.Get(key); ok {
			WriteJSON(w, http.StatusOK, cached)
			return
		}

		segments, err := q.HistorySegments(name, historySegmentLimit)
		if err != nil {
			writeQueryError(w, err)
			return
		}
		resp := HistoryResponse{NameWithOwner: name, Segments: segments}
		cache.Set(key, resp)
		WriteJSON(w, http.StatusOK, resp)
	})
}
