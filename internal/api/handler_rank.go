package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/starboard-io/starboard/internal/query"
	"github.com/starboard-io/starboard/internal/respcache"
)

// Badge is a Shields.io-compatible endpoint payload.
type Badge struct {
	SchemaVersion int    `json:"schemaVersion"`
	Label         string `json:"label"`
	Message       string `json:"message"`
	Color         string `json:"color"`
	CacheSeconds  int    `json:"cacheSeconds,omitempty"`
}

// HandleRank handles GET /api/rank?name=owner/repo. A missing repo is
// not an HTTP error: shields.io expects a well-formed badge body, so the
// handler synthesizes a "repo not found" badge instead.
func HandleRank(q *query.Engine, cache *respcache.Cache) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			writeInvalidArgument(w, "name: required (owner/repo)")
			return
		}

		key := respcache.Key("rank", name)
		if cached, ok := cache.Get(key); ok {
			WriteJSON(w, http.StatusOK, cached)
			return
		}

		rank, err := q.GetGlobalRank(name)
		if err != nil {
			var qErr *query.Error
			if errors.As(err, &qErr) && qErr.Code == query.CodeNotFound {
				badge := Badge{
					SchemaVersion: 1,
					Label:         "rank",
					Message:       "repo not found",
					Color:         "inactive",
				}
				cache.Set(key, badge)
				WriteJSON(w, http.StatusOK, badge)
				return
			}
			writeQueryError(w, err)
			return
		}

		badge := Badge{
			SchemaVersion: 1,
			Label:         "global rank",
			Message:       fmt.Sprintf("#%d", rank),
			Color:         rankColor(rank),
			CacheSeconds:  3600,
		}
		cache.Set(key, badge)
		WriteJSON(w, http.StatusOK, badge)
	})
}

func rankColor(rank int64) string {
	switch {
	case rank <= 100:
		return "brightgreen"
	case rank <= 1000:
		return "orange"
	default:
		return "blue"
	}
}
