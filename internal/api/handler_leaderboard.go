package api

import (
	"net/http"
	"strconv"

	"github.com/starboard-io/starboard/internal/query"
	"github.com/starboard-io/starboard/internal/respcache"
)

// LeaderboardResponse is the paginated leaderboard envelope.
type LeaderboardResponse struct {
	Page       int              `json:"page"`
	Total      int              `json:"total"`
	TotalPages int              `json:"totalPages"`
	Items      []query.RepoView `json:"items"`
}

// HandleLeaderboard handles GET /api/leaderboard.
// Query params: metric (default "stars"), page (>=1, default 1), q,
// in_description (default true), language, topic.
func HandleLeaderboard(q *query.Engine, cache *respcache.Cache) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()

		metric := params.Get("metric")
		if metric == "" {
			metric = "stars"
		}

		page := 1
		if v := params.Get("page"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeInvalidArgument(w, "page: must be a positive integer")
				return
			}
			page = n
		}

		inDescription := true
		if v := params.Get("in_description"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeInvalidArgument(w, "in_description: must be a boolean")
				return
			}
			inDescription = b
		}

		filters := query.Filters{
			Q:             params.Get("q"),
			InDescription: inDescription,
			Language:      params.Get("language"),
			Topic:         params.Get("topic"),
		}

		key := respcache.Key("lb",
			metric, strconv.Itoa(page),
			filters.Q, strconv.FormatBool(filters.InDescription),
			filters.Language, filters.Topic,
		)
		if cached, ok := cache.Get(key); ok {
			WriteJSON(w, http.StatusOK, cached)
			return
		}

		total, err := q.CountLeaderboard(filters)
		if err != nil {
			writeQueryError(w, err)
			return
		}
		items, err := q.Leaderboard(metric, page, filters)
		if err != nil {
			writeQueryError(w, err)
			return
		}

		resp := LeaderboardResponse{
			Page:       page,
			Total:      total,
			TotalPages: query.TotalPages(total),
			Items:      items,
		}
		cache.Set(key, resp)
		WriteJSON(w, http.StatusOK, resp)
	})
}
