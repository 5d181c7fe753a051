package api

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/starboard-io/starboard/internal/query"
)

// HandleRepoRedirect handles GET /{owner}/{repo}: a short URL that
// resolves the repo's global rank and redirects to the leaderboard page
// containing it, with the row highlighted and opened.
func HandleRepoRedirect(q *query.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("owner") + "/" + r.PathValue("repo")

		rank, err := q.GetGlobalRank(name)
		if err != nil {
			writeQueryError(w, err)
			return
		}

		page := (rank-1)/query.PageSize + 1
		escaped := url.QueryEscape(name)
		target := fmt.Sprintf("/?page=%d&metric=stars&view=table&highlight=%s&open=%s", page, escaped, escaped)
		http.Redirect(w, r, target, http.StatusFound)
	})
}
