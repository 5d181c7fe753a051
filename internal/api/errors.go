package api

import (
	"errors"
	"net/http"

	"github.com/starboard-io/starboard/internal/query"
)

func writeInvalidArgument(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, query.CodeInvalidArgument, message)
}

// writeQueryError maps query engine errors to HTTP response codes.
func writeQueryError(w http.ResponseWriter, err error) {
	var qErr *query.Error
	if errors.As(err, &qErr) {
		var status int
		switch qErr.Code {
		case query.CodeInvalidArgument:
			status = http.StatusBadRequest
		case query.CodeNotFound:
			status = http.StatusNotFound
		default:
			status = http.StatusInternalServerError
		}
		WriteError(w, status, qErr.Code, qErr.Message)
		return
	}
	WriteError(w, http.StatusInternalServerError, query.CodeInternal, "internal server error")
}
