package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/edvin/zargar/internal/api/response"
	"github.com/edvin/zargar/internal/core"
)

// statusForFailure maps the message of a refused operation to an HTTP status.
func statusForFailure(msg string) int {
	switch {
	case strings.Contains(msg, "not found"), strings.Contains(msg, "does not exist"):
		return http.StatusNotFound
	case strings.Contains(msg, "already in progress"), strings.Contains(msg, "is already"):
		return http.StatusConflict
	case strings.Contains(msg, "did not complete within"):
		return http.StatusGatewayTimeout
	case strings.HasPrefix(msg, "Failed to"), strings.Contains(msg, "creation failed"):
		return http.StatusInternalServerError
	}
	return http.StatusUnprocessableEntity
}

// writeResult writes the value of a successful Result with status, or the
// failure message with a status derived from it.
func writeResult[T any](w http.ResponseWriter, status int, res core.Result[T]) {
	if !res.IsOK() {
		response.WriteError(w, statusForFailure(res.Error()), res.Error())
		return
	}
	response.WriteJSON(w, status, res.OK)
}

// writeServiceError writes err from a service call. Validation errors keep
// their message; anything else is an internal error.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		response.WriteError(w, statusForFailure(verr.Message), verr.Message)
		return
	}
	response.WriteError(w, http.StatusInternalServerError, err.Error())
}
