package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	contrib "contactdir/internal/contribution"
	"contactdir/internal/githost"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusOf(err), errorBody{Error: err.Error(), Code: string(codeOf(err))})
}

// StatusOf maps an error to the HTTP status the gateway answers with.
func StatusOf(err error) int {
	var verr *contrib.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case githost.IsAuth(err):
		return http.StatusUnauthorized
	case githost.IsNotFound(err):
		return http.StatusNotFound
	}
	switch githost.CodeOf(err) {
	case githost.CodeTimeout:
		return http.StatusGatewayTimeout
	case githost.CodeRateLimit:
		return http.StatusTooManyRequests
	case githost.CodeConflict:
		return http.StatusConflict
	case githost.CodeRemote:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func codeOf(err error) githost.Code {
	var verr *contrib.ValidationError
	if errors.As(err, &verr) {
		return verr.Code()
	}
	return githost.CodeOf(err)
}
