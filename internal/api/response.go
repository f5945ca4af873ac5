package api

import (
	"encoding/json"
	"net/http"

	"github.com/kuitang/notekeeper/internal/errs"
	"github.com/kuitang/notekeeper/internal/logutil"
	"github.com/kuitang/notekeeper/internal/obs"
)

const msgUnexpected = "An unexpected error occurred."

// ErrorResponse is the body of every 4xx and 5xx response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with the given status code
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    status,
		Status:  http.StatusText(status),
		Message: message,
	})
}

// writeErr maps a coded error to its status. Uncoded errors are logged and
// answered with a generic 500 so storage details never reach the client.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		obs.From(r.Context()).With("pkg", "api").Error(
			"api_request_failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", string(code),
			"error", logutil.TruncateForLog(err.Error(), 500),
		)
	}
	if code == errs.Internal {
		writeError(w, status, msgUnexpected)
		return
	}
	writeError(w, status, errs.MessageOf(err))
}
