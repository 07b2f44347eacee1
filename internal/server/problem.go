package server

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/pipelineforge/pipelineforge/internal/errors"
)

// Problem is an RFC 7807-shaped error response: every non-2xx response
// from this server takes this shape so a caller only needs one decoder.
type Problem struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Instance  string `json:"instance"`
	RequestID string `json:"requestId,omitempty"`
}

var titleByStatus = map[int]string{
	http.StatusBadRequest:          "Bad Request",
	http.StatusUnauthorized:        "Unauthorized",
	http.StatusNotFound:            "Not Found",
	http.StatusConflict:            "Conflict",
	http.StatusRequestTimeout:      "Request Timeout",
	http.StatusTooManyRequests:     "Too Many Requests",
	http.StatusMethodNotAllowed:    "Method Not Allowed",
	http.StatusUnsupportedMediaType: "Unsupported Media Type",
	http.StatusServiceUnavailable:  "Service Unavailable",
	http.StatusInternalServerError: "Internal Server Error",
}

func titleFor(status int) string {
	if title, ok := titleByStatus[status]; ok {
		return title
	}
	return http.StatusText(status)
}

// writeProblem maps err through internal/errors' status-code and
// safe-message rules and writes it as a Problem document. A nil err
// writes a generic internal error: writeProblem is also used for errors
// that never carried domain classification (decode failures, routing).
func writeProblem(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	detail := "An internal error occurred"
	if err != nil {
		status = apperrors.GetStatusCode(err)
		detail = apperrors.SafeErrorMessage(err)
	}
	writeProblemStatus(w, r, status, detail)
}

func writeProblemStatus(w http.ResponseWriter, r *http.Request, status int, detail string) {
	problem := Problem{
		Type:      "https://pipelineforge.dev/errors/" + slugForStatus(status),
		Title:     titleFor(status),
		Status:    status,
		Detail:    detail,
		Instance:  r.URL.Path,
		RequestID: r.Header.Get("X-Request-Id"),
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

var slugByStatus = map[int]string{
	http.StatusBadRequest:          "validation-error",
	http.StatusUnauthorized:        "auth-error",
	http.StatusNotFound:            "not-found",
	http.StatusConflict:            "conflict",
	http.StatusRequestTimeout:      "timeout",
	http.StatusTooManyRequests:     "rate-limit",
	http.StatusMethodNotAllowed:    "method-not-allowed",
	http.StatusUnsupportedMediaType: "unsupported-media-type",
	http.StatusServiceUnavailable:  "service-unavailable",
	http.StatusInternalServerError: "internal-error",
}

func slugForStatus(status int) string {
	if slug, ok := slugByStatus[status]; ok {
		return slug
	}
	return "error"
}
