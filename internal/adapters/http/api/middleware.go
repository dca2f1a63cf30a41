package api

import (
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"

	"github.com/okian/repsense/pkg/metrics"
)

// MetricsMiddleware records request count, latency and error class for one
// named endpoint.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		durationMs := float64(m.Duration.Microseconds()) / 1000
		statusCodeStr := strconv.Itoa(m.Code)

		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, durationMs)

		if m.Code >= http.StatusBadRequest {
			metrics.RecordErrorByComponent("http", getErrorType(m.Code))
		}
	}
}

// getErrorType maps a status code to the error label used by the
// component error counter. It mirrors the codes writeServiceError produces.
func getErrorType(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "session_limit"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	if statusCode >= http.StatusInternalServerError {
		return "server_error"
	}
	return "client_error"
}
