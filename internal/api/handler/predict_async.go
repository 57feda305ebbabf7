package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/kiranshivaraju/predictgate/internal/api/response"
	"github.com/kiranshivaraju/predictgate/internal/jobs"
	"github.com/kiranshivaraju/predictgate/pkg/features"
)

// retryAfterSeconds is advertised when the executor is at capacity.
const retryAfterSeconds = "1"

// Submitter schedules a validated matrix for background prediction.
type Submitter interface {
	Submit(ctx context.Context, input features.Matrix) (string, error)
}

type submitResponse struct {
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
}

// JobPath returns the polling path for a job handle.
func JobPath(id string) string {
	return "/jobs/" + url.PathEscape(id)
}

// NewPredictAsyncHandler returns an http.HandlerFunc for POST /predict-async.
// When baseURL is set the Location header is absolute.
func NewPredictAsyncHandler(sub Submitter, v features.Validator, baseURL string) http.HandlerFunc {
	baseURL = strings.TrimRight(baseURL, "/")
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := decodeFeatures(w, r, v)
		if err != nil {
			writeInvalidPayload(w, err)
			return
		}

		id, err := sub.Submit(r.Context(), m)
		if err != nil {
			switch {
			case errors.Is(err, jobs.ErrQueueFull):
				w.Header().Set("Retry-After", retryAfterSeconds)
				response.Error(w, http.StatusServiceUnavailable, "QUEUE_FULL",
					"Too many pending jobs, retry later", nil)
			case errors.Is(err, jobs.ErrShuttingDown):
				response.Error(w, http.StatusServiceUnavailable, "SHUTTING_DOWN",
					"Server is shutting down", nil)
			default:
				slog.Error("submit job", "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to create job", nil)
			}
			return
		}

		path := JobPath(id)
		w.Header().Set("Location", baseURL+path)
		response.Accepted(w, submitResponse{JobID: id, StatusURL: path})
	}
}
