package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/predictgate/internal/api/response"
	"github.com/kiranshivaraju/predictgate/internal/jobs"
	"github.com/kiranshivaraju/predictgate/pkg/models"
)

// JobReader looks up a job snapshot by handle.
type JobReader interface {
	Get(ctx context.Context, id string) (models.Job, error)
}

type jobResponse struct {
	Status string                   `json:"status"`
	Result *models.PredictionResult `json:"result,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

type unknownJobResponse struct {
	Status string `json:"status"`
	Code   string `json:"code"`
}

// NewGetJobHandler returns an http.HandlerFunc for GET /jobs/{id}.
// It is read-only; polling any number of times never changes a job.
func NewGetJobHandler(store JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		job, err := store.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, jobs.ErrNotFound) {
				response.Status(w, http.StatusNotFound, unknownJobResponse{Status: "unknown", Code: "JOB_NOT_FOUND"})
				return
			}
			slog.Error("get job", "job_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to read job", nil)
			return
		}

		resp := jobResponse{Status: string(job.Status)}
		switch job.Status {
		case models.JobStatusSucceeded:
			resp.Result = job.Result
		case models.JobStatusFailed:
			resp.Error = job.Error
		}
		response.JSON(w, resp)
	}
}
