package models

import (
	"time"

	"github.com/kiranshivaraju/predictgate/pkg/features"
)

// JobStatus is the lifecycle state of an async prediction job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// PredictionResult is the payload shared by the sync endpoint and completed jobs.
type PredictionResult struct {
	Predictions  []float64 `json:"predictions"`
	ModelVersion string    `json:"model_version"`
	Count        int       `json:"count"`
}

// NewPredictionResult builds a result whose Count always matches its predictions.
func NewPredictionResult(predictions []float64, modelVersion string) *PredictionResult {
	if predictions == nil {
		predictions = []float64{}
	}
	return &PredictionResult{
		Predictions:  predictions,
		ModelVersion: modelVersion,
		Count:        len(predictions),
	}
}

// Job tracks one async prediction. The API returns the ID on POST /predict-async;
// the client polls GET /jobs/{id} until status is succeeded or failed.
//
// Result is set only when Status is succeeded, Error only when it is failed.
type Job struct {
	ID          string            `db:"id"           json:"job_id"`
	Status      JobStatus         `db:"status"       json:"status"`
	Input       features.Matrix   `db:"-"            json:"-"`
	Rows        int               `db:"rows"         json:"rows"`
	Result      *PredictionResult `db:"result"       json:"result,omitempty"`
	Error       string            `db:"error"        json:"error,omitempty"`
	SubmittedAt time.Time         `db:"submitted_at" json:"submitted_at"`
	StartedAt   *time.Time        `db:"started_at"   json:"started_at,omitempty"`
	CompletedAt *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}

// Clone returns a copy that shares no mutable memory with j.
func (j Job) Clone() Job {
	out := j
	out.Input = j.Input.Clone()
	if j.Result != nil {
		r := *j.Result
		r.Predictions = append([]float64{}, j.Result.Predictions...)
		out.Result = &r
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
