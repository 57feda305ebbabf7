// Package models contains shared data models used across the predictgate codebase.
package models

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/predictgate/pkg/features"
)

// Errors a Predictor backend may wrap.
var (
	ErrPredictorUnavailable = errors.New("predictor unavailable")
	ErrInferenceTimeout     = errors.New("inference timeout")
	ErrInvalidResponse      = errors.New("predictor returned invalid response")
)

// Predictor is the compute capability behind both prediction paths.
// Never call a concrete backend directly; always inject this interface.
type Predictor interface {
	// Predict returns exactly one prediction per input row.
	Predict(ctx context.Context, m features.Matrix) ([]float64, error)
	// ModelVersion identifies the model reported in every result.
	ModelVersion() string
	// Name returns the backend identifier (e.g., "demo").
	Name() string
}

// VersionedPredictor is implemented by backends that learn the model version
// from each call, such as a remote model server.
type VersionedPredictor interface {
	PredictVersioned(ctx context.Context, m features.Matrix) ([]float64, string, error)
}

// PredictWithVersion runs p and returns the version that produced the
// predictions. The backend's reported version wins when it is non-empty;
// otherwise p.ModelVersion() is used.
func PredictWithVersion(ctx context.Context, p Predictor, m features.Matrix) ([]float64, string, error) {
	if vp, ok := p.(VersionedPredictor); ok {
		preds, version, err := vp.PredictVersioned(ctx, m)
		if version == "" {
			version = p.ModelVersion()
		}
		return preds, version, err
	}
	preds, err := p.Predict(ctx, m)
	return preds, p.ModelVersion(), err
}
