package compute

import "github.com/kiranshivaraju/predictgate/pkg/models"

// Re-exported so callers can match backend failures without importing
// every backend package.
var (
	ErrPredictorUnavailable = models.ErrPredictorUnavailable
	ErrInferenceTimeout     = models.ErrInferenceTimeout
	ErrInvalidResponse      = models.ErrInvalidResponse
)
