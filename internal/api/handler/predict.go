package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiranshivaraju/predictgate/internal/api/response"
	"github.com/kiranshivaraju/predictgate/internal/compute"
	"github.com/kiranshivaraju/predictgate/pkg/features"
	"github.com/kiranshivaraju/predictgate/pkg/models"
)

// SyncObserver records the outcome of synchronous predictions.
type SyncObserver interface {
	SyncPrediction(outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) SyncPrediction(string, time.Duration) {}

// NewPredictHandler returns an http.HandlerFunc for POST /predict. It runs the
// predictor inline and never touches the job store. A timeout of zero
// disables the inference deadline; obs may be nil.
func NewPredictHandler(p models.Predictor, v features.Validator, timeout time.Duration, obs SyncObserver) http.HandlerFunc {
	if obs == nil {
		obs = nopObserver{}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m, err := decodeFeatures(w, r, v)
		if err != nil {
			obs.SyncPrediction("invalid", time.Since(start))
			writeInvalidPayload(w, err)
			return
		}

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		preds, version, err := models.PredictWithVersion(ctx, p, m)
		if err == nil && len(preds) != m.Rows() {
			err = errPredictionCount(len(preds), m.Rows())
		}
		if err != nil {
			switch {
			case errors.Is(err, compute.ErrInferenceTimeout), errors.Is(err, context.DeadlineExceeded):
				obs.SyncPrediction("timeout", time.Since(start))
				response.Error(w, http.StatusGatewayTimeout, "PREDICTION_TIMEOUT",
					"Prediction took too long and was cancelled", nil)
			case errors.Is(err, compute.ErrPredictorUnavailable):
				obs.SyncPrediction("failed", time.Since(start))
				response.Error(w, http.StatusBadGateway, "PREDICTOR_UNAVAILABLE",
					"The predictor is not available", nil)
			default:
				obs.SyncPrediction("failed", time.Since(start))
				slog.Warn("sync prediction failed", "predictor", p.Name(), "rows", m.Rows(), "error", err)
				response.Error(w, http.StatusBadGateway, "PREDICTION_FAILED",
					"Prediction failed", nil)
			}
			return
		}

		obs.SyncPrediction("ok", time.Since(start))
		response.JSON(w, models.NewPredictionResult(preds, version))
	}
}
