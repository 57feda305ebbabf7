// Package compute builds the prediction backends used by the sync and async paths.
package compute

import (
	"fmt"

	"github.com/kiranshivaraju/predictgate/internal/compute/demo"
	"github.com/kiranshivaraju/predictgate/internal/compute/remote"
	"github.com/kiranshivaraju/predictgate/internal/config"
	"github.com/kiranshivaraju/predictgate/pkg/models"
	"k8s.io/utils/clock"
)

// NewPredictors constructs the inline (sync) and deferred (async) predictors
// from config. Called once at server startup.
func NewPredictors(cfg config.PredictorConfig, clk clock.Clock) (sync, async models.Predictor, err error) {
	switch cfg.Backend {
	case "demo":
		sync = demo.NewPredictor(cfg.SyncValue, 0, cfg.ModelVersion, clk)
		async = demo.NewPredictor(cfg.AsyncValue, cfg.AsyncDelay, cfg.ModelVersion, clk)
	case "constant":
		p := demo.NewPredictor(cfg.SyncValue, 0, cfg.ModelVersion, clk)
		sync, async = p, p
	case "remote":
		p := remote.NewPredictor(cfg.RemoteURL, cfg.RemoteToken, cfg.ModelVersion, cfg.InferenceTimeout)
		sync, async = p, p
	default:
		return nil, nil, fmt.Errorf("unknown predictor %q: must be one of demo, constant, remote", cfg.Backend)
	}
	return sync, async, nil
}
