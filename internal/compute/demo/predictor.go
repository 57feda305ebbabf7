// Package demo provides a stand-in predictor that answers every row with a
// fixed value after a fixed delay.
package demo

import (
	"context"
	"time"

	"github.com/kiranshivaraju/predictgate/pkg/features"
	"github.com/kiranshivaraju/predictgate/pkg/models"
	"k8s.io/utils/clock"
)

// Predictor implements models.Predictor without any real model.
type Predictor struct {
	value   float64
	delay   time.Duration
	version string
	clock   clock.Clock
}

func NewPredictor(value float64, delay time.Duration, version string, clk clock.Clock) *Predictor {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Predictor{value: value, delay: delay, version: version, clock: clk}
}

func (p *Predictor) Name() string { return "demo" }

func (p *Predictor) ModelVersion() string { return p.version }

// Predict waits for the configured delay on the predictor's clock, then
// returns one copy of the fixed value per row.
func (p *Predictor) Predict(ctx context.Context, m features.Matrix) ([]float64, error) {
	if p.delay > 0 {
		t := p.clock.NewTimer(p.delay)
		defer t.Stop()
		select {
		case <-t.C():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	out := make([]float64, m.Rows())
	for i := range out {
		out[i] = p.value
	}
	return out, nil
}

var _ models.Predictor = (*Predictor)(nil)
