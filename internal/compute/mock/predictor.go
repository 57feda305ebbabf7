package mock

import (
	"context"

	"github.com/kiranshivaraju/predictgate/pkg/features"
	"github.com/kiranshivaraju/predictgate/pkg/models"
)

// MockPredictor satisfies models.Predictor for testing.
type MockPredictor struct {
	Name_       string
	Version     string
	PredictFunc func(ctx context.Context, m features.Matrix) ([]float64, error)
}

func (m *MockPredictor) Name() string { return m.Name_ }

func (m *MockPredictor) ModelVersion() string { return m.Version }

func (m *MockPredictor) Predict(ctx context.Context, x features.Matrix) ([]float64, error) {
	if m.PredictFunc != nil {
		return m.PredictFunc(ctx, x)
	}
	return make([]float64, x.Rows()), nil
}

// NewMockPredictor returns a MockPredictor that answers value for every row.
func NewMockPredictor(value float64) *MockPredictor {
	return &MockPredictor{
		Name_:   "mock",
		Version: "mock-v1",
		PredictFunc: func(_ context.Context, x features.Matrix) ([]float64, error) {
			out := make([]float64, x.Rows())
			for i := range out {
				out[i] = value
			}
			return out, nil
		},
	}
}

// NewFailingPredictor returns a MockPredictor that always returns err.
func NewFailingPredictor(err error) *MockPredictor {
	return &MockPredictor{
		Name_:   "mock-failing",
		Version: "mock-v1",
		PredictFunc: func(_ context.Context, _ features.Matrix) ([]float64, error) {
			return nil, err
		},
	}
}

// NewBlockingPredictor returns a MockPredictor that blocks until release is
// closed or ctx is cancelled. Each call is announced on started if non-nil.
func NewBlockingPredictor(release <-chan struct{}, started chan<- struct{}) *MockPredictor {
	return &MockPredictor{
		Name_:   "mock-blocking",
		Version: "mock-v1",
		PredictFunc: func(ctx context.Context, x features.Matrix) ([]float64, error) {
			if started != nil {
				started <- struct{}{}
			}
			select {
			case <-release:
				return make([]float64, x.Rows()), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
}

// NewPanickingPredictor returns a MockPredictor that panics with v.
func NewPanickingPredictor(v any) *MockPredictor {
	return &MockPredictor{
		Name_:   "mock-panicking",
		Version: "mock-v1",
		PredictFunc: func(_ context.Context, _ features.Matrix) ([]float64, error) {
			panic(v)
		},
	}
}

// NewShortPredictor returns a MockPredictor that drops the last prediction.
func NewShortPredictor() *MockPredictor {
	return &MockPredictor{
		Name_:   "mock-short",
		Version: "mock-v1",
		PredictFunc: func(_ context.Context, x features.Matrix) ([]float64, error) {
			if x.Rows() == 0 {
				return []float64{1}, nil
			}
			return make([]float64, x.Rows()-1), nil
		},
	}
}

// Compile-time check that MockPredictor implements Predictor.
var _ models.Predictor = (*MockPredictor)(nil)
