// Package remote calls an external model server over HTTP.
//
// The server must accept POST {base}/v1/predict with body
// {"features": [[...], ...]} and answer 200 with
// {"predictions": [...], "model_version": "..."}. GET {base}/ready must
// answer 200 when the server can take traffic.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/predictgate/pkg/features"
	"github.com/kiranshivaraju/predictgate/pkg/models"
)

// Predictor implements models.Predictor against a model server.
type Predictor struct {
	baseURL string
	token   string
	version string
	client  *http.Client
}

// NewPredictor creates a Predictor. timeout bounds each HTTP round trip.
func NewPredictor(baseURL, token, version string, timeout time.Duration) *Predictor {
	return &Predictor{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		version: version,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *Predictor) Name() string { return "remote" }

func (p *Predictor) ModelVersion() string { return p.version }

func (p *Predictor) Predict(ctx context.Context, m features.Matrix) ([]float64, error) {
	preds, _, err := p.PredictVersioned(ctx, m)
	return preds, err
}

// PredictVersioned returns the predictions along with the model_version the
// server reported, which may be empty.
func (p *Predictor) PredictVersioned(ctx context.Context, m features.Matrix) ([]float64, string, error) {
	if m == nil {
		m = features.Matrix{}
	}
	body, err := json.Marshal(predictRequest{Features: m})
	if err != nil {
		return nil, "", fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/predict", bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, "", classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable, resp.StatusCode == http.StatusTooManyRequests:
		return nil, "", fmt.Errorf("%w: status %d", models.ErrPredictorUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusGatewayTimeout:
		return nil, "", fmt.Errorf("%w: status %d", models.ErrInferenceTimeout, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("%w: status %d: %s", models.ErrInvalidResponse, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, "", fmt.Errorf("%w: decoding response: %v", models.ErrInvalidResponse, err)
	}
	if len(out.Predictions) != m.Rows() {
		return nil, "", fmt.Errorf("%w: got %d predictions for %d rows",
			models.ErrInvalidResponse, len(out.Predictions), m.Rows())
	}
	return out.Predictions, out.ModelVersion, nil
}

// Ping reports whether the model server is ready.
func (p *Predictor) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/ready", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPredictorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: model server not ready (status %d)", models.ErrPredictorUnavailable, resp.StatusCode)
	}
	return nil
}

func (p *Predictor) setHeaders(req *http.Request) {
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", models.ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", models.ErrInferenceTimeout, err)
	}

	return fmt.Errorf("%w: %v", models.ErrPredictorUnavailable, err)
}

type predictRequest struct {
	Features features.Matrix `json:"features"`
}

type predictResponse struct {
	Predictions  []float64 `json:"predictions"`
	ModelVersion string    `json:"model_version"`
}

var (
	_ models.Predictor          = (*Predictor)(nil)
	_ models.VersionedPredictor = (*Predictor)(nil)
)
