package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kiranshivaraju/predictgate/internal/api/response"
	"github.com/kiranshivaraju/predictgate/pkg/features"
)

const maxBodyBytes = 16 << 20

// featuresKey is matched case-sensitively, unlike struct field decoding.
const featuresKey = "features"

// decodeFeatures reads the request body and returns the validated matrix.
// The body must be exactly one JSON object. Every failure wraps
// features.ErrInvalidPayload.
func decodeFeatures(w http.ResponseWriter, r *http.Request, v features.Validator) (features.Matrix, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))

	var req map[string]json.RawMessage
	if err := dec.Decode(&req); err != nil {
		return nil, bodyError(err, "body is not a JSON object")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, bodyError(err, "body has trailing data")
	}

	return v.Parse(req[featuresKey])
}

func bodyError(err error, reason string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		reason = "request body too large"
	}
	return &features.ValidationError{Reason: reason}
}

func writeInvalidPayload(w http.ResponseWriter, err error) {
	var details any
	var verr *features.ValidationError
	if errors.As(err, &verr) {
		details = verr.Reason
	}
	response.Error(w, http.StatusBadRequest, "INVALID_PAYLOAD", "Invalid payload", details)
}
