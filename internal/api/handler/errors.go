package handler

import (
	"fmt"

	"github.com/kiranshivaraju/predictgate/internal/jobs"
)

func errPredictionCount(got, rows int) error {
	return fmt.Errorf("%w: got %d for %d rows", jobs.ErrPredictionCount, got, rows)
}
