// Package classifier provides trainable scoring backends consumed by
// the pipeline through a narrow fit/predict interface.
package classifier

import (
	"context"
)

// Scorer is the classifier collaborator interface. The pipeline treats
// it as an opaque capability: fit on a labeled batch of normalized
// features, then produce a probability per row. Nothing about the model
// architecture leaks through.
type Scorer interface {
	// Fit trains on normalized features and binary labels. Training may
	// take unbounded time, so it must honor ctx cancellation; on
	// cancellation any previously fitted state stays usable.
	Fit(ctx context.Context, features [][]float64, labels []int) error

	// PredictProba returns a fraud probability in [0,1] per row.
	// Calling it before a successful Fit is a contract violation.
	PredictProba(features [][]float64) ([]float64, error)
}
