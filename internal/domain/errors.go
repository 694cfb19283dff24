package domain

import "errors"

// Contract violations fail loudly at the call site; data-sparsity
// conditions (unseen entities, empty batches) are expected states and
// never surface as these errors.
var (
	// ErrShapeMismatch reports feature matrices with inconsistent row
	// lengths, or label sequences of unequal length.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrNotFitted reports Transform or PredictProba called before a
	// successful Fit.
	ErrNotFitted = errors.New("not fitted")

	// ErrEmptyBatch reports an operation that requires at least one
	// transaction or feature row.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrUnlabeled reports a training call on a batch without ground
	// truth labels.
	ErrUnlabeled = errors.New("batch has no ground-truth labels")
)
