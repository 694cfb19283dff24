package features

import (
	"fmt"
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Fit computes a per-column z-score scaler from a feature matrix using
// population statistics. Columns with zero variance get their std
// floored to 1 so Transform never divides by zero.
//
// An empty matrix cannot be fit; callers must not Transform before a
// successful Fit.
func Fit(matrix [][]float64) (*domain.Scaler, error) {
	if len(matrix) == 0 {
		return nil, fmt.Errorf("fit scaler: %w", domain.ErrEmptyBatch)
	}

	cols := len(matrix[0])
	sum := make([]float64, cols)
	sumSq := make([]float64, cols)

	for i, row := range matrix {
		if len(row) != cols {
			return nil, fmt.Errorf("fit scaler: row %d has %d columns, want %d: %w",
				i, len(row), cols, domain.ErrShapeMismatch)
		}
		for j, x := range row {
			sum[j] += x
			sumSq[j] += x * x
		}
	}

	n := float64(len(matrix))
	scaler := &domain.Scaler{
		Mean: make([]float64, cols),
		Std:  make([]float64, cols),
	}
	for j := 0; j < cols; j++ {
		mean := sum[j] / n
		variance := sumSq[j]/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		std := math.Sqrt(variance)
		if std == 0 {
			std = 1
		}
		scaler.Mean[j] = mean
		scaler.Std[j] = std
	}

	return scaler, nil
}

// Transform applies (x - mean) / std column-wise using a previously fit
// scaler. It never recomputes statistics from its input; applying a
// training-time scaler to later batches is what keeps single-transaction
// scores batch-independent. The input is not mutated.
func Transform(matrix [][]float64, scaler *domain.Scaler) ([][]float64, error) {
	if scaler == nil || scaler.Len() == 0 {
		return nil, fmt.Errorf("transform: %w", domain.ErrNotFitted)
	}
	if len(matrix) == 0 {
		return [][]float64{}, nil
	}

	cols := scaler.Len()
	out := make([][]float64, len(matrix))
	for i, row := range matrix {
		if len(row) != cols {
			return nil, fmt.Errorf("transform: row %d has %d columns, scaler has %d: %w",
				i, len(row), cols, domain.ErrShapeMismatch)
		}
		normalized := make([]float64, cols)
		for j, x := range row {
			normalized[j] = (x - scaler.Mean[j]) / scaler.Std[j]
		}
		out[i] = normalized
	}

	return out, nil
}
