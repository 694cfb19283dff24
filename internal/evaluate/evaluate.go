// Package evaluate computes classification-quality metrics for scored
// batches.
package evaluate

import (
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Evaluate compares ground-truth labels against predictions and derives
// the confusion matrix with accuracy, precision, recall and F1. Labels
// are assumed binary.
//
// Unequal lengths are a contract violation and fail the call. An empty
// pair of sequences is an expected state and yields all-zero metrics.
// Any rate whose denominator is zero is 0, never NaN.
func Evaluate(truth, predicted []int) (domain.Metrics, error) {
	if len(truth) != len(predicted) {
		return domain.Metrics{}, fmt.Errorf("evaluate: %d truth labels, %d predictions: %w",
			len(truth), len(predicted), domain.ErrShapeMismatch)
	}

	var m domain.ConfusionMatrix
	for i := range truth {
		switch {
		case truth[i] == 1 && predicted[i] == 1:
			m.TruePositive++
		case truth[i] == 1 && predicted[i] == 0:
			m.FalseNegative++
		case truth[i] == 0 && predicted[i] == 1:
			m.FalsePositive++
		default:
			m.TrueNegative++
		}
	}

	metrics := domain.Metrics{Matrix: m}
	metrics.Accuracy = ratio(float64(m.TruePositive+m.TrueNegative), float64(m.Total()))
	metrics.Precision = ratio(float64(m.TruePositive), float64(m.TruePositive+m.FalsePositive))
	metrics.Recall = ratio(float64(m.TruePositive), float64(m.TruePositive+m.FalseNegative))
	metrics.F1 = ratio(2*metrics.Precision*metrics.Recall, metrics.Precision+metrics.Recall)

	return metrics, nil
}

// ratio is the zero-denominator policy in one place.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
