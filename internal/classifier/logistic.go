package classifier

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/opensource-finance/harrier/internal/domain"
)

// LogisticConfig holds training hyperparameters.
type LogisticConfig struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Seed         int64
}

// DefaultLogisticConfig returns the reference hyperparameters.
func DefaultLogisticConfig() LogisticConfig {
	return LogisticConfig{
		Epochs:       100,
		BatchSize:    32,
		LearningRate: 0.05,
		Seed:         42,
	}
}

// LogisticScorer is a logistic regression classifier trained with
// mini-batch gradient descent. It expects z-score normalized features;
// feeding it raw features is the caller's bug, not a supported mode.
type LogisticScorer struct {
	mu      sync.RWMutex
	cfg     LogisticConfig
	weights []float64
	bias    float64
	trained bool
}

// NewLogisticScorer creates an untrained scorer.
func NewLogisticScorer(cfg LogisticConfig) *LogisticScorer {
	if cfg.Epochs <= 0 {
		cfg.Epochs = 100
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.05
	}
	return &LogisticScorer{cfg: cfg}
}

// Fit trains the model. The epoch loop checks ctx between epochs so a
// cancelled or timed-out training returns promptly; an interrupted Fit
// leaves any previously trained weights untouched.
func (s *LogisticScorer) Fit(ctx context.Context, features [][]float64, labels []int) error {
	if len(features) == 0 {
		return fmt.Errorf("logistic fit: %w", domain.ErrEmptyBatch)
	}
	if len(features) != len(labels) {
		return fmt.Errorf("logistic fit: %d feature rows, %d labels: %w",
			len(features), len(labels), domain.ErrShapeMismatch)
	}

	cols := len(features[0])
	for i, row := range features {
		if len(row) != cols {
			return fmt.Errorf("logistic fit: row %d has %d columns, want %d: %w",
				i, len(row), cols, domain.ErrShapeMismatch)
		}
	}

	weights := make([]float64, cols)
	bias := 0.0
	rng := rand.New(rand.NewSource(s.cfg.Seed))

	for epoch := 0; epoch < s.cfg.Epochs; epoch++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("logistic fit cancelled at epoch %d: %w", epoch, ctx.Err())
		default:
		}

		indices := rng.Perm(len(features))

		for start := 0; start < len(indices); start += s.cfg.BatchSize {
			end := start + s.cfg.BatchSize
			if end > len(indices) {
				end = len(indices)
			}
			batch := indices[start:end]

			gradW := make([]float64, cols)
			gradB := 0.0
			for _, idx := range batch {
				pred := sigmoid(dot(weights, features[idx]) + bias)
				err := pred - float64(labels[idx])
				for j, x := range features[idx] {
					gradW[j] += err * x
				}
				gradB += err
			}

			scale := s.cfg.LearningRate / float64(len(batch))
			for j := range weights {
				weights[j] -= scale * gradW[j]
			}
			bias -= scale * gradB
		}
	}

	s.mu.Lock()
	s.weights = weights
	s.bias = bias
	s.trained = true
	s.mu.Unlock()

	return nil
}

// PredictProba returns a probability per row using the trained weights.
func (s *LogisticScorer) PredictProba(features [][]float64) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.trained {
		return nil, fmt.Errorf("logistic predict: %w", domain.ErrNotFitted)
	}

	probs := make([]float64, len(features))
	for i, row := range features {
		if len(row) != len(s.weights) {
			return nil, fmt.Errorf("logistic predict: row %d has %d columns, model has %d: %w",
				i, len(row), len(s.weights), domain.ErrShapeMismatch)
		}
		probs[i] = sigmoid(dot(s.weights, row) + s.bias)
	}
	return probs, nil
}

// Trained reports whether Fit has completed at least once.
func (s *LogisticScorer) Trained() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trained
}

func dot(w, x []float64) float64 {
	var sum float64
	for i := range w {
		sum += w[i] * x[i]
	}
	return sum
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
