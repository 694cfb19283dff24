package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestPredictBeforeFit(t *testing.T) {
	s := NewLogisticScorer(DefaultLogisticConfig())
	_, err := s.PredictProba([][]float64{{1, 2}})
	if !errors.Is(err, domain.ErrNotFitted) {
		t.Errorf("expected ErrNotFitted, got %v", err)
	}
}

func TestFitShapeChecks(t *testing.T) {
	s := NewLogisticScorer(DefaultLogisticConfig())
	ctx := context.Background()

	t.Run("EmptyBatch", func(t *testing.T) {
		err := s.Fit(ctx, nil, nil)
		if !errors.Is(err, domain.ErrEmptyBatch) {
			t.Errorf("expected ErrEmptyBatch, got %v", err)
		}
	})

	t.Run("LabelCountMismatch", func(t *testing.T) {
		err := s.Fit(ctx, [][]float64{{1}, {2}}, []int{1})
		if !errors.Is(err, domain.ErrShapeMismatch) {
			t.Errorf("expected ErrShapeMismatch, got %v", err)
		}
	})

	t.Run("RaggedRows", func(t *testing.T) {
		err := s.Fit(ctx, [][]float64{{1, 2}, {3}}, []int{0, 1})
		if !errors.Is(err, domain.ErrShapeMismatch) {
			t.Errorf("expected ErrShapeMismatch, got %v", err)
		}
	})
}

func TestFitSeparatesClasses(t *testing.T) {
	// Linearly separable along the first feature.
	var features [][]float64
	var labels []int
	for i := 0; i < 50; i++ {
		features = append(features, []float64{-1 - float64(i%5)*0.1, 0.5})
		labels = append(labels, 0)
		features = append(features, []float64{1 + float64(i%5)*0.1, -0.5})
		labels = append(labels, 1)
	}

	cfg := DefaultLogisticConfig()
	cfg.Epochs = 200
	s := NewLogisticScorer(cfg)

	if err := s.Fit(context.Background(), features, labels); err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if !s.Trained() {
		t.Fatal("scorer should report trained")
	}

	probs, err := s.PredictProba([][]float64{{-1.2, 0.5}, {1.2, -0.5}})
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}
	if probs[0] >= 0.5 {
		t.Errorf("negative-class sample scored %f, want < 0.5", probs[0])
	}
	if probs[1] <= 0.5 {
		t.Errorf("positive-class sample scored %f, want > 0.5", probs[1])
	}
	for i, p := range probs {
		if p < 0 || p > 1 {
			t.Errorf("probability %d out of range: %f", i, p)
		}
	}
}

func TestFitCancellation(t *testing.T) {
	s := NewLogisticScorer(DefaultLogisticConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Fit(ctx, [][]float64{{1}, {-1}}, []int{1, 0})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.Trained() {
		t.Error("cancelled fit must not mark the scorer trained")
	}
}

func TestCancelledRetrainKeepsOldWeights(t *testing.T) {
	s := NewLogisticScorer(DefaultLogisticConfig())
	ctx := context.Background()

	if err := s.Fit(ctx, [][]float64{{-1}, {1}}, []int{0, 1}); err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	before, err := s.PredictProba([][]float64{{1}})
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := s.Fit(cancelled, [][]float64{{-1}, {1}}, []int{1, 0}); err == nil {
		t.Fatal("expected cancelled fit to fail")
	}

	after, err := s.PredictProba([][]float64{{1}})
	if err != nil {
		t.Fatalf("predict after cancelled retrain failed: %v", err)
	}
	if before[0] != after[0] {
		t.Errorf("cancelled retrain changed predictions: %f vs %f", before[0], after[0])
	}
}

func TestPredictDeterministic(t *testing.T) {
	s := NewLogisticScorer(DefaultLogisticConfig())
	if err := s.Fit(context.Background(), [][]float64{{-1}, {1}}, []int{0, 1}); err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	in := [][]float64{{0.3}, {-0.7}}
	a, _ := s.PredictProba(in)
	b, _ := s.PredictProba(in)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("prediction not deterministic at row %d", i)
		}
	}
}
