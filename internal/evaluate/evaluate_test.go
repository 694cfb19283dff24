package evaluate

import (
	"errors"
	"math"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestEvaluate(t *testing.T) {
	t.Run("ReferenceExample", func(t *testing.T) {
		m, err := Evaluate([]int{1, 0, 1, 0}, []int{1, 0, 0, 0})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := domain.ConfusionMatrix{TrueNegative: 2, FalsePositive: 0, FalseNegative: 1, TruePositive: 1}
		if m.Matrix != want {
			t.Errorf("matrix: got %+v, want %+v", m.Matrix, want)
		}
		if m.Accuracy != 0.75 {
			t.Errorf("accuracy: got %f, want 0.75", m.Accuracy)
		}
		if m.Precision != 1.0 {
			t.Errorf("precision: got %f, want 1.0", m.Precision)
		}
		if m.Recall != 0.5 {
			t.Errorf("recall: got %f, want 0.5", m.Recall)
		}
		if math.Abs(m.F1-2.0/3.0) > 1e-9 {
			t.Errorf("f1: got %f, want ~0.667", m.F1)
		}
	})

	t.Run("LengthMismatch", func(t *testing.T) {
		_, err := Evaluate([]int{1, 0}, []int{1})
		if !errors.Is(err, domain.ErrShapeMismatch) {
			t.Errorf("expected ErrShapeMismatch, got %v", err)
		}
	})

	t.Run("EmptyBatchAllZeros", func(t *testing.T) {
		m, err := Evaluate(nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.Accuracy != 0 || m.Precision != 0 || m.Recall != 0 || m.F1 != 0 {
			t.Errorf("expected all-zero metrics on empty input, got %+v", m)
		}
	})

	t.Run("NoPositivePredictions", func(t *testing.T) {
		// precision with tp+fp == 0 is defined as 0, never NaN
		m, err := Evaluate([]int{1, 1, 0}, []int{0, 0, 0})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.Precision != 0 {
			t.Errorf("precision: got %f, want 0", m.Precision)
		}
		if m.F1 != 0 {
			t.Errorf("f1: got %f, want 0", m.F1)
		}
		if math.IsNaN(m.Precision) || math.IsNaN(m.Recall) || math.IsNaN(m.F1) {
			t.Error("metrics must never be NaN")
		}
	})

	t.Run("CountsSumToRows", func(t *testing.T) {
		cases := []struct {
			truth, pred []int
		}{
			{[]int{0}, []int{1}},
			{[]int{1, 1, 1, 1}, []int{0, 1, 0, 1}},
			{[]int{0, 0, 0}, []int{0, 0, 0}},
			{[]int{1, 0, 1, 0, 1, 0, 1}, []int{0, 1, 1, 0, 1, 1, 0}},
		}
		for _, tc := range cases {
			m, err := Evaluate(tc.truth, tc.pred)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.Matrix.Total() != len(tc.truth) {
				t.Errorf("counts sum %d, want %d", m.Matrix.Total(), len(tc.truth))
			}
		}
	})

	t.Run("PerfectClassifier", func(t *testing.T) {
		m, err := Evaluate([]int{1, 0, 1}, []int{1, 0, 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.Accuracy != 1 || m.Precision != 1 || m.Recall != 1 || m.F1 != 1 {
			t.Errorf("expected perfect metrics, got %+v", m)
		}
	})
}
