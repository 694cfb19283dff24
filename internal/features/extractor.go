// Package features derives fixed-shape numeric feature vectors from
// transactions and normalizes them for classifier input.
package features

import (
	"math"
	"sync"

	"github.com/opensource-finance/harrier/internal/domain"
)

const (
	secondsPerDay = 86400
	daysPerWeek   = 7
)

// Extract produces one feature vector per transaction, in input order,
// from the batch's stats snapshot. A transaction referencing a customer
// or terminal absent from the snapshot uses zero defaults for the
// cohort positions rather than failing; single-transaction prediction
// stays well-defined at the cost of that row's behavioral signal.
func Extract(txs []*domain.Transaction, snap *domain.StatsSnapshot) [][]float64 {
	out := make([][]float64, len(txs))
	for i, tx := range txs {
		out[i] = ExtractOne(tx, snap)
	}
	return out
}

// ExtractParallel is Extract over disjoint row ranges on worker
// goroutines. Rows are independent given the read-only snapshot, so no
// locking is needed; the call returns only when every row is done.
func ExtractParallel(txs []*domain.Transaction, snap *domain.StatsSnapshot, workers int) [][]float64 {
	if workers <= 1 || len(txs) < workers*2 {
		return Extract(txs, snap)
	}

	out := make([][]float64, len(txs))
	chunk := (len(txs) + workers - 1) / workers

	var wg sync.WaitGroup
	for lo := 0; lo < len(txs); lo += chunk {
		hi := lo + chunk
		if hi > len(txs) {
			hi = len(txs)
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				out[i] = ExtractOne(txs[i], snap)
			}
		}(lo, hi)
	}
	wg.Wait()

	return out
}

// ExtractOne builds the 14-position vector for a single transaction.
func ExtractOne(tx *domain.Transaction, snap *domain.StatsSnapshot) []float64 {
	v := make([]float64, domain.FeatureCount)

	v[0] = tx.Amount
	v[1] = float64(tx.TimeSeconds)
	v[2] = float64(tx.TimeDays)

	if cs, ok := snap.Customer(tx.CustomerID); ok {
		v[3] = cs.MeanAmount
		v[4] = float64(cs.Count)
		v[5] = cs.StdAmount
		v[9] = math.Abs(tx.Amount - cs.MeanAmount)
	}

	if ts, ok := snap.Terminal(tx.TerminalID); ok {
		v[6] = ts.MeanAmount
		v[7] = float64(ts.Count)
		// Unknown rate folds to 0 here to keep the feature shape
		// compatible with the source system; the rule cascade is where
		// the known/unknown distinction matters.
		v[8] = ts.FraudRate
	}

	dayPhase := 2 * math.Pi * float64(tx.TimeSeconds%secondsPerDay) / secondsPerDay
	v[10] = math.Sin(dayPhase)
	v[11] = math.Cos(dayPhase)

	weekPhase := 2 * math.Pi * float64(tx.TimeDays%daysPerWeek) / daysPerWeek
	v[12] = math.Sin(weekPhase)
	v[13] = math.Cos(weekPhase)

	return v
}
