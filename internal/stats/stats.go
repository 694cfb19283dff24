// Package stats provides per-entity behavioral aggregation over a
// transaction batch.
package stats

import (
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// AggregateByCustomer groups a batch by customer id and computes count,
// mean amount and population standard deviation per customer. Single
// pass over the batch, pure function of the input; an empty batch
// yields an empty map.
func AggregateByCustomer(txs []*domain.Transaction) map[string]domain.CustomerStats {
	type acc struct {
		count int
		sum   float64
		sumSq float64
	}

	accs := make(map[string]*acc)
	for _, tx := range txs {
		a, ok := accs[tx.CustomerID]
		if !ok {
			a = &acc{}
			accs[tx.CustomerID] = a
		}
		a.count++
		a.sum += tx.Amount
		a.sumSq += tx.Amount * tx.Amount
	}

	out := make(map[string]domain.CustomerStats, len(accs))
	for id, a := range accs {
		mean := a.sum / float64(a.count)
		out[id] = domain.CustomerStats{
			CustomerID: id,
			Count:      a.count,
			MeanAmount: mean,
			StdAmount:  populationStd(a.sumSq, mean, a.count),
		}
	}
	return out
}

// AggregateByTerminal groups a batch by terminal id and computes count,
// mean amount and the observed fraud rate. The rate is only marked
// known when at least one row at the terminal carries a ground-truth
// label; unlabeled terminals keep a zero rate with FraudRateKnown false
// so rule evaluation can tell "no signal" from "zero fraud observed".
func AggregateByTerminal(txs []*domain.Transaction) map[string]domain.TerminalStats {
	type acc struct {
		count   int
		sum     float64
		labeled int
		fraud   int
	}

	accs := make(map[string]*acc)
	for _, tx := range txs {
		a, ok := accs[tx.TerminalID]
		if !ok {
			a = &acc{}
			accs[tx.TerminalID] = a
		}
		a.count++
		a.sum += tx.Amount
		if tx.Fraud != nil {
			a.labeled++
			if *tx.Fraud == 1 {
				a.fraud++
			}
		}
	}

	out := make(map[string]domain.TerminalStats, len(accs))
	for id, a := range accs {
		ts := domain.TerminalStats{
			TerminalID: id,
			Count:      a.count,
			MeanAmount: a.sum / float64(a.count),
		}
		if a.labeled > 0 {
			ts.FraudRate = float64(a.fraud) / float64(a.labeled)
			ts.FraudRateKnown = true
		}
		out[id] = ts
	}
	return out
}

// Snapshot aggregates both groupings into an immutable snapshot.
func Snapshot(txs []*domain.Transaction) *domain.StatsSnapshot {
	return &domain.StatsSnapshot{
		Customers: AggregateByCustomer(txs),
		Terminals: AggregateByTerminal(txs),
	}
}

// populationStd derives the population standard deviation from the
// running sum of squares. The variance term can go slightly negative
// from floating-point cancellation; clamp it.
func populationStd(sumSq, mean float64, count int) float64 {
	variance := sumSq/float64(count) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}
