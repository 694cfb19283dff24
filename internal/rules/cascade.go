// Package rules provides the deterministic scenario cascade and the
// CEL-based custom rule engine.
package rules

import (
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Cascade is the builtin rule-based classifier. Rules are evaluated as
// an ordered list; the first matching scenario wins and the outputs are
// mutually exclusive. No training is required, which makes the cascade
// the fallback and comparison path next to the trainable backend.
type Cascade struct {
	// HighAmountThreshold triggers scenario 1 when exceeded.
	HighAmountThreshold float64

	// TerminalRateThreshold triggers scenario 2 when a terminal's known
	// fraud rate exceeds it. Terminals with an unknown rate never match.
	TerminalRateThreshold float64

	// SpendingMultiplier triggers scenario 3 when the amount exceeds
	// SpendingMultiplier times the customer's known mean.
	SpendingMultiplier float64
}

// NewCascade returns a cascade with the reference thresholds.
func NewCascade() *Cascade {
	return &Cascade{
		HighAmountThreshold:   220,
		TerminalRateThreshold: 0.5,
		SpendingMultiplier:    3,
	}
}

// Evaluate classifies one transaction against the batch's stats
// snapshot. Pure function: no side effects, no state. The probability
// proxy equals the predicted label; the cascade does not produce graded
// confidence.
func (c *Cascade) Evaluate(tx *domain.Transaction, snap *domain.StatsSnapshot) domain.Verdict {
	if tx.Amount > c.HighAmountThreshold {
		return domain.Verdict{
			TxID:        tx.ID,
			Label:       1,
			Scenario:    domain.ScenarioHighAmount,
			Probability: 1,
			Reason:      fmt.Sprintf("amount %.2f exceeds %.2f", tx.Amount, c.HighAmountThreshold),
		}
	}

	if ts, ok := snap.Terminal(tx.TerminalID); ok && ts.FraudRateKnown && ts.FraudRate > c.TerminalRateThreshold {
		return domain.Verdict{
			TxID:        tx.ID,
			Label:       1,
			Scenario:    domain.ScenarioTerminalCompromise,
			Probability: 1,
			Reason:      fmt.Sprintf("terminal %s fraud rate %.2f exceeds %.2f", tx.TerminalID, ts.FraudRate, c.TerminalRateThreshold),
		}
	}

	if cs, ok := snap.Customer(tx.CustomerID); ok && tx.Amount > c.SpendingMultiplier*cs.MeanAmount {
		return domain.Verdict{
			TxID:        tx.ID,
			Label:       1,
			Scenario:    domain.ScenarioSpendingAnomaly,
			Probability: 1,
			Reason:      fmt.Sprintf("amount %.2f exceeds %.0fx customer mean %.2f", tx.Amount, c.SpendingMultiplier, cs.MeanAmount),
		}
	}

	return domain.Verdict{TxID: tx.ID, Label: 0, Scenario: domain.ScenarioNone, Probability: 0}
}

// EvaluateBatch classifies every transaction in input order.
func (c *Cascade) EvaluateBatch(txs []*domain.Transaction, snap *domain.StatsSnapshot) []domain.Verdict {
	verdicts := make([]domain.Verdict, len(txs))
	for i, tx := range txs {
		verdicts[i] = c.Evaluate(tx, snap)
	}
	return verdicts
}
