package rules

import (
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func snapWith(customers map[string]domain.CustomerStats, terminals map[string]domain.TerminalStats) *domain.StatsSnapshot {
	if customers == nil {
		customers = map[string]domain.CustomerStats{}
	}
	if terminals == nil {
		terminals = map[string]domain.TerminalStats{}
	}
	return &domain.StatsSnapshot{Customers: customers, Terminals: terminals}
}

func TestCascade(t *testing.T) {
	cascade := NewCascade()

	tests := []struct {
		name         string
		tx           *domain.Transaction
		snap         *domain.StatsSnapshot
		wantLabel    int
		wantScenario int
	}{
		{
			name:         "HighAmount",
			tx:           &domain.Transaction{ID: "t1", CustomerID: "c1", TerminalID: "m1", Amount: 221},
			snap:         snapWith(nil, nil),
			wantLabel:    1,
			wantScenario: domain.ScenarioHighAmount,
		},
		{
			name: "HighAmountPrecedesCompromisedTerminal",
			tx:   &domain.Transaction{ID: "t2", CustomerID: "c1", TerminalID: "m1", Amount: 500},
			snap: snapWith(nil, map[string]domain.TerminalStats{
				"m1": {TerminalID: "m1", FraudRate: 0.9, FraudRateKnown: true},
			}),
			wantLabel:    1,
			wantScenario: domain.ScenarioHighAmount,
		},
		{
			name: "TerminalCompromise",
			tx:   &domain.Transaction{ID: "t3", CustomerID: "c1", TerminalID: "m1", Amount: 50},
			snap: snapWith(nil, map[string]domain.TerminalStats{
				"m1": {TerminalID: "m1", FraudRate: 0.6, FraudRateKnown: true},
			}),
			wantLabel:    1,
			wantScenario: domain.ScenarioTerminalCompromise,
		},
		{
			name: "UnknownRateNeverCompromised",
			tx:   &domain.Transaction{ID: "t4", CustomerID: "c1", TerminalID: "m1", Amount: 50},
			snap: snapWith(nil, map[string]domain.TerminalStats{
				"m1": {TerminalID: "m1", FraudRate: 0, FraudRateKnown: false},
			}),
			wantLabel:    0,
			wantScenario: domain.ScenarioNone,
		},
		{
			name: "SpendingAnomaly",
			tx:   &domain.Transaction{ID: "t5", CustomerID: "c1", TerminalID: "m1", Amount: 130},
			snap: snapWith(map[string]domain.CustomerStats{
				"c1": {CustomerID: "c1", MeanAmount: 40},
			}, nil),
			wantLabel:    1,
			wantScenario: domain.ScenarioSpendingAnomaly,
		},
		{
			name: "Legitimate",
			tx:   &domain.Transaction{ID: "t6", CustomerID: "c1", TerminalID: "m1", Amount: 50},
			snap: snapWith(map[string]domain.CustomerStats{
				"c1": {CustomerID: "c1", MeanAmount: 40},
			}, map[string]domain.TerminalStats{
				"m1": {TerminalID: "m1", FraudRate: 0.1, FraudRateKnown: true},
			}),
			wantLabel:    0,
			wantScenario: domain.ScenarioNone,
		},
		{
			name:         "UnknownEntitiesLegitimate",
			tx:           &domain.Transaction{ID: "t7", CustomerID: "ghost", TerminalID: "ghost", Amount: 100},
			snap:         snapWith(nil, nil),
			wantLabel:    0,
			wantScenario: domain.ScenarioNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := cascade.Evaluate(tt.tx, tt.snap)
			if v.Label != tt.wantLabel {
				t.Errorf("label: got %d, want %d", v.Label, tt.wantLabel)
			}
			if v.Scenario != tt.wantScenario {
				t.Errorf("scenario: got %d, want %d", v.Scenario, tt.wantScenario)
			}
			if v.Probability != float64(tt.wantLabel) {
				t.Errorf("probability proxy: got %f, want %f", v.Probability, float64(tt.wantLabel))
			}
			if v.TxID != tt.tx.ID {
				t.Errorf("txID: got %s, want %s", v.TxID, tt.tx.ID)
			}
		})
	}
}

func TestCascadeBatchOrder(t *testing.T) {
	cascade := NewCascade()
	txs := []*domain.Transaction{
		{ID: "a", CustomerID: "c", TerminalID: "t", Amount: 300},
		{ID: "b", CustomerID: "c", TerminalID: "t", Amount: 10},
	}
	verdicts := cascade.EvaluateBatch(txs, snapWith(nil, nil))
	if len(verdicts) != 2 {
		t.Fatalf("expected 2 verdicts, got %d", len(verdicts))
	}
	if verdicts[0].TxID != "a" || verdicts[1].TxID != "b" {
		t.Error("verdicts not in input order")
	}
	if verdicts[0].Label != 1 || verdicts[1].Label != 0 {
		t.Errorf("unexpected labels: %d, %d", verdicts[0].Label, verdicts[1].Label)
	}
}
