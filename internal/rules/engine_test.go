package rules

import (
	"context"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "test-rule-001",
		Name:       "Test Rule",
		Expression: "amount > 100.0",
		Bands:      []domain.RuleBand{},
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "invalid-rule",
		Name:       "Invalid Rule",
		Expression: "this is not valid CEL !!!",
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err == nil {
		t.Error("expected error for invalid CEL expression")
	}
}

func TestEvaluateCohortRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	zero := 0.0
	one := 1.0

	rule := &domain.RuleConfig{
		ID:         "anomaly-check",
		Name:       "Amount Anomaly Check",
		Expression: "amount_anomaly > 2.0 * customer_std ? 1.0 : 0.0",
		Bands: []domain.RuleBand{
			{LowerLimit: &zero, UpperLimit: &one, SubRuleRef: domain.RuleOutcomePass, Reason: "within spending pattern"},
			{LowerLimit: &one, UpperLimit: nil, SubRuleRef: domain.RuleOutcomeFlag, Reason: "outside spending pattern"},
		},
		Enabled: true,
	}

	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	snap := &domain.StatsSnapshot{
		Customers: map[string]domain.CustomerStats{
			"c1": {CustomerID: "c1", Count: 10, MeanAmount: 50, StdAmount: 5},
		},
		Terminals: map[string]domain.TerminalStats{},
	}

	ctx := context.Background()

	t.Run("WithinPattern", func(t *testing.T) {
		tx := &domain.Transaction{ID: "tx-1", CustomerID: "c1", TerminalID: "m1", Amount: 55}
		results, err := engine.EvaluateAll(ctx, "tenant-001", tx, snap)
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("expected 1 result, got %d", len(results))
		}
		if results[0].SubRuleRef != domain.RuleOutcomePass {
			t.Errorf("expected pass, got %s (%s)", results[0].SubRuleRef, results[0].Reason)
		}
	})

	t.Run("OutsidePattern", func(t *testing.T) {
		tx := &domain.Transaction{ID: "tx-2", CustomerID: "c1", TerminalID: "m1", Amount: 100}
		results, err := engine.EvaluateAll(ctx, "tenant-001", tx, snap)
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		if results[0].SubRuleRef != domain.RuleOutcomeFlag {
			t.Errorf("expected flag, got %s", results[0].SubRuleRef)
		}
		if results[0].Score != 1.0 {
			t.Errorf("expected score 1.0, got %f", results[0].Score)
		}
	})

	t.Run("UnknownCustomerZeroDefaults", func(t *testing.T) {
		tx := &domain.Transaction{ID: "tx-3", CustomerID: "ghost", TerminalID: "m1", Amount: 100}
		results, err := engine.EvaluateAll(ctx, "tenant-001", tx, snap)
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		// amount_anomaly defaults to 0 for an unseen customer
		if results[0].SubRuleRef != domain.RuleOutcomePass {
			t.Errorf("expected pass for unseen customer, got %s", results[0].SubRuleRef)
		}
	})
}

func TestTerminalRateKnownVariable(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "compromise-signal",
		Expression: "terminal_rate_known && terminal_fraud_rate > 0.5",
		Enabled:    true,
	}
	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	snap := &domain.StatsSnapshot{
		Customers: map[string]domain.CustomerStats{},
		Terminals: map[string]domain.TerminalStats{
			"known":   {TerminalID: "known", FraudRate: 0.9, FraudRateKnown: true},
			"unknown": {TerminalID: "unknown", FraudRate: 0, FraudRateKnown: false},
		},
	}

	ctx := context.Background()

	results, _ := engine.EvaluateAll(ctx, "tenant-001", &domain.Transaction{ID: "a", TerminalID: "known"}, snap)
	if results[0].Score != 1.0 {
		t.Errorf("expected known compromised terminal to score 1.0, got %f", results[0].Score)
	}

	results, _ = engine.EvaluateAll(ctx, "tenant-001", &domain.Transaction{ID: "b", TerminalID: "unknown"}, snap)
	if results[0].Score != 0.0 {
		t.Errorf("expected unknown-rate terminal to score 0.0, got %f", results[0].Score)
	}
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{ID: "r1", Expression: "amount > 10.0", Enabled: true})
	engine.LoadRule(&domain.RuleConfig{ID: "r2", Expression: "amount > 20.0", Enabled: true})

	err := engine.ReloadRules([]*domain.RuleConfig{
		{ID: "r3", Expression: "amount > 30.0", Enabled: true},
		{ID: "r4", Expression: "amount > 40.0", Enabled: false},
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule after reload, got %d", engine.RulesCount())
	}
}

func TestMatchBandDefaultsToPass(t *testing.T) {
	ref, _ := matchBand(0.5, nil)
	if ref != domain.RuleOutcomePass {
		t.Errorf("expected default pass, got %s", ref)
	}
}
