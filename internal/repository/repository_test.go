package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "harrier-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testTx(id, batchID string, amount float64, fraud *int) *domain.Transaction {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Transaction{
		ID:          id,
		TenantID:    "tenant-1",
		BatchID:     batchID,
		CustomerID:  "cust-1",
		TerminalID:  "term-1",
		Amount:      amount,
		Timestamp:   now,
		TimeSeconds: 3600,
		TimeDays:    12,
		CreatedAt:   now,
		Fraud:       fraud,
	}
}

func TestSaveAndGetTransaction(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	fraud := 1
	tx := testTx("tx-1", "batch-1", 42.5, &fraud)
	tx.FraudScenario = domain.ScenarioHighAmount

	if err := repo.SaveTransaction(ctx, "tenant-1", tx); err != nil {
		t.Fatalf("SaveTransaction() error = %v", err)
	}

	got, err := repo.GetTransaction(ctx, "tenant-1", "tx-1")
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if got.ID != "tx-1" || got.BatchID != "batch-1" || got.Amount != 42.5 {
		t.Errorf("got %+v, want saved fields back", got)
	}
	if got.Fraud == nil || *got.Fraud != 1 {
		t.Errorf("fraud label lost: %v", got.Fraud)
	}
	if got.FraudScenario != domain.ScenarioHighAmount {
		t.Errorf("fraud scenario = %d, want %d", got.FraudScenario, domain.ScenarioHighAmount)
	}
	if got.PredictedFraud != nil || got.PredictedProba != nil {
		t.Error("expected unscored transaction to have nil predictions")
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetTransaction(context.Background(), "tenant-1", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveTransaction(ctx, "tenant-a", testTx("tx-1", "b1", 10, nil)); err != nil {
		t.Fatalf("SaveTransaction() error = %v", err)
	}

	if _, err := repo.GetTransaction(ctx, "tenant-b", "tx-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant read error = %v, want ErrNotFound", err)
	}

	if err := repo.SaveTransaction(ctx, "", testTx("tx-2", "b1", 10, nil)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty tenant error = %v, want ErrInvalidInput", err)
	}
}

func TestSaveTransactionsAndGetBatch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	var txs []*domain.Transaction
	for i := 0; i < 10; i++ {
		txs = append(txs, testTx(fmt.Sprintf("tx-%02d", i), "batch-7", float64(i)*10, nil))
	}
	if err := repo.SaveTransactions(ctx, "tenant-1", txs); err != nil {
		t.Fatalf("SaveTransactions() error = %v", err)
	}
	// Different batch should not leak in.
	if err := repo.SaveTransaction(ctx, "tenant-1", testTx("tx-other", "batch-8", 5, nil)); err != nil {
		t.Fatalf("SaveTransaction() error = %v", err)
	}

	got, err := repo.GetBatch(ctx, "tenant-1", "batch-7")
	if err != nil {
		t.Fatalf("GetBatch() error = %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("got %d transactions, want 10", len(got))
	}
	for i, tx := range got {
		if want := fmt.Sprintf("tx-%02d", i); tx.ID != want {
			t.Errorf("batch order: position %d has %s, want %s", i, tx.ID, want)
		}
	}
}

func TestCountTransactionsByEntity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		tx := testTx(fmt.Sprintf("tx-%d", i), "b1", 10, nil)
		if i%2 == 0 {
			tx.CustomerID = "cust-hot"
		}
		if err := repo.SaveTransaction(ctx, "tenant-1", tx); err != nil {
			t.Fatalf("SaveTransaction() error = %v", err)
		}
	}

	count, err := repo.CountTransactionsByEntity(ctx, "tenant-1", "cust-hot", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountTransactionsByEntity() error = %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	count, err = repo.CountTransactionsByEntity(ctx, "tenant-1", "term-1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountTransactionsByEntity() error = %v", err)
	}
	if count != 5 {
		t.Errorf("terminal count = %d, want 5", count)
	}
}

func TestUpdatePredictions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	fraud := 0
	if err := repo.SaveTransaction(ctx, "tenant-1", testTx("tx-1", "b1", 30, &fraud)); err != nil {
		t.Fatalf("SaveTransaction() error = %v", err)
	}

	verdicts := []domain.Verdict{{TxID: "tx-1", Label: 1, Probability: 0.87}}
	if err := repo.UpdatePredictions(ctx, "tenant-1", verdicts); err != nil {
		t.Fatalf("UpdatePredictions() error = %v", err)
	}

	got, err := repo.GetTransaction(ctx, "tenant-1", "tx-1")
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if got.PredictedFraud == nil || *got.PredictedFraud != 1 {
		t.Errorf("predicted fraud = %v, want 1", got.PredictedFraud)
	}
	if got.PredictedProba == nil || *got.PredictedProba != 0.87 {
		t.Errorf("predicted probability = %v, want 0.87", got.PredictedProba)
	}
	// Original fields untouched.
	if got.Fraud == nil || *got.Fraud != 0 {
		t.Errorf("ground truth changed: %v", got.Fraud)
	}
	if got.Amount != 30 {
		t.Errorf("amount changed: %v", got.Amount)
	}
}

func TestSaveAndGetScaler(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	scaler := &domain.Scaler{
		Mean: []float64{10, 20, 30},
		Std:  []float64{1, 2, 1},
	}
	if err := repo.SaveScaler(ctx, "tenant-1", "model-1", scaler); err != nil {
		t.Fatalf("SaveScaler() error = %v", err)
	}

	got, err := repo.GetScaler(ctx, "tenant-1", "model-1")
	if err != nil {
		t.Fatalf("GetScaler() error = %v", err)
	}
	if got.Len() != 3 {
		t.Fatalf("scaler length = %d, want 3", got.Len())
	}
	for i := range scaler.Mean {
		if got.Mean[i] != scaler.Mean[i] || got.Std[i] != scaler.Std[i] {
			t.Errorf("scaler round trip mismatch at %d: got (%v,%v)", i, got.Mean[i], got.Std[i])
		}
	}

	// Upsert replaces.
	scaler.Mean[0] = 99
	if err := repo.SaveScaler(ctx, "tenant-1", "model-1", scaler); err != nil {
		t.Fatalf("SaveScaler() upsert error = %v", err)
	}
	got, err = repo.GetScaler(ctx, "tenant-1", "model-1")
	if err != nil {
		t.Fatalf("GetScaler() error = %v", err)
	}
	if got.Mean[0] != 99 {
		t.Errorf("upsert did not replace: mean[0] = %v", got.Mean[0])
	}

	if _, err := repo.GetScaler(ctx, "tenant-1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing scaler error = %v, want ErrNotFound", err)
	}
	if err := repo.SaveScaler(ctx, "tenant-1", "model-2", &domain.Scaler{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty scaler error = %v, want ErrInvalidInput", err)
	}
}

func TestSaveAndGetReport(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	report := &domain.Report{
		ID:        "report-1",
		TenantID:  "tenant-1",
		BatchID:   "batch-1",
		ModelID:   "model-1",
		Backend:   domain.BackendLogistic,
		Scored:    100,
		FraudRate: 0.12,
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Evaluated: true,
		Metrics: domain.Metrics{
			Matrix:    domain.ConfusionMatrix{TrueNegative: 80, FalsePositive: 8, FalseNegative: 2, TruePositive: 10},
			Accuracy:  0.9,
			Precision: 10.0 / 18.0,
			Recall:    10.0 / 12.0,
			F1:        2.0 / 3.0,
		},
		Metadata: domain.ReportMetadata{TotalMs: 42, EngineVersion: "harrier-1.0"},
	}

	if err := repo.SaveReport(ctx, "tenant-1", report); err != nil {
		t.Fatalf("SaveReport() error = %v", err)
	}

	got, err := repo.GetReport(ctx, "tenant-1", "report-1")
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if got.Backend != domain.BackendLogistic || got.Scored != 100 || got.FraudRate != 0.12 {
		t.Errorf("report fields lost: %+v", got)
	}
	if !got.Evaluated {
		t.Error("evaluated flag lost")
	}
	if got.Metrics.Matrix != report.Metrics.Matrix {
		t.Errorf("confusion matrix = %+v, want %+v", got.Metrics.Matrix, report.Metrics.Matrix)
	}
	if got.Metadata.EngineVersion != "harrier-1.0" {
		t.Errorf("metadata lost: %+v", got.Metadata)
	}

	if _, err := repo.GetReport(ctx, "tenant-1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing report error = %v, want ErrNotFound", err)
	}
}

func TestRuleConfigLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	lower := 0.5
	rule := &domain.RuleConfig{
		ID:         "rule-velocity",
		TenantID:   "tenant-1",
		Name:       "High velocity",
		Version:    "1.0.0",
		Expression: `amount > customer_mean * 2.0`,
		Bands: []domain.RuleBand{
			{LowerLimit: &lower, SubRuleRef: domain.RuleOutcomeFlag, Reason: "velocity spike"},
		},
		Enabled: true,
	}

	if err := repo.SaveRuleConfig(ctx, "tenant-1", rule); err != nil {
		t.Fatalf("SaveRuleConfig() error = %v", err)
	}

	got, err := repo.GetRuleConfig(ctx, "tenant-1", "rule-velocity")
	if err != nil {
		t.Fatalf("GetRuleConfig() error = %v", err)
	}
	if got.Expression != rule.Expression || len(got.Bands) != 1 {
		t.Errorf("rule round trip lost fields: %+v", got)
	}

	list, err := repo.ListRuleConfigs(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("ListRuleConfigs() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("list length = %d, want 1", len(list))
	}

	// Disabled rules drop out of reads.
	rule.Enabled = false
	if err := repo.SaveRuleConfig(ctx, "tenant-1", rule); err != nil {
		t.Fatalf("SaveRuleConfig() disable error = %v", err)
	}
	if _, err := repo.GetRuleConfig(ctx, "tenant-1", "rule-velocity"); !errors.Is(err, ErrNotFound) {
		t.Errorf("disabled rule error = %v, want ErrNotFound", err)
	}
}

func TestPing(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
