package stats

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func mkTx(id, customer, terminal string, amount float64, fraud *int) *domain.Transaction {
	return &domain.Transaction{
		ID:         id,
		CustomerID: customer,
		TerminalID: terminal,
		Amount:     amount,
		Timestamp:  time.Now().UTC(),
		Fraud:      fraud,
	}
}

func label(v int) *int { return &v }

func TestAggregateByCustomer(t *testing.T) {
	t.Run("EmptyBatch", func(t *testing.T) {
		got := AggregateByCustomer(nil)
		if len(got) != 0 {
			t.Errorf("expected empty map, got %d entries", len(got))
		}
	})

	t.Run("OneEntryPerCustomer", func(t *testing.T) {
		var txs []*domain.Transaction
		counts := map[string]int{"c1": 3, "c2": 1, "c3": 5}
		for customer, n := range counts {
			for i := 0; i < n; i++ {
				txs = append(txs, mkTx(fmt.Sprintf("%s-%d", customer, i), customer, "t1", 10, nil))
			}
		}

		got := AggregateByCustomer(txs)
		if len(got) != len(counts) {
			t.Fatalf("expected %d customers, got %d", len(counts), len(got))
		}
		for customer, n := range counts {
			cs, ok := got[customer]
			if !ok {
				t.Fatalf("missing customer %s", customer)
			}
			if cs.Count != n {
				t.Errorf("customer %s: expected count %d, got %d", customer, n, cs.Count)
			}
		}
	})

	t.Run("PopulationStatistics", func(t *testing.T) {
		// amounts 10, 20, 30: mean 20, population std sqrt(200/3)
		txs := []*domain.Transaction{
			mkTx("a", "c1", "t1", 10, nil),
			mkTx("b", "c1", "t1", 20, nil),
			mkTx("c", "c1", "t1", 30, nil),
		}
		cs := AggregateByCustomer(txs)["c1"]
		if math.Abs(cs.MeanAmount-20) > 1e-9 {
			t.Errorf("expected mean 20, got %f", cs.MeanAmount)
		}
		wantStd := math.Sqrt(200.0 / 3.0)
		if math.Abs(cs.StdAmount-wantStd) > 1e-9 {
			t.Errorf("expected population std %f, got %f", wantStd, cs.StdAmount)
		}
	})

	t.Run("SingleTransactionZeroStd", func(t *testing.T) {
		cs := AggregateByCustomer([]*domain.Transaction{mkTx("a", "c1", "t1", 42, nil)})["c1"]
		if cs.Count != 1 || cs.StdAmount != 0 {
			t.Errorf("expected count 1 and std 0, got count %d std %f", cs.Count, cs.StdAmount)
		}
	})
}

func TestAggregateByTerminal(t *testing.T) {
	t.Run("FraudRate", func(t *testing.T) {
		txs := []*domain.Transaction{
			mkTx("a", "c1", "t1", 10, label(1)),
			mkTx("b", "c2", "t1", 20, label(0)),
			mkTx("c", "c3", "t1", 30, label(0)),
			mkTx("d", "c4", "t1", 40, label(1)),
		}
		ts := AggregateByTerminal(txs)["t1"]
		if !ts.FraudRateKnown {
			t.Fatal("expected fraud rate to be known for labeled terminal")
		}
		if math.Abs(ts.FraudRate-0.5) > 1e-9 {
			t.Errorf("expected fraud rate 0.5, got %f", ts.FraudRate)
		}
		if ts.Count != 4 {
			t.Errorf("expected count 4, got %d", ts.Count)
		}
	})

	t.Run("UnlabeledTerminalRateUnknown", func(t *testing.T) {
		txs := []*domain.Transaction{
			mkTx("a", "c1", "t9", 10, nil),
			mkTx("b", "c2", "t9", 20, nil),
		}
		ts := AggregateByTerminal(txs)["t9"]
		if ts.FraudRateKnown {
			t.Error("expected unknown fraud rate for unlabeled terminal")
		}
		if ts.FraudRate != 0 {
			t.Errorf("expected zero rate in unknown state, got %f", ts.FraudRate)
		}
	})

	t.Run("PartialLabels", func(t *testing.T) {
		// rate is a fraction of labeled rows only
		txs := []*domain.Transaction{
			mkTx("a", "c1", "t2", 10, label(1)),
			mkTx("b", "c2", "t2", 20, nil),
		}
		ts := AggregateByTerminal(txs)["t2"]
		if !ts.FraudRateKnown || ts.FraudRate != 1 {
			t.Errorf("expected known rate 1.0, got known=%v rate=%f", ts.FraudRateKnown, ts.FraudRate)
		}
	})

	t.Run("MeanAmount", func(t *testing.T) {
		txs := []*domain.Transaction{
			mkTx("a", "c1", "t3", 100, nil),
			mkTx("b", "c2", "t3", 200, nil),
		}
		ts := AggregateByTerminal(txs)["t3"]
		if math.Abs(ts.MeanAmount-150) > 1e-9 {
			t.Errorf("expected mean 150, got %f", ts.MeanAmount)
		}
	})
}

func TestSnapshot(t *testing.T) {
	txs := []*domain.Transaction{
		mkTx("a", "c1", "t1", 10, label(0)),
		mkTx("b", "c2", "t2", 20, label(1)),
	}
	snap := Snapshot(txs)
	if len(snap.Customers) != 2 || len(snap.Terminals) != 2 {
		t.Fatalf("expected 2 customers and 2 terminals, got %d/%d",
			len(snap.Customers), len(snap.Terminals))
	}
	if _, ok := snap.Customer("c1"); !ok {
		t.Error("expected customer c1 in snapshot")
	}
	if _, ok := snap.Terminal("missing"); ok {
		t.Error("did not expect unknown terminal in snapshot")
	}
}
