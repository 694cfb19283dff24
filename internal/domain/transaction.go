package domain

import (
	"time"
)

// Transaction represents a payment-card transaction to be scored.
// Fields are immutable once parsed; the scoring stage appends only the
// Predicted* fields.
type Transaction struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	BatchID  string `json:"batchId,omitempty"`

	// Parties involved
	CustomerID string `json:"customerId"`
	TerminalID string `json:"terminalId"`

	// Financial details
	Amount float64 `json:"amount"`

	// Temporal
	Timestamp   time.Time `json:"timestamp"`
	TimeSeconds int64     `json:"timeSeconds"` // elapsed seconds since the epoch reference
	TimeDays    int64     `json:"timeDays"`    // elapsed days since the epoch reference
	CreatedAt   time.Time `json:"createdAt"`

	// Ground truth, nil for prediction-only inputs
	Fraud         *int `json:"fraud,omitempty"`
	FraudScenario int  `json:"fraudScenario,omitempty"` // 1, 2 or 3; 0 when absent

	// Appended by the scoring stage
	PredictedFraud *int     `json:"predictedFraud,omitempty"`
	PredictedProba *float64 `json:"predictedProba,omitempty"`
}

// Labeled reports whether the transaction carries a ground-truth label.
func (t *Transaction) Labeled() bool {
	return t.Fraud != nil
}

// TransactionRecord is the API payload for a single transaction row.
// Field names mirror the upstream CSV export.
type TransactionRecord struct {
	TransactionID string  `json:"TRANSACTION_ID"`
	TxDatetime    string  `json:"TX_DATETIME,omitempty"`
	CustomerID    string  `json:"CUSTOMER_ID"`
	TerminalID    string  `json:"TERMINAL_ID"`
	TxAmount      float64 `json:"TX_AMOUNT"`
	TxTimeSeconds int64   `json:"TX_TIME_SECONDS"`
	TxTimeDays    int64   `json:"TX_TIME_DAYS"`
	TxFraud       *int    `json:"TX_FRAUD,omitempty"`
	TxScenario    int     `json:"TX_FRAUD_SCENARIO,omitempty"`
}

// ToTransaction converts an input record to a Transaction domain object.
// Records arrive validated and typed from the parsing collaborator.
func (r *TransactionRecord) ToTransaction(tenantID string) *Transaction {
	now := time.Now().UTC()
	ts := now
	if r.TxDatetime != "" {
		if parsed, err := time.Parse(time.RFC3339, r.TxDatetime); err == nil {
			ts = parsed
		}
	}
	return &Transaction{
		ID:            r.TransactionID,
		TenantID:      tenantID,
		CustomerID:    r.CustomerID,
		TerminalID:    r.TerminalID,
		Amount:        r.TxAmount,
		Timestamp:     ts,
		TimeSeconds:   r.TxTimeSeconds,
		TimeDays:      r.TxTimeDays,
		CreatedAt:     now,
		Fraud:         r.TxFraud,
		FraudScenario: r.TxScenario,
	}
}

// ToRecord converts a Transaction back to the export record shape,
// including the predicted fields when present.
func (t *Transaction) ToRecord() *ScoredRecord {
	rec := &ScoredRecord{
		TransactionID: t.ID,
		TxDatetime:    t.Timestamp.UTC().Format(time.RFC3339),
		CustomerID:    t.CustomerID,
		TerminalID:    t.TerminalID,
		TxAmount:      t.Amount,
		TxTimeSeconds: t.TimeSeconds,
		TxTimeDays:    t.TimeDays,
		TxFraud:       t.Fraud,
		TxScenario:    t.FraudScenario,
	}
	if t.PredictedFraud != nil {
		rec.PredictedFraud = *t.PredictedFraud
	}
	if t.PredictedProba != nil {
		rec.PredictedProba = *t.PredictedProba
	}
	return rec
}

// ScoredRecord is the output record shape handed to the export collaborator.
type ScoredRecord struct {
	TransactionID  string  `json:"TRANSACTION_ID"`
	TxDatetime     string  `json:"TX_DATETIME"`
	CustomerID     string  `json:"CUSTOMER_ID"`
	TerminalID     string  `json:"TERMINAL_ID"`
	TxAmount       float64 `json:"TX_AMOUNT"`
	TxTimeSeconds  int64   `json:"TX_TIME_SECONDS"`
	TxTimeDays     int64   `json:"TX_TIME_DAYS"`
	TxFraud        *int    `json:"TX_FRAUD,omitempty"`
	TxScenario     int     `json:"TX_FRAUD_SCENARIO,omitempty"`
	PredictedFraud int     `json:"predicted_fraud"`
	PredictedProba float64 `json:"predicted_probability"`
}
